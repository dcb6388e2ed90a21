package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"qlink/internal/config"
	"qlink/migrations"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	command := args[0]
	switch command {
	case "up", "down", "status", "up-by-one", "redo", "version":
	default:
		fmt.Printf("unknown command: %s\n", command)
		flag.Usage()
		os.Exit(2)
	}

	config.LoadEnv()
	cfg := config.Load()

	ctx := context.Background()
	db, err := config.OpenDB(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, command, args[1:]...); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func usage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up        apply all pending migrations")
	fmt.Println("  up-by-one apply the next pending migration")
	fmt.Println("  down      roll back the latest migration")
	fmt.Println("  redo      roll back and re-apply the latest migration")
	fmt.Println("  status    print applied and pending migrations")
	fmt.Println("  version   print the current schema version")
}
