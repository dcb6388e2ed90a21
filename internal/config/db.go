package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSN builds the MySQL data source name for cfg.
func (c *Config) DSN() string {
	dsn := mysql.NewConfig()
	dsn.User = c.DBUser
	dsn.Passwd = c.DBPassword
	dsn.Net = "tcp"
	dsn.Addr = c.DBHost + ":" + c.DBPort
	dsn.DBName = c.DBName
	dsn.ParseTime = true
	// DATETIME values and the session zone both follow TIMEZONE so stored
	// timestamps agree with the queue day computed in Go.
	loc := c.Location()
	dsn.Loc = loc
	dsn.Params = map[string]string{
		"charset":   "utf8mb4",
		"time_zone": sessionTimeZone(loc, time.Now()),
	}
	return dsn.FormatDSN()
}

// sessionTimeZone renders loc's current UTC offset as a MySQL time_zone value.
// Named zones would need the server's tz tables loaded.
func sessionTimeZone(loc *time.Location, now time.Time) string {
	_, offset := now.In(loc).Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("'%c%02d:%02d'", sign, offset/3600, offset%3600/60)
}

// OpenDB connects to MySQL and verifies the connection.
func OpenDB(ctx context.Context, cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}
