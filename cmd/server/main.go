package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"qlink/internal/auth"
	"qlink/internal/config"
	"qlink/internal/helper"
	"qlink/internal/http/handler"
	"qlink/internal/http/middleware"
	"qlink/internal/models"
	"qlink/internal/queue"
	"qlink/internal/realtime"
	"qlink/internal/report"
	"qlink/internal/repository"
	"qlink/migrations"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadEnv()
	cfg := config.Load()
	logger := config.NewLogger(cfg, os.Stdout)
	loc := cfg.Location()
	if err := helper.ValidateHours(cfg.QueueOpenAt, cfg.QueueCloseAt); err != nil {
		log.Fatalf("opening hours: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.OpenDB(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := migrations.Run(ctx, db, "up"); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	rdb, err := config.OpenRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	users := repository.NewUserRepository(db)
	departments := repository.NewDepartmentRepository(db)
	activity := repository.NewActivityRepository(db)
	stats := repository.NewStatsRepository(db)

	// The hub reads the board through the queue service, which in turn notifies the hub.
	var queues *queue.Service
	hub := realtime.NewHub(realtime.SourceFunc(func(ctx context.Context) ([]models.DepartmentStatus, error) {
		return queues.DepartmentStatus(ctx)
	}), realtime.Options{Location: loc, Logger: logger})

	queues = queue.NewService(queue.NewMySQLStore(db), queue.Options{
		Location:   loc,
		OpenAt:     cfg.QueueOpenAt,
		CloseAt:    cfg.QueueCloseAt,
		ETAMinutes: cfg.QueueETAMinutes,
		Notifier:   hub,
		Logger:     logger,
	})
	deptService := queue.NewDepartmentService(departments, activity, hub, logger)

	sessions := auth.NewSessionStore(rdb, cfg.SessionLifetime)
	tokens := config.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	accounts := auth.NewService(users, auth.Options{
		Sessions: sessions,
		Tokens:   tokens,
		Captcha:  config.NewRecaptcha(cfg.RecaptchaSecret, cfg.RecaptchaMinScore),
		Activity: activity,
		Logger:   logger,
	})
	reports := report.NewService(stats, activity, users, departments, report.Options{Location: loc, Logger: logger})

	mw := middleware.NewAuth(middleware.AuthConfig{
		Sessions:     sessions,
		Cookies:      auth.NewCookieCodec(cfg.SessionName, cfg.SessionHashKey, cfg.SessionLifetime),
		CSRF:         auth.NewCSRF(cfg.CSRFLifetime),
		Tokens:       tokens,
		Users:        accounts,
		CookieSecure: cfg.CookieSecure,
		Logger:       logger,
	})

	app := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
		ErrorHandler:  middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, PUT, DELETE",
		AllowCredentials: cfg.CORSAllowOrigins != "*",
	}))
	app.Use(middleware.RequestMeta(), mw.Identify())

	handler.Routes{
		Auth:     mw,
		Accounts: handler.NewAuthHandler(accounts, mw),
		Queues: handler.NewQueueHandler(queues, handler.Hours{
			OpenAt:     cfg.QueueOpenAt,
			CloseAt:    cfg.QueueCloseAt,
			ETAMinutes: cfg.QueueETAMinutes,
			Location:   loc,
		}),
		Departments: handler.NewDepartmentHandler(deptService),
		Admin:       handler.NewAdminHandler(reports, accounts),
		Display:     handler.Display(hub.Serve),
		Ops:         middleware.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass),
		LoginLimit:  cfg.LoginRateLimit,
	}.Mount(app)

	go hub.Run(ctx)
	if cfg.QueueMissedAfter > 0 {
		go expireStale(ctx, queues, cfg.QueueMissedAfter, logger)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	addr := cfg.AppHost + ":" + cfg.AppPort
	logger.Info("server listening", "addr", addr)
	if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	logger.Info("server stopped")
}
