package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"kitloop-backend/internal/audit"
	"kitloop-backend/internal/auth"
	"kitloop-backend/internal/config"
	"kitloop-backend/internal/engine"
	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/metadata"
	"kitloop-backend/internal/ratelimit"
	"kitloop-backend/internal/storage"
	"kitloop-backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	err = run(ctx, cfg)
	if err != nil {
		logging.Error("Server exited", zap.Error(err))
	}
	_ = logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run owns every resource so its deferred cleanup happens before main exits.
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info("Config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("storage_driver", cfg.Storage.Driver))

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx, cfg.Admin); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}

	// 4. Upload rule table
	reg := metadata.NewRegistry()
	if err := metadata.LoadUploadRules(cfg.Uploads, reg); err != nil {
		return fmt.Errorf("load upload rules: %w", err)
	}

	// 5. File storage
	fs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// 6. Rate limiter
	limiter, redisClient, err := ratelimit.New(ctx, cfg.Redis, cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 7. Decision audit trail
	var recorder audit.Recorder = audit.NoopRecorder{}
	if cfg.Audit.Enabled {
		buffer := audit.NewDecisionBuffer(db, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
		defer buffer.Stop()
		recorder = buffer
		audit.StartCleanup(ctx, db, cfg.Audit.RetentionDays)
	}

	// 8. Create Fiber app; the body limit follows the upload rule table
	app := fiber.New(engine.AppConfig(reg))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (no auth required)
	authHandler := auth.NewAuthHandler(db, cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	authMW := auth.AuthMiddleware(cfg.JWTSecret)

	// 10. Decision endpoints
	policyHandler := engine.NewPolicyHandler(reg, recorder, cfg.Storage.DefaultBucket)
	engine.RegisterPolicyRoutes(app, policyHandler, authMW)

	// 11. Uploads and files
	fileHandler := engine.NewFileHandler(db, fs, reg, limiter, recorder, cfg.Storage.DefaultBucket)
	engine.RegisterFileRoutes(app, fileHandler, authMW,
		auth.RequirePermission(metadata.ActionCreate, metadata.ResourceInventory),
		auth.RequirePermission(metadata.ActionDelete, metadata.ResourceInventory))

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			logging.Error("Server shutdown", zap.Error(err))
		}
	}()

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logging.Info("Starting server", zap.String("addr", addr), zap.Int("body_limit", app.Config().BodyLimit))
	return app.Listen(addr)
}
