package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bizledger-backend/cache"
	"bizledger-backend/config"
	"bizledger-backend/database"
	"bizledger-backend/invoicing"
	"bizledger-backend/middlewares"
	"bizledger-backend/routes"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := bootstrap()

		db, err := database.Connect(cfg, log)
		if err != nil {
			config.LogError(log, "cmd", "serve", "connect database", cfg.DBDriver, err)
			return err
		}
		if autoMigrate {
			if err := database.Migrate(db); err != nil {
				config.LogError(log, "cmd", "serve", "apply migrations", nil, err)
				return err
			}
		}
		middlewares.SetJWTSecret(cfg.JWTSecret)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps := routes.Deps{DB: db, Log: log}
		var locker invoicing.Locker
		if cfg.RedisAddress != "" {
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			client, err := cache.Connect(dialCtx, cfg.RedisAddress, log)
			cancel()
			if err != nil {
				log.WithError(err).Warn("redis unavailable; running without distributed locks")
			} else {
				defer client.Close()
				locker = client
				deps.Guard = client
			}
		}
		deps.Engine = invoicing.NewEngine(database.NewStore(db), locker, log)

		app := newApp(cfg, log, deps)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.WithError(err).Error("shutdown")
			}
		}()

		log.WithField("port", cfg.Port).Info("API server starting")
		return app.Listen(":" + cfg.Port)
	},
}

func newApp(cfg config.Config, log *logrus.Logger, deps routes.Deps) *fiber.App {
	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.NewErrorHandler(log),
		BodyLimit:    cfg.BodyLimitBytes,
	})

	// ---- CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))

	// ---- Global rate limiter (client IP keyed)
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
	}))

	routes.Register(app, deps)
	return app
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
