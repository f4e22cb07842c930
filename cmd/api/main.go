package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/fairyhunter13/airtime-voucher-service/internal/config"
	"github.com/fairyhunter13/airtime-voucher-service/internal/handler"
	"github.com/fairyhunter13/airtime-voucher-service/internal/repository"
	"github.com/fairyhunter13/airtime-voucher-service/internal/service"
	"github.com/fairyhunter13/airtime-voucher-service/internal/validator"
	"github.com/fairyhunter13/airtime-voucher-service/pkg/database"
)

func main() {
	app := &cli.App{
		Name:  "airtime-voucher-service",
		Usage: "multi-tenant airtime voucher issuance service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   "8080",
				Usage:   "port number to listen on",
			},
			&cli.StringFlag{
				Name:     "database-connection-string",
				Aliases:  []string{"d"},
				Required: true,
				Usage:    "database connection string (PostgreSQL URL)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		// Usage errors (e.g. the mandatory -d flag missing) land here too.
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run(cliCtx *cli.Context) error {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cliCtx.String("database-connection-string"), cfg.Server.DBConnRetries)
	if err != nil {
		return err
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Airtime Voucher Service",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := validator.New()

	// Initialize voucher components (layered architecture)
	schemaRepo := repository.NewSchemaRepository()
	voucherRepo := repository.NewVoucherRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	importRepo := repository.NewImportAuditRepository(pool)
	exportRepo := repository.NewExportRepository(pool)
	voucherService := service.NewVoucherService(pool, schemaRepo, voucherRepo, auditRepo, importRepo, exportRepo)

	issueHandler := handler.NewIssueHandler(voucherService, validate)
	importHandler := handler.NewImportHandler(voucherService)
	exportHandler := handler.NewExportHandler(voucherService, validate)
	auditHandler := handler.NewAuditHandler(voucherService)
	healthHandler := handler.NewHealthHandler(pool)

	app.Get("/health", healthHandler.Check)

	// Pool routes
	app.Put("/:pool/issue/:operator/:request_id", issueHandler.Issue)
	app.Put("/:pool/import/:request_id", importHandler.Import)
	app.Put("/:pool/export/:request_id", exportHandler.Export)
	app.Get("/:pool/audit_query", auditHandler.Query)
	app.Get("/:pool/voucher_counts", auditHandler.VoucherCounts)

	// Start server with graceful shutdown
	port := cliCtx.String("port")
	go func() {
		log.Info().Str("port", port).Msg("starting server")
		if err := app.Listen(":" + port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close database pool AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
	return nil
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
