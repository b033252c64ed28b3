package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fallguard/fallguard/internal/config"
	"github.com/fallguard/fallguard/internal/domain/assessment"
	"github.com/fallguard/fallguard/internal/domain/export"
	"github.com/fallguard/fallguard/internal/domain/facility"
	"github.com/fallguard/fallguard/internal/domain/fallevent"
	"github.com/fallguard/fallguard/internal/domain/workqueue"
	"github.com/fallguard/fallguard/internal/platform/auth"
	"github.com/fallguard/fallguard/internal/platform/db"
	"github.com/fallguard/fallguard/internal/platform/mail"
	"github.com/fallguard/fallguard/internal/platform/middleware"
	"github.com/fallguard/fallguard/internal/platform/notify"
	"github.com/fallguard/fallguard/internal/platform/scheduler"
	"github.com/fallguard/fallguard/internal/platform/taskqueue"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fallguard-server",
		Short: "Fall-prevention workflow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(devUUID("DEV_FACILITY_ID"), devUUID("DEV_USER_ID")))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthHMACKey),
		}))
	}

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// API group with rate limiting
	apiV1 := e.Group("/api/v1")
	limiterStore := middleware.NewLimiterStore(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Window:            cfg.RateLimitWindow,
	})
	apiV1.Use(middleware.RateLimit(limiterStore))

	// Repositories
	facilityRepo := facility.NewRepoPG(pool)
	userRepo := facility.NewUserRepoPG(pool)
	assessmentRepo := assessment.NewRepoPG(pool)
	eventRepo := fallevent.NewRepoPG(pool)
	checkRepo := fallevent.NewCheckRepoPG(pool)
	scheduleRepo := export.NewRepoPG(pool)
	artifactRepo := export.NewArtifactRepoPG(pool)
	notifyRepo := notify.NewRepoPG(pool)
	taskRepo := taskqueue.NewRepoPG(pool, cfg.TaskRetryDelay, cfg.TaskMaxAttempts)

	// Mail delivery with outbox fallback
	var sender mail.Sender
	smtpCfg := mail.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}
	if smtpCfg.Configured() {
		sender = mail.NewSMTPSender(smtpCfg)
	}
	outbox := mail.NewOutbox(cfg.OutboxPath)
	defer outbox.Close()

	dispatcher := notify.NewDispatcher(notifyRepo, userRepo, facilityRepo, sender, outbox)

	// Domain services
	assessmentSvc := assessment.NewService(assessmentRepo, facilityRepo, userRepo, cfg.ReassessCadenceDays)
	falleventSvc := fallevent.NewService(eventRepo, checkRepo, facilityRepo)
	exportSvc := export.NewService(scheduleRepo, taskRepo, func(ctx context.Context, fn func(context.Context) error) error {
		return db.InTx(ctx, pool, fn)
	})
	queueBuilder := workqueue.NewBuilder(assessmentRepo, eventRepo, checkRepo, facilityRepo, cfg.FollowUpDays)

	// Handlers
	assessment.NewHandler(assessmentSvc).RegisterRoutes(apiV1)
	fallevent.NewHandler(falleventSvc).RegisterRoutes(apiV1)
	export.NewHandler(exportSvc).RegisterRoutes(apiV1)
	workqueue.NewHandler(queueBuilder).RegisterRoutes(apiV1)
	notify.NewHandler(notifyRepo).RegisterRoutes(apiV1)

	// Task workers
	scanWorker := scheduler.NewScanWorker(facilityRepo, queueBuilder, dispatcher, taskRepo, scheduler.ScanDefaults{
		Hour:   cfg.ScanHour,
		Minute: cfg.ScanMinute,
	})
	exportWorker := scheduler.NewExportWorker(scheduleRepo, artifactRepo, exportSvc, renderExport, dispatcher, cfg.ExportStaleTolerance)
	modelRunWorker := scheduler.NewModelRunWorker(cfg.ModelRunScript, cfg.ModelRunTimeout)

	runner := taskqueue.NewRunner(taskRepo, taskqueue.RunnerConfig{
		PollInterval: cfg.TaskPollInterval,
		BatchSize:    cfg.TaskBatchSize,
	}, logger)
	runner.Register(taskqueue.TypeScan, scanWorker.Handle)
	runner.Register(taskqueue.TypeExport, exportWorker.Handle)
	runner.Register(taskqueue.TypeModelRun, modelRunWorker.Handle)

	// Seed recurring work, then start the poll loop
	seeder := scheduler.NewSeeder(facilityRepo, scheduleRepo, taskRepo, scanWorker)
	if err := seeder.SeedOnStart(ctx); err != nil {
		logger.Error().Err(err).Msg("seeding recurring tasks failed")
	}

	runnerCtx, runnerCancel := context.WithCancel(ctx)
	defer runnerCancel()
	go runner.Start(runnerCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	runnerCancel()
	runner.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

// renderExport is a placeholder renderer: report generation proper lives
// behind this function signature, so swapping in a real CSV/PDF pipeline
// touches nothing but this wiring.
func renderExport(ctx context.Context, sched *export.Schedule) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{"schedule_id", "facility_id", "export_type", "generated_at"})
	_ = w.Write([]string{
		sched.ID.String(),
		sched.FacilityID.String(),
		string(sched.ExportType),
		time.Now().UTC().Format(time.RFC3339),
	})
	w.Flush()
	return []byte(b.String()), w.Error()
}

// devUUID reads a fixed principal id for local development, generating one
// when the variable is unset so the server still boots.
func devUUID(envKey string) uuid.UUID {
	if v := os.Getenv(envKey); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.New()
}
