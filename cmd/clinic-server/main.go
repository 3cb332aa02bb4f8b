package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/scheduler/internal/config"
	"github.com/clinic/scheduler/internal/domain/appointment"
	"github.com/clinic/scheduler/internal/domain/availability"
	"github.com/clinic/scheduler/internal/domain/payment"
	"github.com/clinic/scheduler/internal/domain/prescription"
	"github.com/clinic/scheduler/internal/platform/apperr"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/cache"
	"github.com/clinic/scheduler/internal/platform/db"
	"github.com/clinic/scheduler/internal/platform/events"
	"github.com/clinic/scheduler/internal/platform/middleware"
	"github.com/clinic/scheduler/internal/platform/validate"
	"github.com/clinic/scheduler/internal/reminder"
	"github.com/clinic/scheduler/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment scheduling API",
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(remindersCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

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

			migrator := db.NewMigrator(pool, migrations.FS, schema)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

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

			statuses, err := db.NewMigrator(pool, migrations.FS, schema).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Publish reminder events for tomorrow's confirmed appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")
			return runReminders(once)
		},
	}
	cmd.Flags().Bool("once", false, "Send reminders now and exit instead of following REMINDER_CRON")
	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration and sets up Sentry. The
// returned func flushes Sentry and must be deferred.
func loadConfig() (*config.Config, zerolog.Logger, func(), error) {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		return nil, logger, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, nil, err
	}
	logger = newLogger(cfg.Env)

	flush := func() {}
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			Release:     "clinic-server@" + version,
		}); err != nil {
			return nil, logger, nil, fmt.Errorf("init sentry: %w", err)
		}
		flush = func() { sentry.Flush(2 * time.Second) }
		logger.Info().Msg("sentry error reporting enabled")
	}
	return cfg, logger, flush, nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn().Msg("KAFKA_BROKERS not set; lifecycle events are dropped")
		return events.NopPublisher{}, func() {}
	}
	p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Error().Err(err).Msg("close kafka writer")
		}
	}
}

func newCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, func() {}
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, "clinic:")
	if err != nil {
		// slot lists are always computable from Postgres
		logger.Warn().Err(err).Msg("redis unavailable; slot cache disabled")
		return cache.Nop{}, func() {}
	}
	logger.Info().Msg("slot cache backed by redis")
	return r, func() { _ = r.Close() }
}

type services struct {
	availability *availability.Service
	appointments *appointment.Service
	payments     *payment.Service
}

func buildServices(pool *pgxpool.Pool, slotCache cache.Cache, publisher events.Publisher, cfg *config.Config, logger zerolog.Logger) (*services, error) {
	fee, err := cfg.ConsultationFee()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	tx := db.NewTxManager(pool)
	scheduleRepo := availability.NewRepoPG(pool)
	apptRepo := appointment.NewRepoPG(pool)
	rxRepo := prescription.NewRepoPG(pool)
	payRepo := payment.NewRepoPG(pool)

	availSvc := availability.NewService(scheduleRepo, apptRepo, logger)
	availSvc.SetCache(slotCache, cfg.SlotCacheTTL)
	availSvc.SetClock(time.Now, loc)

	apptSvc := appointment.NewService(appointment.Deps{
		Tx:            tx,
		Repo:          apptRepo,
		Schedules:     scheduleRepo,
		Prescriptions: rxRepo,
		Payments:      payRepo,
		Slots:         availSvc,
		Publisher:     publisher,
		Fee:           fee,
		Now:           time.Now,
		Location:      loc,
		Logger:        logger,
	})

	paySvc := payment.NewService(tx, payRepo, apptRepo, publisher, logger)

	return &services{
		availability: availSvc,
		appointments: apptSvc,
		payments:     paySvc,
	}, nil
}

// newServer builds the HTTP surface. health answers /health/db.
func newServer(cfg *config.Config, logger zerolog.Logger, svcs *services, health echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader, auth.DevRoleHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if health != nil {
		e.GET("/health/db", health)
	}

	apiV1 := e.Group("/api/v1")

	// Auth middleware
	jwtMW := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtMW))
	} else {
		apiV1.Use(jwtMW)
	}

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Audit middleware
	apiV1.Use(middleware.Audit(logger))

	availability.NewHandler(svcs.availability).RegisterRoutes(apiV1)
	appointment.NewHandler(svcs.appointments).RegisterRoutes(apiV1)
	payment.NewHandler(svcs.payments).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, logger, flush, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	defer flush()

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	slotCache, closeCache := newCache(ctx, cfg, logger)
	defer closeCache()
	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	svcs, err := buildServices(pool, slotCache, publisher, cfg, logger)
	if err != nil {
		return err
	}

	e := newServer(cfg, logger, svcs, db.HealthHandler(pool, func() *db.PoolStats {
		return db.GetPoolStats(pool)
	}))

	// Graceful shutdown
	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runReminders(once bool) error {
	cfg, logger, flush, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	defer flush()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	job := reminder.NewJob(appointment.NewRepoPG(pool), publisher, loc, logger)
	if once {
		n, err := job.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Published %d reminder(s).\n", n)
		return nil
	}

	c, err := job.Start(ctx, cfg.ReminderCron)
	if err != nil {
		return err
	}
	<-ctx.Done()

	logger.Info().Msg("stopping reminder job")
	<-c.Stop().Done()
	return nil
}
