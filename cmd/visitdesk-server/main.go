package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/visitdesk/visitdesk/internal/config"
	"github.com/visitdesk/visitdesk/internal/domain/enquiry"
	"github.com/visitdesk/visitdesk/internal/domain/profile"
	"github.com/visitdesk/visitdesk/internal/domain/roster"
	"github.com/visitdesk/visitdesk/internal/domain/timeline"
	"github.com/visitdesk/visitdesk/internal/domain/visit"
	"github.com/visitdesk/visitdesk/internal/platform/auth"
	"github.com/visitdesk/visitdesk/internal/platform/db"
	"github.com/visitdesk/visitdesk/internal/platform/middleware"
	"github.com/visitdesk/visitdesk/internal/platform/notification"
	"github.com/visitdesk/visitdesk/internal/platform/store"
	"github.com/visitdesk/visitdesk/internal/platform/trigger"
	"github.com/visitdesk/visitdesk/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "visitdesk-server",
		Short: "Hospital visitor and enquiry check-in API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindersCmd())

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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, schema, closeFn, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	addMigrateFlags(upCmd)
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, schema, closeFn, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx, schema)
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
	addMigrateFlags(statusCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}

func addMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, string, func(), error) {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return nil, "", nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, "", nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	if schema == "" {
		schema = cfg.DBSchema
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, "", nil, err
	}

	var fsys fs.FS = migrations.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	return db.NewMigrator(pool, fsys), schema, pool.Close, nil
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Enquiry reminder jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one enquiry reminder sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			stack, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			svc := newServices(cfg, logger, stack.repo)
			res, err := svc.reminders.Sweep(ctx)
			svc.dispatcher.Wait()
			if err != nil {
				return fmt.Errorf("reminder sweep failed: %w", err)
			}
			fmt.Printf("Open enquiries: %d, reminded: %d, pushes: %d, failed: %d\n", res.Enquiries, res.Reminded, res.Pushes, res.Failed)
			return nil
		},
	})
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// ---------------------------------------------------------------------------
// Store stack
// ---------------------------------------------------------------------------

type storeStack struct {
	repo  store.Repository
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (s *storeStack) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// pinger returns the pool for health checks, or an untyped nil when running
// on the memory store.
func (s *storeStack) pinger() db.Pinger {
	if s.pool == nil {
		return nil
	}
	return s.pool
}

// openStore builds primary -> REST fallback -> redis cache.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storeStack, error) {
	stack := &storeStack{}
	log := logger.With().Str("component", "store").Logger()

	var primary store.Repository
	switch cfg.StoreBackend {
	case config.StoreMemory:
		primary = store.NewMemory()
		log.Warn().Msg("using in-memory document store, data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		stack.pool = pool
		primary = store.NewPG(pool)
		log.Info().Msg("connected to database")
	}
	stack.repo = primary

	if cfg.StoreRESTURL != "" {
		secondary := store.NewREST(store.RESTConfig{
			BaseURL: cfg.StoreRESTURL,
			Token:   cfg.StoreRESTToken,
			Retries: cfg.StoreRESTRetries,
		})
		stack.repo = store.WithFallback(stack.repo, secondary, log)
		log.Info().Str("url", cfg.StoreRESTURL).Msg("REST fallback store enabled")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			stack.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		stack.redis = redis.NewClient(opts)
		stack.repo = store.WithCache(stack.repo, stack.redis, cfg.CacheTTL, log, profile.Collection)
		log.Info().Dur("ttl", cfg.CacheTTL).Msg("profile cache enabled")
	}

	return stack, nil
}

// ---------------------------------------------------------------------------
// Services
// ---------------------------------------------------------------------------

type services struct {
	dispatcher    *trigger.Dispatcher
	notifications *notification.Manager
	docs          store.Repository
	timeline      *timeline.Writer
	profiles      *profile.Service
	recorder      *visit.Recorder
	roster        *roster.Service
	enquiries     *enquiry.Service
	reminders     *enquiry.Reminders
}

// newServices wires the domain services over base. Client-facing services
// write through the observed repository; trigger handlers and the reminder
// sweep write through base so they do not re-trigger.
func newServices(cfg *config.Config, logger zerolog.Logger, base store.Repository) *services {
	dispatcher := trigger.NewDispatcher(logger.With().Str("component", "trigger").Logger(), cfg.TriggersAsync)

	var sender notification.PushSender = notification.LogPushSender{Logger: logger}
	if cfg.PushGatewayURL != "" {
		sender = notification.NewHTTPPushSender(cfg.PushGatewayURL, cfg.PushServerKey, 0)
	}
	notifications := notification.NewManager(sender, notification.NewTemplateEngine(), logger.With().Str("component", "push").Logger())

	tl := timeline.NewWriter(base, cfg.BranchID)
	baseProfiles := profile.NewRepo(base)

	profile.NewHooks(baseProfiles, cfg.ReceptionEmailDomain).Register(dispatcher)
	visit.NewHooks(tl, baseProfiles, notifications, logger).Register(dispatcher)
	enquiry.NewHooks(tl).Register(dispatcher)

	docs := dispatcher.Observe(base)
	profiles := profile.NewService(profile.NewRepo(docs), cfg.PhoneCountryCode)
	visits := visit.NewRepo(docs)

	return &services{
		dispatcher:    dispatcher,
		notifications: notifications,
		docs:          docs,
		timeline:      tl,
		profiles:      profiles,
		recorder:      visit.NewRecorder(visits, profiles, cfg.PhoneCountryCode, cfg.ReceptionDeepLink, logger),
		roster:        roster.NewService(profiles, visits, cfg.Location()),
		enquiries:     enquiry.NewService(enquiry.NewRepo(docs), profiles, cfg.PhoneCountryCode),
		reminders:     enquiry.NewReminders(enquiry.NewRepo(base), profiles, notifications, tl, logger.With().Str("component", "reminders").Logger()),
	}
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func jwtConfig(cfg *config.Config) (auth.JWTConfig, error) {
	jc := auth.JWTConfig{Issuer: cfg.AuthIssuer, Audience: cfg.AuthAudience}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	if cfg.AuthPublicKeyFile != "" {
		key, err := auth.LoadPublicKey(cfg.AuthPublicKeyFile)
		if err != nil {
			return jc, err
		}
		jc.PublicKey = key
	}
	return jc, nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, svc *services, jc auth.JWTConfig, pinger db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pinger))

	api := e.Group("/api/v1")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware(jc))
	} else {
		api.Use(auth.JWTMiddleware(jc))
	}
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	api.Use(profile.EnsureMiddleware(svc.profiles, logger))

	profile.NewHandler(svc.profiles).RegisterRoutes(api)
	roster.NewHandler(svc.roster).RegisterRoutes(api)
	visit.NewHandler(svc.recorder, cfg.Location()).RegisterRoutes(api)
	enquiry.NewHandler(svc.enquiries).RegisterRoutes(api)
	timeline.NewHandler(svc.docs, svc.timeline).RegisterRoutes(api)
	notification.NewHandler(svc.notifications).RegisterRoutes(api)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	jc, err := jwtConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load auth key")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	stack, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open document store")
	}
	defer stack.Close()

	svc := newServices(cfg, logger, stack.repo)
	e := newEcho(cfg, logger, svc, jc, stack.pinger())

	scheduler := trigger.NewScheduler(logger.With().Str("component", "scheduler").Logger())
	scheduler.Every("enquiry-reminders", cfg.ReminderInterval, func(ctx context.Context) error {
		_, err := svc.reminders.Sweep(ctx)
		return err
	})
	scheduler.Start(ctx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	scheduler.Wait()
	svc.dispatcher.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
