package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/icu/isbar/internal/config"
	"github.com/icu/isbar/internal/domain/deid"
	"github.com/icu/isbar/internal/domain/discharge"
	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/domain/suggestion"
	"github.com/icu/isbar/internal/platform/cache"
	"github.com/icu/isbar/internal/platform/db"
	"github.com/icu/isbar/internal/platform/textgen"
	"github.com/icu/isbar/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "isbar-server",
		Short: "ICU ISBAR case tracker API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, os.DirFS(dir))
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

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx, schema)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, os.DirFS(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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

// addMigrateFlags registers --schema and --dir. Empty values fall back to
// DB_SCHEMA and MIGRATIONS_DIR.
func addMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if s, _ := cmd.Flags().GetString("schema"); s == "" {
			_ = cmd.Flags().Set("schema", cfg.DBSchema)
		}
		if d, _ := cmd.Flags().GetString("dir"); d == "" {
			_ = cmd.Flags().Set("dir", cfg.MigrationsDir)
		}
		return nil
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load de-identified demo cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			cases, err := newCaseService(pool, logger)
			if err != nil {
				return err
			}
			ds, err := seed.Demo()
			if err != nil {
				return err
			}
			res, err := seed.Load(ctx, cases, ds, logger)
			if err != nil {
				return err
			}

			fmt.Printf("Seeded %d case(s), %d note(s), %d suggestion(s).\n",
				len(res.PatientIDs), res.Notes, res.Suggestions)
			return nil
		},
	}
}

func openPool(ctx context.Context, schema string) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, schema, cfg.DBMaxConns, cfg.DBMinConns)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newCaseService(pool *pgxpool.Pool, logger zerolog.Logger) (*icucase.Service, error) {
	engine, err := suggestion.NewDefaultEngine()
	if err != nil {
		return nil, fmt.Errorf("load suggestion rulebook: %w", err)
	}
	return icucase.NewService(icucase.NewRepo(pool), db.NewTxRunner(pool), deid.New(), engine, logger), nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg)
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: unauthenticated requests act as a local clinician")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	cases, err := newCaseService(pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build case service")
	}

	var deps []db.Dependency
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		rc := cache.NewRedis(client, cache.DefaultPrefix, cfg.RoundingCacheTTL)
		cases.SetSheetCache(rc)
		deps = append(deps, db.Dependency{Name: "redis", Ping: rc.Ping})
		logger.Info().Msg("rounding sheet cache: redis")
	} else {
		cases.SetSheetCache(cache.NewMemory(cfg.RoundingCacheTTL))
		logger.Info().Msg("rounding sheet cache: in-memory")
	}

	gen := textgen.NewClient(textgen.Config{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.OpenAITimeout,
	})
	if gen.Configured() {
		logger.Info().Str("model", gen.Model()).Msg("discharge summaries enabled")
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set: discharge summaries are unavailable")
	}
	summaries := discharge.NewService(cases, gen, deid.New(), logger)

	e := newRouter(cfg, logger, services{
		cases:     cases,
		summaries: summaries,
		dbHealth:  db.HealthHandler(pool, deps...),
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
