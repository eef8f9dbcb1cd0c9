package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/avni/avni-server/internal/config"
	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
	"github.com/avni/avni-server/internal/exporter"
	"github.com/avni/avni-server/internal/importer"
	"github.com/avni/avni-server/internal/platform/auth"
	"github.com/avni/avni-server/internal/platform/blobstore"
	"github.com/avni/avni-server/internal/platform/db"
	"github.com/avni/avni-server/internal/platform/middleware"
	"github.com/avni/avni-server/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "avni-server",
		Short: "Avni CSV import and export server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(organisationCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
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
			org, _ := cmd.Flags().GetString("organisation")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFiles(dir))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", db.SchemaName(org))
			count, err := migrator.Up(ctx, db.SchemaName(org))
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("organisation", "demo", "Organisation whose schema is migrated")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			org, _ := cmd.Flags().GetString("organisation")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx, db.SchemaName(org))
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), db.SchemaName(org), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("organisation", "demo", "Organisation whose schema is inspected")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schemaName string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schemaName)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func organisationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organisation",
		Short: "Manage organisations",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and migrate an organisation schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.CreateOrganisationSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Organisation %s created in schema %s\n", name, db.SchemaName(name))
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Organisation identifier (lowercase letters, digits, underscore)")
	cmd.AddCommand(createCmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Build observations for every row of a CSV file",
		Long: "Reads a CSV file and writes one NDJSON line per imported row and an error CSV " +
			"for rows that failed. With --schema the form schema is read from a YAML bundle and " +
			"no database is needed; otherwise --organisation selects the database schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formTypeFlag, _ := cmd.Flags().GetString("form-type")
			bundle, _ := cmd.Flags().GetString("schema")
			org, _ := cmd.Flags().GetString("organisation")
			file, _ := cmd.Flags().GetString("file")
			outPath, _ := cmd.Flags().GetString("out")
			errPath, _ := cmd.Flags().GetString("errors")

			formType, err := schema.ParseFormType(formTypeFlag)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			svc, cleanup, err := importService(ctx, cfg, bundle, org, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx = svc.ctx

			in, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer in.Close()

			res, err := svc.Import(ctx, in, formType)
			if err != nil {
				return err
			}

			out, closeOut, err := createOutput(outPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()
			errs, closeErrs, err := createOutput(errPath, io.Discard)
			if err != nil {
				return err
			}
			defer closeErrs()

			ok, failed, err := importer.WriteResults(res.Rows, res.Headers, out, errs)
			if err != nil {
				return err
			}
			logger.Info().Str("file", file).Int("succeeded", ok).Int("failed", failed).Msg("import finished")
			if failed > 0 && errPath == "" {
				return fmt.Errorf("%d row(s) failed; rerun with --errors to write them", failed)
			}
			return nil
		},
	}
	cmd.Flags().String("form-type", "", "Form type of the file, e.g. IndividualProfile or Encounter")
	cmd.Flags().String("schema", "", "YAML schema bundle; runs without a database")
	cmd.Flags().String("organisation", "", "Organisation whose database schema is used")
	cmd.Flags().String("file", "", "CSV file to import")
	cmd.Flags().String("out", "", "NDJSON output of imported rows (default stdout)")
	cmd.Flags().String("errors", "", "CSV output of failed rows")
	_ = cmd.MarkFlagRequired("form-type")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// scopedImport is an import service together with the context it must run in.
type scopedImport struct {
	*importer.Service
	ctx context.Context
}

func importService(ctx context.Context, cfg *config.Config, bundle, org string, logger zerolog.Logger) (*scopedImport, func(), error) {
	loc, err := cfg.ImportLocation()
	if err != nil {
		return nil, nil, err
	}
	coercerCfg := importer.CoercerConfig{Location: loc, Delimiter: cfg.Delimiter()}
	mediaCfg := blobstore.MediaConfig{BaseURL: cfg.MediaBaseURL, Timeout: cfg.MediaDownloadTimeout}

	if bundle != "" {
		store, err := schema.LoadBundle(bundle)
		if err != nil {
			return nil, nil, err
		}
		locations := location.NewMemoryRepo()
		subjects := subject.NewMemoryRepo()
		media := blobstore.NewMediaResolver(blobstore.NewInMemoryBlobStore(), mediaCfg, logger)
		coercer := importer.NewCoercer(coercerCfg, media,
			subject.NewResolver(subjects, coercerCfg.Delimiter), location.NewResolver(locations, coercerCfg.Delimiter), logger)
		svc := importer.NewService(store, location.NewService(locations, logger), coercer,
			observation.NewService(logger), cfg.ImportWorkers, logger).WithRecords(subjects)
		return &scopedImport{Service: svc, ctx: ctx}, func() {}, nil
	}

	if org == "" {
		return nil, nil, fmt.Errorf("either --schema or --organisation is required")
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	scoped, release, err := db.WithOrganisation(ctx, pool, org)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	svc := newImportService(pool, cfg, coercerCfg, mediaCfg, logger)
	return &scopedImport{Service: svc, ctx: scoped}, func() {
		release()
		pool.Close()
	}, nil
}

func newImportService(pool *pgxpool.Pool, cfg *config.Config, coercerCfg importer.CoercerConfig, mediaCfg blobstore.MediaConfig, logger zerolog.Logger) *importer.Service {
	locations := location.NewRepoPG(pool)
	subjects := subject.NewRepoPG(pool)
	media := blobstore.NewMediaResolver(blobstore.NewStorePG(pool), mediaCfg, logger)
	coercer := importer.NewCoercer(coercerCfg, media,
		subject.NewResolver(subjects, coercerCfg.Delimiter), location.NewResolver(locations, coercerCfg.Delimiter), logger)
	return importer.NewService(schema.NewStorePG(pool), location.NewService(locations, logger), coercer,
		observation.NewService(logger), cfg.ImportWorkers, logger).WithRecords(subjects)
}

func newExportJob(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) (*exporter.Job, error) {
	loc, err := time.LoadLocation(cfg.ExportTimezone)
	if err != nil {
		return nil, fmt.Errorf("EXPORT_TIMEZONE: %w", err)
	}
	subjects := subject.NewRepoPG(pool)
	hierarchy := location.NewService(location.NewRepoPG(pool), logger)
	planner := exporter.NewPlanner(exporter.NewMappedForms(schema.NewStorePG(pool)), subjects, hierarchy, subjects, logger).
		WithLocation(loc)
	return exporter.NewJob(planner, exporter.NewExtractor(hierarchy, logger), subjects, logger), nil
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a longitudinal CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			specPath, _ := cmd.Flags().GetString("spec")
			org, _ := cmd.Flags().GetString("organisation")
			outPath, _ := cmd.Flags().GetString("out")

			out, err := exporter.LoadOutput(specPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if org == "" {
				org = cfg.DefaultOrganisation
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			ctx, release, err := db.WithOrganisation(ctx, pool, org)
			if err != nil {
				return err
			}
			defer release()

			w, closeOut, err := createOutput(outPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()

			job, err := newExportJob(pool, cfg, logger)
			if err != nil {
				return err
			}
			rows, err := job.Run(ctx, out, w)
			if err != nil {
				return err
			}
			logger.Info().Str("organisation", org).Int("rows", rows).Msg("export finished")
			return nil
		},
	}
	cmd.Flags().String("spec", "", "Export definition (YAML or JSON)")
	cmd.Flags().String("organisation", "", "Organisation to export (default DEFAULT_ORGANISATION)")
	cmd.Flags().String("out", "", "CSV output file (default stdout)")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

// createOutput opens path for writing, or returns fallback when path is empty.
func createOutput(path string, fallback io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
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
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth is active: every request is an admin of " + cfg.DefaultOrganisation)
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	loc, err := cfg.ImportLocation()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadBodyLimit, "/api/v1/import"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", db.OrganisationHeader},
	}))

	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(cfg.DefaultOrganisation))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1", db.OrganisationMiddleware(pool, cfg.DefaultOrganisation))

	store := schema.NewStorePG(pool)
	schema.NewHandler(store, store).RegisterRoutes(apiV1)

	coercerCfg := importer.CoercerConfig{Location: loc, Delimiter: cfg.Delimiter()}
	mediaCfg := blobstore.MediaConfig{BaseURL: cfg.MediaBaseURL, Timeout: cfg.MediaDownloadTimeout}
	importer.NewHandler(newImportService(pool, cfg, coercerCfg, mediaCfg, logger)).RegisterRoutes(apiV1)

	job, err := newExportJob(pool, cfg, logger)
	if err != nil {
		return err
	}
	exporter.NewHandler(job, logger).RegisterRoutes(apiV1)
	blobstore.NewHandler(blobstore.NewStorePG(pool)).RegisterRoutes(apiV1)

	var scheduler *exporter.Scheduler
	if cfg.ExportSchedules != "" {
		schedules, err := exporter.LoadSchedules(cfg.ExportSchedules)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load export schedules")
		}
		scheduler = exporter.NewScheduler(job, logger).WithScope(
			func(ctx context.Context, org string) (context.Context, func(), error) {
				if org == "" {
					org = cfg.DefaultOrganisation
				}
				return db.WithOrganisation(ctx, pool, org)
			})
		for _, s := range schedules {
			if err := scheduler.Add(ctx, s); err != nil {
				logger.Fatal().Err(err).Msg("invalid export schedule")
			}
		}
		scheduler.Start()
	}

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
	if scheduler != nil {
		scheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
