package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/llm"
	"github.com/codeW-Krish/ai-course-backend/internal/logger"
	"github.com/codeW-Krish/ai-course-backend/internal/outline"
	"github.com/codeW-Krish/ai-course-backend/internal/server"
	"github.com/codeW-Krish/ai-course-backend/internal/server/ratelimit"
)

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes course authoring and content generation endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the database schema before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if err := cfg.JWT.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer database.Close()

	if serveMigrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
		log.Info("database schema applied")
	}

	providers, err := llm.NewRegistryFromKeys(ctx, cfg.ProviderKeys(), cfg.LLM.Provider)
	if err != nil {
		return fmt.Errorf("failed to configure LLM providers: %w", err)
	}
	defer func() { _ = providers.Close() }()
	log.Info("LLM providers ready", "default", cfg.LLM.Provider, "available", providers.Names())

	generator := generation.NewService(database, providers,
		generation.NewPacer(cfg.Generation.BatchInterval),
		generation.OptionsFromConfig(cfg.Generation),
		log.With("component", "generation"),
	)
	outlines := outline.NewService(database, providers, log.With("component", "outline"))

	srv := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Courses:     database,
		Outlines:    outlines,
		Generator:   generator,
		Tokens:      server.NewJWTService(&cfg.JWT).AsTokenValidator(),
		RateLimiter: ratelimit.NewLimiter(ratelimit.FromSettings(cfg.RateLimit)),
		Logger:      log.With("component", "http"),
	})
	return srv.Start()
}
