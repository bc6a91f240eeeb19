package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/melih/github-snap-builder/internal/adapters/builder"
	"github.com/melih/github-snap-builder/internal/adapters/docker"
	"github.com/melih/github-snap-builder/internal/adapters/git"
	"github.com/melih/github-snap-builder/internal/adapters/github"
	httpadapter "github.com/melih/github-snap-builder/internal/adapters/http"
	"github.com/melih/github-snap-builder/internal/adapters/logstore"
	"github.com/melih/github-snap-builder/internal/auth"
	"github.com/melih/github-snap-builder/internal/config"
	"github.com/melih/github-snap-builder/internal/core/ports"
	"github.com/melih/github-snap-builder/internal/core/services"
	"github.com/melih/github-snap-builder/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:           "github-snap-builder",
		Short:         "Build and release snaps for GitHub pull requests",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvVar), "Path to the YAML configuration (env "+config.EnvVar+")")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: build type %s, %d repos\n", cfg.BuildType, len(cfg.RepoNames()))
			return nil
		},
	}

	root.RunE = serveCmd.RunE
	root.AddCommand(serveCmd, validateCmd)
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("no configuration given: use --config or %s", config.EnvVar)
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var engine *docker.Adapter
	impl, err := builder.New(ctx, cfg.BuildType, builder.Deps{
		NewEngine: func() (ports.ContainerEngine, error) {
			a, err := docker.NewAdapter(logger.Named("docker"))
			if err != nil {
				return nil, err
			}
			engine = a
			return a, nil
		},
		RecipeDir:     cfg.ImageRecipeDir,
		StreamTimeout: cfg.LogTimeout,
		Snapcraft:     cfg.Snapcraft,
		Logger:        logger.Named("builder"),
		Metrics:       m,
	})
	if engine != nil {
		defer engine.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to set up %s builds: %w", cfg.BuildType, err)
	}

	gh, err := github.NewClient(cfg.GitHubAPIURL, logger.Named("github"))
	if err != nil {
		return err
	}
	logs := logstore.NewStore(cfg.LogDir, cfg.BaseURL, logger.Named("logs"))

	pipeline := services.NewPipeline(services.PipelineOptions{
		Workspaces:  git.NewWorkspaceProvider("", logger.Named("git")),
		Builder:     impl,
		Logs:        logs,
		ArtifactDir: cfg.ArtifactDir,
		Logger:      logger.Named("pipeline"),
		Metrics:     m,
	})
	authenticator := auth.NewAuthenticator(cfg.WebhookSecret, cfg.AppID, cfg.PrivateKey, gh)

	app := httpadapter.NewApp(httpadapter.AppOptions{
		Webhook:  httpadapter.NewWebhookHandler(authenticator, pipeline, cfg, cfg.BuildType, m, logger.Named("webhook")),
		Logs:     httpadapter.NewLogHandler(logs),
		Gatherer: registry,
		Logger:   logger.Named("http"),
	})

	errs := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr()),
			zap.String("build_type", cfg.BuildType),
			zap.Strings("repos", cfg.RepoNames()))
		errs <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
