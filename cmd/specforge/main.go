// Command specforge serves the document generation API and offers a
// one-shot generation mode for scripting.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/specforge/specforge/infrastructure/httpapi"
	"github.com/specforge/specforge/infrastructure/llm"
	"github.com/specforge/specforge/infrastructure/metrics"
	"github.com/specforge/specforge/infrastructure/storage"
	"github.com/specforge/specforge/internal/application"
	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
	"github.com/specforge/specforge/internal/validation"
)

var version = "dev"

func main() {
	// Provider keys commonly live in a local .env during development.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	rootCmd := &cobra.Command{
		Use:     "specforge",
		Short:   "SpecForge - AI-assisted BRD and PRD generation",
		Long:    `SpecForge turns free-form product ideas into structured business and product requirements documents using multiple LLM providers.`,
		Version: version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(generateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)

			collector := metrics.NewPrometheusCollector()
			registry, err := llm.NewRegistry(providerConfigs(cfg),
				llm.WithMetricsCollector(collector),
				llm.WithLogger(log.Logger),
			)
			if err != nil {
				return err
			}

			repo, cleanup, err := buildRepository(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer cleanup()

			validator := validation.NewQualityValidator(validation.WithLogger(log.Logger))
			service, err := buildService(cfg, registry, repo, validator)
			if err != nil {
				return err
			}

			server := httpapi.NewServer(service, repo, validator, httpapi.WithLogger(log.Logger))
			return runServer(cfg.Server, server.Router())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	return cmd
}

func generateCmd() *cobra.Command {
	var (
		configPath string
		idea       string
		docType    string
		complexity string
		maxCost    float64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate documents for an idea and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Logging)

			registry, err := llm.NewRegistry(providerConfigs(cfg), llm.WithLogger(log.Logger))
			if err != nil {
				return err
			}
			repo, cleanup, err := buildRepository(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer cleanup()

			validator := validation.NewQualityValidator()
			service, err := buildService(cfg, registry, repo, validator)
			if err != nil {
				return err
			}

			resp, err := service.Generate(cmd.Context(), domain.GenerationRequest{
				UserIdea:     idea,
				DocumentType: domain.DocumentType(docType),
				Complexity:   domain.ComplexityLevel(complexity),
				MaxCost:      maxCost,
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(resp)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	cmd.Flags().StringVarP(&idea, "idea", "i", "", "Product or business idea to expand")
	cmd.Flags().StringVarP(&docType, "type", "t", "both", "Document type: brd, prd, or both")
	cmd.Flags().StringVar(&complexity, "complexity", "", "Complexity hint: simple, moderate, or complex")
	cmd.Flags().Float64Var(&maxCost, "max-cost", 0, "Dollar ceiling for the request")
	_ = cmd.MarkFlagRequired("idea")

	return cmd
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// providerConfigs layers the file's per-provider overrides onto the
// built-in profiles.
func providerConfigs(cfg config.Config) map[string]llm.ProviderConfig {
	configs := llm.DefaultProviderConfigs()
	for name, override := range cfg.Providers {
		pc, ok := configs[name]
		if !ok {
			log.Warn().Str("provider", name).Msg("ignoring override for unknown provider")
			continue
		}

		if override.Model != "" {
			pc.Model = override.Model
		}
		if override.MaxTokens != nil {
			pc.MaxTokens = *override.MaxTokens
		}
		if override.Temperature != nil {
			pc.Temperature = *override.Temperature
		}
		if override.CostPer1KInput != nil {
			pc.CostPer1KInput = *override.CostPer1KInput
		}
		if override.CostPer1KOutput != nil {
			pc.CostPer1KOutput = *override.CostPer1KOutput
		}
		if override.RequestsPerMinute != nil {
			pc.RequestsPerMinute = *override.RequestsPerMinute
		}
		if override.TokensPerMinute != nil {
			pc.TokensPerMinute = *override.TokensPerMinute
		}
		if override.ContextWindow != nil {
			pc.ContextWindow = *override.ContextWindow
		}
		if override.TimeoutSeconds != nil {
			pc.Timeout = time.Duration(*override.TimeoutSeconds) * time.Second
		}
		if override.MaxRetries != nil {
			pc.MaxRetries = *override.MaxRetries
		}
		configs[name] = pc
	}
	return configs
}

func buildRepository(ctx context.Context, cfg config.StorageConfig) (ports.DocumentRepository, func(), error) {
	var (
		repo    ports.DocumentRepository
		cleanup = func() {}
	)

	switch cfg.Backend {
	case "postgres":
		store, pool, err := storage.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		repo = store
		cleanup = pool.Close
		log.Info().Msg("connected to postgres document store")
	default:
		store, err := storage.NewFileStore(cfg.Path, storage.WithFileStoreLogger(log.Logger))
		if err != nil {
			return nil, nil, err
		}
		repo = store
		log.Info().Str("path", cfg.Path).Msg("using filesystem document store")
	}

	if cfg.CacheEnabled {
		repo = storage.NewCachedStore(repo, cfg.CacheSize, cfg.CacheTTL())
	}
	return repo, cleanup, nil
}

func buildService(cfg config.Config, registry *llm.Registry, repo ports.DocumentRepository, validator ports.DocumentValidator) (httpapi.GenerationService, error) {
	if !cfg.Generation.MultiPass {
		return application.NewGenerationService(registry, repo, validator,
			application.WithServiceLogger(log.Logger),
			application.WithDefaultMaxCost(cfg.Generation.DefaultMaxCost)), nil
	}

	multiPass, err := application.NewMultiPassGenerator(registry,
		application.WithBudgetPolicy(application.BudgetPolicy(cfg.Generation.BudgetPolicy)),
		application.WithMultiPassLogger(log.Logger),
	)
	if err != nil {
		return nil, err
	}
	return application.NewGenerationService(&multiPassRegistry{registry: registry, generator: multiPass}, repo, validator,
		application.WithServiceLogger(log.Logger),
		application.WithDefaultMaxCost(cfg.Generation.DefaultMaxCost)), nil
}

// multiPassRegistry routes every generation through the multi-pass chain
// while keeping the registry's selection and availability behavior.
type multiPassRegistry struct {
	registry  *llm.Registry
	generator ports.DocumentGenerator
}

func (m *multiPassRegistry) SelectProvider(complexity domain.ComplexityLevel, maxCost float64, requiredContextTokens int) (string, error) {
	return m.registry.SelectProvider(complexity, maxCost, requiredContextTokens)
}

func (m *multiPassRegistry) Generator(string) (ports.DocumentGenerator, error) {
	return m.generator, nil
}

func (m *multiPassRegistry) Available(name string) bool {
	return m.registry.Available(name)
}

func runServer(cfg config.ServerConfig, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
		close(done)
	}()

	log.Info().Str("addr", cfg.Addr()).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	log.Info().Msg("server stopped")
	return nil
}
