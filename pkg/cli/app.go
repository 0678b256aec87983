package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource"
	"github.com/ekaya-inc/datagenie-engine/pkg/adapters/examplestore/sqlite"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/config"
	"github.com/ekaya-inc/datagenie-engine/pkg/database"
	"github.com/ekaya-inc/datagenie-engine/pkg/embedding"
	"github.com/ekaya-inc/datagenie-engine/pkg/index"
	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
	"github.com/ekaya-inc/datagenie-engine/pkg/observability"
	"github.com/ekaya-inc/datagenie-engine/pkg/services"

	// Catalog sources register themselves in init.
	_ "github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource/file"
	_ "github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource/mssql"
	_ "github.com/ekaya-inc/datagenie-engine/pkg/adapters/catalogsource/postgres"
)

// App holds the components shared by every command.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Examples  *sqlite.Store
	Embedder  embedding.Embedder
	Snapshots *services.SnapshotStore
	Router    *llm.Router
	Pipeline  *services.Pipeline
	Metrics   *observability.Metrics

	closers []func()
}

// BuildFunc wires an App from configuration.
type BuildFunc func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error)

// Build creates the configured generation backends and assembles the App.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	local, remote, err := llm.NewBackends(cfg.LLM.Backends(), logger)
	if err != nil {
		return nil, err
	}
	return Assemble(ctx, cfg, local, remote, logger)
}

// Assemble wires the App around the given backends. Either backend may be nil.
// The snapshot is not loaded; call LoadSnapshot before processing questions.
func Assemble(ctx context.Context, cfg *config.Config, local, remote llm.Backend, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	store, err := sqlite.Open(cfg.Examples.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open example store: %w", err)
	}
	app.Examples = store
	app.onClose(func() { store.Close() })

	app.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	sinks := []observability.Sink{
		observability.NewLogSink(logger, zapcore.DebugLevel),
		observability.NewMetricsSink(app.Metrics),
	}

	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	if client != nil {
		stream := observability.NewRedisStreamSink(client, observability.RedisStreamConfig{Stream: cfg.Redis.Stream}, logger)
		sinks = append(sinks, stream)
		// Registered before the stream so the queue drains before the client closes.
		app.onClose(func() { client.Close() })
		app.onClose(stream.Close)
	}
	sink := observability.Combine(sinks...)

	scorer, err := services.NewConfidenceScorer(cfg.Pipeline.ConfidenceFormula)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Embedder = newEmbedder(cfg.Embedding)
	app.Snapshots = services.NewSnapshotStore(sink, logger)
	app.Router = llm.NewRouter(local, remote, cfg.LLM.Router(), sink, logger)

	synthesizer := services.NewQuerySynthesizer(app.Router, services.SynthesizerConfig{
		Dialect:         cfg.LLM.Dialect,
		MaxPromptTables: cfg.Pipeline.MaxPromptTables,
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
	}, logger)

	app.Pipeline = services.NewPipeline(
		app.Snapshots,
		services.NewIntentClassifier(cfg.Pipeline.IntentThreshold, logger),
		services.NewContextRetriever(app.Embedder, logger),
		synthesizer,
		services.NewQueryValidator(logger),
		scorer,
		services.PipelineConfig{
			DefaultK:             cfg.Pipeline.ContextK,
			EscalateOnComplexity: cfg.Pipeline.EscalateOnComplexity,
			BatchConcurrency:     cfg.Pipeline.BatchConcurrency,
		},
		sink,
		logger,
	)
	return app, nil
}

func newEmbedder(cfg config.EmbeddingConfig) embedding.Embedder {
	if cfg.Provider == "openai" {
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Dims:     cfg.Dims,
		})
	}
	return embedding.NewHashEmbedder(cfg.Dims)
}

// LoadSnapshot reads the catalog and example index and installs them.
func (a *App) LoadSnapshot(ctx context.Context) (*services.Snapshot, error) {
	return a.Snapshots.Reload(ctx, a.loadSnapshot)
}

func (a *App) loadSnapshot(ctx context.Context) (*catalog.Catalog, index.Index, error) {
	cat, err := catalogsource.Load(ctx, a.Config.Catalog.Source, a.Config.Catalog.SourceConfig(), a.Logger)
	if err != nil {
		return nil, nil, err
	}
	idx, err := a.Examples.BuildIndex(ctx, a.Embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("build example index: %w", err)
	}
	return cat, idx, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
