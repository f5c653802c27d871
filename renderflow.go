// Package renderflow provides a top-level convenience entry point for running
// budgeted image-generation pipelines with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/renderflow"
//
//	eng, err := renderflow.New(renderflow.WithRenderer(myRenderer))
//	eng, err := renderflow.FromConfig(cfg, logger, renderflow.WithApprover(approver))
//
// New is a thin alias of [engine.New]; FromConfig additionally builds the
// renderer, trail store and metrics collector described by a [config.Config],
// so a CLI or service can go from parsed configuration to a ready engine in
// one call.
package renderflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/audit"
	"github.com/BaSui01/renderflow/compose"
	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/engine"
	"github.com/BaSui01/renderflow/gate"
	"github.com/BaSui01/renderflow/internal/metrics"
	"github.com/BaSui01/renderflow/render"
	"github.com/BaSui01/renderflow/types"
)

// Option configures the engine created by [New] and [FromConfig].
type Option = engine.Option

// Engine is re-exported so callers of this package never need to import
// engine/ directly for the common path.
type Engine = engine.Engine

// New assembles an engine from options. A renderer is required; everything
// else falls back to safe defaults (memory store, default price book,
// generated run ID).
func New(opts ...Option) (*Engine, error) {
	return engine.New(opts...)
}

// Re-export engine options so callers never need to import engine/.

// WithConfig sets the full run configuration.
var WithConfig = engine.WithConfig

// WithRunID pins the run identifier instead of generating one.
var WithRunID = engine.WithRunID

// WithResumeFrom resumes a previous run, skipping its completed requests.
var WithResumeFrom = engine.WithResumeFrom

// WithRenderer sets the rendering backend. Required for New.
var WithRenderer = engine.WithRenderer

// WithApprover sets the confirmation callback for over-threshold runs.
var WithApprover = engine.WithApprover

// WithStore sets the audit trail store, leaving its lifecycle to the caller.
var WithStore = engine.WithStore

// WithOwnedStore sets the audit trail store and hands it to the engine to close.
var WithOwnedStore = engine.WithOwnedStore

// WithPriceBook overrides the per-asset price table.
var WithPriceBook = engine.WithPriceBook

// WithMetrics sets the Prometheus collector, nil disables collection.
var WithMetrics = engine.WithMetrics

// WithTracer sets the OpenTelemetry tracer, nil disables spans.
var WithTracer = engine.WithTracer

// WithLogger sets the zap logger.
var WithLogger = engine.WithLogger

// FromConfig builds a ready-to-run engine from a loaded configuration:
// renderer (with retry decoration), trail store, metrics collector and the
// full engine.Config mapping. The store is owned by the engine and closed
// with it. Extra options are applied after the mapped ones, so callers can
// still inject an approver, tracer, run ID or resume target. The
// configuration is validated first; a nil logger means no logs.
func FromConfig(cfg *config.Config, logger *zap.Logger, extra ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	renderer, err := BuildRenderer(cfg.Render, logger)
	if err != nil {
		return nil, err
	}

	store, err := audit.NewTrailStore(BuildStoreConfig(cfg.Audit), logger)
	if err != nil {
		return nil, fmt.Errorf("create trail store: %w", err)
	}

	opts := []Option{
		WithConfig(BuildEngineConfig(cfg)),
		WithRenderer(renderer),
		WithOwnedStore(store),
		WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, WithMetrics(metrics.NewCollector(cfg.Metrics.Namespace, logger)))
	}
	opts = append(opts, extra...)

	eng, err := engine.New(opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return eng, nil
}

// BuildRenderer constructs the renderer described by a render configuration,
// wrapping it in retry decoration when retries are enabled and in artifact
// saving when an output directory is set.
func BuildRenderer(rc config.RenderConfig, logger *zap.Logger) (render.Renderer, error) {
	var renderer render.Renderer
	switch rc.Provider {
	case "stub":
		renderer = render.NewStubRenderer()
	case "openai", "":
		renderer = render.NewOpenAIRenderer(render.OpenAIConfig{
			APIKey:      rc.APIKey,
			BaseURL:     rc.BaseURL,
			Model:       rc.Model,
			Timeout:     rc.Timeout,
			Quality:     rc.Quality,
			Style:       rc.Style,
			SizeByAsset: assetSizeMap(rc.SizeByAsset),
		}, logger)
	default:
		return nil, fmt.Errorf("unknown render provider %q", rc.Provider)
	}

	if rc.Retry.MaxRetries > 0 {
		renderer = render.NewRetryingRenderer(renderer, &render.RetryPolicy{
			MaxRetries:   rc.Retry.MaxRetries,
			InitialDelay: rc.Retry.InitialDelay,
			MaxDelay:     rc.Retry.MaxDelay,
			Multiplier:   rc.Retry.Multiplier,
			Jitter:       rc.Retry.Jitter,
		}, logger)
	}
	if rc.OutputDir != "" {
		// Saving wraps retry so a finished image is written exactly once.
		renderer = render.NewSavingRenderer(renderer, rc.OutputDir, logger)
	}
	return renderer, nil
}

// BuildStoreConfig maps the audit section onto the trail store configuration.
func BuildStoreConfig(ac config.AuditConfig) audit.StoreConfig {
	return audit.StoreConfig{
		Type: audit.StoreType(ac.Store),
		File: audit.FileStoreConfig{
			BaseDir: ac.Dir,
			Fsync:   ac.Fsync,
		},
		Redis: audit.RedisStoreConfig{
			Host:      ac.Redis.Host,
			Port:      ac.Redis.Port,
			Password:  ac.Redis.Password,
			DB:        ac.Redis.DB,
			PoolSize:  ac.Redis.PoolSize,
			KeyPrefix: ac.Redis.KeyPrefix,
			TTL:       ac.Redis.TTL,
		},
		DSN: ac.DSN,
	}
}

// BuildEngineConfig maps the run and gate sections onto the engine
// configuration. Dollar amounts become micro-dollar Amounts here; this is
// the only place the two currencies meet.
func BuildEngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		TotalBudget:     types.AmountFromDollars(cfg.Run.TotalBudget),
		AlertThresholds: cfg.Run.AlertThresholds,
		Gate: gate.Config{
			MinPromptLength:       cfg.Gate.MinPromptLength,
			MaxPromptLength:       cfg.Gate.MaxPromptLength,
			Blocklist:             cfg.Gate.Blocklist,
			CaseSensitive:         cfg.Gate.CaseSensitive,
			MaxTotalItems:         cfg.Run.MaxTotalItems,
			MaxTotalCost:          types.AmountFromDollars(cfg.Run.MaxTotalCost),
			ConfirmationThreshold: cfg.Run.ConfirmationThreshold,
			ApprovalTimeout:       cfg.Run.ApprovalTimeout,
			TimeoutAction:         gate.TimeoutAction(cfg.Run.ApprovalTimeoutAction),
			EstimatedTimePerItem:  cfg.Gate.EstimatedTimePerItem,
		},
		Compose: compose.Config{
			BatchSizes:       assetBatchMap(cfg.Run.BatchSizes),
			DefaultBatchSize: cfg.Run.DefaultBatchSize,
		},
		Executor: engine.ExecutorConfig{
			PerBatchConcurrency: cfg.Run.PerBatchConcurrencyLimit,
			InterBatchDelay:     cfg.Run.InterBatchDelay,
		},
		Worker: engine.WorkerConfig{
			PerRequestTimeout: cfg.Run.PerRequestTimeout,
		},
		GlobalConcurrency: cfg.Run.GlobalConcurrencyLimit,
	}
}

func assetSizeMap(in map[string]string) map[types.AssetType]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[types.AssetType]string, len(in))
	for k, v := range in {
		out[types.AssetType(k)] = v
	}
	return out
}

func assetBatchMap(in map[string]int) map[types.AssetType]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[types.AssetType]int, len(in))
	for k, v := range in {
		out[types.AssetType(k)] = v
	}
	return out
}
