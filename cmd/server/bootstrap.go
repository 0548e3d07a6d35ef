package main

import (
	"context"
	"fmt"
	"os"

	"options-signal-engine/internal/api"
	"options-signal-engine/internal/chain"
	"options-signal-engine/internal/execution"
	"options-signal-engine/internal/execution/executionobs"
	"options-signal-engine/internal/fusion"
	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/journal"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/market"
	"options-signal-engine/internal/notify"
	"options-signal-engine/internal/pipeline"
	"options-signal-engine/internal/pipeline/pipelineobs"
	"options-signal-engine/internal/scorer"
	"options-signal-engine/internal/store"
	"options-signal-engine/internal/trace"
	"options-signal-engine/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// compressOldJournals compresses old journal files if retention is configured
func compressOldJournals(ctx context.Context, jnl *journal.Journal) {
	if v := os.Getenv("JOURNAL_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := jnl.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old journals", "error", err)
		}
	}
}

// mockChain serves synthetic option chains sized to each index.
type mockChain struct {
	cfg *store.Config
}

var mockUnderlyings = map[string]float64{
	"NIFTY":      22500,
	"BANKNIFTY":  48200,
	"SENSEX":     74300,
	"MIDCPNIFTY": 11850,
	"FINNIFTY":   21400,
}

func (m *mockChain) Fetch(ctx context.Context, indexID string) (types.ChainSnapshot, error) {
	base, ok := mockUnderlyings[indexID]
	if !ok {
		base = 22500
	}
	return chain.NewMockFetcher(base, m.cfg.StrikeStep(indexID)).Fetch(ctx, indexID)
}

// initializeChain builds the option-chain cache over the configured source
func initializeChain(ctx context.Context, cfg *store.Config) *chain.Cache {
	var src interfaces.ChainSource
	if cfg.DataSource == "LIVE" {
		logger.Info(ctx, "Using LIVE option-chain data from NSE")
		src = chain.NewNSEFetcher()
	} else {
		logger.Info(ctx, "Using MOCK option-chain data for testing")
		src = &mockChain{cfg: cfg}
	}
	return chain.NewCache(src, cfg.ChainTTL())
}

// initializeProvider selects the market snapshot source
func initializeProvider(ctx context.Context, cfg *store.Config, chainCache *chain.Cache) interfaces.SnapshotProvider {
	if cfg.DataSource == "LIVE" {
		logger.Info(ctx, "Deriving market snapshots from the live chain feed")
		return market.NewLiveProvider(chainCache)
	}
	logger.Info(ctx, "Using MOCK market snapshots for testing")
	return market.NewMockProvider()
}

// initializeScorers builds the three opinion sources
func initializeScorers(ctx context.Context, cfg *store.Config) []interfaces.Scorer {
	client := api.NewClient(api.WithTimeout(cfg.ScorerTimeout()))

	scorers := []interfaces.Scorer{
		scorer.NewIndicatorScorer(client, cfg.Scorers.IndicatorEndpoint),
		scorer.NewMLScorer(client, cfg.Scorers.MLEndpoint),
	}
	if cfg.Scorers.IndicatorEndpoint == "" {
		logger.Info(ctx, "No indicator endpoint configured - using built-in price-action rules")
	}
	if cfg.Scorers.MLEndpoint == "" {
		logger.Info(ctx, "No ML endpoint configured - using built-in RSI/MACD fallback")
	}

	switch cfg.LLM.Provider {
	case "OPENAI":
		scorers = append(scorers, scorer.NewLLMScorer(cfg))
	default:
		scorers = append(scorers, scorer.NoopScorer{Src: types.SourceLLM})
		logger.Warn(ctx, "No LLM provider configured - using Noop scorer (always WAIT)")
	}
	return scorers
}

// initializeNotifier returns the webhook sink, or a noop when unconfigured
func initializeNotifier(cfg *store.Config) interfaces.Notifier {
	if cfg.Notify.WebhookURL != "" {
		return notify.NewWebhook(cfg.Notify.WebhookURL)
	}
	return notify.Noop{}
}

// initializeGate builds the execution gate with observability
func initializeGate(cfg *store.Config, jnl *journal.Journal, notifier interfaces.Notifier) interfaces.Gate {
	gate := execution.NewGate(
		execution.NewPaperBroker(),
		jnl,
		execution.NewDedupTracker(cfg.DedupWindow()),
		notifier,
		cfg.LotSize,
	)

	// Wrap with observability middleware
	return executionobs.Wrap(gate)
}

// initializePipeline builds the signal pipeline with observability
func initializePipeline(cfg *store.Config, provider interfaces.SnapshotProvider, scorers []interfaces.Scorer, chainCache *chain.Cache, gate interfaces.Gate, notifier interfaces.Notifier) interfaces.Pipeline {
	svc := pipeline.NewService(pipeline.Options{
		Provider: provider,
		Scorers:  scorers,
		Engine: fusion.New(cfg.Fusion.MaxLots, cfg.Fusion.Thresholds, func(indexID string) float64 {
			return cfg.StrikeStep(indexID)
		}),
		Chain:         chainCache,
		Gate:          gate,
		Notifier:      notifier,
		Mode:          types.ExecutionMode(cfg.Mode),
		ScorerTimeout: cfg.ScorerTimeout(),
		Deadline:      cfg.PipelineDeadline(),
	})

	// Wrap with observability middleware
	return pipelineobs.Wrap(svc)
}
