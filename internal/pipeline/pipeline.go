package pipeline

import (
	"context"
	"fmt"
	"time"

	"options-signal-engine/internal/fusion"
	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/scorer"
	"options-signal-engine/internal/types"
)

// ChainContextSource supplies per-decision option-chain context. It is
// advisory: a nil return never blocks the decision.
type ChainContextSource interface {
	Get(ctx context.Context, indexID string, strike float64) *types.ChainRow
	Summary(ctx context.Context, indexID string) *types.ChainSummary
}

// Service wires one signal request end to end: snapshot, concurrent
// scoring, fusion, chain enrichment, and (in AUTO or PAPER mode) execution.
type Service struct {
	provider interfaces.SnapshotProvider
	scorers  []interfaces.Scorer
	engine   *fusion.Engine
	chain    ChainContextSource
	gate     interfaces.Gate
	notifier interfaces.Notifier

	mode          types.ExecutionMode
	scorerTimeout time.Duration
	deadline      time.Duration
}

type Options struct {
	Provider      interfaces.SnapshotProvider
	Scorers       []interfaces.Scorer
	Engine        *fusion.Engine
	Chain         ChainContextSource
	Gate          interfaces.Gate
	Notifier      interfaces.Notifier
	Mode          types.ExecutionMode
	ScorerTimeout time.Duration
	Deadline      time.Duration
}

func NewService(o Options) *Service {
	if o.ScorerTimeout <= 0 {
		o.ScorerTimeout = 8 * time.Second
	}
	if o.Deadline <= 0 {
		o.Deadline = 30 * time.Second
	}
	return &Service{
		provider:      o.Provider,
		scorers:       o.Scorers,
		engine:        o.Engine,
		chain:         o.Chain,
		gate:          o.Gate,
		notifier:      o.Notifier,
		mode:          o.Mode,
		scorerTimeout: o.ScorerTimeout,
		deadline:      o.Deadline,
	}
}

// Run produces the full signal result for one index. Only a failed market
// snapshot is a hard error; every downstream fault degrades into the result
// itself.
func (s *Service) Run(ctx context.Context, indexID string, profile types.RiskProfile) (*types.SignalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	snap, err := s.provider.Snapshot(ctx, indexID)
	if err != nil {
		return nil, fmt.Errorf("market snapshot for %s: %w", indexID, err)
	}

	ec := types.EvalContext{IndexID: indexID, RiskProfile: profile}
	opinions := scorer.Gather(ctx, s.scorers, snap, ec, s.scorerTimeout)

	decision := s.engine.Fuse(indexID, opinions, profile)
	logger.Decision(ctx, indexID, string(decision.Action), decision.Confidence, decision.Rationale,
		"direction", string(decision.Direction),
		"lots", decision.Lots,
	)

	if s.notifier != nil && (decision.Action == types.ActionExecute || decision.Action == types.ActionSuggest) {
		s.notifier.Notify(ctx, "signal", map[string]any{
			"index":      indexID,
			"action":     decision.Action,
			"signal":     decision.Direction,
			"confidence": decision.Confidence,
			"lots":       decision.Lots,
			"rationale":  decision.Rationale,
		})
	}

	result := &types.SignalResult{
		Decision:          &decision,
		IndicatorAnalysis: opinionPtr(opinions, types.SourceIndicator),
		MLPrediction:      opinionPtr(opinions, types.SourceML),
		LLMAnalysis:       opinionPtr(opinions, types.SourceLLM),
		Timestamp:         time.Now(),
	}

	if s.chain != nil {
		result.OptionChain = s.chainContext(ctx, indexID, &decision)
	}

	if s.mode == types.ModeAuto || s.mode == types.ModePaper {
		exec := s.gate.Submit(ctx, &decision, s.mode)
		result.Execution = &exec
		result.OrderExecuted = exec.Submitted
		if exec.Submitted && exec.Reason != "" {
			result.Warning = exec.Reason
		}
	}

	return result, nil
}

func (s *Service) chainContext(ctx context.Context, indexID string, d *types.FusedDecision) *types.ChainContext {
	cc := &types.ChainContext{Summary: s.chain.Summary(ctx, indexID)}
	if d.Strike != nil {
		cc.Row = s.chain.Get(ctx, indexID, *d.Strike)
	}
	if cc.Summary == nil && cc.Row == nil {
		return nil
	}
	return cc
}

func opinionPtr(opinions [3]types.Opinion, src types.Source) *types.Opinion {
	for i := range opinions {
		if opinions[i].Source == src {
			return &opinions[i]
		}
	}
	return nil
}
