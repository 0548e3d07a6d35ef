package scorer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/trace"
	"options-signal-engine/internal/types"
)

// slotOrder fixes the position of each source in the gathered result so
// downstream consumers can index opinions without searching.
var slotOrder = [3]types.Source{types.SourceIndicator, types.SourceML, types.SourceLLM}

// Gather runs every scorer concurrently, each under its own deadline, and
// always returns exactly three opinions in INDICATOR, ML, LLM order. A
// scorer that errors, panics, or overruns its deadline contributes a
// neutral WAIT opinion instead of sinking the request.
func Gather(ctx context.Context, scorers []interfaces.Scorer, snap types.MarketSnapshot, ec types.EvalContext, perSource time.Duration) [3]types.Opinion {
	ctx, span := trace.StartSpan(ctx, "gather-opinions")
	defer span.End()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	got := make(map[types.Source]types.Opinion, len(scorers))

	for _, s := range scorers {
		wg.Add(1)
		go func(s interfaces.Scorer) {
			defer wg.Done()
			op := evaluate(ctx, s, snap, ec, perSource)
			mu.Lock()
			got[s.Source()] = op
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	var out [3]types.Opinion
	for i, src := range slotOrder {
		op, ok := got[src]
		if !ok {
			op = fallback(src, "source not configured")
		}
		out[i] = op
	}
	return out
}

func evaluate(ctx context.Context, s interfaces.Scorer, snap types.MarketSnapshot, ec types.EvalContext, perSource time.Duration) (op types.Opinion) {
	src := s.Source()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "scorer panicked", "source", src, "panic", fmt.Sprint(r))
			op = fallback(src, "source crashed")
		}
	}()

	sctx := ctx
	if perSource > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, perSource)
		defer cancel()
	}

	op, err := s.Evaluate(sctx, snap, ec)
	if err != nil {
		logger.Warn(ctx, "scorer unavailable", "source", src, "error", err.Error())
		return fallback(src, "source unavailable: "+err.Error())
	}
	op.Source = src
	op.Confidence = clamp01(op.Confidence)
	if op.Direction == "" {
		op.Direction = types.Wait
	}
	if op.ProducedAt.IsZero() {
		op.ProducedAt = time.Now()
	}
	return op
}

// fallback is the neutral stand-in for a source that produced nothing.
func fallback(src types.Source, reason string) types.Opinion {
	return types.Opinion{
		Source:     src,
		Direction:  types.Wait,
		Confidence: 0.5,
		Rationale:  reason,
		ProducedAt: time.Now(),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
