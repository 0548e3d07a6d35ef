package executionobs

import (
	"context"
	"time"

	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/trace"
	"options-signal-engine/internal/types"
)

type observableGate struct {
	gate interfaces.Gate
}

var _ interfaces.Gate = (*observableGate)(nil)

func Wrap(g interfaces.Gate) interfaces.Gate {
	return &observableGate{
		gate: g,
	}
}

func (og *observableGate) Submit(ctx context.Context, d *types.FusedDecision, mode types.ExecutionMode) types.ExecutionResult {
	ctx, span := trace.StartSpan(ctx, "gate.Submit")
	defer span.End()

	start := time.Now()

	result := og.gate.Submit(ctx, d, mode)

	index := ""
	if d != nil {
		index = d.IndexID
	}
	if result.Submitted {
		logger.InfoSkip(ctx, 1, "Order submitted",
			"index", index,
			"mode", string(mode),
			"order_id", result.OrderID,
			"trade_id", result.TradeID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		logger.InfoSkip(ctx, 1, "Order refused",
			"index", index,
			"mode", string(mode),
			"reason", result.Reason,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return result
}
