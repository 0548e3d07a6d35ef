package pipelineobs

import (
	"context"
	"time"

	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/trace"
	"options-signal-engine/internal/types"
)

type observablePipeline struct {
	pipeline interfaces.Pipeline
}

var _ interfaces.Pipeline = (*observablePipeline)(nil)

func Wrap(p interfaces.Pipeline) interfaces.Pipeline {
	return &observablePipeline{
		pipeline: p,
	}
}

func (op *observablePipeline) Run(ctx context.Context, indexID string, profile types.RiskProfile) (*types.SignalResult, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline.Run")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting signal request",
		"index", indexID,
		"risk_profile", string(profile),
	)

	result, err := op.pipeline.Run(ctx, indexID, profile)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Signal request failed", err,
			"index", indexID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Signal request completed",
		"index", indexID,
		"action", string(result.Decision.Action),
		"direction", string(result.Decision.Direction),
		"confidence", result.Decision.Confidence,
		"order_executed", result.OrderExecuted,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
