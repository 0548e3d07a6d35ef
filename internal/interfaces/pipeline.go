package interfaces

import (
	"context"

	"options-signal-engine/internal/types"
)

// Pipeline runs one full signal request for an index.
type Pipeline interface {
	Run(ctx context.Context, indexID string, profile types.RiskProfile) (*types.SignalResult, error)
}
