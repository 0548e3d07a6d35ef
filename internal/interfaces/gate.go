package interfaces

import (
	"context"

	"options-signal-engine/internal/types"
)

// Gate decides whether a fused decision may reach a broker. Submit reports
// refusals in the result instead of erroring.
type Gate interface {
	Submit(ctx context.Context, d *types.FusedDecision, mode types.ExecutionMode) types.ExecutionResult
}
