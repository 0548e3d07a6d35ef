package interfaces

import (
	"context"

	"options-signal-engine/internal/types"
)

// Scorer is one independent opinion source. Evaluate must respect ctx
// deadlines; callers contain failures, so an error return never aborts the
// owning signal request.
type Scorer interface {
	Source() types.Source
	Evaluate(ctx context.Context, snap types.MarketSnapshot, ec types.EvalContext) (types.Opinion, error)
}
