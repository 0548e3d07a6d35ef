package interfaces

import (
	"context"

	"options-signal-engine/internal/types"
)

// SnapshotProvider supplies the latest market state for an index.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, indexID string) (types.MarketSnapshot, error)
}

// ChainSource fetches a full option-chain snapshot for an index.
type ChainSource interface {
	Fetch(ctx context.Context, indexID string) (types.ChainSnapshot, error)
}
