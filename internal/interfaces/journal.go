package interfaces

import (
	"context"
	"time"

	"options-signal-engine/internal/types"
)

// Journal is the append/update-only trade log and the source of truth for
// performance metrics.
type Journal interface {
	Append(ctx context.Context, e types.TradeLogEntry) (string, error)
	Close(ctx context.Context, tradeID string, exitPrice float64, closedAt time.Time) (types.TradeLogEntry, error)
	Metrics(ctx context.Context, f types.JournalFilter) (types.PerformanceReport, error)
	History(ctx context.Context, f types.JournalFilter) ([]types.TradeLogEntry, error)
	OpenTrade(ctx context.Context, indexID string) (*types.TradeLogEntry, error)
}
