package interfaces

import (
	"context"

	"options-signal-engine/internal/types"
)

// Broker places option orders. The only shipped implementation is the paper
// broker; real brokerage connectivity is out of scope.
type Broker interface {
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
}

// Notifier delivers fire-and-forget alerts. Implementations must never block
// or fail the owning request.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}
