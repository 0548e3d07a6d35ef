package execution

import (
	"context"

	"github.com/google/uuid"

	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/types"
)

// PaperBroker fills every order instantly with a synthetic id. It is the
// only shipped broker; real brokerage connectivity is out of scope.
type PaperBroker struct{}

func NewPaperBroker() *PaperBroker { return &PaperBroker{} }

func (b *PaperBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	id := "paper-" + uuid.NewString()
	logger.Info(ctx, "Paper order filled",
		"order_id", id,
		"index", req.IndexID,
		"direction", string(req.Direction),
		"strike", req.Strike,
		"lots", req.Lots,
		"qty", req.Qty,
	)
	return types.OrderResp{OrderID: id, Status: "FILLED", Message: "paper fill"}, nil
}
