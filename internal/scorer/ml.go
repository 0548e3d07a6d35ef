package scorer

import (
	"context"
	"math"
	"time"

	"options-signal-engine/internal/api"
	"options-signal-engine/internal/types"
)

// MLScorer is the only source that emits price levels. It calls the model
// service when one is configured, otherwise it falls back to the RSI/MACD
// rule the model service itself uses when its model file is missing.
type MLScorer struct {
	client   *api.Client
	endpoint string
}

func NewMLScorer(client *api.Client, endpoint string) *MLScorer {
	return &MLScorer{client: client, endpoint: endpoint}
}

func (s *MLScorer) Source() types.Source { return types.SourceML }

func (s *MLScorer) Evaluate(ctx context.Context, snap types.MarketSnapshot, ec types.EvalContext) (types.Opinion, error) {
	if s.endpoint != "" {
		r, err := callRemote(ctx, s.client, s.endpoint, snap, ec)
		if err != nil {
			return types.Opinion{}, err
		}
		return r.opinion(types.SourceML), nil
	}
	return s.heuristic(snap), nil
}

func (s *MLScorer) heuristic(snap types.MarketSnapshot) types.Opinion {
	op := types.Opinion{
		Source:     types.SourceML,
		Direction:  types.Wait,
		Confidence: 0.5,
		Rationale:  "model fallback: no oversold/overbought setup",
		ProducedAt: time.Now(),
	}

	crossUp := snap.MACD > snap.MACDSignal
	switch {
	case snap.RSI < 30 && crossUp:
		op.Direction = types.BuyCall
		op.Confidence = 0.7
		op.Rationale = "model fallback: oversold RSI with MACD cross up"
	case snap.RSI > 70 && !crossUp:
		op.Direction = types.BuyPut
		op.Confidence = 0.7
		op.Rationale = "model fallback: overbought RSI with MACD cross down"
	default:
		return op
	}

	entry := round2(snap.Price)
	lv := &types.PriceLevels{Entry: entry}
	if op.Direction == types.BuyCall {
		lv.StopLoss = round2(entry * 0.996)
		lv.Target = round2(entry * 1.008)
	} else {
		lv.StopLoss = round2(entry * 1.004)
		lv.Target = round2(entry * 0.992)
	}
	op.Levels = lv
	return op
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
