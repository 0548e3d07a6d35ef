package scorer

import (
	"context"
	"time"

	"options-signal-engine/internal/api"
	"options-signal-engine/internal/types"
)

// IndicatorScorer reads price-action signals. With an endpoint configured it
// defers to the external indicator service; without one it runs the built-in
// candle and RSI checks so the service stays usable standalone.
type IndicatorScorer struct {
	client   *api.Client
	endpoint string
}

func NewIndicatorScorer(client *api.Client, endpoint string) *IndicatorScorer {
	return &IndicatorScorer{client: client, endpoint: endpoint}
}

func (s *IndicatorScorer) Source() types.Source { return types.SourceIndicator }

func (s *IndicatorScorer) Evaluate(ctx context.Context, snap types.MarketSnapshot, ec types.EvalContext) (types.Opinion, error) {
	if s.endpoint != "" {
		r, err := callRemote(ctx, s.client, s.endpoint, snap, ec)
		if err != nil {
			return types.Opinion{}, err
		}
		return r.opinion(types.SourceIndicator), nil
	}
	return s.heuristic(snap), nil
}

func (s *IndicatorScorer) heuristic(snap types.MarketSnapshot) types.Opinion {
	op := types.Opinion{
		Source:     types.SourceIndicator,
		Direction:  types.Wait,
		Confidence: 0.5,
		Rationale:  "no tradable pattern",
		ProducedAt: time.Now(),
	}

	prev, last := snap.CandlePrev, snap.CandleLast
	bullishEngulf := last.Close > last.Open && prev.Close < prev.Open &&
		last.Close > prev.Open && last.Open < prev.Close
	bearishEngulf := last.Close < last.Open && prev.Close > prev.Open &&
		last.Close < prev.Open && last.Open > prev.Close
	aboveVWAP := snap.VWAP > 0 && snap.Price > snap.VWAP

	switch {
	case bullishEngulf && snap.RSI < 70:
		op.Direction = types.BuyCall
		op.Confidence = 0.7
		op.Rationale = "bullish engulfing with room on RSI"
		op.Patterns = []string{"bullish_engulfing"}
		if aboveVWAP {
			op.Confidence = 0.75
			op.Patterns = append(op.Patterns, "above_vwap")
		}
	case bearishEngulf && snap.RSI > 30:
		op.Direction = types.BuyPut
		op.Confidence = 0.7
		op.Rationale = "bearish engulfing with room on RSI"
		op.Patterns = []string{"bearish_engulfing"}
		if !aboveVWAP && snap.VWAP > 0 {
			op.Confidence = 0.75
			op.Patterns = append(op.Patterns, "below_vwap")
		}
	case last.Close > prev.High && snap.RSI < 65:
		op.Direction = types.BuyCall
		op.Confidence = 0.6
		op.Rationale = "close above prior high"
		op.Patterns = []string{"breakout"}
	case last.Close < prev.Low && snap.RSI > 35:
		op.Direction = types.BuyPut
		op.Confidence = 0.6
		op.Rationale = "close below prior low"
		op.Patterns = []string{"breakdown"}
	}
	return op
}
