package scorer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"options-signal-engine/internal/api"
	"options-signal-engine/internal/types"
)

// remoteOpinion is the wire shape both external model services reply with.
type remoteOpinion struct {
	Signal           string   `json:"signal"`
	Confidence       float64  `json:"confidence"`
	Rationale        string   `json:"rationale"`
	PatternsDetected []string `json:"patterns_detected"`
	Trend            string   `json:"trend"`
	Entry            float64  `json:"entry"`
	StopLoss         float64  `json:"stop_loss"`
	Target           float64  `json:"target"`
	Strike           float64  `json:"strike"`
}

func callRemote(ctx context.Context, client *api.Client, endpoint string, snap types.MarketSnapshot, ec types.EvalContext) (remoteOpinion, error) {
	body := map[string]any{
		"index":        ec.IndexID,
		"risk_profile": ec.RiskProfile,
		"snapshot":     snap,
	}
	resp, err := client.POST(ctx, endpoint, body)
	if err != nil {
		return remoteOpinion{}, err
	}
	if resp.StatusCode >= 300 {
		return remoteOpinion{}, fmt.Errorf("model service http %d", resp.StatusCode)
	}
	var out remoteOpinion
	if err := resp.ParseJSON(&out); err != nil {
		return remoteOpinion{}, fmt.Errorf("model service response: %w", err)
	}
	return out, nil
}

// parseDirection maps a service's free-form signal onto a Direction.
// Anything unrecognized reads as WAIT.
func parseDirection(signal string) types.Direction {
	switch strings.ToUpper(strings.TrimSpace(signal)) {
	case "BUY CALL", "BUY_CALL", "CALL", "CE":
		return types.BuyCall
	case "BUY PUT", "BUY_PUT", "PUT", "PE":
		return types.BuyPut
	default:
		return types.Wait
	}
}

func (r remoteOpinion) opinion(src types.Source) types.Opinion {
	op := types.Opinion{
		Source:     src,
		Direction:  parseDirection(r.Signal),
		Confidence: clamp01(r.Confidence),
		Rationale:  r.Rationale,
		Patterns:   r.PatternsDetected,
		ProducedAt: time.Now(),
	}
	if op.Rationale == "" && r.Trend != "" {
		op.Rationale = "trend " + r.Trend
	}
	if op.Direction != types.Wait && r.Entry > 0 {
		op.Levels = &types.PriceLevels{
			Entry:    r.Entry,
			StopLoss: r.StopLoss,
			Target:   r.Target,
			Strike:   r.Strike,
		}
	}
	return op
}
