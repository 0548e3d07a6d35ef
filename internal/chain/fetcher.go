// Package chain provides option-chain retrieval and the time-bounded
// strike cache that attaches chain context to decisions.
package chain

import (
	"context"
	"fmt"
	"math"
	"time"

	"options-signal-engine/internal/api"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/types"
)

const nseChainURL = "https://www.nseindia.com/api/option-chain-indices?symbol=%s"

// NSEFetcher pulls the full option chain for an index from the NSE public
// endpoint.
type NSEFetcher struct {
	client *api.Client
}

func NewNSEFetcher() *NSEFetcher {
	return &NSEFetcher{
		client: api.NewClient(api.WithTimeout(15 * time.Second)),
	}
}

// nseChainResponse mirrors the subset of the NSE payload the engine uses.
type nseChainResponse struct {
	Records struct {
		UnderlyingValue float64        `json:"underlyingValue"`
		Data            []nseChainItem `json:"data"`
	} `json:"records"`
}

// nseChainItem is one (strike, expiry) element of records.data. The same
// strike repeats across expiries, and a single element may carry only the
// CE or only the PE leg.
type nseChainItem struct {
	StrikePrice float64 `json:"strikePrice"`
	CE          *nseLeg `json:"CE"`
	PE          *nseLeg `json:"PE"`
}

type nseLeg struct {
	OpenInterest         float64 `json:"openInterest"`
	ChangeInOpenInterest float64 `json:"changeinOpenInterest"`
	LastPrice            float64 `json:"lastPrice"`
}

func (f *NSEFetcher) Fetch(ctx context.Context, indexID string) (types.ChainSnapshot, error) {
	url := fmt.Sprintf(nseChainURL, indexID)
	resp, err := f.client.GET(ctx, url, api.NSEHeaders())
	if err != nil {
		return types.ChainSnapshot{}, fmt.Errorf("fetch option chain for %s: %w", indexID, err)
	}

	var parsed nseChainResponse
	if err := resp.ParseJSON(&parsed); err != nil {
		return types.ChainSnapshot{}, fmt.Errorf("parse option chain for %s: %w", indexID, err)
	}

	snap := types.ChainSnapshot{
		IndexID:         indexID,
		UnderlyingValue: parsed.Records.UnderlyingValue,
		FetchedAt:       time.Now(),
		Rows:            mergeRows(parsed.Records.Data),
	}
	logger.Debug(ctx, "Option chain fetched", "index", indexID, "strikes", len(snap.Rows), "underlying", snap.UnderlyingValue)
	return snap, nil
}

// mergeRows folds the per-expiry payload elements into one row per strike,
// in first-seen order. Legs for a strike may arrive in separate elements.
func mergeRows(data []nseChainItem) []types.ChainRow {
	byStrike := map[float64]*types.ChainRow{}
	var order []float64
	for _, d := range data {
		row := byStrike[d.StrikePrice]
		if row == nil {
			row = &types.ChainRow{Strike: d.StrikePrice}
			byStrike[d.StrikePrice] = row
			order = append(order, d.StrikePrice)
		}
		if d.CE != nil {
			row.Calls = types.ChainSide{OI: d.CE.OpenInterest, OIChange: d.CE.ChangeInOpenInterest, LTP: d.CE.LastPrice}
		}
		if d.PE != nil {
			row.Puts = types.ChainSide{OI: d.PE.OpenInterest, OIChange: d.PE.ChangeInOpenInterest, LTP: d.PE.LastPrice}
		}
	}
	rows := make([]types.ChainRow, 0, len(order))
	for _, strike := range order {
		rows = append(rows, *byStrike[strike])
	}
	return rows
}

// MockFetcher synthesizes a plausible chain around a fixed underlying so
// the engine runs without network access.
type MockFetcher struct {
	Underlying float64
	Step       float64
}

func NewMockFetcher(underlying, step float64) *MockFetcher {
	return &MockFetcher{Underlying: underlying, Step: step}
}

func (f *MockFetcher) Fetch(ctx context.Context, indexID string) (types.ChainSnapshot, error) {
	step := f.Step
	if step <= 0 {
		step = 100
	}
	atm := math.Round(f.Underlying/step) * step

	snap := types.ChainSnapshot{
		IndexID:         indexID,
		UnderlyingValue: f.Underlying,
		FetchedAt:       time.Now(),
	}
	for i := -5; i <= 5; i++ {
		strike := atm + float64(i)*step
		dist := math.Abs(strike - f.Underlying)
		// OI concentrates near the money and decays outward.
		base := 120000.0 / (1 + dist/step)
		snap.Rows = append(snap.Rows, types.ChainRow{
			Strike: strike,
			Calls:  types.ChainSide{OI: base * 1.1, OIChange: base / 10, LTP: math.Max(f.Underlying-strike, 0) + 40},
			Puts:   types.ChainSide{OI: base, OIChange: base / 12, LTP: math.Max(strike-f.Underlying, 0) + 40},
		})
	}
	return snap, nil
}

// Summarize derives the advisory chain psychology: put-call ratio over OI
// and the OI-heaviest strikes read as support and resistance.
func Summarize(snap *types.ChainSnapshot) *types.ChainSummary {
	if snap == nil || len(snap.Rows) == 0 {
		return nil
	}
	s := &types.ChainSummary{}
	var maxCallOI, maxPutOI float64
	for _, row := range snap.Rows {
		s.TotalCallOI += row.Calls.OI
		s.TotalPutOI += row.Puts.OI
		if row.Calls.OI > maxCallOI {
			maxCallOI = row.Calls.OI
			s.ResistanceStrike = row.Strike
		}
		if row.Puts.OI > maxPutOI {
			maxPutOI = row.Puts.OI
			s.SupportStrike = row.Strike
		}
	}
	if s.TotalCallOI > 0 {
		s.PCR = math.Round(s.TotalPutOI/s.TotalCallOI*100) / 100
	}
	return s
}
