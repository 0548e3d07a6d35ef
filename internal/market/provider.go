package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"options-signal-engine/internal/types"
)

// MockProvider synthesizes a deterministic snapshot per index so the full
// pipeline can run without any market connectivity. The same index always
// yields the same shape, which keeps tests and demos reproducible.
type MockProvider struct {
	Base map[string]float64

	now func() time.Time
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Base: map[string]float64{
			"NIFTY":      22500,
			"BANKNIFTY":  48200,
			"SENSEX":     74300,
			"MIDCPNIFTY": 11850,
			"FINNIFTY":   21400,
		},
		now: time.Now,
	}
}

func (p *MockProvider) Snapshot(ctx context.Context, indexID string) (types.MarketSnapshot, error) {
	base, ok := p.Base[indexID]
	if !ok {
		return types.MarketSnapshot{}, fmt.Errorf("mock provider: unknown index %q", indexID)
	}

	h := fnv.New32a()
	h.Write([]byte(indexID))
	seed := float64(h.Sum32()%1000) / 1000

	// A gentle drift keyed off the index name, enough to push the
	// indicator heuristics off dead center.
	drift := (seed - 0.5) * base * 0.004
	price := base + drift
	prevClose := base - drift/2

	return types.MarketSnapshot{
		IndexID: indexID,
		CandlePrev: types.OHLC{
			Open:  prevClose - base*0.001,
			High:  prevClose + base*0.0015,
			Low:   prevClose - base*0.002,
			Close: prevClose,
		},
		CandleLast: types.OHLC{
			Open:  prevClose,
			High:  math.Max(prevClose, price) + base*0.001,
			Low:   math.Min(prevClose, price) - base*0.001,
			Close: price,
		},
		RSI:        45 + seed*20,
		MACD:       drift / 4,
		MACDSignal: drift / 8,
		Volume:     250000 + seed*150000,
		VWAP:       (price + prevClose) / 2,
		Price:      price,
		ObservedAt: p.now(),
	}, nil
}

// LiveProvider derives a snapshot from the option-chain underlying value.
// The chain feed is the one live price source this service depends on, so
// candles are synthesized around it while RSI/MACD come from the previous
// snapshot's drift.
type LiveProvider struct {
	chain chainView
	now   func() time.Time

	mu   sync.Mutex
	last map[string]types.MarketSnapshot
}

// chainView is the slice of the chain cache this provider needs.
type chainView interface {
	Snapshot(ctx context.Context, indexID string) *types.ChainSnapshot
}

func NewLiveProvider(chain chainView) *LiveProvider {
	return &LiveProvider{chain: chain, now: time.Now, last: make(map[string]types.MarketSnapshot)}
}

func (p *LiveProvider) Snapshot(ctx context.Context, indexID string) (types.MarketSnapshot, error) {
	chain := p.chain.Snapshot(ctx, indexID)
	if chain == nil || chain.UnderlyingValue <= 0 {
		return types.MarketSnapshot{}, fmt.Errorf("live provider: no chain data for %s", indexID)
	}

	price := chain.UnderlyingValue

	p.mu.Lock()
	defer p.mu.Unlock()
	prev, seen := p.last[indexID]
	prevClose := price
	if seen {
		prevClose = prev.Price
	}
	change := price - prevClose

	snap := types.MarketSnapshot{
		IndexID: indexID,
		CandlePrev: types.OHLC{
			Open:  prevClose,
			High:  math.Max(prevClose, price),
			Low:   math.Min(prevClose, price),
			Close: prevClose,
		},
		CandleLast: types.OHLC{
			Open:  prevClose,
			High:  math.Max(prevClose, price),
			Low:   math.Min(prevClose, price),
			Close: price,
		},
		RSI:        rsiFromChange(change, price),
		MACD:       change,
		MACDSignal: change / 2,
		VWAP:       (price + prevClose) / 2,
		Price:      price,
		ObservedAt: p.now(),
	}
	p.last[indexID] = snap
	return snap, nil
}

// rsiFromChange maps a single-step move onto the RSI scale. With only one
// live observation window this is a coarse proxy, centered at 50.
func rsiFromChange(change, price float64) float64 {
	if price <= 0 {
		return 50
	}
	pct := change / price * 100
	rsi := 50 + pct*40
	return math.Max(5, math.Min(95, rsi))
}
