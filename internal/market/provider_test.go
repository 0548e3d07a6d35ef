package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"options-signal-engine/internal/types"
)

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	a, err := p.Snapshot(ctx, "NIFTY")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	b, _ := p.Snapshot(ctx, "NIFTY")

	if a.Price != b.Price || a.RSI != b.RSI || a.MACD != b.MACD {
		t.Errorf("same index should produce identical numbers: %+v vs %+v", a, b)
	}
	if a.Price < 22000 || a.Price > 23000 {
		t.Errorf("NIFTY mock price out of plausible band: %f", a.Price)
	}
	if a.RSI < 0 || a.RSI > 100 {
		t.Errorf("RSI out of range: %f", a.RSI)
	}
}

func TestMockProviderUnknownIndex(t *testing.T) {
	p := NewMockProvider()
	if _, err := p.Snapshot(context.Background(), "DOWJONES"); err == nil {
		t.Error("expected error for unsupported index")
	}
}

type stubChain struct {
	snap *types.ChainSnapshot
}

func (s *stubChain) Snapshot(ctx context.Context, indexID string) *types.ChainSnapshot {
	return s.snap
}

func TestLiveProviderFollowsUnderlying(t *testing.T) {
	chain := &stubChain{snap: &types.ChainSnapshot{IndexID: "NIFTY", UnderlyingValue: 22500, FetchedAt: time.Now()}}
	p := NewLiveProvider(chain)
	ctx := context.Background()

	first, err := p.Snapshot(ctx, "NIFTY")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if first.Price != 22500 {
		t.Errorf("expected price from chain underlying, got %f", first.Price)
	}
	if first.RSI != 50 {
		t.Errorf("first observation has no move, expected neutral RSI, got %f", first.RSI)
	}

	chain.snap = &types.ChainSnapshot{IndexID: "NIFTY", UnderlyingValue: 22600, FetchedAt: time.Now()}
	second, _ := p.Snapshot(ctx, "NIFTY")
	if second.Price != 22600 {
		t.Errorf("expected updated price, got %f", second.Price)
	}
	if second.MACD != 100 {
		t.Errorf("expected MACD to carry the step change, got %f", second.MACD)
	}
	if second.RSI <= 50 {
		t.Errorf("up move should lift RSI above neutral, got %f", second.RSI)
	}
}

type multiIndexChain struct{}

func (multiIndexChain) Snapshot(ctx context.Context, indexID string) *types.ChainSnapshot {
	underlying := map[string]float64{
		"NIFTY":      22500,
		"BANKNIFTY":  48200,
		"SENSEX":     74300,
		"MIDCPNIFTY": 11850,
	}[indexID]
	return &types.ChainSnapshot{IndexID: indexID, UnderlyingValue: underlying, FetchedAt: time.Now()}
}

func TestLiveProviderConcurrentSnapshots(t *testing.T) {
	p := NewLiveProvider(multiIndexChain{})
	ctx := context.Background()
	indices := []string{"NIFTY", "BANKNIFTY", "SENSEX", "MIDCPNIFTY"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				idx := indices[(n+j)%len(indices)]
				if _, err := p.Snapshot(ctx, idx); err != nil {
					t.Errorf("Snapshot %s: %v", idx, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	snap, err := p.Snapshot(ctx, "BANKNIFTY")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Price != 48200 {
		t.Errorf("expected price from chain underlying, got %f", snap.Price)
	}
}

func TestLiveProviderNoChainData(t *testing.T) {
	p := NewLiveProvider(&stubChain{})
	if _, err := p.Snapshot(context.Background(), "NIFTY"); err == nil {
		t.Error("expected error when chain has never been fetched")
	}
}
