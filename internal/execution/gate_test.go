package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"options-signal-engine/internal/types"
)

type fakeBroker struct {
	mu     sync.Mutex
	calls  int
	fail   bool
	lastID string
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail {
		return types.OrderResp{}, errors.New("exchange rejected")
	}
	b.lastID = "order-1"
	return types.OrderResp{OrderID: b.lastID, Status: "FILLED"}, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []types.TradeLogEntry
	open    *types.TradeLogEntry
	fail    bool
}

func (j *fakeJournal) Append(ctx context.Context, e types.TradeLogEntry) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return "", errors.New("disk full")
	}
	e.TradeID = "trade-1"
	j.entries = append(j.entries, e)
	return e.TradeID, nil
}

func (j *fakeJournal) Close(ctx context.Context, tradeID string, exitPrice float64, closedAt time.Time) (types.TradeLogEntry, error) {
	return types.TradeLogEntry{}, errors.New("not implemented")
}

func (j *fakeJournal) Metrics(ctx context.Context, f types.JournalFilter) (types.PerformanceReport, error) {
	return types.PerformanceReport{}, nil
}

func (j *fakeJournal) History(ctx context.Context, f types.JournalFilter) ([]types.TradeLogEntry, error) {
	return nil, nil
}

func (j *fakeJournal) OpenTrade(ctx context.Context, indexID string) (*types.TradeLogEntry, error) {
	return j.open, nil
}

func executableDecision() *types.FusedDecision {
	entry, stop, target, strike := 22500.0, 22400.0, 22650.0, 22500.0
	return &types.FusedDecision{
		IndexID:    "NIFTY",
		Action:     types.ActionExecute,
		Direction:  types.BuyCall,
		Confidence: 0.85,
		Lots:       2,
		OptionType: types.OptionCall,
		OrderType:  "MARKET",
		Entry:      &entry,
		StopLoss:   &stop,
		Target:     &target,
		Strike:     &strike,
	}
}

func newTestGate(brk *fakeBroker, jnl *fakeJournal) *Gate {
	return NewGate(brk, jnl, NewDedupTracker(5*time.Minute), nil, func(string) int { return 50 })
}

func TestAutoSubmitExecutesOnce(t *testing.T) {
	brk := &fakeBroker{}
	jnl := &fakeJournal{}
	g := newTestGate(brk, jnl)
	ctx := context.Background()
	d := executableDecision()

	first := g.Submit(ctx, d, types.ModeAuto)
	if !first.Submitted {
		t.Fatalf("first submit refused: %s", first.Reason)
	}
	if first.TradeID == "" {
		t.Error("expected a journaled trade id")
	}

	// Identical decision within the dedup window: exactly one order total.
	second := g.Submit(ctx, d, types.ModeAuto)
	if second.Submitted {
		t.Error("duplicate submit must be refused")
	}
	if brk.calls != 1 {
		t.Errorf("expected exactly 1 broker call, got %d", brk.calls)
	}
	if len(jnl.entries) != 1 {
		t.Errorf("expected exactly 1 journal entry, got %d", len(jnl.entries))
	}
}

func TestAutoRefusesSuggestions(t *testing.T) {
	g := newTestGate(&fakeBroker{}, &fakeJournal{})
	d := executableDecision()
	d.Action = types.ActionSuggest

	res := g.Submit(context.Background(), d, types.ModeAuto)
	if res.Submitted {
		t.Error("AUTO must not execute SUGGEST_TRADE")
	}
}

func TestManualOverridesSuggestion(t *testing.T) {
	brk := &fakeBroker{}
	g := newTestGate(brk, &fakeJournal{})
	d := executableDecision()
	d.Action = types.ActionSuggest

	res := g.Submit(context.Background(), d, types.ModeManual)
	if !res.Submitted {
		t.Fatalf("MANUAL should execute a user-confirmed suggestion: %s", res.Reason)
	}
	if brk.calls != 1 {
		t.Errorf("expected 1 broker call, got %d", brk.calls)
	}
}

func TestManualRefusesWhenPositionOpen(t *testing.T) {
	brk := &fakeBroker{}
	jnl := &fakeJournal{open: &types.TradeLogEntry{TradeID: "existing", IndexID: "NIFTY"}}
	g := newTestGate(brk, jnl)

	res := g.Submit(context.Background(), executableDecision(), types.ModeManual)
	if res.Submitted {
		t.Error("MANUAL must not stack a second position on an open index")
	}
	if brk.calls != 0 {
		t.Errorf("expected no broker call, got %d", brk.calls)
	}
}

func TestBrokerFailureIsNotJournaled(t *testing.T) {
	brk := &fakeBroker{fail: true}
	jnl := &fakeJournal{}
	g := newTestGate(brk, jnl)

	res := g.Submit(context.Background(), executableDecision(), types.ModeAuto)
	if res.Submitted {
		t.Error("rejected order reported as submitted")
	}
	if res.Reason == "" {
		t.Error("expected a rejection reason")
	}
	if len(jnl.entries) != 0 {
		t.Error("rejected order must not be journaled")
	}

	// The dedup slot is released on failure so the next poll can retry.
	brk.fail = false
	res = g.Submit(context.Background(), executableDecision(), types.ModeAuto)
	if !res.Submitted {
		t.Errorf("retry after broker failure refused: %s", res.Reason)
	}
}

func TestPaperModeUsesSyntheticOrders(t *testing.T) {
	brk := &fakeBroker{}
	jnl := &fakeJournal{}
	g := newTestGate(brk, jnl)

	res := g.Submit(context.Background(), executableDecision(), types.ModePaper)
	if !res.Submitted {
		t.Fatalf("paper submit refused: %s", res.Reason)
	}
	if brk.calls != 0 {
		t.Error("PAPER mode must never touch the real broker")
	}
	if len(res.OrderID) < 6 || res.OrderID[:6] != "paper-" {
		t.Errorf("expected synthetic paper order id, got %q", res.OrderID)
	}
}

func TestWaitDecisionsNeverExecute(t *testing.T) {
	g := newTestGate(&fakeBroker{}, &fakeJournal{})
	d := &types.FusedDecision{
		IndexID:   "NIFTY",
		Action:    types.ActionWait,
		Direction: types.Wait,
	}
	for _, mode := range []types.ExecutionMode{types.ModeAuto, types.ModeManual, types.ModePaper} {
		if res := g.Submit(context.Background(), d, mode); res.Submitted {
			t.Errorf("%s: WAIT decision executed", mode)
		}
	}
}

func TestJournalFailureDegradesToWarning(t *testing.T) {
	brk := &fakeBroker{}
	jnl := &fakeJournal{fail: true}
	g := newTestGate(brk, jnl)

	res := g.Submit(context.Background(), executableDecision(), types.ModeAuto)
	if !res.Submitted {
		t.Fatalf("journal failure must not fail the execution: %s", res.Reason)
	}
	if res.Reason == "" {
		t.Error("expected a persistence warning in the result")
	}
}

func TestDedupTrackerWindow(t *testing.T) {
	tr := NewDedupTracker(time.Minute)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }

	key := Key("NIFTY", "BUY CALL", 22500)
	if !tr.TryAcquire(key) {
		t.Fatal("first acquire must succeed")
	}
	if tr.TryAcquire(key) {
		t.Error("second acquire inside window must fail")
	}

	now = now.Add(61 * time.Second)
	if !tr.TryAcquire(key) {
		t.Error("acquire after window expiry must succeed")
	}
}

func TestDedupTrackerConcurrentSingleWinner(t *testing.T) {
	tr := NewDedupTracker(time.Minute)
	key := Key("NIFTY", "BUY CALL", 22500)

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.TryAcquire(key) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var n int
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("expected exactly one winner, got %d", n)
	}
}
