package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"options-signal-engine/internal/execution"
	"options-signal-engine/internal/journal"
	"options-signal-engine/internal/notify"
	"options-signal-engine/internal/store"
	"options-signal-engine/internal/types"
)

type stubPipeline struct {
	res *types.SignalResult
	err error
}

func (p *stubPipeline) Run(ctx context.Context, indexID string, profile types.RiskProfile) (*types.SignalResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.res, nil
}

func testConfig() *store.Config {
	cfg := &store.Config{Mode: "MANUAL", DataSource: "MOCK"}
	cfg.Server.Port = 0
	cfg.Indices = map[string]store.IndexSpec{
		"NIFTY":     {LotSize: 50, StrikeStep: 100},
		"BANKNIFTY": {LotSize: 25, StrikeStep: 100},
	}
	return cfg
}

func newTestServer(t *testing.T, p *stubPipeline) (*Server, *journal.Journal) {
	t.Helper()
	jnl, err := journal.New(t.TempDir(), func(string) int { return 50 })
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	gate := execution.NewGate(
		execution.NewPaperBroker(),
		jnl,
		execution.NewDedupTracker(time.Minute),
		notify.Noop{},
		func(string) int { return 50 },
	)
	if p == nil {
		p = &stubPipeline{res: &types.SignalResult{
			Decision:  &types.FusedDecision{IndexID: "NIFTY", Action: types.ActionWait, Direction: types.Wait},
			Timestamp: time.Now(),
		}}
	}
	return New(testConfig(), p, jnl, gate, notify.Noop{}), jnl
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestSignalsUnknownIndex(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/signals?index=DOWJONES", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSignalsBadRiskProfile(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodGet, "/signals?index=NIFTY&risk_profile=yolo", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSignalsPipelineError(t *testing.T) {
	s, _ := newTestServer(t, &stubPipeline{err: errors.New("snapshot failed")})
	w := doJSON(t, s, http.MethodGet, "/signals?index=NIFTY", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["signal"] != "ERROR" {
		t.Errorf("expected ERROR payload, got %v", body)
	}
}

func TestSignalsOK(t *testing.T) {
	entry := 22500.0
	s, _ := newTestServer(t, &stubPipeline{res: &types.SignalResult{
		Decision: &types.FusedDecision{
			IndexID:    "NIFTY",
			Action:     types.ActionSuggest,
			Direction:  types.BuyCall,
			Confidence: 0.65,
			Lots:       1,
			Entry:      &entry,
		},
		Timestamp: time.Now(),
	}})
	w := doJSON(t, s, http.MethodGet, "/signals?index=nifty&risk_profile=moderate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res types.SignalResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Decision == nil || res.Decision.Direction != types.BuyCall {
		t.Errorf("unexpected decision: %+v", res.Decision)
	}
}

func TestExecuteAndExitRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/execute", map[string]any{
		"index":  "NIFTY",
		"signal": "BUY CALL",
		"entry":  22500.0,
		"qty":    2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("execute: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var exec map[string]any
	json.Unmarshal(w.Body.Bytes(), &exec)
	if exec["success"] != true || exec["trade_id"] == "" {
		t.Fatalf("unexpected execute response: %v", exec)
	}

	// Exit by index resolves the trade just opened.
	w = doJSON(t, s, http.MethodPost, "/exit", map[string]any{
		"index": "NIFTY",
		"exit":  22600.0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("exit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var exit struct {
		Success bool                `json:"success"`
		Trade   types.TradeLogEntry `json:"trade"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &exit); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// (22600-22500) * 2 lots * 50
	if exit.Trade.PnL != 10000 {
		t.Errorf("expected pnl 10000, got %f", exit.Trade.PnL)
	}

	// Metrics now reflect one closed winner.
	w = doJSON(t, s, http.MethodGet, "/performance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("performance: expected 200, got %d", w.Code)
	}
	var perf map[string]any
	json.Unmarshal(w.Body.Bytes(), &perf)
	if perf["total_trades"].(float64) != 1 || perf["wins"].(float64) != 1 {
		t.Errorf("unexpected performance: %v", perf)
	}
	if perf["success"] != true {
		t.Errorf("expected success flag, got %v", perf)
	}
}

func TestExecuteRejectsWaitSignal(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/execute", map[string]any{
		"index":  "NIFTY",
		"signal": "WAIT",
		"entry":  22500.0,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExecuteRejectsSecondOpenTrade(t *testing.T) {
	s, _ := newTestServer(t, nil)
	body := map[string]any{"index": "NIFTY", "signal": "BUY CALL", "entry": 22500.0}

	if w := doJSON(t, s, http.MethodPost, "/execute", body); w.Code != http.StatusOK {
		t.Fatalf("first execute: %d", w.Code)
	}
	w := doJSON(t, s, http.MethodPost, "/execute", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a position is open, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExitNoOpenTrade(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doJSON(t, s, http.MethodPost, "/exit", map[string]any{"index": "NIFTY", "exit": 22600.0})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHistoryLimit(t *testing.T) {
	s, jnl := newTestServer(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := jnl.Append(ctx, types.TradeLogEntry{
			IndexID:    "NIFTY",
			Direction:  types.BuyCall,
			EntryPrice: 22500,
			Lots:       1,
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	w := doJSON(t, s, http.MethodGet, "/signals/history?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Signals []types.TradeLogEntry `json:"signals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Signals) != 2 {
		t.Errorf("expected 2 entries, got %d", len(body.Signals))
	}
}
