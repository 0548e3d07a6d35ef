package pipeline

import (
	"context"
	"testing"
	"time"

	"options-signal-engine/internal/execution"
	"options-signal-engine/internal/fusion"
	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/journal"
	"options-signal-engine/internal/market"
	"options-signal-engine/internal/notify"
	"options-signal-engine/internal/types"
)

type fixedScorer struct {
	src types.Source
	op  types.Opinion
}

func (f *fixedScorer) Source() types.Source { return f.src }

func (f *fixedScorer) Evaluate(ctx context.Context, snap types.MarketSnapshot, ec types.EvalContext) (types.Opinion, error) {
	return f.op, nil
}

func agreeingScorers(entry float64) []interfaces.Scorer {
	return []interfaces.Scorer{
		&fixedScorer{src: types.SourceIndicator, op: types.Opinion{
			Source: types.SourceIndicator, Direction: types.BuyCall, Confidence: 0.7, Rationale: "breakout",
		}},
		&fixedScorer{src: types.SourceML, op: types.Opinion{
			Source: types.SourceML, Direction: types.BuyCall, Confidence: 0.8, Rationale: "model",
			Levels: &types.PriceLevels{Entry: entry, StopLoss: entry - 90, Target: entry + 180},
		}},
		&fixedScorer{src: types.SourceLLM, op: types.Opinion{
			Source: types.SourceLLM, Direction: types.BuyCall, Confidence: 0.75, Rationale: "advisory",
		}},
	}
}

func newTestService(t *testing.T, mode types.ExecutionMode, scorers []interfaces.Scorer) (*Service, interfaces.Journal) {
	t.Helper()
	jnl, err := journal.New(t.TempDir(), func(string) int { return 50 })
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	gate := execution.NewGate(
		execution.NewPaperBroker(),
		jnl,
		execution.NewDedupTracker(5*time.Minute),
		notify.Noop{},
		func(string) int { return 50 },
	)
	svc := NewService(Options{
		Provider:      market.NewMockProvider(),
		Scorers:       scorers,
		Engine:        fusion.New(5, nil, func(string) float64 { return 50 }),
		Gate:          gate,
		Mode:          mode,
		ScorerTimeout: time.Second,
		Deadline:      5 * time.Second,
	})
	return svc, jnl
}

func TestRunPaperModeExecutesAndJournals(t *testing.T) {
	svc, jnl := newTestService(t, types.ModePaper, agreeingScorers(22500))

	res, err := svc.Run(context.Background(), "NIFTY", types.RiskModerate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Decision == nil || res.Decision.Action != types.ActionExecute {
		t.Fatalf("expected EXECUTE_TRADE from full agreement, got %+v", res.Decision)
	}
	if res.Decision.Confidence != 0.85 {
		t.Errorf("ML/LLM agreement should score 0.85, got %f", res.Decision.Confidence)
	}
	if !res.OrderExecuted || res.Execution == nil || !res.Execution.Submitted {
		t.Fatalf("paper mode should submit, got %+v", res.Execution)
	}

	open, err := jnl.OpenTrade(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("OpenTrade: %v", err)
	}
	if open == nil || open.EntryPrice != 22500 {
		t.Errorf("expected journaled open trade at 22500, got %+v", open)
	}
}

func TestRunCarriesAllThreeOpinions(t *testing.T) {
	svc, _ := newTestService(t, types.ModeManual, agreeingScorers(22500))

	res, err := svc.Run(context.Background(), "NIFTY", types.RiskModerate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.IndicatorAnalysis == nil || res.IndicatorAnalysis.Source != types.SourceIndicator {
		t.Errorf("missing indicator opinion: %+v", res.IndicatorAnalysis)
	}
	if res.MLPrediction == nil || res.MLPrediction.Source != types.SourceML {
		t.Errorf("missing ML opinion: %+v", res.MLPrediction)
	}
	if res.LLMAnalysis == nil || res.LLMAnalysis.Source != types.SourceLLM {
		t.Errorf("missing LLM opinion: %+v", res.LLMAnalysis)
	}
}

func TestRunManualModeNeverSubmits(t *testing.T) {
	svc, jnl := newTestService(t, types.ModeManual, agreeingScorers(22500))

	res, err := svc.Run(context.Background(), "NIFTY", types.RiskModerate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OrderExecuted || res.Execution != nil {
		t.Errorf("manual mode must not auto-execute, got %+v", res.Execution)
	}
	if open, _ := jnl.OpenTrade(context.Background(), "NIFTY"); open != nil {
		t.Errorf("manual mode must not journal, got %+v", open)
	}
}

func TestRunConflictWaits(t *testing.T) {
	scorers := []interfaces.Scorer{
		&fixedScorer{src: types.SourceIndicator, op: types.Opinion{
			Source: types.SourceIndicator, Direction: types.BuyCall, Confidence: 0.9,
		}},
		&fixedScorer{src: types.SourceML, op: types.Opinion{
			Source: types.SourceML, Direction: types.BuyPut, Confidence: 0.9,
			Levels: &types.PriceLevels{Entry: 22500},
		}},
		&fixedScorer{src: types.SourceLLM, op: types.Opinion{
			Source: types.SourceLLM, Direction: types.BuyPut, Confidence: 0.9,
		}},
	}
	svc, _ := newTestService(t, types.ModePaper, scorers)

	res, err := svc.Run(context.Background(), "NIFTY", types.RiskAggressive)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Decision.Action != types.ActionWait || res.Decision.Direction != types.Wait {
		t.Errorf("numeric conflict must WAIT, got %+v", res.Decision)
	}
	if res.OrderExecuted {
		t.Error("WAIT decision must not execute")
	}
}

func TestRunUnknownIndexFails(t *testing.T) {
	svc, _ := newTestService(t, types.ModePaper, agreeingScorers(22500))
	if _, err := svc.Run(context.Background(), "DOWJONES", types.RiskModerate); err == nil {
		t.Error("expected hard error when the snapshot provider fails")
	}
}

type recordingNotifier struct {
	events []string
}

func (r *recordingNotifier) Notify(ctx context.Context, event string, payload any) {
	r.events = append(r.events, event)
}

func TestRunNotifiesActionableSignal(t *testing.T) {
	svc, _ := newTestService(t, types.ModeManual, agreeingScorers(22500))
	rec := &recordingNotifier{}
	svc.notifier = rec

	if _, err := svc.Run(context.Background(), "NIFTY", types.RiskModerate); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0] != "signal" {
		t.Errorf("actionable decision should fire one signal alert, got %v", rec.events)
	}
}

func TestRunNoAlertOnWait(t *testing.T) {
	scorers := []interfaces.Scorer{
		&fixedScorer{src: types.SourceIndicator, op: types.Opinion{
			Source: types.SourceIndicator, Direction: types.Wait, Confidence: 0.5,
		}},
		&fixedScorer{src: types.SourceML, op: types.Opinion{
			Source: types.SourceML, Direction: types.Wait, Confidence: 0.5,
		}},
		&fixedScorer{src: types.SourceLLM, op: types.Opinion{
			Source: types.SourceLLM, Direction: types.Wait, Confidence: 0.5,
		}},
	}
	svc, _ := newTestService(t, types.ModeManual, scorers)
	rec := &recordingNotifier{}
	svc.notifier = rec

	if _, err := svc.Run(context.Background(), "NIFTY", types.RiskModerate); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("WAIT decision must not alert, got %v", rec.events)
	}
}

type stubChainCtx struct {
	row     *types.ChainRow
	summary *types.ChainSummary
}

func (s *stubChainCtx) Get(ctx context.Context, indexID string, strike float64) *types.ChainRow {
	return s.row
}

func (s *stubChainCtx) Summary(ctx context.Context, indexID string) *types.ChainSummary {
	return s.summary
}

func TestRunAttachesChainContext(t *testing.T) {
	svc, _ := newTestService(t, types.ModeManual, agreeingScorers(22500))
	svc.chain = &stubChainCtx{
		row:     &types.ChainRow{Strike: 22550},
		summary: &types.ChainSummary{PCR: 1.1, SupportStrike: 22400, ResistanceStrike: 22700},
	}

	res, err := svc.Run(context.Background(), "NIFTY", types.RiskModerate)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OptionChain == nil || res.OptionChain.Summary == nil {
		t.Fatalf("expected chain context, got %+v", res.OptionChain)
	}
	if res.OptionChain.Row == nil || res.OptionChain.Row.Strike != 22550 {
		t.Errorf("expected chain row for decision strike, got %+v", res.OptionChain.Row)
	}
}
