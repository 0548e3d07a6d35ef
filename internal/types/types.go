package types

import "time"

// Source identifies which opinion source produced a signal.
type Source string

const (
	SourceIndicator Source = "INDICATOR"
	SourceML        Source = "ML"
	SourceLLM       Source = "LLM"
)

// Direction is the trade direction for index options.
type Direction string

const (
	BuyCall Direction = "BUY CALL"
	BuyPut  Direction = "BUY PUT"
	Wait    Direction = "WAIT"
)

// Action is the fused decision outcome.
type Action string

const (
	ActionExecute Action = "EXECUTE_TRADE"
	ActionSuggest Action = "SUGGEST_TRADE"
	ActionWait    Action = "WAIT"
	ActionError   Action = "ERROR"
)

// OptionType is the contract side implied by a direction.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
	OptionNone OptionType = "NONE"
)

// RiskProfile controls the auto-execution confidence threshold.
type RiskProfile string

const (
	RiskAggressive   RiskProfile = "aggressive"
	RiskModerate     RiskProfile = "moderate"
	RiskConservative RiskProfile = "conservative"
)

// ExecutionMode gates how a fused decision may be acted on.
type ExecutionMode string

const (
	ModeAuto   ExecutionMode = "AUTO"
	ModeManual ExecutionMode = "MANUAL"
	ModePaper  ExecutionMode = "PAPER"
)

// OHLC is a single candle bar.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// MarketSnapshot is the immutable per-request market state an opinion
// source evaluates. Produced fresh per signal request.
type MarketSnapshot struct {
	IndexID    string    `json:"index"`
	CandlePrev OHLC      `json:"candle_prev"`
	CandleLast OHLC      `json:"candle_last"`
	RSI        float64   `json:"rsi"`
	MACD       float64   `json:"macd"`
	MACDSignal float64   `json:"macd_signal"`
	Volume     float64   `json:"volume"`
	VWAP       float64   `json:"vwap"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// PriceLevels are the numeric trade levels an opinion may carry.
// Only the ML source emits them in the current design.
type PriceLevels struct {
	Entry    float64 `json:"entry"`
	StopLoss float64 `json:"stop_loss"`
	Target   float64 `json:"target"`
	Strike   float64 `json:"strike"`
}

// Opinion is one source's view of the market. A failed source still yields
// an Opinion (WAIT, confidence 0.5, error rationale) so fusion always sees
// exactly three.
type Opinion struct {
	Source     Source       `json:"source"`
	Direction  Direction    `json:"direction"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale"`
	Patterns   []string     `json:"patterns,omitempty"`
	Levels     *PriceLevels `json:"levels,omitempty"`
	ProducedAt time.Time    `json:"produced_at"`
}

// EvalContext carries request-scoped inputs to an opinion source.
type EvalContext struct {
	IndexID     string      `json:"index"`
	RiskProfile RiskProfile `json:"risk_profile"`
}

// FusedDecision is the single actionable output of fusion. Created once per
// fusion call and never mutated; a new decision supersedes the prior one.
//
// Invariants: EXECUTE_TRADE/SUGGEST_TRADE imply Direction != WAIT and
// Lots >= 1. WAIT implies Lots == 0 and nil price levels.
type FusedDecision struct {
	IndexID     string      `json:"index"`
	Action      Action      `json:"action"`
	Direction   Direction   `json:"direction"`
	Confidence  float64     `json:"confidence"`
	Lots        int         `json:"lots"`
	OptionType  OptionType  `json:"option_type"`
	OrderType   string      `json:"order_type"`
	Entry       *float64    `json:"entry"`
	StopLoss    *float64    `json:"stop_loss"`
	Target      *float64    `json:"target"`
	Strike      *float64    `json:"strike"`
	Rationale   string      `json:"rationale"`
	Opinions    [3]Opinion  `json:"contributing_opinions"`
	RiskProfile RiskProfile `json:"risk_profile"`
	DecidedAt   time.Time   `json:"decided_at"`
}

// OpinionBySource returns the contributing opinion for a source.
func (d *FusedDecision) OpinionBySource(s Source) *Opinion {
	for i := range d.Opinions {
		if d.Opinions[i].Source == s {
			return &d.Opinions[i]
		}
	}
	return nil
}

// OrderReq is a broker order request for an index option.
type OrderReq struct {
	IndexID    string
	Direction  Direction
	OptionType OptionType
	Strike     float64
	Lots       int
	Qty        int
	OrderType  string
	Tag        string
}

// OrderResp is the broker's reply.
type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ExecutionResult reports what the execution gate did with a decision.
type ExecutionResult struct {
	Submitted bool   `json:"submitted"`
	OrderID   string `json:"order_id,omitempty"`
	TradeID   string `json:"trade_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// TradeLogEntry is one journaled trade. Created at execution with PnL 0 and
// a nil exit; mutated exactly once at close.
type TradeLogEntry struct {
	TradeID    string     `json:"trade_id"`
	IndexID    string     `json:"index"`
	Direction  Direction  `json:"signal"`
	EntryPrice float64    `json:"entry"`
	ExitPrice  *float64   `json:"exit,omitempty"`
	StopLoss   float64    `json:"stop_loss"`
	Target     float64    `json:"target"`
	Strike     float64    `json:"strike"`
	Lots       int        `json:"lots"`
	Qty        int        `json:"qty"`
	Confidence float64    `json:"confidence"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	PnL        float64    `json:"pnl"`
}

// Closed reports whether the trade has been exited.
func (e *TradeLogEntry) Closed() bool { return e.ClosedAt != nil }

// PerformanceReport aggregates closed trades. Open positions do not count
// toward win/loss tallies.
type PerformanceReport struct {
	TotalTrades  int     `json:"total_trades"`
	OpenTrades   int     `json:"open_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgPnL       float64 `json:"avg_profit"`
	TotalPnL     float64 `json:"total_pnl"`
	MaxWin       float64 `json:"max_win"`
	MaxLoss      float64 `json:"max_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	CallTrades   int     `json:"call_trades"`
	PutTrades    int     `json:"put_trades"`
}

// JournalFilter narrows history and metrics queries.
type JournalFilter struct {
	IndexID string
	From    time.Time
	To      time.Time
}

// ChainSide holds one leg of an option-chain row.
type ChainSide struct {
	OI       float64 `json:"oi"`
	OIChange float64 `json:"oi_change"`
	LTP      float64 `json:"ltp"`
}

// ChainRow is the call/put pair at one strike.
type ChainRow struct {
	Strike float64   `json:"strike"`
	Calls  ChainSide `json:"calls"`
	Puts   ChainSide `json:"puts"`
}

// ChainSnapshot is a full option-chain fetch for an index.
type ChainSnapshot struct {
	IndexID         string     `json:"index"`
	UnderlyingValue float64    `json:"underlying_value"`
	Rows            []ChainRow `json:"rows"`
	FetchedAt       time.Time  `json:"fetched_at"`
}

// ChainSummary is the advisory option-chain context attached to a decision.
type ChainSummary struct {
	PCR              float64 `json:"pcr"`
	SupportStrike    float64 `json:"support_strike"`
	ResistanceStrike float64 `json:"resistance_strike"`
	TotalCallOI      float64 `json:"total_call_oi"`
	TotalPutOI       float64 `json:"total_put_oi"`
}

// ChainContext is the strike row plus chain-wide summary for a decision.
type ChainContext struct {
	Row     *ChainRow     `json:"row,omitempty"`
	Summary *ChainSummary `json:"summary,omitempty"`
}

// SignalResult is the full /signals response payload for one index.
type SignalResult struct {
	Decision          *FusedDecision   `json:"decision"`
	MLPrediction      *Opinion         `json:"ml_prediction"`
	IndicatorAnalysis *Opinion         `json:"indicator_analysis"`
	LLMAnalysis       *Opinion         `json:"llm_analysis"`
	OptionChain       *ChainContext    `json:"option_chain,omitempty"`
	OrderExecuted     bool             `json:"order_executed"`
	Execution         *ExecutionResult `json:"execution,omitempty"`
	Warning           string           `json:"warning,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}
