// Package execution turns a fused decision into an order-or-no-order
// outcome, enforcing mode gating, idempotency and position sizing.
package execution

import (
	"context"
	"fmt"

	"options-signal-engine/internal/interfaces"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/types"
)

// LotSizeFunc returns the contract multiple for an index.
type LotSizeFunc func(indexID string) int

// Gate is the single path from decision to order. It owns no storage; trade
// records go through the journal interface only.
type Gate struct {
	broker   interfaces.Broker
	paper    interfaces.Broker
	journal  interfaces.Journal
	dedup    *DedupTracker
	notifier interfaces.Notifier
	lotSize  LotSizeFunc
}

// NewGate wires a gate. broker handles AUTO and MANUAL orders; PAPER orders
// always go to the internal paper broker regardless.
func NewGate(broker interfaces.Broker, journal interfaces.Journal, dedup *DedupTracker, notifier interfaces.Notifier, lotSize LotSizeFunc) *Gate {
	if lotSize == nil {
		lotSize = func(string) int { return 50 }
	}
	return &Gate{
		broker:   broker,
		paper:    NewPaperBroker(),
		journal:  journal,
		dedup:    dedup,
		notifier: notifier,
		lotSize:  lotSize,
	}
}

// Submit applies the mode policy to a decision. It never returns an error:
// every refusal or failure is an ExecutionResult with Submitted=false and a
// reason an operator can inspect.
func (g *Gate) Submit(ctx context.Context, d *types.FusedDecision, mode types.ExecutionMode) types.ExecutionResult {
	if d == nil {
		return refused("no decision")
	}
	if d.Action == types.ActionError {
		return refused("decision is in error state: " + d.Rationale)
	}
	if d.Direction == types.Wait {
		return refused("decision direction is WAIT")
	}
	if d.Entry == nil || *d.Entry <= 0 {
		return refused("decision has no entry price")
	}
	if d.Lots < 1 {
		return refused("decision has no lots")
	}

	switch mode {
	case types.ModeAuto:
		if d.Action != types.ActionExecute {
			return refused(fmt.Sprintf("action %s is not auto-executable", d.Action))
		}
		return g.execute(ctx, d, g.broker, true)
	case types.ModePaper:
		if d.Action != types.ActionExecute {
			return refused(fmt.Sprintf("action %s is not auto-executable", d.Action))
		}
		return g.execute(ctx, d, g.paper, true)
	case types.ModeManual:
		// The user may override a SUGGEST_TRADE, but never stacks a second
		// position on an index that is still open.
		if open, err := g.journal.OpenTrade(ctx, d.IndexID); err == nil && open != nil {
			logger.Risk(ctx, d.IndexID, "MANUAL_DUPLICATE_POSITION", "open_trade_id", open.TradeID)
			return refused("position already open for " + d.IndexID)
		}
		return g.execute(ctx, d, g.broker, false)
	default:
		return refused(fmt.Sprintf("unknown execution mode %q", mode))
	}
}

// execute places the order and journals the fill. With dedup enabled the
// (index, direction, entry) tuple is claimed atomically before the broker
// call and released again if the call fails.
func (g *Gate) execute(ctx context.Context, d *types.FusedDecision, broker interfaces.Broker, dedup bool) types.ExecutionResult {
	key := Key(d.IndexID, string(d.Direction), *d.Entry)
	if dedup {
		if !g.dedup.TryAcquire(key) {
			logger.Risk(ctx, d.IndexID, "DUPLICATE_EXECUTION_SUPPRESSED",
				"direction", string(d.Direction),
				"entry", *d.Entry,
			)
			return refused("duplicate execution suppressed for current signal epoch")
		}
	}

	req := types.OrderReq{
		IndexID:    d.IndexID,
		Direction:  d.Direction,
		OptionType: d.OptionType,
		Strike:     deref(d.Strike),
		Lots:       d.Lots,
		Qty:        d.Lots * g.lotSize(d.IndexID),
		OrderType:  d.OrderType,
		Tag:        "FUSED",
	}
	resp, err := broker.PlaceOrder(ctx, req)
	if err != nil {
		if dedup {
			g.dedup.Release(key)
		}
		logger.ErrorWithErr(ctx, "Order placement failed", err,
			"index", d.IndexID,
			"direction", string(d.Direction),
		)
		// A rejected order must not be journaled as an executed trade.
		return refused("broker rejected order: " + err.Error())
	}

	logger.Trade(ctx, d.IndexID, string(d.Direction), d.Lots, *d.Entry, resp.OrderID, "confidence", d.Confidence)

	result := types.ExecutionResult{Submitted: true, OrderID: resp.OrderID}
	tradeID, err := g.journal.Append(ctx, types.TradeLogEntry{
		IndexID:    d.IndexID,
		Direction:  d.Direction,
		EntryPrice: *d.Entry,
		StopLoss:   deref(d.StopLoss),
		Target:     deref(d.Target),
		Strike:     deref(d.Strike),
		Lots:       d.Lots,
		Qty:        req.Qty,
		Confidence: d.Confidence,
	})
	if err != nil {
		// The order is live; a journal write failure degrades to a warning,
		// not a failed execution.
		logger.ErrorWithErr(ctx, "Journal append failed after fill", err, "order_id", resp.OrderID)
		result.Reason = "journal write failed: " + err.Error()
	} else {
		result.TradeID = tradeID
	}

	if g.notifier != nil {
		g.notifier.Notify(ctx, "trade_executed", map[string]any{
			"index":     d.IndexID,
			"direction": d.Direction,
			"entry":     *d.Entry,
			"lots":      d.Lots,
			"order_id":  resp.OrderID,
			"trade_id":  result.TradeID,
		})
	}
	return result
}

func refused(reason string) types.ExecutionResult {
	return types.ExecutionResult{Submitted: false, Reason: reason}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
