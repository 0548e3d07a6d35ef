// Package journal is the append/update-only trade log. Every record is a
// JSONL line in a daily file; an in-memory index rebuilt on startup serves
// reads. The journal is the source of truth for performance metrics.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"options-signal-engine/internal/types"
)

var ist = time.FixedZone("IST", 19800)

// LotSizeFunc returns the contract multiple for an index.
type LotSizeFunc func(indexID string) int

// record is one persisted line. "open" lines create a trade, "close" lines
// finalize it; replaying the lines in order rebuilds the index.
type record struct {
	Op    string              `json:"op"`
	Entry types.TradeLogEntry `json:"entry"`
}

type Journal struct {
	dir     string
	lotSize LotSizeFunc

	mu      sync.Mutex
	entries map[string]*types.TradeLogEntry
	order   []string // trade ids in append order
}

// New opens (or creates) a journal directory and replays any existing daily
// files into the in-memory index.
func New(dir string, lotSize LotSizeFunc) (*Journal, error) {
	if lotSize == nil {
		lotSize = func(string) int { return 50 }
	}
	j := &Journal{
		dir:     dir,
		lotSize: lotSize,
		entries: map[string]*types.TradeLogEntry{},
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if err := j.replay(); err != nil {
		return nil, err
	}
	return j, nil
}

// Append records a newly opened trade and returns its id. The entry is
// normalized: a missing trade id is assigned, pnl starts at 0 and the exit
// fields start unset regardless of what the caller passed.
func (j *Journal) Append(ctx context.Context, e types.TradeLogEntry) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.TradeID == "" {
		e.TradeID = uuid.NewString()
	}
	if _, exists := j.entries[e.TradeID]; exists {
		return "", fmt.Errorf("trade %s already journaled", e.TradeID)
	}
	if e.OpenedAt.IsZero() {
		e.OpenedAt = time.Now().In(ist)
	}
	if e.Qty == 0 {
		e.Qty = e.Lots * j.lotSize(e.IndexID)
	}
	e.PnL = 0
	e.ExitPrice = nil
	e.ClosedAt = nil

	if err := j.writeLine(record{Op: "open", Entry: e}); err != nil {
		return "", err
	}
	stored := e
	j.entries[e.TradeID] = &stored
	j.order = append(j.order, e.TradeID)
	return e.TradeID, nil
}

// Close finalizes a trade. Closing an already-closed trade is a no-op that
// returns the first recorded closure, so duplicate exit requests from a
// flaky client never double-apply pnl.
func (j *Journal) Close(ctx context.Context, tradeID string, exitPrice float64, closedAt time.Time) (types.TradeLogEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[tradeID]
	if !ok {
		return types.TradeLogEntry{}, fmt.Errorf("unknown trade id %s", tradeID)
	}
	if e.Closed() {
		return *e, nil
	}
	if closedAt.IsZero() {
		closedAt = time.Now().In(ist)
	}

	pnl := (exitPrice - e.EntryPrice) * directionSign(e.Direction) * float64(e.Lots) * float64(j.lotSize(e.IndexID))
	closed := *e
	closed.ExitPrice = &exitPrice
	closed.ClosedAt = &closedAt
	closed.PnL = pnl

	if err := j.writeLine(record{Op: "close", Entry: closed}); err != nil {
		return types.TradeLogEntry{}, err
	}
	*e = closed
	return closed, nil
}

// OpenTrade returns the most recently opened, still-open trade for an
// index, or nil when the index is flat.
func (j *Journal) OpenTrade(ctx context.Context, indexID string) (*types.TradeLogEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.order) - 1; i >= 0; i-- {
		e := j.entries[j.order[i]]
		if e.IndexID == indexID && !e.Closed() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

// History returns journaled trades, newest first.
func (j *Journal) History(ctx context.Context, f types.JournalFilter) ([]types.TradeLogEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]types.TradeLogEntry, 0, len(j.order))
	for i := len(j.order) - 1; i >= 0; i-- {
		e := j.entries[j.order[i]]
		if matches(e, f) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// Metrics aggregates closed trades only; open positions never count toward
// win/loss tallies.
func (j *Journal) Metrics(ctx context.Context, f types.JournalFilter) (types.PerformanceReport, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var r types.PerformanceReport
	var grossProfit, grossLoss float64
	for _, id := range j.order {
		e := j.entries[id]
		if !matches(e, f) {
			continue
		}
		r.TotalTrades++
		if !e.Closed() {
			r.OpenTrades++
			continue
		}
		switch e.Direction {
		case types.BuyCall:
			r.CallTrades++
		case types.BuyPut:
			r.PutTrades++
		}
		r.TotalPnL += e.PnL
		if e.PnL > 0 {
			r.Wins++
			grossProfit += e.PnL
			if e.PnL > r.MaxWin {
				r.MaxWin = e.PnL
			}
		} else {
			r.Losses++
			grossLoss += -e.PnL
			if e.PnL < r.MaxLoss {
				r.MaxLoss = e.PnL
			}
		}
	}
	closed := r.Wins + r.Losses
	if closed > 0 {
		r.WinRate = round2(float64(r.Wins) / float64(closed) * 100)
		r.AvgPnL = round2(r.TotalPnL / float64(closed))
	}
	if grossLoss > 0 {
		r.ProfitFactor = round2(grossProfit / grossLoss)
	}
	r.TotalPnL = round2(r.TotalPnL)
	return r, nil
}

func directionSign(d types.Direction) float64 {
	if d == types.BuyPut {
		return -1
	}
	return 1
}

func matches(e *types.TradeLogEntry, f types.JournalFilter) bool {
	if f.IndexID != "" && e.IndexID != f.IndexID {
		return false
	}
	if !f.From.IsZero() && e.OpenedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.OpenedAt.After(f.To) {
		return false
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (j *Journal) dailyFilepath(t time.Time) string {
	return filepath.Join(j.dir, t.In(ist).Format("2006-01-02")+".jsonl")
}

func (j *Journal) writeLine(rec record) error {
	p := j.dailyFilepath(time.Now())
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, string(b)); err != nil {
		return fmt.Errorf("append journal line: %w", err)
	}
	return nil
}

// replay rebuilds the in-memory index from the daily files, oldest first.
func (j *Journal) replay() error {
	names, err := filepath.Glob(filepath.Join(j.dir, "*.jsonl"))
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		if err := j.replayFile(name); err != nil {
			return fmt.Errorf("replay %s: %w", name, err)
		}
	}
	return nil
}

func (j *Journal) replayFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// A torn final line from a crash is skipped, not fatal.
			continue
		}
		switch rec.Op {
		case "open":
			if _, dup := j.entries[rec.Entry.TradeID]; dup {
				continue
			}
			e := rec.Entry
			j.entries[e.TradeID] = &e
			j.order = append(j.order, e.TradeID)
		case "close":
			if e, ok := j.entries[rec.Entry.TradeID]; ok && !e.Closed() {
				*e = rec.Entry
			}
		}
	}
	return sc.Err()
}
