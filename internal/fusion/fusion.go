// Package fusion is the single authoritative implementation of the
// signal-fusion policy: three independently fallible opinions in, one
// actionable decision out.
package fusion

import (
	"fmt"
	"math"
	"strings"
	"time"

	"options-signal-engine/internal/types"
)

const (
	// Base confidence tiers. ML and LLM agreement is the only thing that
	// moves the number; risk profile moves the action threshold instead.
	confidenceAgree    = 0.85
	confidenceDisagree = 0.65
)

// defaultThresholds are the EXECUTE_TRADE confidence thresholds per risk
// profile. Monotonic in strictness.
var defaultThresholds = map[types.RiskProfile]float64{
	types.RiskAggressive:   0.60,
	types.RiskModerate:     0.75,
	types.RiskConservative: 0.85,
}

// StrikeStepFunc returns the strike spacing for an index.
type StrikeStepFunc func(indexID string) float64

// Engine combines three opinions into one FusedDecision.
type Engine struct {
	maxLots    int
	thresholds map[types.RiskProfile]float64
	strikeStep StrikeStepFunc
}

// New builds a fusion engine. thresholds may override individual profiles;
// maxLots bounds position sizing and must be >= 1.
func New(maxLots int, thresholds map[string]float64, strikeStep StrikeStepFunc) *Engine {
	if maxLots < 1 {
		maxLots = 1
	}
	th := make(map[types.RiskProfile]float64, len(defaultThresholds))
	for p, v := range defaultThresholds {
		th[p] = v
	}
	for p, v := range thresholds {
		th[types.RiskProfile(p)] = v
	}
	if strikeStep == nil {
		strikeStep = func(string) float64 { return 100 }
	}
	return &Engine{maxLots: maxLots, thresholds: th, strikeStep: strikeStep}
}

// Threshold returns the EXECUTE_TRADE confidence threshold for a profile.
func (e *Engine) Threshold(profile types.RiskProfile) float64 {
	if th, ok := e.thresholds[profile]; ok {
		return th
	}
	return e.thresholds[types.RiskModerate]
}

// Fuse reduces exactly three opinions (indicator, ML, LLM in any order) to a
// single decision. It never panics outward: an internal fault yields an
// ERROR decision with confidence 0.
func (e *Engine) Fuse(indexID string, opinions [3]types.Opinion, profile types.RiskProfile) (decision types.FusedDecision) {
	defer func() {
		if r := recover(); r != nil {
			decision = types.FusedDecision{
				IndexID:     indexID,
				Action:      types.ActionError,
				Direction:   types.Wait,
				Confidence:  0,
				OptionType:  types.OptionNone,
				Rationale:   fmt.Sprintf("fusion internal error: %v", r),
				Opinions:    opinions,
				RiskProfile: profile,
				DecidedAt:   time.Now(),
			}
		}
	}()

	ind := pick(opinions, types.SourceIndicator)
	ml := pick(opinions, types.SourceML)
	llm := pick(opinions, types.SourceLLM)

	// Step 1: the two numeric sources disagreeing is insufficient evidence,
	// no matter what the LLM says.
	direction := types.Wait
	conflict := ind.Direction != types.Wait && ml.Direction != types.Wait && ind.Direction != ml.Direction
	if !conflict {
		// Step 2: ML drives when directional, indicator otherwise. The LLM
		// never sets direction on its own; it only calibrates confidence.
		switch {
		case ml.Direction != types.Wait:
			direction = ml.Direction
		case ind.Direction != types.Wait:
			direction = ind.Direction
		}
	}

	// Step 3: two-tier confidence on ML/LLM agreement.
	confidence := confidenceDisagree
	if ml.Direction == llm.Direction {
		confidence = confidenceAgree
	}

	// Step 4: action selection against the risk-profile threshold.
	action := types.ActionWait
	if direction != types.Wait {
		if confidence >= e.Threshold(profile) {
			action = types.ActionExecute
		} else {
			action = types.ActionSuggest
		}
	}

	d := types.FusedDecision{
		IndexID:     indexID,
		Action:      action,
		Direction:   direction,
		Confidence:  confidence,
		OptionType:  optionTypeFor(direction),
		OrderType:   "MARKET",
		Opinions:    opinions,
		RiskProfile: profile,
		DecidedAt:   time.Now(),
	}

	if direction == types.Wait {
		d.Lots = 0
		d.Rationale = e.rationale(ind, ml, llm, conflict, direction)
		return d
	}

	// Step 5: confidence-scaled lot sizing, bounded.
	lots := int(math.Floor(confidence * 3))
	if lots < 1 {
		lots = 1
	}
	if lots > e.maxLots {
		lots = e.maxLots
	}
	d.Lots = lots

	// Step 6: price levels come from the opinion that set the direction
	// (ML priority). A decision with no entry price cannot execute.
	winner := ml
	if ml.Direction == types.Wait {
		winner = ind
	}
	if winner.Levels == nil || winner.Levels.Entry <= 0 {
		if d.Action == types.ActionExecute {
			d.Action = types.ActionSuggest
		}
		d.Rationale = e.rationale(ind, ml, llm, conflict, direction) + "; no entry level available, not auto-executable"
		return d
	}

	lv := *winner.Levels
	d.Entry = ptr(lv.Entry)
	d.StopLoss = ptr(lv.StopLoss)
	d.Target = ptr(lv.Target)
	if lv.Strike > 0 {
		d.Strike = ptr(lv.Strike)
	} else {
		d.Strike = ptr(e.nearbyStrike(indexID, direction, lv.Entry))
	}
	d.Rationale = e.rationale(ind, ml, llm, conflict, direction)
	return d
}

// nearbyStrike rounds the entry to the index's strike grid and steps one
// strike out of the money, mirroring the observed strike selection.
func (e *Engine) nearbyStrike(indexID string, dir types.Direction, entry float64) float64 {
	step := e.strikeStep(indexID)
	atm := math.Round(entry/step) * step
	if dir == types.BuyCall {
		return atm + step
	}
	return atm - step
}

func (e *Engine) rationale(ind, ml, llm types.Opinion, conflict bool, dir types.Direction) string {
	if conflict {
		return fmt.Sprintf("indicator (%s %.2f) and ML (%s %.2f) disagree; insufficient evidence, waiting",
			ind.Direction, ind.Confidence, ml.Direction, ml.Confidence)
	}
	parts := []string{
		fmt.Sprintf("Indicators: %s (%.2f)", ind.Direction, ind.Confidence),
		fmt.Sprintf("ML: %s (%.2f)", ml.Direction, ml.Confidence),
		fmt.Sprintf("AI: %s (%.2f)", llm.Direction, llm.Confidence),
	}
	if dir == types.Wait {
		return "No directional signal from numeric sources. " + strings.Join(parts, ", ")
	}
	if ind.Direction == ml.Direction && ml.Direction == llm.Direction {
		return fmt.Sprintf("All sources agree on %s", dir)
	}
	return fmt.Sprintf("Mixed signals: %s. Choosing %s", strings.Join(parts, ", "), dir)
}

func pick(opinions [3]types.Opinion, s types.Source) types.Opinion {
	for _, o := range opinions {
		if o.Source == s {
			return o
		}
	}
	// A missing source is treated like a failed one.
	return types.Opinion{Source: s, Direction: types.Wait, Confidence: 0.5, Rationale: "source missing"}
}

func optionTypeFor(dir types.Direction) types.OptionType {
	switch dir {
	case types.BuyCall:
		return types.OptionCall
	case types.BuyPut:
		return types.OptionPut
	default:
		return types.OptionNone
	}
}

func ptr(v float64) *float64 { return &v }
