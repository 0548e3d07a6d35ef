package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"options-signal-engine/internal/store"
	"options-signal-engine/internal/trace"
	"options-signal-engine/internal/types"
)

// LLMScorer asks a chat-completion model for a directional read. The model
// advises only; it never carries price levels, and an unusable reply
// degrades to WAIT rather than failing the request.
type LLMScorer struct {
	cfg *store.Config
}

func NewLLMScorer(cfg *store.Config) *LLMScorer {
	return &LLMScorer{cfg: cfg}
}

func (s *LLMScorer) Source() types.Source { return types.SourceLLM }

func (s *LLMScorer) Evaluate(ctx context.Context, snap types.MarketSnapshot, ec types.EvalContext) (types.Opinion, error) {
	ctx, span := trace.StartSpan(ctx, "llm-api-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return types.Opinion{}, errors.New("OPENAI_API_KEY missing")
	}

	state := map[string]any{
		"index":        ec.IndexID,
		"risk_profile": ec.RiskProfile,
		"snapshot":     snap,
	}
	sb, _ := json.Marshal(state)
	prompt := fmt.Sprintf("You will receive market state as JSON. Respond ONLY with compact JSON matching the schema.\nSchema:%s\nState:%s", s.cfg.LLM.Schema, string(sb))

	body := map[string]any{
		"model":       s.cfg.LLM.Model,
		"messages":    []map[string]string{{"role": "system", "content": s.cfg.LLM.System}, {"role": "user", "content": prompt}},
		"temperature": s.cfg.LLM.Temperature,
		"max_tokens":  s.cfg.LLM.MaxTokens,
	}
	bb, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bb))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.Opinion{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return types.Opinion{}, fmt.Errorf("llm http %d", resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return types.Opinion{}, err
	}
	if len(r.Choices) == 0 {
		return types.Opinion{}, errors.New("no choices")
	}

	out := strings.TrimSpace(r.Choices[0].Message.Content)
	out = strings.TrimPrefix(out, "```json")
	out = strings.Trim(out, "` \n")

	var reply struct {
		Direction  string  `json:"direction"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		return types.Opinion{
			Source:     types.SourceLLM,
			Direction:  types.Wait,
			Confidence: 0.5,
			Rationale:  "invalid_json",
			ProducedAt: time.Now(),
		}, nil
	}

	op := types.Opinion{
		Source:     types.SourceLLM,
		Direction:  parseDirection(reply.Direction),
		Confidence: clamp01(reply.Confidence),
		Rationale:  reply.Rationale,
		ProducedAt: time.Now(),
	}
	if op.Rationale == "" {
		op.Rationale = "llm advisory"
	}
	return op, nil
}

// NoopScorer stands in for a disabled source so fusion still sees all three.
type NoopScorer struct {
	Src types.Source
}

func (n NoopScorer) Source() types.Source { return n.Src }

func (n NoopScorer) Evaluate(ctx context.Context, snap types.MarketSnapshot, ec types.EvalContext) (types.Opinion, error) {
	return types.Opinion{
		Source:     n.Src,
		Direction:  types.Wait,
		Confidence: 0.5,
		Rationale:  "source disabled",
		ProducedAt: time.Now(),
	}, nil
}
