package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"options-signal-engine/internal/types"
)

// IndexSpec describes one tradable index.
type IndexSpec struct {
	LotSize    int     `yaml:"lot_size"`
	StrikeStep float64 `yaml:"strike_step"`
}

type Config struct {
	Mode       string `yaml:"mode"`        // AUTO, MANUAL or PAPER
	DataSource string `yaml:"data_source"` // MOCK or LIVE

	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Indices map[string]IndexSpec `yaml:"indices"`

	Fusion struct {
		MaxLots    int                `yaml:"max_lots"`
		Thresholds map[string]float64 `yaml:"thresholds"` // risk profile -> execute threshold
	} `yaml:"fusion"`

	Execution struct {
		DedupWindowSeconds int `yaml:"dedup_window_seconds"`
	} `yaml:"execution"`

	Chain struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"chain"`

	Scorers struct {
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		IndicatorEndpoint string `yaml:"indicator_endpoint"`
		MLEndpoint        string `yaml:"ml_endpoint"`
	} `yaml:"scorers"`

	LLM struct {
		Provider    string  `yaml:"provider"` // OPENAI or NOOP
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
		Schema      string  `yaml:"schema"`
	} `yaml:"llm"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`

	Journal struct {
		Dir string `yaml:"dir"`
	} `yaml:"journal"`

	PipelineDeadlineSeconds int `yaml:"pipeline_deadline_seconds"`
}

func (c *Config) Validate() error {
	switch types.ExecutionMode(c.Mode) {
	case types.ModeAuto, types.ModeManual, types.ModePaper:
	default:
		return fmt.Errorf("invalid mode '%s': must be 'AUTO', 'MANUAL' or 'PAPER'", c.Mode)
	}
	if c.DataSource != "MOCK" && c.DataSource != "LIVE" {
		return fmt.Errorf("invalid data_source '%s': must be 'MOCK' or 'LIVE'", c.DataSource)
	}
	if len(c.Indices) == 0 {
		return fmt.Errorf("indices cannot be empty")
	}
	for id, spec := range c.Indices {
		if spec.LotSize <= 0 {
			return fmt.Errorf("indices.%s.lot_size must be positive, got %d", id, spec.LotSize)
		}
	}
	if c.Fusion.MaxLots <= 0 {
		return fmt.Errorf("fusion.max_lots must be positive, got %d", c.Fusion.MaxLots)
	}
	for profile, th := range c.Fusion.Thresholds {
		switch types.RiskProfile(profile) {
		case types.RiskAggressive, types.RiskModerate, types.RiskConservative:
		default:
			return fmt.Errorf("fusion.thresholds has unknown risk profile '%s'", profile)
		}
		if th <= 0 || th > 1 {
			return fmt.Errorf("fusion.thresholds.%s must be in (0,1], got %.2f", profile, th)
		}
	}
	return nil
}

// Durations derived from integer-second yaml keys.

func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Execution.DedupWindowSeconds) * time.Second
}

func (c *Config) ChainTTL() time.Duration {
	return time.Duration(c.Chain.TTLSeconds) * time.Second
}

func (c *Config) ScorerTimeout() time.Duration {
	return time.Duration(c.Scorers.TimeoutSeconds) * time.Second
}

func (c *Config) PipelineDeadline() time.Duration {
	return time.Duration(c.PipelineDeadlineSeconds) * time.Second
}

// LotSize returns the contract multiple for an index, defaulting to the
// NIFTY lot when the index is unknown.
func (c *Config) LotSize(indexID string) int {
	if spec, ok := c.Indices[indexID]; ok {
		return spec.LotSize
	}
	return 50
}

// StrikeStep returns the strike spacing for an index, defaulting to 100.
func (c *Config) StrikeStep(indexID string) float64 {
	if spec, ok := c.Indices[indexID]; ok && spec.StrikeStep > 0 {
		return spec.StrikeStep
	}
	return 100
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = string(types.ModePaper)
	}
	if c.DataSource == "" {
		c.DataSource = "MOCK"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Indices) == 0 {
		c.Indices = map[string]IndexSpec{
			"NIFTY":      {LotSize: 50, StrikeStep: 100},
			"BANKNIFTY":  {LotSize: 25, StrikeStep: 100},
			"FINNIFTY":   {LotSize: 40, StrikeStep: 50},
			"SENSEX":     {LotSize: 10, StrikeStep: 100},
			"MIDCPNIFTY": {LotSize: 75, StrikeStep: 25},
		}
	}
	if c.Fusion.MaxLots == 0 {
		c.Fusion.MaxLots = 5
	}
	if c.Fusion.Thresholds == nil {
		c.Fusion.Thresholds = map[string]float64{}
	}
	setThreshold := func(p types.RiskProfile, v float64) {
		if _, ok := c.Fusion.Thresholds[string(p)]; !ok {
			c.Fusion.Thresholds[string(p)] = v
		}
	}
	setThreshold(types.RiskAggressive, 0.60)
	setThreshold(types.RiskModerate, 0.75)
	setThreshold(types.RiskConservative, 0.85)
	if c.Execution.DedupWindowSeconds == 0 {
		c.Execution.DedupWindowSeconds = 300
	}
	if c.Chain.TTLSeconds == 0 {
		c.Chain.TTLSeconds = 300
	}
	if c.Scorers.TimeoutSeconds == 0 {
		c.Scorers.TimeoutSeconds = 10
	}
	if c.PipelineDeadlineSeconds == 0 {
		c.PipelineDeadlineSeconds = 30
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "NOOP"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "journal"
	}
}
