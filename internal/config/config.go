package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"arps/internal/agents"
	"arps/internal/agents/allocator"
	"arps/internal/agents/contextweaver"
	"arps/internal/agents/enforcer"
	"arps/internal/oracle"
	"arps/internal/pipeline"
	"arps/internal/types"
	"arps/internal/usage"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "arps.yaml"

// Config holds all arps configuration.
type Config struct {
	// Oracle backend
	LLM LLMConfig `yaml:"llm"`

	// Per-stage generation parameters
	Stages StagesConfig `yaml:"stages"`

	// Orchestrator behaviour
	Pipeline PipelineConfig `yaml:"pipeline"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the reasoning oracle.
type LLMConfig struct {
	Provider          string  `yaml:"provider"` // gemini, replay
	APIKey            string  `yaml:"api_key"`
	FlashModel        string  `yaml:"flash_model"`
	ProModel          string  `yaml:"pro_model"`
	UsePro            bool    `yaml:"use_pro"` // pro model for stages A and B
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	ReplayFile        string  `yaml:"replay_file"`
}

// StageConfig tunes one stage.
type StageConfig struct {
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	IncludeThoughts bool    `yaml:"include_thoughts"`
	ThinkingBudget  int32   `yaml:"thinking_budget,omitempty"`
}

// StagesConfig holds the three stage configs.
type StagesConfig struct {
	ContextWeaver     StageConfig `yaml:"context_weaver"`
	ResourceAllocator StageConfig `yaml:"resource_allocator"`
	PolicyEnforcer    StageConfig `yaml:"policy_enforcer"`

	// Token limit for the allocator in conflict mode.
	ConflictMaxOutputTokens int32 `yaml:"conflict_max_output_tokens"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	PolicyFailMode  string                  `yaml:"policy_fail_mode"` // open, closed, rules
	Liability       pipeline.LiabilityModel `yaml:"liability"`
	AuditSummaryLen int                     `yaml:"audit_summary_len"`
}

// ServerConfig configures `arps serve`.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	MaxConcurrentRuns int64  `yaml:"max_concurrent_runs"`
	MaxConnections    int    `yaml:"max_connections"`
	ReadHeaderTimeout string `yaml:"read_header_timeout"`
}

func fromSettings(s agents.Settings) StageConfig {
	return StageConfig{
		Temperature:     s.Temperature,
		MaxOutputTokens: s.MaxOutputTokens,
		IncludeThoughts: s.IncludeThoughts,
		ThinkingBudget:  s.ThinkingBudget,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          string(oracle.ProviderGemini),
			FlashModel:        oracle.DefaultFlashModel,
			ProModel:          oracle.DefaultProModel,
			Timeout:           "120s",
			RequestsPerSecond: 2,
		},

		Stages: StagesConfig{
			ContextWeaver:           fromSettings(contextweaver.DefaultSettings()),
			ResourceAllocator:       fromSettings(allocator.DefaultSettings()),
			PolicyEnforcer:          fromSettings(enforcer.DefaultSettings()),
			ConflictMaxOutputTokens: allocator.DefaultConflictMaxOutputTokens,
		},

		Pipeline: PipelineConfig{
			PolicyFailMode:  string(types.FailOpen),
			Liability:       pipeline.DefaultLiability,
			AuditSummaryLen: pipeline.DefaultAuditSummaryLen,
		},

		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			MaxConcurrentRuns: 4,
			MaxConnections:    64,
			ReadHeaderTimeout: "10s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults (plus environment) when the file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if v, ok := os.LookupEnv("GEMINI_USE_PRO"); ok {
		c.LLM.UsePro = v == "1"
	}
	if p := os.Getenv("ARPS_ORACLE_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if f := os.Getenv("ARPS_REPLAY_FILE"); f != "" {
		c.LLM.ReplayFile = f
		if os.Getenv("ARPS_ORACLE_PROVIDER") == "" {
			c.LLM.Provider = string(oracle.ProviderReplay)
		}
	}
	if m := os.Getenv("ARPS_POLICY_FAIL_MODE"); m != "" {
		c.Pipeline.PolicyFailMode = m
	}
	if addr := os.Getenv("ARPS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// GetLLMTimeout returns the oracle timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetReadHeaderTimeout returns the HTTP read-header timeout as a duration.
func (c *Config) GetReadHeaderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadHeaderTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ValidProviders lists the supported oracle backends.
var ValidProviders = []string{string(oracle.ProviderGemini), string(oracle.ProviderReplay)}

// ValidFailModes lists the accepted policy fail modes.
var ValidFailModes = []string{string(types.FailOpen), string(types.FailClosed), string(types.FailRules)}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	switch oracle.Provider(c.LLM.Provider) {
	case oracle.ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY)")
		}
	case oracle.ProviderReplay:
		if c.LLM.ReplayFile == "" {
			return fmt.Errorf("replay provider needs llm.replay_file (or ARPS_REPLAY_FILE)")
		}
	}

	if !contains(ValidFailModes, c.Pipeline.PolicyFailMode) {
		return fmt.Errorf("invalid policy_fail_mode: %s (valid: %v)", c.Pipeline.PolicyFailMode, ValidFailModes)
	}
	if c.Pipeline.Liability.Floor < 0 || c.Pipeline.Liability.Multiplier < 0 {
		return fmt.Errorf("liability floor and multiplier must not be negative")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("server.max_concurrent_runs must be at least 1")
	}
	return nil
}

// ModelFor returns the model for the stage with the given label. The policy
// enforcer always runs on the flash model.
func (c *Config) ModelFor(stage string) string {
	if c.LLM.UsePro && stage != enforcer.Label {
		return c.LLM.ProModel
	}
	return c.LLM.FlashModel
}

func (c *Config) settings(label string, s StageConfig) agents.Settings {
	return agents.Settings{
		Model:           c.ModelFor(label),
		Temperature:     s.Temperature,
		MaxOutputTokens: s.MaxOutputTokens,
		IncludeThoughts: s.IncludeThoughts,
		ThinkingBudget:  s.ThinkingBudget,
	}
}

// OracleConfig returns the backend settings for oracle.New.
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		Provider:          oracle.Provider(c.LLM.Provider),
		APIKey:            c.LLM.APIKey,
		DefaultModel:      c.LLM.FlashModel,
		Timeout:           c.GetLLMTimeout(),
		RequestsPerSecond: c.LLM.RequestsPerSecond,
		ReplayFile:        c.LLM.ReplayFile,
	}
}

// PipelineConfig returns the orchestrator settings around o.
func (c *Config) PipelineConfig(o oracle.Oracle) pipeline.Config {
	return pipeline.Config{
		Oracle:                  o,
		Weaver:                  c.settings(contextweaver.Label, c.Stages.ContextWeaver),
		Allocator:               c.settings(allocator.Label, c.Stages.ResourceAllocator),
		Enforcer:                c.settings(enforcer.Label, c.Stages.PolicyEnforcer),
		ConflictMaxOutputTokens: c.Stages.ConflictMaxOutputTokens,
		FailMode:                types.FailMode(c.Pipeline.PolicyFailMode),
		Liability:               c.Pipeline.Liability,
		AuditSummaryLen:         c.Pipeline.AuditSummaryLen,
		Usage:                   usage.NewTracker(),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
