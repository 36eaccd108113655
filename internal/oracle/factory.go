package oracle

import (
	"context"
	"time"

	"arps/internal/logging"
)

// Provider names a backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderReplay Provider = "replay"
)

// Config selects and configures a backend.
type Config struct {
	Provider          Provider
	APIKey            string
	DefaultModel      string
	Timeout           time.Duration
	RequestsPerSecond float64
	ReplayFile        string
}

// New builds the backend named by cfg.Provider. The result is created once at
// startup and shared by all runs.
func New(ctx context.Context, cfg Config) (Oracle, error) {
	switch cfg.Provider {
	case ProviderReplay:
		if cfg.ReplayFile == "" {
			return nil, notConfigured("llm.replay_file is empty")
		}
		return LoadReplay(cfg.ReplayFile)
	case ProviderGemini, "":
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:            cfg.APIKey,
			DefaultModel:      cfg.DefaultModel,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		logging.Oracle("gemini backend ready (default model %s)", g.model)
		return g, nil
	default:
		return nil, notConfigured("unknown provider " + string(cfg.Provider))
	}
}
