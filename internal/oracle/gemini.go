package oracle

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"arps/internal/logging"
	"arps/internal/schema"
	"arps/internal/usage"
)

// =============================================================================
// GOOGLE GENAI BACKEND
// =============================================================================

// DefaultFlashModel and DefaultProModel are used when the config leaves the
// model names empty.
const (
	DefaultFlashModel = "gemini-3-flash-preview"
	DefaultProModel   = "gemini-3-pro-preview"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string
	// DefaultModel is used when Options.Model is empty.
	DefaultModel string
	// Timeout bounds a single Generate call; 0 means no per-call bound.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing calls; 0 disables pacing.
	RequestsPerSecond float64
}

// Gemini implements Oracle on google.golang.org/genai.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewGemini creates a Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, notConfigured("GEMINI_API_KEY is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Mark(errors.Mark(errors.Wrap(err, "create GenAI client"), ErrNotConfigured), ErrUnavailable)
	}

	model := cfg.DefaultModel
	if model == "" {
		model = DefaultFlashModel
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Gemini{client: client, model: model, timeout: cfg.Timeout, limiter: limiter}, nil
}

// Generate sends prompt with a JSON response schema derived from shape and
// returns the candidate's parts as fragments.
func (g *Gemini) Generate(ctx context.Context, prompt string, shape schema.Shape, opts Options) ([]Fragment, error) {
	model := opts.Model
	if model == "" {
		model = g.model
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, unavailable(err, ErrNetwork, "%s: rate limiter", opts.Label)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(opts.Temperature),
		MaxOutputTokens:  opts.MaxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   ToGenAISchema(shape),
	}
	if opts.IncludeThoughts {
		tc := &genai.ThinkingConfig{IncludeThoughts: true}
		if opts.ThinkingBudget > 0 {
			tc.ThinkingBudget = genai.Ptr(opts.ThinkingBudget)
		}
		cfg.ThinkingConfig = tc
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	tracker := usage.FromContext(ctx)
	if err != nil {
		logging.OracleError("%s: generate failed on %s: %v", opts.Label, model, err)
		if tracker != nil {
			tracker.TrackError(opts.Label)
		}
		return nil, classify(err, opts.Label)
	}
	if tracker != nil && resp.UsageMetadata != nil {
		um := resp.UsageMetadata
		tracker.Track(opts.Label, model, int(um.PromptTokenCount), int(um.CandidatesTokenCount), int(um.ThoughtsTokenCount))
	}

	frags := fragmentsFromResponse(resp)
	logging.OracleDebug("%s: %s answered %d fragments in %s", opts.Label, model, len(frags), time.Since(start))
	return frags, nil
}

// fragmentsFromResponse splits the first candidate's parts on Part.Thought.
func fragmentsFromResponse(resp *genai.GenerateContentResponse) []Fragment {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var frags []Fragment
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Text == "" {
			continue
		}
		if p.Thought {
			frags = append(frags, Thought(p.Text))
		} else {
			frags = append(frags, Answer(p.Text))
		}
	}
	return frags
}

// ToGenAISchema converts a shape into a GenAI response schema.
func ToGenAISchema(shape schema.Shape) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(shape.Fields)),
	}
	for _, f := range shape.Fields {
		out.Properties[f.Name] = fieldSchema(f)
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	return out
}

func fieldSchema(f schema.Field) *genai.Schema {
	s := &genai.Schema{Description: f.Description}
	switch f.Kind {
	case schema.KindNumber:
		s.Type = genai.TypeNumber
	case schema.KindBool:
		s.Type = genai.TypeBoolean
	case schema.KindStringList:
		s.Type = genai.TypeArray
		s.Items = &genai.Schema{Type: genai.TypeString}
	case schema.KindObjectList:
		s.Type = genai.TypeArray
		if f.Items != nil {
			s.Items = ToGenAISchema(*f.Items)
		} else {
			s.Items = &genai.Schema{Type: genai.TypeObject}
		}
	default:
		s.Type = genai.TypeString
		if len(f.Enum) > 0 {
			s.Format = "enum"
			s.Enum = append([]string(nil), f.Enum...)
		}
	}
	return s
}
