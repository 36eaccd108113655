package oracle

import (
	"context"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"arps/internal/logging"
	"arps/internal/schema"
	"arps/internal/usage"
)

// =============================================================================
// REPLAY BACKEND
// =============================================================================
//
// Replay serves canned replies keyed by Options.Label. Replies for a label are
// consumed in order; the last one repeats once the queue is drained so a
// fixture can back any number of runs.
//
//	replies:
//	  context_weaver:
//	    - thoughts: ["Support thread mentions a competitor."]
//	      answer: '{"primaryDriver": "..."}'
//	  policy_enforcer:
//	    - error: quota

// Reply is one canned oracle answer.
type Reply struct {
	Thoughts []string `yaml:"thoughts,omitempty"`
	Answer   string   `yaml:"answer,omitempty"`
	// Error simulates a failure: auth, quota, network or not_configured.
	Error string `yaml:"error,omitempty"`
}

// Fixture is the on-disk replay document.
type Fixture struct {
	Replies map[string][]Reply `yaml:"replies"`
}

// Replay implements Oracle from a Fixture.
type Replay struct {
	mu      sync.Mutex
	replies map[string][]Reply
	calls   []Call
}

// Call records one Generate invocation.
type Call struct {
	Label  string
	Prompt string
	Opts   Options
}

// NewReplay creates an empty replay backend.
func NewReplay() *Replay {
	return &Replay{replies: make(map[string][]Reply)}
}

// LoadReplay reads a YAML fixture file.
func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read replay fixture %s", path), ErrNotConfigured)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse replay fixture %s", path), ErrNotConfigured)
	}
	r := NewReplay()
	for label, replies := range fx.Replies {
		r.Add(label, replies...)
	}
	logging.Oracle("replay fixture loaded: %s (%d labels)", path, len(fx.Replies))
	return r, nil
}

// Add queues replies for label.
func (r *Replay) Add(label string, replies ...Reply) *Replay {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[label] = append(r.replies[label], replies...)
	return r
}

// Calls returns the invocations seen so far.
func (r *Replay) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Generate returns the next reply queued for opts.Label.
func (r *Replay) Generate(ctx context.Context, prompt string, _ schema.Shape, opts Options) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, ErrNetwork, "%s", opts.Label)
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{Label: opts.Label, Prompt: prompt, Opts: opts})
	queue := r.replies[opts.Label]
	if len(queue) == 0 {
		r.mu.Unlock()
		return nil, errors.WithHint(
			unavailable(errors.Newf("no replay reply for %q", opts.Label), ErrNotConfigured, "replay"),
			"add a reply for this label to the replay fixture")
	}
	reply := queue[0]
	if len(queue) > 1 {
		r.replies[opts.Label] = queue[1:]
	}
	r.mu.Unlock()

	tracker := usage.FromContext(ctx)
	if reply.Error != "" {
		if tracker != nil {
			tracker.TrackError(opts.Label)
		}
		return nil, simulatedError(reply.Error, opts.Label)
	}
	frags := make([]Fragment, 0, len(reply.Thoughts)+1)
	thoughts := 0
	if opts.IncludeThoughts {
		for _, t := range reply.Thoughts {
			frags = append(frags, Thought(t))
			thoughts += estimateTokens(t)
		}
	}
	frags = append(frags, Answer(reply.Answer))
	if tracker != nil {
		tracker.Track(opts.Label, opts.Model, estimateTokens(prompt), estimateTokens(reply.Answer), thoughts)
	}
	return frags, nil
}

func simulatedError(kind, label string) error {
	base := errors.Newf("replayed %s failure", kind)
	switch kind {
	case "auth":
		return unavailable(base, ErrAuth, "%s", label)
	case "quota":
		return unavailable(base, ErrQuota, "%s", label)
	case "not_configured":
		return unavailable(base, ErrNotConfigured, "%s", label)
	default:
		return unavailable(base, ErrNetwork, "%s", label)
	}
}

// estimateTokens approximates a token count at four bytes per token.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
