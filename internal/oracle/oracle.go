// Package oracle is the boundary to the reasoning oracle: a language-model
// completion service that answers a prompt under a response shape and may
// also stream back reasoning ("thought") fragments.
package oracle

import (
	"context"
	"strings"

	"arps/internal/schema"
)

// FragmentKind tags a Fragment.
type FragmentKind int

const (
	FragmentAnswer FragmentKind = iota
	FragmentThought
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentAnswer:
		return "answer"
	case FragmentThought:
		return "thought"
	default:
		return "unknown"
	}
}

// Fragment is one piece of an oracle reply: either answer text or reasoning
// trace text. Build values with Answer and Thought.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// Answer returns an answer fragment.
func Answer(text string) Fragment { return Fragment{Kind: FragmentAnswer, Text: text} }

// Thought returns a reasoning-trace fragment.
func Thought(text string) Fragment { return Fragment{Kind: FragmentThought, Text: text} }

// Options are per-call generation settings.
type Options struct {
	// Label names the calling stage in logs and replay fixtures.
	Label           string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	IncludeThoughts bool
	// ThinkingBudget caps reasoning tokens; 0 leaves the backend default.
	ThinkingBudget int32
}

// Oracle generates fragments for a prompt constrained to shape.
// Implementations must be safe for concurrent use.
type Oracle interface {
	Generate(ctx context.Context, prompt string, shape schema.Shape, opts Options) ([]Fragment, error)
}

// Response is a reply split into answer text and reasoning trace.
type Response struct {
	Text  string
	Trace string
}

// Invoke calls o and splits the fragments. Thought text never reaches Text.
func Invoke(ctx context.Context, o Oracle, prompt string, shape schema.Shape, opts Options) (Response, error) {
	if o == nil {
		return Response{}, notConfigured("no backend")
	}
	frags, err := o.Generate(ctx, prompt, shape, opts)
	if err != nil {
		return Response{}, err
	}
	return Split(frags), nil
}

// Split concatenates answer fragments into Text and thought fragments into
// Trace, preserving order within each.
func Split(frags []Fragment) Response {
	var text, trace strings.Builder
	for _, f := range frags {
		switch f.Kind {
		case FragmentAnswer:
			text.WriteString(f.Text)
		case FragmentThought:
			if trace.Len() > 0 && f.Text != "" {
				trace.WriteString("\n")
			}
			trace.WriteString(f.Text)
		}
	}
	return Response{Text: text.String(), Trace: trace.String()}
}
