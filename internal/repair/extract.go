package repair

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrEmptyResponse is returned when the oracle answered with blank text.
	ErrEmptyResponse = errors.New("empty oracle response")
	// ErrMissingJSON is returned when no JSON object can be located.
	ErrMissingJSON = errors.New("no JSON object in oracle response")
)

// fencePattern matches the first ``` or ```json fenced block, non-greedy.
var fencePattern = regexp.MustCompile("```(?:json|JSON)?\\s*([\\s\\S]*?)```")

// ExtractJSON locates the JSON payload in raw oracle text.
//
//   - a fenced block (``` or ```json) wins, and only its interior is returned;
//   - otherwise trimmed text starting with '{' is returned as-is;
//   - anything else yields ErrMissingJSON (ErrEmptyResponse for blank text).
func ExtractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		inner := strings.TrimSpace(m[1])
		if inner == "" {
			return "", errors.Wrap(ErrMissingJSON, "fenced block is empty")
		}
		return inner, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	return "", ErrMissingJSON
}
