package oracle

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"google.golang.org/genai"
)

// ErrUnavailable marks every failure that means the oracle could not answer.
// Callers check it with errors.Is; the sub-marks below narrow the cause.
var ErrUnavailable = errors.New("oracle unavailable")

var (
	ErrNotConfigured = errors.New("oracle not configured")
	ErrAuth          = errors.New("oracle rejected credentials")
	ErrQuota         = errors.New("oracle quota exhausted")
	ErrNetwork       = errors.New("oracle unreachable")
)

// unavailable marks err with ErrUnavailable and the given cause class.
func unavailable(err error, class error, format string, args ...interface{}) error {
	err = errors.Wrapf(err, format, args...)
	err = errors.Mark(err, class)
	return errors.Mark(err, ErrUnavailable)
}

// classify maps a backend error onto the taxonomy.
func classify(err error, label string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return errors.WithHint(unavailable(err, ErrAuth, "%s", label), "check GEMINI_API_KEY")
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return errors.WithHint(unavailable(err, ErrQuota, "%s", label), "retry later or lower llm.requests_per_second")
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "permission_denied") || strings.Contains(msg, "unauthenticated"):
		return errors.WithHint(unavailable(err, ErrAuth, "%s", label), "check GEMINI_API_KEY")
	case strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota") || strings.Contains(msg, "429"):
		return errors.WithHint(unavailable(err, ErrQuota, "%s", label), "retry later or lower llm.requests_per_second")
	default:
		return unavailable(err, ErrNetwork, "%s", label)
	}
}

// notConfigured builds the error returned when no backend can be built.
func notConfigured(reason string) error {
	err := errors.Mark(errors.Newf("oracle not configured: %s", reason), ErrNotConfigured)
	return errors.WithHint(errors.Mark(err, ErrUnavailable), "set GEMINI_API_KEY or use llm.provider: replay")
}
