package datagen

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/shpitdev/engager-tracker/internal/enrich"
	"github.com/shpitdev/engager-tracker/internal/util"
)

// APIError is a sanitized summary of a non-2xx provider response.
//
// Important: never include raw response bodies here (can leak PII/keys).
type APIError struct {
	Op         string
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint from the response body.
	Snippet string
}

func (e *APIError) Error() string {
	if e == nil {
		return "datagen api error"
	}
	parts := []string{
		fmt.Sprintf("datagen api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newAPIError(op string, resp *http.Response, body []byte) error {
	e := &APIError{Op: op}
	if resp != nil {
		e.StatusCode = resp.StatusCode
		e.Status = resp.Status
	}
	e.Snippet = redactAndTruncate(body)
	return e
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := util.RedactSecrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}

// classifyErr maps provider failures onto the pipeline's error taxonomy:
// 404 -> not found, 429/5xx and network trouble -> transient.
func classifyErr(err error) error {
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", enrich.ErrProfileNotFound, ae.Error())
		}
		if ae.StatusCode == http.StatusTooManyRequests || ae.StatusCode/100 == 5 {
			return &enrich.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &enrich.TransientError{Err: err}
	}
	return err
}
