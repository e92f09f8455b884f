// Package deliver sends enriched leads downstream in size-bounded batches.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/util"
)

// Sender delivers one batch of lead records in a single call.
type Sender interface {
	Send(ctx context.Context, batch []lead.Record) error
}

// HTTPError is a sanitized summary of a non-2xx webhook response. The status
// code drives retry classification.
type HTTPError struct {
	StatusCode int
	Status     string

	// Snippet is a redacted, truncated hint from the response body.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "webhook http error"
	}
	s := "webhook error: status=" + strings.TrimSpace(e.Status)
	if strings.TrimSpace(e.Snippet) != "" {
		s += " body=" + strings.TrimSpace(e.Snippet)
	}
	return s
}

// WebhookSender posts batches as JSON arrays to a fixed webhook URL.
type WebhookSender struct {
	URL string

	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
}

func (s *WebhookSender) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func (s *WebhookSender) Send(ctx context.Context, batch []lead.Record) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Snippet:    snippet(b),
		}
	}
	return nil
}

func snippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
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
