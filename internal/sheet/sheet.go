// Package sheet reads post URLs out of a public spreadsheet's CSV export.
package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var activityIDRe = regexp.MustCompile(`(?:activity|ugcPost)[:\-](\d+)`)

// Fetcher downloads the sheet via the public CSV export endpoint; no
// credentials needed for link-shared sheets.
type Fetcher struct {
	// BaseURL defaults to the public docs host; overridable for tests.
	BaseURL string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

func (f *Fetcher) base() string {
	if f.BaseURL != "" {
		return strings.TrimRight(f.BaseURL, "/")
	}
	return "https://docs.google.com"
}

func (f *Fetcher) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// FetchPostURLs downloads the sheet and returns every cell value that looks
// like a post URL with a parseable activity ID, scanning all rows and
// columns.
func (f *Fetcher) FetchPostURLs(ctx context.Context, spreadsheetID string) ([]string, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	u := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv&gid=0", f.base(), spreadsheetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch spreadsheet: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch spreadsheet: unexpected status %s", resp.Status)
	}

	cr := csv.NewReader(resp.Body)
	cr.FieldsPerRecord = -1

	var urls []string
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse spreadsheet csv: %w", err)
		}
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if strings.Contains(cell, "linkedin.com") && activityIDRe.MatchString(cell) {
				urls = append(urls, cell)
			}
		}
	}
	return urls, nil
}

// ExtractActivityID pulls the numeric activity ID out of a post URL.
func ExtractActivityID(url string) (string, bool) {
	m := activityIDRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// UniqueActivityIDs maps URLs to activity IDs, dropping duplicates while
// preserving first-seen order.
func UniqueActivityIDs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, u := range urls {
		id, ok := ExtractActivityID(u)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
