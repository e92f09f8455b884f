package deliver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shpitdev/engager-tracker/internal/lead"
)

// FailedLeadsFile persists undelivered leads as a JSON document so an
// operator can inspect and re-send them.
type FailedLeadsFile struct {
	path string
}

type failedDoc struct {
	Leads       []lead.Record `json:"failed_leads"`
	LastUpdated string        `json:"last_updated"`
}

func NewFailedLeadsFile(path string) *FailedLeadsFile {
	return &FailedLeadsFile{path: path}
}

// Record appends the batch's leads to the document. Unlike the ledger, a
// corrupt existing file is replaced rather than fatal: the leads were never
// delivered, so they will simply be retried on the next run anyway.
func (f *FailedLeadsFile) Record(_ context.Context, leads []*lead.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	var doc failedDoc
	if b, err := os.ReadFile(f.path); err == nil {
		_ = json.Unmarshal(b, &doc)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read failed-leads file %s: %w", f.path, err)
	}

	for _, l := range leads {
		doc.Leads = append(doc.Leads, l.Record())
	}
	doc.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create failed-leads directory: %w", err)
		}
	}
	if err := os.WriteFile(f.path, b, 0o644); err != nil {
		return fmt.Errorf("write failed-leads file %s: %w", f.path, err)
	}
	return nil
}

// Load reads back the persisted records, mostly for tests and operator
// tooling.
func (f *FailedLeadsFile) Load() ([]lead.Record, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var doc failedDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse failed-leads file %s: %w", f.path, err)
	}
	return doc.Leads, nil
}
