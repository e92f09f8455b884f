// Package ledger tracks which person IDs have ever been delivered downstream.
//
// The ledger is the only state that outlives a run besides the CSV snapshot.
// It is read once at run start and appended to only after a batch is
// confirmed delivered; it is never pruned automatically.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shpitdev/engager-tracker/internal/lead"
)

// Store is the narrow read/append interface the pipeline depends on.
// Implementations assume a single writer per store.
type Store interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, ids []string) error
}

// FilterNew returns the candidates whose PersonID is not in delivered,
// preserving input order. Pure function of its inputs.
func FilterNew(candidates []*lead.Lead, delivered map[string]struct{}) []*lead.Lead {
	out := make([]*lead.Lead, 0, len(candidates))
	for _, l := range candidates {
		if _, ok := delivered[l.PersonID]; ok {
			continue
		}
		out = append(out, l)
	}
	return out
}

// fileDoc is the on-disk shape of the JSON ledger.
type fileDoc struct {
	SentPersonIDs []string `json:"sent_person_ids"`
	LastUpdated   string   `json:"last_updated"`
}

// FileStore persists the delivered set as a sorted JSON document.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a JSON-file ledger at path. The file is created on
// first Append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Load reads the delivered set. A missing file is an empty set with no error;
// an unreadable or corrupt file returns an empty set together with the error
// so the caller can warn and continue rather than silently skip the run.
func (s *FileStore) Load(_ context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return out, fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return out, fmt.Errorf("parse ledger %s: %w", s.path, err)
	}
	for _, id := range doc.SentPersonIDs {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// Append merges ids into the stored set and rewrites the document.
//
// A failure here after a successful delivery is correctness-impacting (the
// same leads would be re-sent next run) and must be treated as fatal by the
// caller.
func (s *FileStore) Append(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	existing, err := s.Load(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id != "" {
			existing[id] = struct{}{}
		}
	}

	merged := make([]string, 0, len(existing))
	for id := range existing {
		merged = append(merged, id)
	}
	sort.Strings(merged)

	doc := fileDoc{
		SentPersonIDs: merged,
		LastUpdated:   s.now().UTC().Format(time.RFC3339),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write ledger %s: %w", s.path, err)
	}
	return nil
}

// Clear removes the persisted set entirely. Operator action only.
func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
