package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/ledger"
)

func leadsWithIDs(ids ...string) []*lead.Lead {
	out := make([]*lead.Lead, 0, len(ids))
	for _, id := range ids {
		out = append(out, &lead.Lead{PersonID: id})
	}
	return out
}

func TestFilterNew(t *testing.T) {
	t.Parallel()

	delivered := map[string]struct{}{"b": {}, "d": {}}
	got := ledger.FilterNew(leadsWithIDs("a", "b", "c"), delivered)
	if len(got) != 2 || got[0].PersonID != "a" || got[1].PersonID != "c" {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestFilterNew_Idempotent(t *testing.T) {
	t.Parallel()

	delivered := map[string]struct{}{"b": {}}
	once := ledger.FilterNew(leadsWithIDs("a", "b", "c"), delivered)
	twice := ledger.FilterNew(once, delivered)
	if len(once) != len(twice) {
		t.Fatalf("FilterNew not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].PersonID != twice[i].PersonID {
			t.Fatalf("FilterNew not idempotent at %d: %q vs %q", i, once[i].PersonID, twice[i].PersonID)
		}
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s := ledger.NewFileStore(filepath.Join(t.TempDir(), "sent_leads.json"))
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %#v", got)
	}
}

func TestFileStore_CorruptFileWarnsAndStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sent_leads.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ledger.NewFileStore(path).Load(context.Background())
	if err == nil {
		t.Fatal("expected parse error to be surfaced")
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set alongside error, got %#v", got)
	}
}

func TestFileStore_AppendRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sent_leads.json")
	s := ledger.NewFileStore(path)

	if err := s.Append(ctx, []string{"b", "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, []string{"c", "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 ids, got %#v", got)
	}

	// Persisted sorted for stable diffs.
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(b)
	if strings.Index(text, `"a"`) > strings.Index(text, `"b"`) {
		t.Fatalf("ids not sorted: %s", text)
	}
	if !strings.Contains(text, `"last_updated"`) {
		t.Fatalf("missing last_updated: %s", text)
	}
}

func TestFileStore_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := ledger.NewFileStore(filepath.Join(t.TempDir(), "sent_leads.json"))
	if err := s.Append(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty set after clear, got %#v err=%v", got, err)
	}
	// Clearing twice is fine.
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
