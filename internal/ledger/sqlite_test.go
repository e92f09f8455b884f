package ledger_test

import (
	"context"
	"testing"

	"github.com/shpitdev/engager-tracker/internal/ledger"
)

func TestSQLiteStore_AppendAndLoad(t *testing.T) {
	t.Parallel()

	s, err := ledger.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Duplicate appends are ignored, not errors.
	if err := s.Append(ctx, []string{"b", "c"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 ids, got %#v", got)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := got[id]; !ok {
			t.Fatalf("missing %q in %#v", id, got)
		}
	}
}

func TestSQLiteStore_Clear(t *testing.T) {
	t.Parallel()

	s, err := ledger.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Append(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty ledger, got %#v err=%v", got, err)
	}
}

func TestSQLiteStore_PersistsAcrossOpens(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/ledger.db"
	ctx := context.Background()

	s, err := ledger.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Append(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := ledger.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := got["a"]; !ok {
		t.Fatalf("id lost across reopen: %#v", got)
	}
}
