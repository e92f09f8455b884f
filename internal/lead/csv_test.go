package lead_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shpitdev/engager-tracker/internal/lead"
)

func TestWriteCSV_StableHeader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := lead.WriteCSV(&buf, []*lead.Lead{{
		PersonID:      "a",
		PersonName:    "Alice",
		Kinds:         []lead.Kind{lead.KindReaction},
		SourcePostIDs: []string{"p1"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	wantPrefix := "person_id,person_name,profile_ref,engagement_type,reaction_type,comment_text,source_post_ids,enriched,"
	if !strings.HasPrefix(out, wantPrefix) {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "\na,Alice,,reaction,,,p1,false,") {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	in := []*lead.Lead{{
		PersonID:      "a",
		PersonName:    "Alice",
		ProfileRef:    "https://example.com/in/alice",
		Kinds:         []lead.Kind{lead.KindComment, lead.KindRepost},
		CommentText:   "great post",
		SourcePostIDs: []string{"p1", "p2"},
		Enriched:      true,
		Profile: lead.Profile{
			FirstName:      "Alice",
			LastName:       "Zheng",
			Headline:       "VP Engineering",
			FollowerCount:  1200,
			OpenToWork:     true,
			CurrentCompany: "Acme",
		},
	}}

	var buf bytes.Buffer
	if err := lead.WriteCSV(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := lead.ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(out))
	}
	got := out[0]
	if got.KindsLabel() != "comment+repost" {
		t.Fatalf("unexpected kinds: %q", got.KindsLabel())
	}
	if len(got.SourcePostIDs) != 2 || got.SourcePostIDs[1] != "p2" {
		t.Fatalf("unexpected provenance: %#v", got.SourcePostIDs)
	}
	if !got.Enriched || got.Profile.FollowerCount != 1200 || !got.Profile.OpenToWork {
		t.Fatalf("unexpected profile: %#v", got.Profile)
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := lead.ReadCSV(strings.NewReader("person_id,person_name\na,Alice\n"))
	if err == nil || !strings.Contains(err.Error(), "missing required column") {
		t.Fatalf("expected missing column error, got %v", err)
	}
}

func TestRecord_OmitsProfileUntilEnriched(t *testing.T) {
	t.Parallel()

	l := &lead.Lead{
		PersonID: "a",
		Kinds:    []lead.Kind{lead.KindReaction},
		Profile:  lead.Profile{FirstName: "stale"},
	}
	if r := l.Record(); r.FirstName != "" {
		t.Fatalf("profile fields must not leak for unenriched leads: %#v", r)
	}
	l.Enriched = true
	if r := l.Record(); r.FirstName != "stale" {
		t.Fatalf("expected profile fields after enrichment: %#v", r)
	}
}
