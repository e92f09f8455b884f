package lead

import "strings"

// Kind is the engagement variant observed on a post.
type Kind string

const (
	KindReaction Kind = "reaction"
	KindComment  Kind = "comment"
	KindRepost   Kind = "repost"
)

// EngagementRecord is one observation of a person interacting with one post.
//
// Records are produced per post per kind by the scrape collaborator and are
// immutable once created; the merger consumes them in arrival order.
type EngagementRecord struct {
	PersonID     string
	PersonName   string
	ProfileRef   string
	Kind         Kind
	ReactionType string
	CommentText  string
	SourcePostID string
}

// Profile holds the enrichment fields for a lead.
//
// Everything is kept as flat strings/scalars so the CSV and webhook payloads
// stay simple and stable.
type Profile struct {
	FirstName      string
	LastName       string
	Headline       string
	Location       string
	ProfileURL     string
	Summary        string
	FollowerCount  int
	OpenToWork     bool
	CurrentTitle   string
	CurrentCompany string
}

// Lead is the canonical per-person record for a run: all engagement
// observations for one PersonID folded together, plus enrichment output.
type Lead struct {
	PersonID      string
	PersonName    string
	ProfileRef    string
	Kinds         []Kind
	ReactionType  string
	CommentText   string
	SourcePostIDs []string

	Enriched bool
	Profile  Profile
}

// KindsLabel renders the engagement kinds joined with "+" in the order they
// were first observed, e.g. "reaction+comment". Deterministic for a fixed
// input order.
func (l *Lead) KindsLabel() string {
	parts := make([]string, 0, len(l.Kinds))
	for _, k := range l.Kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, "+")
}

// HasKind reports whether the lead was observed with the given kind.
func (l *Lead) HasKind(k Kind) bool {
	for _, have := range l.Kinds {
		if have == k {
			return true
		}
	}
	return false
}

// Record is the plain wire shape delivered to the webhook, one object per
// lead. Field names follow the downstream table's expected keys.
type Record struct {
	PersonID       string `json:"authorId"`
	PersonName     string `json:"authorName"`
	ProfileRef     string `json:"authorUrl"`
	EngagementType string `json:"engagement_type"`
	ReactionType   string `json:"reaction_type"`
	CommentText    string `json:"comment_text"`
	SourcePostIDs  string `json:"source_activity_id"`
	Enriched       bool   `json:"enriched"`

	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Headline       string `json:"headline,omitempty"`
	Location       string `json:"location,omitempty"`
	ProfileURL     string `json:"linkedInUrl,omitempty"`
	Summary        string `json:"summary,omitempty"`
	FollowerCount  int    `json:"followerCount,omitempty"`
	OpenToWork     bool   `json:"openToWork,omitempty"`
	CurrentTitle   string `json:"currentTitle,omitempty"`
	CurrentCompany string `json:"currentCompany,omitempty"`
}

// Record flattens the lead into its wire shape.
func (l *Lead) Record() Record {
	r := Record{
		PersonID:       l.PersonID,
		PersonName:     l.PersonName,
		ProfileRef:     l.ProfileRef,
		EngagementType: l.KindsLabel(),
		ReactionType:   l.ReactionType,
		CommentText:    l.CommentText,
		SourcePostIDs:  strings.Join(l.SourcePostIDs, "+"),
		Enriched:       l.Enriched,
	}
	if l.Enriched {
		r.FirstName = l.Profile.FirstName
		r.LastName = l.Profile.LastName
		r.Headline = l.Profile.Headline
		r.Location = l.Profile.Location
		r.ProfileURL = l.Profile.ProfileURL
		r.Summary = l.Profile.Summary
		r.FollowerCount = l.Profile.FollowerCount
		r.OpenToWork = l.Profile.OpenToWork
		r.CurrentTitle = l.Profile.CurrentTitle
		r.CurrentCompany = l.Profile.CurrentCompany
	}
	return r
}
