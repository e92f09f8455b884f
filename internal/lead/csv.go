package lead

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header returns the stable CSV column order for the snapshot file.
//
// Downstream sheets key off these names; changing order or spelling is a
// breaking change.
func Header() []string {
	return []string{
		"person_id",
		"person_name",
		"profile_ref",
		"engagement_type",
		"reaction_type",
		"comment_text",
		"source_post_ids",
		"enriched",
		"first_name",
		"last_name",
		"headline",
		"location",
		"profile_url",
		"summary",
		"follower_count",
		"open_to_work",
		"current_title",
		"current_company",
	}
}

// WriteCSV writes leads as a CSV snapshot with the stable Header() ordering.
func WriteCSV(w io.Writer, leads []*Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, l := range leads {
		if err := cw.Write([]string{
			l.PersonID,
			l.PersonName,
			l.ProfileRef,
			l.KindsLabel(),
			l.ReactionType,
			l.CommentText,
			strings.Join(l.SourcePostIDs, "+"),
			strconv.FormatBool(l.Enriched),
			l.Profile.FirstName,
			l.Profile.LastName,
			l.Profile.Headline,
			l.Profile.Location,
			l.Profile.ProfileURL,
			l.Profile.Summary,
			strconv.Itoa(l.Profile.FollowerCount),
			strconv.FormatBool(l.Profile.OpenToWork),
			l.Profile.CurrentTitle,
			l.Profile.CurrentCompany,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a snapshot back using the stable Header() contract.
//
// Extra columns are ignored. Required columns from Header() must exist.
func ReadCSV(r io.Reader) ([]*Lead, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range Header() {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var leads []*Lead
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return leads, nil
		}
		if err != nil {
			return nil, err
		}

		get := func(col string) string {
			i := index[col]
			if i < 0 || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		l := &Lead{
			PersonID:     get("person_id"),
			PersonName:   get("person_name"),
			ProfileRef:   get("profile_ref"),
			ReactionType: get("reaction_type"),
			CommentText:  get("comment_text"),
		}
		for _, part := range strings.Split(get("engagement_type"), "+") {
			if part != "" {
				l.Kinds = append(l.Kinds, Kind(part))
			}
		}
		for _, part := range strings.Split(get("source_post_ids"), "+") {
			if part != "" {
				l.SourcePostIDs = append(l.SourcePostIDs, part)
			}
		}
		l.Enriched, _ = strconv.ParseBool(get("enriched"))
		l.Profile = Profile{
			FirstName:      get("first_name"),
			LastName:       get("last_name"),
			Headline:       get("headline"),
			Location:       get("location"),
			ProfileURL:     get("profile_url"),
			Summary:        get("summary"),
			CurrentTitle:   get("current_title"),
			CurrentCompany: get("current_company"),
		}
		l.Profile.FollowerCount, _ = strconv.Atoi(get("follower_count"))
		l.Profile.OpenToWork, _ = strconv.ParseBool(get("open_to_work"))
		leads = append(leads, l)
	}
}
