package lead

// Merge folds engagement records into one Lead per distinct PersonID,
// preserving first-seen order.
//
// Semantics depend on arrival order: kinds are unioned in the order first
// observed, and PersonName/ProfileRef/ReactionType/CommentText are
// first-write-wins so a richer value from an earlier source is never
// overwritten by a sparser one from a later source. Records without a
// PersonID cannot be keyed and are dropped.
//
// Pure in-memory computation; no I/O.
func Merge(records []EngagementRecord) []*Lead {
	byID := make(map[string]*Lead, len(records))
	var order []*Lead

	for _, rec := range records {
		if rec.PersonID == "" {
			continue
		}
		l, ok := byID[rec.PersonID]
		if !ok {
			l = &Lead{PersonID: rec.PersonID}
			byID[rec.PersonID] = l
			order = append(order, l)
		}
		if !l.HasKind(rec.Kind) {
			l.Kinds = append(l.Kinds, rec.Kind)
		}
		if l.PersonName == "" {
			l.PersonName = rec.PersonName
		}
		if l.ProfileRef == "" {
			l.ProfileRef = rec.ProfileRef
		}
		if l.ReactionType == "" {
			l.ReactionType = rec.ReactionType
		}
		if l.CommentText == "" {
			l.CommentText = rec.CommentText
		}
		if rec.SourcePostID != "" && !containsString(l.SourcePostIDs, rec.SourcePostID) {
			l.SourcePostIDs = append(l.SourcePostIDs, rec.SourcePostID)
		}
	}
	return order
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
