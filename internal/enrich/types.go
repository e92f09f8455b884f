// Package enrich fetches full profile data for new leads.
package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/worker"
)

// Provider looks up profile data for one profile reference.
type Provider interface {
	Profile(ctx context.Context, profileRef string) (lead.Profile, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, profileRef string) (lead.Profile, error)

func (f ProviderFunc) Profile(ctx context.Context, profileRef string) (lead.Profile, error) {
	return f(ctx, profileRef)
}

// ErrProfileNotFound is returned by providers when the reference resolves to
// nothing enrichable. Expected for organization pages; treated as a normal
// per-lead failure, not a systemic one.
var ErrProfileNotFound = errors.New("profile not found")

// TransientError marks an error as retryable by pool workers. Enrichment
// itself never retries, but providers still classify so callers can tell
// rate-limit noise from hard failures.
type TransientError = worker.TransientError

// LimitedTransientError caps its own retry budget.
type LimitedTransientError = worker.LimitedTransientError

// RefPredicate decides whether a profile reference is worth dispatching to
// the provider. Validation rules are provider-specific, so this is pluggable.
type RefPredicate func(ref string) bool

// UsableRef is the default predicate: a personal profile URL carries an
// "/in/" path segment; anything else (company pages, empty refs) is skipped.
func UsableRef(ref string) bool {
	return ref != "" && strings.Contains(ref, "/in/")
}
