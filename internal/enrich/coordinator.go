package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/worker"
)

const (
	minWorkers = 1
	maxWorkers = 15
)

// ErrSystemicFailure signals that more than half of dispatched enrichment
// calls failed, which usually means credentials or an outage rather than
// isolated per-lead issues. The result set is still complete when this is
// returned; the caller decides whether to keep going.
var ErrSystemicFailure = errors.New("systemic enrichment failure rate")

type Options struct {
	// Workers bounds enrichment concurrency; clamped to [1, 15].
	Workers        int
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across workers. <=0 disables.
	RateLimitRPS float64

	// UsableRef gates which leads are dispatched at all. Defaults to UsableRef.
	UsableRef RefPredicate

	// Logf receives per-lead warnings. Defaults to discarding them.
	Logf func(format string, args ...any)
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Skipped   int // no usable profile reference, never dispatched
	Attempted int // dispatched to the provider
	Succeeded int
	Failed    int
}

// EnrichAll fetches profiles for all leads with a usable reference,
// concurrently and bounded by opts.Workers, mutating each lead in place.
//
// Individual call failures (including not-found) mark the lead
// Enriched=false with no partial fields and never abort the pass; calls are
// never retried since the provider is rate-sensitive. Returns
// ErrSystemicFailure (wrapped, with counts) when over half the dispatched
// calls failed, alongside the fully populated stats.
func EnrichAll(ctx context.Context, leads []*lead.Lead, provider Provider, opts Options) (Stats, error) {
	usable := opts.UsableRef
	if usable == nil {
		usable = UsableRef
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	workers := opts.Workers
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	var stats Stats
	dispatched := make([]*lead.Lead, 0, len(leads))
	for _, l := range leads {
		if !usable(l.ProfileRef) {
			l.Enriched = false
			stats.Skipped++
			logf("enrich skip: person=%q no usable profile ref", l.PersonName)
			continue
		}
		dispatched = append(dispatched, l)
	}
	stats.Attempted = len(dispatched)
	if len(dispatched) == 0 {
		return stats, nil
	}

	results, err := worker.ProcessAll(ctx, dispatched,
		func(reqCtx context.Context, l *lead.Lead) (lead.Profile, error) {
			return provider.Profile(reqCtx, l.ProfileRef)
		},
		worker.Options{
			Workers:        workers,
			MaxRetries:     0, // enrichment calls are rate-sensitive, never retried
			RequestTimeout: opts.RequestTimeout,
			RateLimitRPS:   opts.RateLimitRPS,
		})
	if err != nil {
		return stats, err
	}

	for _, res := range results {
		l := res.Input
		if res.Err != nil {
			l.Enriched = false
			l.Profile = lead.Profile{}
			stats.Failed++
			logf("enrich failed: person=%q error=%v", l.PersonName, res.Err)
			continue
		}
		l.Profile = res.Output
		l.Enriched = true
		stats.Succeeded++
	}

	if stats.Failed*2 > stats.Attempted {
		return stats, fmt.Errorf("%w: %d of %d attempted calls failed", ErrSystemicFailure, stats.Failed, stats.Attempted)
	}
	return stats, nil
}
