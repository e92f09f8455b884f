// Package scrape collects engagement records for each post from the
// capability provider.
package scrape

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shpitdev/engager-tracker/internal/lead"
)

// Source provides the three engagement lists for one post. Comments and
// reposts come back fully paginated.
type Source interface {
	PostReactions(ctx context.Context, activityID string) ([]lead.EngagementRecord, error)
	PostComments(ctx context.Context, activityID string) ([]lead.EngagementRecord, error)
	PostReposts(ctx context.Context, activityID string) ([]lead.EngagementRecord, error)
}

// Collector gathers engagements across posts.
type Collector struct {
	Source Source

	// Limiter paces posts as a courtesy to the provider. nil disables.
	Limiter *rate.Limiter

	// Logf receives per-kind fetch warnings. nil discards them.
	Logf func(format string, args ...any)
}

// CollectAll fetches all engagement kinds for every activity ID, in post
// order. The three kinds of one post are fetched concurrently but always
// appended reaction -> comment -> repost, so downstream merge order is
// deterministic. A failed kind fetch is logged and contributes nothing; it
// never aborts the run. The only error return is context cancellation.
func (c *Collector) CollectAll(ctx context.Context, activityIDs []string) ([]lead.EngagementRecord, error) {
	logf := c.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	var all []lead.EngagementRecord
	for _, activityID := range activityIDs {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return all, err
			}
		}
		if err := ctx.Err(); err != nil {
			return all, err
		}

		var reactions, comments, reposts []lead.EngagementRecord
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if reactions, err = c.Source.PostReactions(gctx, activityID); err != nil {
				logf("scrape warn: reactions failed for %s: %v", activityID, err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if comments, err = c.Source.PostComments(gctx, activityID); err != nil {
				logf("scrape warn: comments failed for %s: %v", activityID, err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if reposts, err = c.Source.PostReposts(gctx, activityID); err != nil {
				logf("scrape warn: reposts failed for %s: %v", activityID, err)
			}
			return nil
		})
		_ = g.Wait()

		all = append(all, reactions...)
		all = append(all, comments...)
		all = append(all, reposts...)
	}
	return all, nil
}
