package deliver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/ledger"
)

const (
	defaultBatchSize  = 50
	defaultMaxRetries = 3
	defaultBackoff    = 1 * time.Second
)

// FailedSink persists the leads of undeliverable batches for manual
// inspection and retry.
type FailedSink interface {
	Record(ctx context.Context, leads []*lead.Lead) error
}

type batchState int

const (
	statePending batchState = iota
	stateSending
	stateDelivered
	stateFailed
)

type Options struct {
	// BatchSize caps leads per delivery call. Default 50.
	BatchSize int

	// MaxRetries is the total attempt budget per batch for transient
	// failures. Default 3.
	MaxRetries int

	// BackoffInitial is the sleep before the first retry; it doubles per
	// retry with no jitter. Default 1s.
	BackoffInitial time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = defaultBackoff
	}
	return o
}

// Report summarizes one dispatch pass.
type Report struct {
	BatchesAttempted int
	BatchesDelivered int
	BatchesFailed    int
	LeadsDelivered   int
	LeadsFailed      int
}

// Dispatcher drives batched delivery: chunking, the per-batch retry state
// machine, ledger appends after confirmed success, and failed-batch capture.
type Dispatcher struct {
	Sender Sender
	Ledger ledger.Store
	Failed FailedSink

	// Logf receives per-batch progress and warnings. nil discards them.
	Logf func(format string, args ...any)

	// sleep is swapped by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// Deliver sends the leads in input order, one batch at a time.
//
// Batches are serial on purpose: the downstream endpoint's payload and rate
// limits make serial backoff the safer default. A failed batch never aborts
// the pass; its leads go to the failed sink and dispatch continues. The only
// error returns are context cancellation and a ledger append failure after a
// confirmed delivery, which would cause re-sends next run and must not be
// swallowed.
func (d *Dispatcher) Deliver(ctx context.Context, leads []*lead.Lead, opts Options) (Report, error) {
	opts = opts.withDefaults()
	logf := d.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	var report Report
	if len(leads) == 0 {
		return report, nil
	}

	batches := chunk(leads, opts.BatchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.BatchesAttempted++

		state, attempts, err := d.sendBatch(ctx, batch, opts)
		switch state {
		case stateDelivered:
			report.BatchesDelivered++
			report.LeadsDelivered += len(batch)
			logf("batch %d/%d delivered: leads=%d attempts=%d", i+1, len(batches), len(batch), attempts)

			ids := make([]string, 0, len(batch))
			for _, l := range batch {
				ids = append(ids, l.PersonID)
			}
			if err := d.Ledger.Append(ctx, ids); err != nil {
				// Delivered but unrecorded: the same leads would be re-sent
				// next run. Halt and surface.
				return report, fmt.Errorf("ledger append after delivered batch %d: %w", i+1, err)
			}

		case stateFailed:
			report.BatchesFailed++
			report.LeadsFailed += len(batch)
			logf("batch %d/%d failed: leads=%d attempts=%d error=%v", i+1, len(batches), len(batch), attempts, err)

			if d.Failed != nil {
				if sinkErr := d.Failed.Record(ctx, batch); sinkErr != nil {
					logf("batch %d/%d: recording failed leads: %v", i+1, len(batches), sinkErr)
				}
			}

		default:
			// Only a cancelled context leaves a batch mid-flight.
			return report, err
		}
	}
	return report, nil
}

// sendBatch runs one batch through Pending -> Sending -> {Delivered, Failed},
// retrying transient failures with doubling backoff until the attempt budget
// is spent. Structural failures (4xx other than 429) fail on the first
// attempt; retrying a malformed payload cannot succeed.
func (d *Dispatcher) sendBatch(ctx context.Context, batch []*lead.Lead, opts Options) (batchState, int, error) {
	records := make([]lead.Record, 0, len(batch))
	for _, l := range batch {
		records = append(records, l.Record())
	}

	state := statePending
	backoff := opts.BackoffInitial
	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		state = stateSending
		err := d.Sender.Send(ctx, records)
		if err == nil {
			return stateDelivered, attempt, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return state, attempt, ctx.Err()
		}
		if !isTransientDelivery(err) || attempt == opts.MaxRetries {
			return stateFailed, attempt, err
		}

		if err := d.doSleep(ctx, backoff); err != nil {
			return state, attempt, err
		}
		backoff *= 2
	}
	return stateFailed, opts.MaxRetries, lastErr
}

func (d *Dispatcher) doSleep(ctx context.Context, dur time.Duration) error {
	if d.sleep != nil {
		return d.sleep(ctx, dur)
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func chunk(leads []*lead.Lead, size int) [][]*lead.Lead {
	var out [][]*lead.Lead
	for start := 0; start < len(leads); start += size {
		end := start + size
		if end > len(leads) {
			end = len(leads)
		}
		out = append(out, leads[start:end])
	}
	return out
}

func isTransientDelivery(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode/100 == 5
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}
