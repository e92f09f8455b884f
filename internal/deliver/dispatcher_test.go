package deliver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shpitdev/engager-tracker/internal/lead"
)

type fakeSender struct {
	calls int
	// respond returns the error for the nth call (1-based).
	respond func(call int, batch []lead.Record) error
}

func (f *fakeSender) Send(_ context.Context, batch []lead.Record) error {
	f.calls++
	return f.respond(f.calls, batch)
}

type memLedger struct {
	ids       map[string]struct{}
	appendErr error
}

func newMemLedger() *memLedger {
	return &memLedger{ids: make(map[string]struct{})}
}

func (m *memLedger) Load(context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(m.ids))
	for id := range m.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memLedger) Append(_ context.Context, ids []string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return nil
}

type memSink struct {
	leads []*lead.Lead
}

func (m *memSink) Record(_ context.Context, leads []*lead.Lead) error {
	m.leads = append(m.leads, leads...)
	return nil
}

func makeLeads(n int) []*lead.Lead {
	out := make([]*lead.Lead, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &lead.Lead{
			PersonID: fmt.Sprintf("person-%03d", i),
			Kinds:    []lead.Kind{lead.KindReaction},
		})
	}
	return out
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestDeliver_BatchPartitioning(t *testing.T) {
	t.Parallel()

	led := newMemLedger()
	var sizes []int
	sender := &fakeSender{respond: func(_ int, batch []lead.Record) error {
		sizes = append(sizes, len(batch))
		return nil
	}}
	d := &Dispatcher{Sender: sender, Ledger: led, sleep: noSleep}

	report, err := d.Deliver(context.Background(), makeLeads(283), Options{BatchSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.BatchesAttempted != 6 || report.BatchesDelivered != 6 {
		t.Fatalf("unexpected report: %#v", report)
	}
	if len(sizes) != 6 || sizes[4] != 50 || sizes[5] != 33 {
		t.Fatalf("unexpected batch sizes: %#v", sizes)
	}
	if report.LeadsDelivered != 283 {
		t.Fatalf("unexpected leads delivered: %d", report.LeadsDelivered)
	}
	if len(led.ids) != 283 {
		t.Fatalf("ledger should grow by 283, got %d", len(led.ids))
	}
}

func TestDeliver_TransientRetriesWithBackoff(t *testing.T) {
	t.Parallel()

	led := newMemLedger()
	sink := &memSink{}
	sender := &fakeSender{respond: func(_ int, _ []lead.Record) error {
		return &HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}
	}}

	var delays []time.Duration
	d := &Dispatcher{
		Sender: sender,
		Ledger: led,
		Failed: sink,
		sleep: func(_ context.Context, dur time.Duration) error {
			delays = append(delays, dur)
			return nil
		},
	}

	report, err := d.Deliver(context.Background(), makeLeads(2), Options{BatchSize: 50, MaxRetries: 3, BackoffInitial: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 3 {
		t.Fatalf("expected exactly MaxRetries attempts, got %d", sender.calls)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Fatalf("backoff not strictly increasing: %#v", delays)
		}
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays: %#v", delays)
	}
	if report.BatchesFailed != 1 || report.LeadsFailed != 2 {
		t.Fatalf("unexpected report: %#v", report)
	}
	if len(sink.leads) != 2 {
		t.Fatalf("failed leads missing from sink: %#v", sink.leads)
	}
	if len(led.ids) != 0 {
		t.Fatalf("failed batch must not reach the ledger: %#v", led.ids)
	}
}

func TestDeliver_StructuralFailureNoRetry(t *testing.T) {
	t.Parallel()

	led := newMemLedger()
	sink := &memSink{}
	sender := &fakeSender{respond: func(_ int, _ []lead.Record) error {
		return &HTTPError{StatusCode: 400, Status: "400 Bad Request"}
	}}
	d := &Dispatcher{Sender: sender, Ledger: led, Failed: sink, sleep: noSleep}

	report, err := d.Deliver(context.Background(), makeLeads(1), Options{MaxRetries: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("structural failure must not retry, got %d attempts", sender.calls)
	}
	if report.BatchesFailed != 1 {
		t.Fatalf("unexpected report: %#v", report)
	}
}

func TestDeliver_ContinuesPastFailedBatch(t *testing.T) {
	t.Parallel()

	led := newMemLedger()
	sink := &memSink{}
	call := 0
	sender := &fakeSender{respond: func(_ int, _ []lead.Record) error {
		call++
		if call == 1 {
			return &HTTPError{StatusCode: 422, Status: "422 Unprocessable Entity"}
		}
		return nil
	}}
	d := &Dispatcher{Sender: sender, Ledger: led, Failed: sink, sleep: noSleep}

	report, err := d.Deliver(context.Background(), makeLeads(4), Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.BatchesAttempted != 2 || report.BatchesDelivered != 1 || report.BatchesFailed != 1 {
		t.Fatalf("unexpected report: %#v", report)
	}
	if len(led.ids) != 2 {
		t.Fatalf("second batch should be in ledger: %#v", led.ids)
	}
	if len(sink.leads) != 2 {
		t.Fatalf("first batch should be in failed sink: %d", len(sink.leads))
	}
}

func TestDeliver_LedgerAppendFailureIsFatal(t *testing.T) {
	t.Parallel()

	led := newMemLedger()
	led.appendErr = errors.New("disk full")
	sender := &fakeSender{respond: func(int, []lead.Record) error { return nil }}
	d := &Dispatcher{Sender: sender, Ledger: led, sleep: noSleep}

	report, err := d.Deliver(context.Background(), makeLeads(4), Options{BatchSize: 2})
	if err == nil || !errors.Is(err, led.appendErr) {
		t.Fatalf("expected ledger failure surfaced, got %v", err)
	}
	// Dispatch halts after the unrecorded batch; nothing else is attempted.
	if report.BatchesAttempted != 1 {
		t.Fatalf("expected halt after ledger failure: %#v", report)
	}
}

func TestDeliver_Empty(t *testing.T) {
	t.Parallel()

	d := &Dispatcher{Sender: &fakeSender{respond: func(int, []lead.Record) error { return nil }}, Ledger: newMemLedger(), sleep: noSleep}
	report, err := d.Deliver(context.Background(), nil, Options{})
	if err != nil || report != (Report{}) {
		t.Fatalf("unexpected: report=%#v err=%v", report, err)
	}
}

func TestIsTransientDelivery(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{&HTTPError{StatusCode: 429}, true},
		{&HTTPError{StatusCode: 500}, true},
		{&HTTPError{StatusCode: 503}, true},
		{&HTTPError{StatusCode: 400}, false},
		{&HTTPError{StatusCode: 404}, false},
		{context.DeadlineExceeded, true},
		{errors.New("whatever"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isTransientDelivery(tc.err); got != tc.want {
			t.Fatalf("isTransientDelivery(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}
