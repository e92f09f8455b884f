package mockwebhook_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/engager-tracker/internal/deliver"
	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/mockwebhook"
)

func TestServer_AcceptsBatches(t *testing.T) {
	t.Parallel()

	mock := mockwebhook.New()
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	sender := &deliver.WebhookSender{URL: srv.URL + "/webhook"}
	batch := []lead.Record{{PersonID: "p1"}, {PersonID: "p2"}}
	if err := sender.Send(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 || len(calls[0].Batch) != 2 {
		t.Fatalf("unexpected calls: %#v", calls)
	}
	if got := mock.Leads(); len(got) != 2 || got[1].PersonID != "p2" {
		t.Fatalf("unexpected leads: %#v", got)
	}
}

func TestServer_FailureInjection(t *testing.T) {
	t.Parallel()

	mock := mockwebhook.New()
	mock.FailNext(2, http.StatusTooManyRequests)
	srv := httptest.NewServer(mock.Handler())
	defer srv.Close()

	sender := &deliver.WebhookSender{URL: srv.URL + "/webhook"}

	for i := 0; i < 2; i++ {
		err := sender.Send(context.Background(), []lead.Record{{PersonID: "p1"}})
		var he *deliver.HTTPError
		if !errors.As(err, &he) || he.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("attempt %d: expected injected 429, got %v", i+1, err)
		}
	}
	if err := sender.Send(context.Background(), []lead.Record{{PersonID: "p1"}}); err != nil {
		t.Fatalf("expected recovery after injected failures: %v", err)
	}
	if len(mock.Calls()) != 1 {
		t.Fatalf("failed posts must not be recorded: %#v", mock.Calls())
	}
}

func TestServer_RejectsNonArrayBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(mockwebhook.New().Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %s", resp.Status)
	}
}
