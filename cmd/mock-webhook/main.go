package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/engager-tracker/internal/mockwebhook"
)

func main() {
	addr := defaultString("MOCK_WEBHOOK_ADDR", ":8090")
	failTimes := 0
	failStatus := http.StatusServiceUnavailable

	fs := flag.NewFlagSet("mock-webhook", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.IntVar(&failTimes, "fail-times", failTimes, "Fail the first N deliveries")
	fs.IntVar(&failStatus, "fail-status", failStatus, "HTTP status used for injected failures")
	_ = fs.Parse(os.Args[1:])

	srv := mockwebhook.New()
	if failTimes > 0 {
		srv.FailNext(failTimes, failStatus)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-webhook listening on %s (fail-times=%d)\n", addr, failTimes)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
