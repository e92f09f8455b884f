// Package app wires the full tracker run: sheet, scrape, merge, ledger
// filtering, enrichment, and batched delivery.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shpitdev/engager-tracker/internal/config"
	"github.com/shpitdev/engager-tracker/internal/deliver"
	"github.com/shpitdev/engager-tracker/internal/enrich"
	"github.com/shpitdev/engager-tracker/internal/lead"
	"github.com/shpitdev/engager-tracker/internal/ledger"
	"github.com/shpitdev/engager-tracker/internal/scrape"
	"github.com/shpitdev/engager-tracker/internal/sheet"
)

// Runner holds one run's collaborators. Every field is an interface or small
// struct so tests can substitute fakes without network access.
type Runner struct {
	Config   *config.Config
	Sheets   *sheet.Fetcher
	Source   scrape.Source
	Provider enrich.Provider
	Sender   deliver.Sender
	Ledger   ledger.Store
	Failed   deliver.FailedSink

	// Logger defaults to stdout with standard flags.
	Logger *log.Logger
}

// Summary reports what one run did, for the CLI and for tests.
type Summary struct {
	RunID            string
	PostsFound       int
	RecordsCollected int
	LeadsMerged      int
	AlreadyDelivered int
	NewLeads         int

	Enrich         enrich.Stats
	SystemicEnrich bool

	Delivery deliver.Report

	CSVPath  string
	Duration time.Duration
}

// Run executes the full pipeline once. The run keeps going through partial
// failures (a ledger that cannot be loaded, a systemic enrichment rate) and
// reports them in the summary; it only returns an error when nothing useful
// can proceed or when delivered leads could not be recorded.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	runID := uuid.NewString()
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	runStart := time.Now()
	summary := Summary{RunID: runID}
	cfg := r.Config

	logf("run start: provider=%s workers=%d batchSize=%d maxRetries=%d ledger=%s",
		cfg.Provider, cfg.Workers, cfg.BatchSize, cfg.MaxRetries, cfg.Ledger.Backend)

	// The delivered set loads first; a corrupt ledger degrades to re-sending
	// duplicates, which downstream dedupes, so it is a warning not a halt.
	delivered, err := r.Ledger.Load(ctx)
	if err != nil {
		logf("warn: ledger load failed, treating delivered set as empty: %v", err)
	}
	logf("loaded delivered set: %d person ids", len(delivered))

	fetchStart := time.Now()
	urls, err := r.Sheets.FetchPostURLs(ctx, cfg.SpreadsheetID)
	if err != nil {
		return summary, fmt.Errorf("fetch post urls: %w", err)
	}
	activityIDs := sheet.UniqueActivityIDs(urls)
	if cfg.PostLimit > 0 && len(activityIDs) > cfg.PostLimit {
		activityIDs = activityIDs[:cfg.PostLimit]
	}
	summary.PostsFound = len(activityIDs)
	logf("loaded %d posts from spreadsheet in %s", len(activityIDs), time.Since(fetchStart).Round(time.Millisecond))
	if len(activityIDs) == 0 {
		return summary, errors.New("no post urls found in spreadsheet")
	}

	scrapeStart := time.Now()
	collector := &scrape.Collector{Source: r.Source, Logf: logf}
	if cfg.RateLimitRPS > 0 {
		collector.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	records, err := collector.CollectAll(ctx, activityIDs)
	if err != nil {
		return summary, fmt.Errorf("collect engagements: %w", err)
	}
	summary.RecordsCollected = len(records)

	leads := lead.Merge(records)
	summary.LeadsMerged = len(leads)
	logf("collected %d engagement records -> %d unique people in %s",
		len(records), len(leads), time.Since(scrapeStart).Round(time.Millisecond))

	newLeads := ledger.FilterNew(leads, delivered)
	summary.AlreadyDelivered = len(leads) - len(newLeads)
	summary.NewLeads = len(newLeads)
	logf("delivered-set filter: %d already sent, %d new", summary.AlreadyDelivered, summary.NewLeads)
	if len(newLeads) == 0 {
		summary.Duration = time.Since(runStart)
		logf("run complete: nothing new to deliver, duration=%s", summary.Duration.Round(time.Millisecond))
		return summary, nil
	}

	enrichStart := time.Now()
	stats, err := enrich.EnrichAll(ctx, newLeads, r.Provider, enrich.Options{
		Workers:        cfg.Workers,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		Logf:           logf,
	})
	summary.Enrich = stats
	if err != nil {
		if !errors.Is(err, enrich.ErrSystemicFailure) {
			return summary, fmt.Errorf("enrich leads: %w", err)
		}
		// Leads still have their engagement data; deliver them unenriched
		// rather than dropping the run, but make the failure loud.
		summary.SystemicEnrich = true
		logf("SYSTEMIC ENRICHMENT FAILURE: %v (delivering with engagement data only)", err)
	}
	logf("enrichment: skipped=%d attempted=%d succeeded=%d failed=%d duration=%s",
		stats.Skipped, stats.Attempted, stats.Succeeded, stats.Failed,
		time.Since(enrichStart).Round(time.Millisecond))

	if path, err := r.writeSnapshot(newLeads); err != nil {
		logf("warn: csv snapshot failed: %v", err)
	} else {
		summary.CSVPath = path
		logf("wrote csv snapshot: %s (%d leads)", path, len(newLeads))
	}

	deliverStart := time.Now()
	dispatcher := &deliver.Dispatcher{
		Sender: r.Sender,
		Ledger: r.Ledger,
		Failed: r.Failed,
		Logf:   logf,
	}
	report, err := dispatcher.Deliver(ctx, newLeads, deliver.Options{
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
	})
	summary.Delivery = report
	if err != nil {
		return summary, fmt.Errorf("deliver batches: %w", err)
	}
	logf("delivery: batches=%d delivered=%d failed=%d leads=%d duration=%s",
		report.BatchesAttempted, report.BatchesDelivered, report.BatchesFailed,
		report.LeadsDelivered, time.Since(deliverStart).Round(time.Millisecond))

	summary.Duration = time.Since(runStart)
	logf("run complete: duration=%s", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

func (r *Runner) writeSnapshot(leads []*lead.Lead) (string, error) {
	path := r.Config.CSVPath
	if path == "" {
		return "", nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.Config.DataDir, path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := lead.WriteCSV(f, leads); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
