package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shpitdev/engager-tracker/internal/app"
	"github.com/shpitdev/engager-tracker/internal/config"
	"github.com/shpitdev/engager-tracker/internal/datagen"
	"github.com/shpitdev/engager-tracker/internal/deliver"
	"github.com/shpitdev/engager-tracker/internal/enrich"
	"github.com/shpitdev/engager-tracker/internal/enrich/gemini"
	"github.com/shpitdev/engager-tracker/internal/ledger"
	"github.com/shpitdev/engager-tracker/internal/scrape"
	"github.com/shpitdev/engager-tracker/internal/sheet"
	"github.com/shpitdev/engager-tracker/internal/util"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "run":
		os.Exit(runTracker(ctx, os.Args[2:]))
	case "clear-ledger":
		os.Exit(clearLedger(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runTracker(ctx context.Context, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.SpreadsheetID, "spreadsheet", cfg.SpreadsheetID, "Spreadsheet ID holding post URLs (env: TRACKER_SPREADSHEET_ID)")
	fs.StringVar(&cfg.WebhookURL, "webhook", cfg.WebhookURL, "Webhook URL batches are delivered to (env: TRACKER_WEBHOOK_URL)")
	fs.StringVar(&cfg.Provider, "provider", cfg.Provider, "Enrichment provider: datagen or gemini (env: TRACKER_PROVIDER)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent enrichment workers, clamped to [1,15] (env: TRACKER_WORKERS)")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Max leads per webhook batch (env: TRACKER_BATCH_SIZE)")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Attempt budget per batch for transient failures (env: TRACKER_MAX_RETRIES)")
	fs.IntVar(&cfg.PostLimit, "post-limit", cfg.PostLimit, "Cap on posts scraped per run, 0 means all (env: TRACKER_POST_LIMIT)")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", cfg.RateLimitRPS, "Upstream request rate limit (RPS), 0 disables (env: TRACKER_RATE_LIMIT_RPS)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-profile request timeout (env: TRACKER_REQUEST_TIMEOUT)")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for ledger, csv, and failed-leads output (env: TRACKER_DATA_DIR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.SpreadsheetID == "" || cfg.WebhookURL == "" {
		_, _ = fmt.Fprintln(os.Stderr, "run requires --spreadsheet and --webhook")
		return 2
	}

	runner, err := buildRunner(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "setup error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	printSummary(summary)
	if summary.Delivery.BatchesFailed > 0 || summary.SystemicEnrich {
		return 1
	}
	return 0
}

func buildRunner(ctx context.Context, cfg *config.Config) (*app.Runner, error) {
	var provider enrich.Provider
	var source scrape.Source

	dg, err := datagen.NewClient(cfg.Datagen.BaseURL, cfg.Datagen.APIKey)
	if err != nil {
		return nil, fmt.Errorf("datagen client: %w", err)
	}
	source = dg

	switch cfg.Provider {
	case "datagen":
		provider = dg
	case "gemini":
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		provider = g
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	store, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}

	return &app.Runner{
		Config:   cfg,
		Sheets:   &sheet.Fetcher{},
		Source:   source,
		Provider: provider,
		Sender:   &deliver.WebhookSender{URL: cfg.WebhookURL},
		Ledger:   store,
		Failed:   deliver.NewFailedLeadsFile(dataPath(cfg, cfg.FailedLeadsPath)),
	}, nil
}

func clearLedger(ctx context.Context, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("clear-ledger", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory holding the ledger (env: TRACKER_DATA_DIR)")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if !*yes {
		_, _ = fmt.Fprintf(os.Stderr, "clearing the delivered-set ledger will re-send every known lead on the next run; pass --yes to confirm\n")
		return 2
	}

	store, err := openLedger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "setup error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	if err := store.Clear(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "clear failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	fmt.Println("ledger cleared")
	return 0
}

// clearer is implemented by both ledger backends; keeping it here avoids
// widening the Store interface for a maintenance command.
type clearer interface {
	ledger.Store
	Clear(ctx context.Context) error
}

func openLedger(cfg *config.Config) (clearer, error) {
	path := dataPath(cfg, cfg.Ledger.Path)
	switch cfg.Ledger.Backend {
	case "sqlite":
		return ledger.OpenSQLite(path)
	case "file":
		return ledger.NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func dataPath(cfg *config.Config, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}

func printSummary(s app.Summary) {
	fmt.Printf("run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Printf("  posts=%d records=%d people=%d alreadySent=%d new=%d\n",
		s.PostsFound, s.RecordsCollected, s.LeadsMerged, s.AlreadyDelivered, s.NewLeads)
	fmt.Printf("  enrich: skipped=%d attempted=%d ok=%d failed=%d\n",
		s.Enrich.Skipped, s.Enrich.Attempted, s.Enrich.Succeeded, s.Enrich.Failed)
	if s.SystemicEnrich {
		fmt.Println("  enrich: SYSTEMIC FAILURE, leads delivered without profile data")
	}
	fmt.Printf("  deliver: batches=%d ok=%d failed=%d leads=%d leadsFailed=%d\n",
		s.Delivery.BatchesAttempted, s.Delivery.BatchesDelivered, s.Delivery.BatchesFailed,
		s.Delivery.LeadsDelivered, s.Delivery.LeadsFailed)
	if s.CSVPath != "" {
		fmt.Printf("  snapshot: %s\n", s.CSVPath)
	}
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `tracker: collect post engagers, enrich them, and deliver new leads downstream

Usage:
  tracker <command> [flags]

Commands:
  run           Execute one full pipeline pass
  clear-ledger  Reset the delivered-set ledger (requires --yes)

Examples:
  tracker run --spreadsheet 1AbC... --webhook https://hooks.example.com/abc

Configuration is layered: defaults, then a YAML file named by TRACKER_CONFIG,
then TRACKER_-prefixed environment variables, then flags.

Environment:
  TRACKER_SPREADSHEET_ID    Spreadsheet holding post URLs
  TRACKER_WEBHOOK_URL       Delivery endpoint
  TRACKER_PROVIDER          Enrichment backend: datagen (default) or gemini
  TRACKER_DATAGEN_API_KEY   API key for the datagen backend
  TRACKER_GEMINI_API_KEY    API key for the gemini backend
  TRACKER_LEDGER_BACKEND    Delivered-set store: file (default) or sqlite
  TRACKER_DATA_DIR          Output directory for ledger, csv, and failed leads

`)
}
