// Package config defines run configuration and its layered loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds everything a tracker run needs. Values come from defaults,
// an optional YAML file, and TRACKER_-prefixed environment variables.
type Config struct {
	// SpreadsheetID is the Google Sheets document holding post URLs.
	SpreadsheetID string `koanf:"spreadsheet_id"`

	// WebhookURL is the downstream endpoint batches are posted to.
	WebhookURL string `koanf:"webhook_url"`

	// Provider selects the enrichment backend: "datagen" or "gemini".
	Provider string `koanf:"provider"`

	Datagen DatagenConfig `koanf:"datagen"`
	Gemini  GeminiConfig  `koanf:"gemini"`
	Ledger  LedgerConfig  `koanf:"ledger"`

	// Workers bounds concurrent enrichment lookups. Clamped to [1, 15].
	Workers int `koanf:"workers"`

	// BatchSize caps leads per webhook call.
	BatchSize int `koanf:"batch_size"`

	// MaxRetries is the total attempt budget per webhook batch.
	MaxRetries int `koanf:"max_retries"`

	// RequestTimeout bounds each enrichment lookup.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RateLimitRPS throttles upstream API calls. 0 disables throttling.
	RateLimitRPS float64 `koanf:"rate_limit_rps"`

	// PostLimit caps how many posts are scraped per run. 0 means all.
	PostLimit int `koanf:"post_limit"`

	// DataDir anchors relative output paths.
	DataDir string `koanf:"data_dir"`

	CSVPath         string `koanf:"csv_path"`
	FailedLeadsPath string `koanf:"failed_leads_path"`
}

type DatagenConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

type GeminiConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`

	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string `koanf:"base_url"`
}

type LedgerConfig struct {
	// Backend selects the delivered-set store: "file" or "sqlite".
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// New returns a Config populated with defaults only.
func New() *Config {
	return &Config{
		Provider:       "datagen",
		Workers:        5,
		BatchSize:      50,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		RateLimitRPS:   2,
		DataDir:        "data",
		Datagen: DatagenConfig{
			BaseURL: "https://api.datagen.dev",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Ledger: LedgerConfig{
			Backend: "file",
			Path:    "sent_leads.json",
		},
		CSVPath:         "engagers.csv",
		FailedLeadsPath: "failed_leads.json",
	}
}

// nestedSections maps env-var section prefixes onto the koanf key tree so
// TRACKER_DATAGEN_API_KEY resolves to datagen.api_key rather than a flat key.
var nestedSections = []string{"datagen", "gemini", "ledger"}

// Load builds a Config by layering, low to high:
//  1. defaults (New)
//  2. YAML file named by TRACKER_CONFIG, when set
//  3. environment variables with prefix TRACKER_
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("TRACKER_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("TRACKER_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "TRACKER_"))
		for _, section := range nestedSections {
			if rest, ok := strings.CutPrefix(s, section+"_"); ok {
				return section + "." + rest
			}
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations a run cannot proceed with. It does not
// require credentials here; the commands check those per provider.
func (c *Config) Validate() error {
	if c.Provider != "datagen" && c.Provider != "gemini" {
		return fmt.Errorf("provider must be datagen or gemini, got %q", c.Provider)
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if c.MaxRetries <= 0 {
		return errors.New("max_retries must be positive")
	}
	if c.Ledger.Backend != "file" && c.Ledger.Backend != "sqlite" {
		return fmt.Errorf("ledger.backend must be file or sqlite, got %q", c.Ledger.Backend)
	}
	return nil
}
