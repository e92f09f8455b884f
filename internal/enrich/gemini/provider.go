// Package gemini enriches profiles through the Gemini API with web grounding.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/engager-tracker/internal/enrich"
	"github.com/shpitdev/engager-tracker/internal/lead"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Provider implements enrich.Provider against Gemini with search grounding.
// It is slower and fuzzier than the datagen backend but needs no scraping
// credentials, which makes it a usable fallback.
type Provider struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

type responseSchema struct {
	Found          bool   `json:"found"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Headline       string `json:"headline"`
	Location       string `json:"location"`
	Summary        string `json:"summary"`
	CurrentTitle   string `json:"current_title"`
	CurrentCompany string `json:"current_company"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"found":           {Type: genai.TypeBoolean},
		"first_name":      {Type: genai.TypeString},
		"last_name":       {Type: genai.TypeString},
		"headline":        {Type: genai.TypeString},
		"location":        {Type: genai.TypeString},
		"summary":         {Type: genai.TypeString},
		"current_title":   {Type: genai.TypeString},
		"current_company": {Type: genai.TypeString},
	},
	Required: []string{
		"found",
		"first_name",
		"last_name",
		"headline",
		"location",
		"summary",
		"current_title",
		"current_company",
	},
}

func (p *Provider) Profile(ctx context.Context, profileRef string) (lead.Profile, error) {
	profileRef = strings.TrimSpace(profileRef)
	if profileRef == "" {
		return lead.Profile{}, errors.New("empty profile reference")
	}

	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.model,
		genai.Text(buildPrompt(profileRef)),
		&genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
				{URLContext: &genai.URLContext{}},
			},
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return lead.Profile{}, classifyErr(err)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return lead.Profile{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	if !parsed.Found {
		return lead.Profile{}, fmt.Errorf("gemini: %s: %w", profileRef, enrich.ErrProfileNotFound)
	}

	return lead.Profile{
		FirstName:      strings.TrimSpace(parsed.FirstName),
		LastName:       strings.TrimSpace(parsed.LastName),
		Headline:       strings.TrimSpace(parsed.Headline),
		Location:       strings.TrimSpace(parsed.Location),
		ProfileURL:     profileRef,
		Summary:        strings.TrimSpace(parsed.Summary),
		CurrentTitle:   strings.TrimSpace(parsed.CurrentTitle),
		CurrentCompany: strings.TrimSpace(parsed.CurrentCompany),
	}, nil
}

func buildPrompt(profileRef string) string {
	// Keep this prompt public-safe: no secrets, and no PII beyond the
	// reference itself, which is the required input.
	return strings.TrimSpace(`
You are a data enrichment tool. Given a public profile URL, use web search and URL context to find the person's public professional information.

Return ONLY a single JSON object with these keys:
- found (boolean; false when the URL does not resolve to a real person)
- first_name (string)
- last_name (string)
- headline (string)
- location (string)
- summary (string)
- current_title (string)
- current_company (string)

Rules:
- If you cannot find a field, set it to an empty string.
- Do not include extra keys.

Profile URL: ` + profileRef + `
`)
}

func classifyErr(err error) error {
	// Mark transient failures so callers can tell rate-limit noise from
	// hard failures.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &enrich.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &enrich.TransientError{Err: err}
	}
	return err
}
