// Package datagen is a minimal HTTP client for the capability provider's
// tool-execute API: post engagement lookups plus person profile data.
package datagen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shpitdev/engager-tracker/internal/enrich"
	"github.com/shpitdev/engager-tracker/internal/lead"
)

const (
	toolPostReactions = "get_linkedin_person_post_reactions"
	toolPostComments  = "get_linkedin_person_post_comments"
	toolPostReposts   = "get_linkedin_person_post_repost"
	toolPersonData    = "get_linkedin_person_data"

	// repostPageCap bounds manual pagination against runaway metadata.
	repostPageCap = 50
)

// Client calls the provider's tool-execute endpoints with bearer auth.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
}

// NewClient constructs a client for the provider base URL, e.g.
// "https://api.datagen.dev".
func NewClient(baseURL, apiKey string) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("provider API key is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse provider base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider base URL must include a host (got %q)", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""

	return &Client{
		baseURL: u,
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) executeTool(ctx context.Context, tool string, args map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"arguments": args})
	if err != nil {
		return err
	}

	ref := &url.URL{Path: fmt.Sprintf("v1/tools/%s/execute", url.PathEscape(tool))}
	u := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return newAPIError(tool, resp, b)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s response: %w", tool, err)
	}
	return nil
}

type author struct {
	AuthorID               string `json:"authorId"`
	AuthorName             string `json:"authorName"`
	AuthorURL              string `json:"authorUrl"`
	AuthorPublicIdentifier string `json:"authorPublicIdentifier"`
}

// profileRef resolves the best reference for later enrichment: the explicit
// URL when present, otherwise one derived from the public identifier.
func (a author) profileRef() string {
	if a.AuthorURL != "" {
		return a.AuthorURL
	}
	if a.AuthorPublicIdentifier != "" {
		return "https://www.linkedin.com/in/" + a.AuthorPublicIdentifier
	}
	return ""
}

// PostReactions returns all reaction engagements for a post.
func (c *Client) PostReactions(ctx context.Context, activityID string) ([]lead.EngagementRecord, error) {
	var result struct {
		Reactions []struct {
			Author author `json:"author"`
			Type   string `json:"type"`
		} `json:"reactions"`
	}
	if err := c.executeTool(ctx, toolPostReactions, map[string]any{"activity_id": activityID}, &result); err != nil {
		return nil, err
	}

	out := make([]lead.EngagementRecord, 0, len(result.Reactions))
	for _, r := range result.Reactions {
		out = append(out, lead.EngagementRecord{
			PersonID:     r.Author.AuthorID,
			PersonName:   r.Author.AuthorName,
			ProfileRef:   r.Author.profileRef(),
			Kind:         lead.KindReaction,
			ReactionType: r.Type,
			SourcePostID: activityID,
		})
	}
	return out, nil
}

// PostComments returns all comment engagements for a post. The provider
// paginates comments itself, so one call returns the full set.
func (c *Client) PostComments(ctx context.Context, activityID string) ([]lead.EngagementRecord, error) {
	var result struct {
		Comments []struct {
			Author author `json:"author"`
			Text   string `json:"text"`
		} `json:"comments"`
	}
	if err := c.executeTool(ctx, toolPostComments, map[string]any{"activity_id": activityID}, &result); err != nil {
		return nil, err
	}

	out := make([]lead.EngagementRecord, 0, len(result.Comments))
	for _, cm := range result.Comments {
		out = append(out, lead.EngagementRecord{
			PersonID:     cm.Author.AuthorID,
			PersonName:   cm.Author.AuthorName,
			ProfileRef:   cm.Author.profileRef(),
			Kind:         lead.KindComment,
			CommentText:  cm.Text,
			SourcePostID: activityID,
		})
	}
	return out, nil
}

// PostReposts returns all repost engagements for a post, paginating until
// metadata says the set is exhausted or the page cap is hit.
func (c *Client) PostReposts(ctx context.Context, activityID string) ([]lead.EngagementRecord, error) {
	var out []lead.EngagementRecord
	for page := 1; page <= repostPageCap; page++ {
		var result struct {
			Reposts []struct {
				Author author `json:"author"`
			} `json:"reposts"`
			Metadata struct {
				Total   int `json:"total"`
				PerPage int `json:"perPage"`
			} `json:"metadata"`
		}
		if err := c.executeTool(ctx, toolPostReposts, map[string]any{"activity_id": activityID, "page": page}, &result); err != nil {
			// Pages already fetched are still useful.
			return out, err
		}
		if len(result.Reposts) == 0 {
			break
		}
		for _, rp := range result.Reposts {
			out = append(out, lead.EngagementRecord{
				PersonID:     rp.Author.AuthorID,
				PersonName:   rp.Author.AuthorName,
				ProfileRef:   rp.Author.profileRef(),
				Kind:         lead.KindRepost,
				SourcePostID: activityID,
			})
		}

		perPage := result.Metadata.PerPage
		if perPage <= 0 {
			perPage = 10
		}
		if page*perPage >= result.Metadata.Total {
			break
		}
	}
	return out, nil
}

// Profile fetches full profile data for a profile URL, satisfying
// enrich.Provider. A 404 or an empty person payload maps to
// enrich.ErrProfileNotFound; 429/5xx and network failures are classified
// transient for callers that retry (the enrichment coordinator does not).
func (c *Client) Profile(ctx context.Context, profileRef string) (lead.Profile, error) {
	var result struct {
		Person *personData `json:"person"`
	}
	err := c.executeTool(ctx, toolPersonData, map[string]any{"linkedin_url": profileRef}, &result)
	if err != nil {
		return lead.Profile{}, classifyErr(err)
	}
	if result.Person == nil {
		return lead.Profile{}, enrich.ErrProfileNotFound
	}
	return result.Person.profile(), nil
}

type personData struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Headline      string `json:"headline"`
	Location      string `json:"location"`
	LinkedInURL   string `json:"linkedInUrl"`
	Summary       string `json:"summary"`
	FollowerCount int    `json:"followerCount"`
	OpenToWork    bool   `json:"openToWork"`
	Positions     struct {
		PositionHistory []struct {
			Title       string `json:"title"`
			CompanyName string `json:"companyName"`
		} `json:"positionHistory"`
	} `json:"positions"`
}

func (p *personData) profile() lead.Profile {
	out := lead.Profile{
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Headline:      p.Headline,
		Location:      p.Location,
		ProfileURL:    p.LinkedInURL,
		Summary:       p.Summary,
		FollowerCount: p.FollowerCount,
		OpenToWork:    p.OpenToWork,
	}
	if len(p.Positions.PositionHistory) > 0 {
		out.CurrentTitle = p.Positions.PositionHistory[0].Title
		out.CurrentCompany = p.Positions.PositionHistory[0].CompanyName
	}
	return out
}
