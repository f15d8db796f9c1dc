package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/kb"
)

// Client implements kb.Source against the knowledge-base HTTP API:
//
//	GET {base}/kpis/{name}/formulas          -> {"general": "...", ...}
//	GET {base}/kpis/{name}/formulas/closest  -> {"name": "...", "formulas": {...}}
//
// A 404 response maps to kb.ErrNotFound.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a knowledge-base client
func New(baseURL, apiKey string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid knowledge base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid knowledge base url %q: scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: config.KBRequestTimeout,
		},
	}, nil
}

// WithTimeout overrides the per-request timeout
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.client.Timeout = d
	return c
}

// Lookup fetches the formula set of name
func (c *Client) Lookup(ctx context.Context, name string) (*formula.FormulaSet, error) {
	var set formula.FormulaSet
	if err := c.get(ctx, name, "/formulas", &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// LookupClosest asks the knowledge base for the best-matching KPI
func (c *Client) LookupClosest(ctx context.Context, name string) (*kb.Match, error) {
	var match kb.Match
	if err := c.get(ctx, name, "/formulas/closest", &match); err != nil {
		return nil, err
	}
	if match.Formulas == nil {
		return nil, fmt.Errorf("closest match for %q has no formulas", name)
	}
	return &match, nil
}

func (c *Client) get(ctx context.Context, name, suffix string, out interface{}) error {
	endpoint := c.baseURL + "/kpis/" + url.PathEscape(name) + suffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %q", kb.ErrNotFound, name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, config.MaxKBResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
