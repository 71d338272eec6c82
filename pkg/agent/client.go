// Package agent provides a client for the browser-automation extraction
// service. The agent drives a headless browser against department listing
// pages and individual faculty websites and returns structured field
// dictionaries; this client never interprets them.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the extraction operations the agent exposes.
type Client interface {
	// ExtractListing scrapes a department faculty listing page and returns one
	// field dictionary per faculty entry found.
	ExtractListing(ctx context.Context, listURL string) (*ListingResponse, error)
	// ExtractWebsite scrapes an individual faculty website for research
	// content. The faculty name steers the agent when a page covers a group.
	ExtractWebsite(ctx context.Context, siteURL, facultyName string) (*WebsiteResponse, error)
}

// ListingResponse is the parsed listing extraction response.
type ListingResponse struct {
	OriginURL string           `json:"origin_url"`
	Records   []map[string]any `json:"records"`
}

// WebsiteResponse is the parsed website extraction response.
type WebsiteResponse struct {
	OriginURL string         `json:"origin_url"`
	Fields    map[string]any `json:"fields"`
	Method    string         `json:"extraction_method"`
}

type listingRequest struct {
	URL string `json:"url"`
}

type websiteRequest struct {
	URL         string `json:"url"`
	FacultyName string `json:"faculty_name,omitempty"`
}

// Option configures the agent client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the request timeout. Browser-driven extractions can
// legitimately take minutes on slow faculty pages.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new extraction agent client.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// postJSON executes a JSON POST with exponential backoff retries on transient
// failures (429, 500, 502, 503). Returns the response body on success, or the
// last error after exhausting retries.
func (c *httpClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "agent: marshal request")
	}

	const maxAttempts = 3
	backoff := 2 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, eris.Wrap(err, "agent: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, eris.Wrap(lastErr, "agent: request failed")
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "agent: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("agent: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("agent: unexpected status %d: %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, eris.Wrap(lastErr, "agent: request failed")
}

func (c *httpClient) ExtractListing(ctx context.Context, listURL string) (*ListingResponse, error) {
	body, err := c.postJSON(ctx, "/v1/extract/listing", listingRequest{URL: listURL})
	if err != nil {
		return nil, err
	}

	var result ListingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "agent: unmarshal listing response")
	}
	if result.OriginURL == "" {
		result.OriginURL = listURL
	}

	return &result, nil
}

func (c *httpClient) ExtractWebsite(ctx context.Context, siteURL, facultyName string) (*WebsiteResponse, error) {
	body, err := c.postJSON(ctx, "/v1/extract/website", websiteRequest{URL: siteURL, FacultyName: facultyName})
	if err != nil {
		return nil, err
	}

	var result WebsiteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "agent: unmarshal website response")
	}
	if result.OriginURL == "" {
		result.OriginURL = siteURL
	}

	return &result, nil
}
