// Package jira reads issues from the Jira REST API and turns them into
// monthly delivery-flow metrics.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pulse/internal/errors"
	"github.com/p-blackswan/pulse/internal/retry"
)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// Client wraps the Jira REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	retry      retry.Config
	logger     zerolog.Logger
}

// NewClient creates a new Jira API client.
func NewClient(baseURL string, auth Authenticator, logger zerolog.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "jira").Logger(),
	}
	c.retry.Logger = c.logger
	return c
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetRetry overrides the retry policy.
func (c *Client) SetRetry(cfg retry.Config) {
	c.retry = cfg
}

// BaseURL returns the base URL of the Jira instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

const (
	searchPageSize = 100
	maxSearchPages = 20
)

// SearchIssues runs a JQL query and collects every page of results.
func (c *Client) SearchIssues(ctx context.Context, jql string) ([]Issue, error) {
	var all []Issue
	for page := 0; page < maxSearchPages; page++ {
		req := searchRequest{
			JQL:        jql,
			StartAt:    len(all),
			MaxResults: searchPageSize,
			Fields:     []string{"status", "created", "resolutiondate", "issuetype"},
		}
		res, err := retry.Value(ctx, c.retry, func(ctx context.Context) (*SearchResult, error) {
			return c.search(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, res.Issues...)
		if len(res.Issues) == 0 || len(all) >= res.Total {
			return all, nil
		}
	}
	c.logger.Warn().Str("jql", jql).Int("issues", len(all)).Msg("search truncated at page limit")
	return all, nil
}

func (c *Client) search(ctx context.Context, sr searchRequest) (*SearchResult, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("encoding search: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/rest/api/3/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var res SearchResult
	if err := decodeResponse(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping checks that the credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/rest/api/3/myself", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do executes an authenticated API request.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: executing request: %v", perrors.ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, perrors.NewAPIError("jira", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
