package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dchest/safefile"

	"depotdeck/internal/services"
	"depotdeck/internal/textutil"
)

// SearchResult is one title returned by Search.
type SearchResult struct {
	TitleID           string `json:"game_id"`
	TitleName         string `json:"game_name"`
	ManifestAvailable bool   `json:"manifest_available"`
	ManifestSize      uint64 `json:"manifest_size,omitempty"`
	HeaderImage       string `json:"header_image,omitempty"`
}

// UserStats reports the API key's quota usage.
type UserStats struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	UsageCount      int64  `json:"api_key_usage_count"`
	DailyUsage      int64  `json:"daily_usage"`
	DailyLimit      int64  `json:"daily_limit"`
	CanMakeRequests bool   `json:"can_make_requests"`
}

// Remaining returns how many requests are left today, never negative.
func (s UserStats) Remaining() int64 {
	if s.DailyLimit <= s.DailyUsage {
		return 0
	}
	return s.DailyLimit - s.DailyUsage
}

// Client provides access to the catalog service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a catalog client. The API key may be empty for Health.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog base url required")
	}
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// DownloadBundle fetches the bundle for titleID into destDir/{titleID}.zip and
// returns its path. The file is replaced atomically.
func (c *Client) DownloadBundle(ctx context.Context, titleID, destDir string) (string, error) {
	titleID = strings.TrimSpace(titleID)
	if _, err := strconv.ParseUint(titleID, 10, 32); err != nil {
		return "", services.Wrap(services.ErrValidation, "catalog", "download", fmt.Sprintf("invalid title id %q", titleID), nil)
	}
	if err := c.requireKey("download"); err != nil {
		return "", err
	}
	resp, err := c.get(ctx, "download", "/api/v1/manifest/"+url.PathEscape(titleID), nil, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create bundle directory: %w", err)
	}
	path := filepath.Join(destDir, titleID+".zip")
	file, err := safefile.Create(path, 0o644)
	if err != nil {
		return "", fmt.Errorf("create bundle file: %w", err)
	}
	defer file.Close()
	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "catalog", "download", "bundle transfer interrupted", err)
	}
	if written == 0 {
		return "", services.Wrap(services.ErrEmptyBundle, "catalog", "download", "service returned an empty bundle", nil)
	}
	if err := file.Commit(); err != nil {
		return "", fmt.Errorf("commit bundle file: %w", err)
	}
	return path, nil
}

// Search looks up titles by name, best match first. A limit of zero keeps
// every result.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "search", "query must not be empty", nil)
	}
	if err := c.requireKey("search"); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("q", query)
	resp, err := c.get(ctx, "search", "/api/v1/search", params, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrMetadataFetchFailed, "catalog", "search", "decode search response", err)
	}
	results := rankResults(query, payload.Results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// rankResults orders results by title similarity to query. Titles sharing no
// word with the query keep the service's order after the ranked ones.
func rankResults(query string, results []SearchResult) []SearchResult {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.TitleName
	}
	ranked := make([]SearchResult, 0, len(results))
	seen := make([]bool, len(results))
	for _, match := range textutil.RankTitles(query, names) {
		ranked = append(ranked, results[match.Index])
		seen[match.Index] = true
	}
	for i, r := range results {
		if !seen[i] {
			ranked = append(ranked, r)
		}
	}
	return ranked
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "health", "/api/v1/health", nil, false)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// UserStats returns the quota counters for the configured key.
func (c *Client) UserStats(ctx context.Context) (UserStats, error) {
	if err := c.requireKey("stats"); err != nil {
		return UserStats{}, err
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	resp, err := c.get(ctx, "stats", "/api/v1/user/stats", params, false)
	if err != nil {
		return UserStats{}, err
	}
	defer resp.Body.Close()

	var stats UserStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return UserStats{}, services.Wrap(services.ErrMetadataFetchFailed, "catalog", "stats", "decode stats response", err)
	}
	return stats, nil
}

func (c *Client) requireKey(op string) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrAuthFailed, "catalog", op, "api key not configured", nil)
	}
	return nil
}

// get issues a GET and maps non-2xx statuses onto error kinds. The caller
// closes the body on success.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, bearer bool) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "catalog", op, fmt.Sprintf("request failed (latency=%v)", latency), err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, statusError(op, resp.StatusCode, strings.TrimSpace(string(body)))
}

func statusError(op string, status int, body string) error {
	var cause error
	if body != "" {
		cause = errors.New(body)
	}
	switch status {
	case http.StatusUnauthorized:
		return services.Wrap(services.ErrAuthFailed, "catalog", op, "invalid API key", cause)
	case http.StatusForbidden:
		return services.Wrap(services.ErrAuthFailed, "catalog", op, "forbidden", cause)
	case http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "catalog", op, "title not in catalog", cause)
	case http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "catalog", op, "daily limit reached", cause)
	default:
		return services.Wrap(services.ErrMetadataFetchFailed, "catalog", op, fmt.Sprintf("service returned %d", status), cause)
	}
}
