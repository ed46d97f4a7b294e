// Package zotero provides a rate-limited client for the Zotero Web API v3
// and the title lookup the ingestion pipeline deduplicates against.
package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/matsen/paperfeed/internal/reference"
)

const (
	// BaseURL is the Zotero Web API base URL.
	BaseURL = "https://api.zotero.org"

	// APIVersion is sent with every request.
	APIVersion = "3"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit is requests per second; Zotero asks clients to stay well below abuse thresholds.
	RateLimit = 5.0

	// DefaultSearchLimit is the page size for title searches.
	DefaultSearchLimit = 25
)

// Client talks to a single user or group library.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	library    reference.Library
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit overrides the request rate.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a client for the given library.
func NewClient(library reference.Library, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		library:    library,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Library returns the library this client writes to.
func (c *Client) Library() reference.Library {
	return c.library
}

// libraryPath returns the URL path prefix of the library, e.g. /groups/123.
func libraryPath(lib reference.Library) string {
	return fmt.Sprintf("/%ss/%d", lib.Type, lib.ID)
}

// RelationURL returns the canonical URI other items use to link to item.
func RelationURL(item reference.Item) string {
	return "http://zotero.org" + libraryPath(item.Library) + "/items/" + item.Key
}

// WriteResult is the response body of a multi-object write.
type WriteResult struct {
	Successful map[string]reference.Item `json:"successful"`
	Success    map[string]string         `json:"success"`
	Unchanged  map[string]string         `json:"unchanged"`
	Failed     map[string]WriteFailure   `json:"failed"`
}

// WriteFailure describes one rejected object of a write.
type WriteFailure struct {
	Key     string `json:"key,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusPreconditionFailed:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s", ErrVersionConflict, strings.TrimSpace(string(msg)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}

// do sends one request against the library and checks the status.
// The caller closes the body of a successful response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, header http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + libraryPath(c.library) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Zotero-API-Version", APIVersion)
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if err := checkHTTPErrors(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// Search runs a quick search (title, creator, year) over top-level items.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]reference.Item, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query := url.Values{}
	query.Set("q", q)
	query.Set("qmode", "titleCreatorYear")
	query.Set("itemType", "-attachment")
	query.Set("format", "json")
	query.Set("limit", strconv.Itoa(limit))

	resp, err := c.do(ctx, http.MethodGet, "/items/top", query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []reference.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}
	return items, nil
}

// FindByTitle searches the library and keys the hits by normalized title.
// The search is a substring match, so callers must check the exact key.
func (c *Client) FindByTitle(ctx context.Context, title string) (map[string]reference.Item, error) {
	items, err := c.Search(ctx, reference.NormalizeTitle(title), DefaultSearchLimit)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]reference.Item, len(items))
	for _, item := range items {
		if item.Data.Title == "" {
			continue
		}
		norm := reference.NormalizeTitle(item.Data.Title)
		if _, dup := byTitle[norm]; !dup {
			byTitle[norm] = item
		}
	}
	return byTitle, nil
}

// GetItem fetches one item by key.
func (c *Client) GetItem(ctx context.Context, key string) (reference.Item, error) {
	resp, err := c.do(ctx, http.MethodGet, "/items/"+key, url.Values{"format": {"json"}}, nil, nil)
	if err != nil {
		return reference.Item{}, err
	}
	defer resp.Body.Close()

	var item reference.Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return reference.Item{}, fmt.Errorf("%w: parsing item: %v", ErrInvalidResponse, err)
	}
	return item, nil
}

// CreateItems writes new items in one request. A fresh write token makes
// a retried request a no-op on the server instead of a duplicate.
func (c *Client) CreateItems(ctx context.Context, items []reference.ItemData) (*WriteResult, error) {
	header := http.Header{}
	header.Set("Zotero-Write-Token", strings.ReplaceAll(uuid.NewString(), "-", ""))

	resp, err := c.do(ctx, http.MethodPost, "/items", nil, items, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result WriteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: parsing write result: %v", ErrInvalidResponse, err)
	}
	return &result, nil
}

// UpdateRelations replaces the relation set of item, conditional on the
// item still being at item.Version. Returns the new version.
func (c *Client) UpdateRelations(ctx context.Context, item reference.Item, relations reference.Relations) (int, error) {
	header := http.Header{}
	header.Set("If-Unmodified-Since-Version", strconv.Itoa(item.Version))

	body := map[string]any{"relations": relations}
	resp, err := c.do(ctx, http.MethodPatch, "/items/"+item.Key, nil, body, header)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	version, _ := strconv.Atoi(resp.Header.Get("Last-Modified-Version"))
	return version, nil
}
