package s2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/paperfeed/internal/resolve"
)

const (
	// BaseURL is the Semantic Scholar Graph API base URL.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit is 1 request per second, the keyed-tier allowance.
	RateLimit = 1.0

	// SearchFields are the fields requested for search hits.
	SearchFields = "title,abstract,authors,year,venue,publicationVenue,journal,publicationDate,url,externalIds,citationCount,fieldsOfStudy"

	// DefaultSearchLimit is the number of hits considered per title.
	DefaultSearchLimit = 5
)

// Common errors returned by the client.
var (
	ErrRateLimited     = errors.New("Semantic Scholar rate limit exceeded")
	ErrNetwork         = errors.New("network error communicating with Semantic Scholar")
	ErrInvalidResponse = errors.New("invalid response from Semantic Scholar")
)

// APIError represents an error status from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Semantic Scholar API error (status %d): %s", e.StatusCode, e.Message)
}

// Client is a rate-limited Semantic Scholar search client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authenticated requests.
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

// NewClient creates a new Semantic Scholar client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchPapers runs a relevance search for query.
func (c *Client) SearchPapers(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", SearchFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/paper/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}
	return &out, nil
}

// Name identifies the provider in logs.
func (c *Client) Name() string {
	return "s2"
}

// Search implements resolve.Provider.
func (c *Client) Search(ctx context.Context, title string, limit int) resolve.Outcome {
	resp, err := c.SearchPapers(ctx, title, limit)
	if err != nil {
		return resolve.ProviderError{Err: err}
	}
	candidates := make([]resolve.Candidate, 0, len(resp.Data))
	for _, p := range resp.Data {
		candidates = append(candidates, ToCandidate(p))
	}
	return resolve.Pick(candidates)
}
