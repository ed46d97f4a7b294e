// Package dblp searches the DBLP computer science bibliography.
package dblp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/paperfeed/internal/resolve"
)

const (
	// BaseURL is the DBLP publication search endpoint.
	BaseURL = "https://dblp.org/search/publ/api"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit keeps well inside DBLP's fair-use policy.
	RateLimit = 1.0

	// DefaultSearchLimit is the number of hits considered per title.
	DefaultSearchLimit = 5

	// preprintVenue is the venue DBLP lists arXiv preprints under.
	preprintVenue = "CoRR"
)

// Common errors returned by the client.
var (
	ErrRateLimited     = errors.New("DBLP rate limit exceeded")
	ErrNetwork         = errors.New("network error communicating with DBLP")
	ErrInvalidResponse = errors.New("invalid response from DBLP")
)

// Client is a rate-limited DBLP search client.
type Client struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	baseURL      string
	includeArxiv bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithRateLimit overrides the request rate.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithArxiv keeps CoRR (arXiv) entries in search results.
func WithArxiv(include bool) ClientOption {
	return func(c *Client) {
		c.includeArxiv = include
	}
}

// NewClient creates a new DBLP client.
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

// Hit is one publication from a search.
type Hit struct {
	Key     string   `json:"key"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Venue   string   `json:"venue"`
	Volume  string   `json:"volume"`
	Pages   string   `json:"pages"`
	Year    string   `json:"year"`
	Type    string   `json:"type"`
	DOI     string   `json:"doi"`
	EE      []string `json:"ee"`
	URL     string   `json:"url"`
}

// IsPreprint reports whether the hit is a CoRR entry.
func (h Hit) IsPreprint() bool {
	return h.Venue == preprintVenue
}

type searchResponse struct {
	Result struct {
		Hits struct {
			Total string `json:"@total"`
			Hit   []struct {
				Info hitInfo `json:"info"`
			} `json:"hit"`
		} `json:"hits"`
	} `json:"result"`
}

type hitInfo struct {
	Authors struct {
		Author authorList `json:"author"`
	} `json:"authors"`
	Title  string       `json:"title"`
	Venue  stringOrList `json:"venue"`
	Volume string       `json:"volume"`
	Pages  string       `json:"pages"`
	Year   string       `json:"year"`
	Type   string       `json:"type"`
	Key    string       `json:"key"`
	DOI    string       `json:"doi"`
	EE     stringOrList `json:"ee"`
	URL    string       `json:"url"`
}

// stringOrList accepts a JSON string or an array of strings.
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = []string{one}
	return nil
}

func (s stringOrList) first() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// authorList accepts one author object or an array of them.
type authorList []string

func (a *authorList) UnmarshalJSON(data []byte) error {
	type author struct {
		Text string `json:"text"`
	}
	var many []author
	if err := json.Unmarshal(data, &many); err != nil {
		var one author
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		many = []author{one}
	}
	out := make(authorList, 0, len(many))
	for _, au := range many {
		if name := trimHomonym(au.Text); name != "" {
			out = append(out, name)
		}
	}
	*a = out
	return nil
}

// trimHomonym drops the numeric suffix DBLP adds to disambiguate
// authors sharing a name, as in "Wei Zhang 0001".
func trimHomonym(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, ' '); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

// SearchPublications searches DBLP for query. CoRR entries are dropped
// unless the client was built WithArxiv(true).
func (c *Client) SearchPublications(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("h", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
	}

	hits := make([]Hit, 0, len(sr.Result.Hits.Hit))
	for _, h := range sr.Result.Hits.Hit {
		info := h.Info
		hit := Hit{
			Key:     info.Key,
			Title:   strings.TrimSuffix(strings.TrimSpace(info.Title), "."),
			Authors: info.Authors.Author,
			Venue:   info.Venue.first(),
			Volume:  info.Volume,
			Pages:   info.Pages,
			Year:    info.Year,
			Type:    info.Type,
			DOI:     info.DOI,
			EE:      info.EE,
			URL:     info.URL,
		}
		if hit.IsPreprint() && !c.includeArxiv {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Name identifies the provider in logs.
func (c *Client) Name() string {
	return "dblp"
}

// Search implements resolve.Provider.
func (c *Client) Search(ctx context.Context, title string, limit int) resolve.Outcome {
	hits, err := c.SearchPublications(ctx, title, limit)
	if err != nil {
		return resolve.ProviderError{Err: err}
	}
	candidates := make([]resolve.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, h.Candidate())
	}
	return resolve.Pick(candidates)
}

// Candidate converts the hit to a provider-neutral candidate.
func (h Hit) Candidate() resolve.Candidate {
	c := resolve.Candidate{
		Title:   h.Title,
		Date:    h.Year,
		Venue:   h.Venue,
		Journal: h.Venue,
		Volume:  h.Volume,
		Pages:   h.Pages,
		DOI:     h.DOI,
		Authors: h.Authors,
		URL:     h.URL,
		DBLPKey: h.Key,
	}
	for _, ee := range h.EE {
		if id, ok := strings.CutPrefix(ee, "https://arxiv.org/abs/"); ok {
			c.ArxivID = id
		} else if c.VenueURL == "" {
			c.VenueURL = ee
		}
	}
	return c
}
