// Package arxiv queries the arXiv API and RSS feeds for new papers and
// downloads their PDFs.
package arxiv

import (
	"context"
	"encoding/xml"
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

	"golang.org/x/time/rate"
)

const (
	// APIURL is the arXiv query endpoint.
	APIURL = "https://export.arxiv.org/api/query"

	// RSSURL is the base of the per-category RSS feeds.
	RSSURL = "https://export.arxiv.org/rss"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// RequestInterval is the pause arXiv asks API clients to keep between calls.
	RequestInterval = 3 * time.Second

	// pageSize is the number of results requested per API call.
	pageSize = 100
)

// ErrDownload indicates a PDF could not be fetched.
var ErrDownload = errors.New("PDF download failed")

// Client talks to the arXiv API, its RSS feeds and its PDF mirror.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiURL     string
	rssURL     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIURL sets a custom query endpoint (for testing).
func WithAPIURL(u string) ClientOption {
	return func(c *Client) {
		c.apiURL = u
	}
}

// WithRSSURL sets a custom RSS base URL (for testing).
func WithRSSURL(u string) ClientOption {
	return func(c *Client) {
		c.rssURL = strings.TrimRight(u, "/")
	}
}

// WithRequestInterval overrides the pause between API calls.
func WithRequestInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewClient creates a new arXiv client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(RequestInterval), 1),
		apiURL:     APIURL,
		rssURL:     RSSURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query selects papers by search expression or by explicit identifiers.
// When both are set, arXiv returns the listed papers that match the expression.
type Query struct {
	Search     string
	IDs        []string
	MaxResults int
}

// Search runs q, newest submissions first, and returns at most
// q.MaxResults papers.
func (c *Client) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.Search == "" && len(q.IDs) == 0 {
		return nil, errors.New("query needs a search expression or an id list")
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = pageSize
	}

	if len(q.IDs) > 0 {
		var out []Result
		for start := 0; start < len(q.IDs) && len(out) < limit; start += pageSize {
			end := min(start+pageSize, len(q.IDs))
			page, err := c.fetch(ctx, q.Search, q.IDs[start:end], 0, end-start)
			if err != nil {
				return nil, err
			}
			out = append(out, page...)
		}
		return truncate(out, limit), nil
	}

	var out []Result
	for start := 0; start < limit; start += pageSize {
		page, err := c.fetch(ctx, q.Search, nil, start, min(pageSize, limit-start))
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < min(pageSize, limit-start) {
			break
		}
	}
	return truncate(out, limit), nil
}

func truncate(rs []Result, n int) []Result {
	if len(rs) > n {
		return rs[:n]
	}
	return rs
}

// fetch performs one API call.
func (c *Client) fetch(ctx context.Context, search string, ids []string, start, count int) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	v := url.Values{}
	if search != "" {
		v.Set("search_query", search)
	}
	if len(ids) > 0 {
		v.Set("id_list", strings.Join(ids, ","))
	}
	v.Set("start", strconv.Itoa(start))
	v.Set("max_results", strconv.Itoa(count))
	v.Set("sortBy", "submittedDate")
	v.Set("sortOrder", "descending")

	body, err := c.get(ctx, c.apiURL+"?"+v.Encode())
	if err != nil {
		return nil, fmt.Errorf("querying arXiv: %w", err)
	}
	defer body.Close()

	return decodeFeed(body)
}

func (c *Client) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

type rssFeed struct {
	ChannelItems []rssItem `xml:"channel>item"`
	Items        []rssItem `xml:"item"`
}

type rssItem struct {
	About string `xml:"about,attr"`
	Link  string `xml:"link"`
	GUID  string `xml:"guid"`
}

// id returns the arXiv identifier an item points at.
func (it rssItem) id() string {
	for _, s := range []string{it.GUID, it.About, it.Link} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if i := strings.LastIndexAny(s, "/:"); i >= 0 {
			s = s[i+1:]
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// FeedIDs returns the identifiers announced today in an arXiv category
// feed, such as "cs.SD".
func (c *Client) FeedIDs(ctx context.Context, category string) ([]string, error) {
	body, err := c.get(ctx, c.rssURL+"/"+url.PathEscape(category))
	if err != nil {
		return nil, fmt.Errorf("fetching %s feed: %w", category, err)
	}
	defer body.Close()

	var feed rssFeed
	if err := xml.NewDecoder(body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing %s feed: %w", category, err)
	}
	items := append(feed.ChannelItems, feed.Items...)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if id := it.id(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Download saves the document at u to path, creating parent directories.
// The body is written to a temporary file in the same directory and
// renamed into place, so concurrent downloads to one path never
// interleave and a failed download leaves nothing behind.
func (c *Client) Download(ctx context.Context, u, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) paperfeed")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrDownload, u, resp.Status)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".download-*.part")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("moving download to %s: %w", path, err)
	}
	return nil
}
