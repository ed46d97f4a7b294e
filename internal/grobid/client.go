// Package grobid extracts structured metadata from paper PDFs through a
// pool of GROBID services and merges it into records under construction.
package grobid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a fulltext request; large PDFs take a while.
	DefaultTimeout = 180 * time.Second

	// ProbeTimeout bounds a liveness probe.
	ProbeTimeout = 10 * time.Second
)

// Errors returned by the client and the enricher.
var (
	// ErrNoPDF marks a record enriched without a PDF.
	ErrNoPDF = errors.New("no PDF to extract from")

	// ErrInvalidPDF marks a record whose PDF could not be read.
	ErrInvalidPDF = errors.New("invalid PDF")

	// ErrNoEndpoint indicates no configured GROBID service is live.
	ErrNoEndpoint = errors.New("no live GROBID endpoint")

	// ErrServiceException indicates GROBID answered with an internal exception.
	ErrServiceException = errors.New("GROBID service exception")
)

// Client talks to an ordered list of GROBID base URLs.
type Client struct {
	httpClient  *http.Client
	probeClient *http.Client
	endpoints   []string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for fulltext requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithProbeTimeout sets the liveness probe timeout.
func WithProbeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.probeClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a client for the given endpoints, tried in order.
// Trailing slashes are dropped.
func NewClient(endpoints []string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		probeClient: &http.Client{Timeout: ProbeTimeout},
	}
	for _, e := range endpoints {
		e = strings.TrimRight(strings.TrimSpace(e), "/")
		if e != "" {
			c.endpoints = append(c.endpoints, e)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EndpointStatus is the probe result of one endpoint.
type EndpointStatus struct {
	URL   string `json:"url"`
	Alive bool   `json:"alive"`
	Error string `json:"error,omitempty"`
}

// Probe checks every endpoint and reports each one's state.
func (c *Client) Probe(ctx context.Context) []EndpointStatus {
	out := make([]EndpointStatus, 0, len(c.endpoints))
	for _, base := range c.endpoints {
		st := EndpointStatus{URL: base}
		if err := c.isAlive(ctx, base); err != nil {
			st.Error = err.Error()
		} else {
			st.Alive = true
		}
		out = append(out, st)
	}
	return out
}

// isAlive returns nil when base answers its liveness probe with "true".
func (c *Client) isAlive(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/isalive", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.probeClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if text := strings.TrimSpace(string(body)); text != "true" {
		return fmt.Errorf("not alive (status %d): %s", resp.StatusCode, text)
	}
	return nil
}

// Extract returns the TEI document for a PDF from the first live
// endpoint. An endpoint that raises a service exception is skipped.
func (c *Client) Extract(ctx context.Context, pdfPath string) ([]byte, error) {
	var lastErr error
	for _, base := range c.endpoints {
		if err := c.isAlive(ctx, base); err != nil {
			lastErr = err
			continue
		}
		tei, err := c.processFulltext(ctx, base, pdfPath)
		if err != nil {
			lastErr = err
			continue
		}
		return tei, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEndpoint, lastErr)
	}
	return nil, ErrNoEndpoint
}

// processFulltext posts the PDF to one endpoint.
func (c *Client) processFulltext(ctx context.Context, base, pdfPath string) ([]byte, error) {
	body, contentType, err := fulltextForm(pdfPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/processFulltextDocument", body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processing %s: %w", filepath.Base(pdfPath), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if isServiceException(data) {
		return nil, fmt.Errorf("%w at %s", ErrServiceException, base)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GROBID %s returned status %d", base, resp.StatusCode)
	}
	return data, nil
}

func isServiceException(body []byte) bool {
	return bytes.Contains(body, []byte("[GENERAL]")) && bytes.Contains(body, []byte("exception"))
}

// fulltextForm builds the multipart body of a fulltext request.
func fulltextForm(pdfPath string) (io.Reader, string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("input", filepath.Base(pdfPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading PDF: %w", err)
	}
	fields := [][2]string{
		{"consolidateHeader", "1"},
		{"consolidateCitations", "0"},
		{"includeRawAffiliations", "1"},
		{"teiCoordinates", "figure"},
		{"teiCoordinates", "formula"},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
