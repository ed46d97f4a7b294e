package arxiv

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matsen/paperfeed/internal/reference"
)

// Result is one paper returned by the API.
type Result struct {
	ID         string // short identifier with version, e.g. 2310.17558v1
	Title      string
	Summary    string
	Authors    []string
	Published  time.Time
	Updated    time.Time
	Categories []string
	DOI        string
	JournalRef string
	Comment    string
}

// PDFURL returns the paper's PDF link.
func (r Result) PDFURL() string {
	return "https://arxiv.org/pdf/" + r.ID + ".pdf"
}

// AbsURL returns the paper's abstract page.
func (r Result) AbsURL() string {
	return "https://arxiv.org/abs/" + r.ID
}

// Stub returns the bibliographic stub of the result.
func (r Result) Stub() reference.Stub {
	return reference.Stub{
		Title:   r.Title,
		Authors: strings.Join(r.Authors, "; "),
		Year:    r.Published.Format("2006"),
	}
}

// Record builds the preprint record the pipeline starts from. The title
// comes from arXiv itself and is trusted over extracted ones. Dates are
// rendered in loc; a nil loc means UTC.
func (r Result) Record(loc *time.Location, now time.Time) *reference.Record {
	if loc == nil {
		loc = time.UTC
	}
	return &reference.Record{
		ItemType:        reference.TypePreprint,
		Title:           reference.TitleCase(r.Title),
		TitleTrusted:    true,
		Abstract:        r.Summary,
		URL:             r.PDFURL(),
		Date:            r.Updated.In(loc).Format("2006-01-02"),
		DOI:             r.DOI,
		Creators:        reference.CreatorsFromNames(r.Authors),
		LibraryCatalog:  "arXiv",
		AccessDate:      now.In(loc).Format("2006-01-02"),
		Archive:         "arXiv",
		ArchiveID:       "arXiv:" + r.ID,
		ArchiveLocation: r.ID,
		Extra:           r.ID,
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	DOI        string `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string `xml:"http://arxiv.org/schemas/atom journal_ref"`
	Comment    string `xml:"http://arxiv.org/schemas/atom comment"`
}

// decodeFeed parses an API response. An error entry (arXiv reports bad
// queries as a feed with one entry titled "Error") is returned as an error.
func decodeFeed(r io.Reader) ([]Result, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding arXiv feed: %w", err)
	}

	results := make([]Result, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if strings.TrimSpace(e.Title) == "Error" {
			return nil, fmt.Errorf("arXiv rejected query: %s", normalizeWhitespace(e.Summary))
		}
		res := Result{
			ID:         shortID(e.ID),
			Title:      normalizeWhitespace(e.Title),
			Summary:    normalizeWhitespace(e.Summary),
			DOI:        strings.TrimSpace(e.DOI),
			JournalRef: normalizeWhitespace(e.JournalRef),
			Comment:    normalizeWhitespace(e.Comment),
		}
		res.Published, _ = time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
		res.Updated, _ = time.Parse(time.RFC3339, strings.TrimSpace(e.Updated))
		for _, a := range e.Authors {
			if name := normalizeWhitespace(a.Name); name != "" {
				res.Authors = append(res.Authors, name)
			}
		}
		for _, c := range e.Categories {
			res.Categories = append(res.Categories, c.Term)
		}
		results = append(results, res)
	}
	return results, nil
}

// shortID strips the abs URL prefix from an entry id.
func shortID(entryID string) string {
	entryID = strings.TrimSpace(entryID)
	if i := strings.Index(entryID, "/abs/"); i >= 0 {
		return entryID[i+len("/abs/"):]
	}
	return entryID
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
