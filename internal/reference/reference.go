// Package reference defines the core domain types for papers moving into the library.
package reference

// Item types understood by the library.
const (
	TypePreprint        = "preprint"
	TypeConferencePaper = "conferencePaper"
	TypeNote            = "note"
)

// ProvenanceTag is appended to every enriched record.
const ProvenanceTag = "arXiv"

// Stub is a raw bibliographic entry: a search hit or an extracted reference.
type Stub struct {
	Title   string `json:"title"`
	Authors string `json:"authors,omitempty"` // Semicolon-delimited author names
	Year    string `json:"year,omitempty"`
	Venue   string `json:"venue,omitempty"` // Journal or proceedings
}

// Record is a paper under construction. Enrichment stages fill it in
// place; Payload projects it into what the library stores.
type Record struct {
	ItemType string

	Title    string
	Abstract string
	Date     string
	DOI      string
	URL      string

	Archive         string
	ArchiveID       string
	ArchiveLocation string
	LibraryCatalog  string
	AccessDate      string
	Extra           string

	ProceedingsTitle string
	ConferenceName   string
	Volume           string
	Pages            string

	Creators    []Creator
	Tags        []string
	Collections []string

	// TitleTrusted marks a title taken from the search result itself.
	// Lower-confidence sources must not replace it.
	TitleTrusted bool

	// EnrichErr is the error marker: non-nil until an extraction succeeds.
	EnrichErr error

	Aux Auxiliary
}

// Auxiliary holds extraction output that is never persisted on the item.
type Auxiliary struct {
	References []Stub
	Authors    []AffiliatedAuthor
	Sections   []Section
	Figures    []Figure
	Formulas   []Formula
}

// AffiliatedAuthor is an author name with the affiliations found in the PDF.
type AffiliatedAuthor struct {
	Name         string
	Affiliations []string
}

// Section is a body section of a parsed paper.
type Section struct {
	Heading string
	Text    string
}

// Figure is a figure or table caption.
type Figure struct {
	ID      string
	Label   string
	Type    string
	Caption string
}

// Formula is a display formula.
type Formula struct {
	ID   string
	Text string
}

// Enriched reports whether extraction completed for this record.
func (r *Record) Enriched() bool {
	return r.EnrichErr == nil
}

// ResetAux sets every auxiliary field to an empty, non-nil slice.
func (r *Record) ResetAux() {
	r.Aux = Auxiliary{
		References: []Stub{},
		Authors:    []AffiliatedAuthor{},
		Sections:   []Section{},
		Figures:    []Figure{},
		Formulas:   []Formula{},
	}
}

// AddTags appends tags not already present, preserving order.
func (r *Record) AddTags(tags ...string) {
	seen := make(map[string]bool, len(r.Tags))
	for _, t := range r.Tags {
		seen[t] = true
	}
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		r.Tags = append(r.Tags, t)
	}
}

// SectionHeadings returns the headings of all sections, in order.
func (r *Record) SectionHeadings() []string {
	headings := make([]string, 0, len(r.Aux.Sections))
	for _, s := range r.Aux.Sections {
		headings = append(headings, s.Heading)
	}
	return headings
}

// Library identifies the library an item lives in.
type Library struct {
	Type string `json:"type"` // user or group
	ID   int    `json:"id"`
}

// Item is a versioned record in the remote library.
type Item struct {
	Key     string   `json:"key"`
	Version int      `json:"version"`
	Library Library  `json:"library"`
	Data    ItemData `json:"data"`
}

// Title returns the item title.
func (i Item) Title() string {
	return i.Data.Title
}
