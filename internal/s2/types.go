// Package s2 searches the Semantic Scholar Academic Graph API.
package s2

// Paper is a search hit from the Semantic Scholar API.
type Paper struct {
	PaperID          string            `json:"paperId"`
	ExternalIDs      ExternalIDs       `json:"externalIds"`
	Title            string            `json:"title"`
	Abstract         string            `json:"abstract"`
	Authors          []Author          `json:"authors"`
	Year             int               `json:"year"`
	Venue            string            `json:"venue"`
	PublicationVenue *PublicationVenue `json:"publicationVenue"`
	Journal          *Journal          `json:"journal"`
	PubDate          string            `json:"publicationDate"` // YYYY-MM-DD format
	URL              string            `json:"url"`
	Citations        int               `json:"citationCount"`
	Fields           []string          `json:"fieldsOfStudy"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI   string `json:"DOI,omitempty"`
	ArXiv string `json:"ArXiv,omitempty"`
	DBLP  string `json:"DBLP,omitempty"`
}

// Author is an author entry of a paper.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// PublicationVenue describes where a paper appeared.
type PublicationVenue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Journal carries journal or proceedings details.
type Journal struct {
	Name   string `json:"name"`
	Volume string `json:"volume"`
	Pages  string `json:"pages"`
}

// SearchResponse is the response from the paper search endpoint.
type SearchResponse struct {
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Next   int     `json:"next,omitempty"`
	Data   []Paper `json:"data"`
}
