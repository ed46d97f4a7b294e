// Package resolve turns raw bibliographic stubs into records by asking
// external search providers for the best matching publication.
package resolve

import "context"

// Candidate is one publication returned by a search provider, in a
// provider-neutral shape.
type Candidate struct {
	Title    string
	Abstract string
	Date     string // YYYY-MM-DD, YYYY-MM or YYYY
	Venue    string // conference or short venue name
	Journal  string // journal or proceedings title
	Volume   string
	Pages    string
	DOI      string
	ArxivID  string
	Authors  []string

	URL       string // the provider's page for this result
	VenueURL  string // the publication venue's home page
	DBLPKey   string
	Citations int
	Fields    []string // subject areas
}

// HasDOI reports whether the candidate carries a DOI.
func (c Candidate) HasDOI() bool {
	return c.DOI != ""
}

// Outcome is the result of one provider search: NoMatch, ProviderError or Match.
type Outcome interface {
	isOutcome()
}

// NoMatch means the provider answered but found nothing.
type NoMatch struct{}

// ProviderError means the provider could not answer.
type ProviderError struct {
	Err error
}

// Match carries the candidate the provider picked.
type Match struct {
	Candidate Candidate
}

func (NoMatch) isOutcome()       {}
func (ProviderError) isOutcome() {}
func (Match) isOutcome()         {}

// Provider searches an external bibliographic index by title.
type Provider interface {
	Name() string
	Search(ctx context.Context, title string, limit int) Outcome
}

// Pick applies the tie-break shared by all providers: the first
// candidate carrying a DOI, else the first-ranked one.
func Pick(candidates []Candidate) Outcome {
	if len(candidates) == 0 {
		return NoMatch{}
	}
	for _, c := range candidates {
		if c.HasDOI() {
			return Match{Candidate: c}
		}
	}
	return Match{Candidate: candidates[0]}
}
