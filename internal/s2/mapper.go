package s2

import (
	"strconv"
	"strings"

	"github.com/matsen/paperfeed/internal/resolve"
)

// ToCandidate converts a Paper to a provider-neutral candidate.
func ToCandidate(p Paper) resolve.Candidate {
	c := resolve.Candidate{
		Title:     p.Title,
		Abstract:  p.Abstract,
		Date:      publicationDate(p.Year, p.PubDate),
		Venue:     p.Venue,
		DOI:       p.ExternalIDs.DOI,
		ArxivID:   p.ExternalIDs.ArXiv,
		DBLPKey:   p.ExternalIDs.DBLP,
		URL:       p.URL,
		Citations: p.Citations,
		Fields:    p.Fields,
		Authors:   make([]string, 0, len(p.Authors)),
	}
	for _, a := range p.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			c.Authors = append(c.Authors, name)
		}
	}
	if p.Journal != nil {
		c.Journal = p.Journal.Name
		c.Volume = strings.TrimSpace(p.Journal.Volume)
		c.Pages = strings.TrimSpace(p.Journal.Pages)
	}
	if p.PublicationVenue != nil {
		c.VenueURL = p.PublicationVenue.URL
	}
	return c
}

// publicationDate prefers the full date and falls back to the year.
func publicationDate(year int, date string) string {
	if date != "" {
		return date
	}
	if year > 0 {
		return strconv.Itoa(year)
	}
	return ""
}
