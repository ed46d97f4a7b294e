package reference

import (
	"strings"
)

// Creator is an author entry on a library item.
type Creator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// Common name suffixes to keep with the last name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
	"m.d":  true,
}

// SplitName splits a full name into first and last name.
// Handles common suffixes (Jr, Sr, II, III, IV, PhD, MD).
//
// Known limitations:
// - Multi-part surnames (von Neumann, van der Waals) split incorrectly
// - Middle names are included in the first name
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	}

	lastPart := strings.ToLower(parts[len(parts)-1])
	if nameSuffixes[lastPart] && len(parts) > 2 {
		last = parts[len(parts)-2] + " " + parts[len(parts)-1]
		first = strings.Join(parts[:len(parts)-2], " ")
		return first, last
	}

	last = parts[len(parts)-1]
	first = strings.Join(parts[:len(parts)-1], " ")
	return first, last
}

// NewAuthor builds an author creator from a full name.
func NewAuthor(name string) Creator {
	first, last := SplitName(name)
	return Creator{CreatorType: "author", FirstName: first, LastName: last}
}

// CreatorsFromNames converts full names into author creators,
// dropping blanks and repeated names while keeping first-seen order.
func CreatorsFromNames(names []string) []Creator {
	seen := make(map[string]bool, len(names))
	creators := make([]Creator, 0, len(names))
	for _, name := range names {
		name = strings.Join(strings.Fields(name), " ")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		creators = append(creators, NewAuthor(name))
	}
	return creators
}

// ParseAuthorList parses a semicolon-delimited author string.
func ParseAuthorList(authors string) []Creator {
	if strings.TrimSpace(authors) == "" {
		return []Creator{}
	}
	return CreatorsFromNames(strings.Split(authors, ";"))
}
