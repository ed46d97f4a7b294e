package reference

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeTitle returns the dedup key for a title: lower-casing only.
// Every cache and library comparison goes through this function.
func NormalizeTitle(title string) string {
	return strings.ToLower(title)
}

// SameTitle reports whether two titles share a dedup key.
func SameTitle(a, b string) bool {
	return NormalizeTitle(a) == NormalizeTitle(b)
}

// TitleCase capitalizes the first letter of every word and lower-cases the rest.
func TitleCase(s string) string {
	// Casers carry state; one per call.
	return cases.Title(language.English).String(s)
}

var slugStrip = regexp.MustCompile(`[^A-Za-z0-9 -]+`)

// Slug sanitizes a title for use in a filename: the normalized title with
// every character outside [A-Za-z0-9 -] removed and spaces turned into hyphens.
func Slug(title string) string {
	s := slugStrip.ReplaceAllString(NormalizeTitle(title), "")
	return strings.ReplaceAll(s, " ", "-")
}

// PDFFileName builds the deterministic download name of an arXiv paper:
// submission date, the century-prefixed identifier, and the title slug.
func PDFFileName(updated time.Time, loc *time.Location, arxivID, title string) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s-20%s_%s.pdf", updated.In(loc).Format("20060102"), arxivID, Slug(title))
}
