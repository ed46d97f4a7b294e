package pdf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DOI pattern: 10.XXXX/... where XXXX is 4-9 digits
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// doiPages is how many leading pages are scanned; the DOI is almost always on page one.
const doiPages = 2

// ExtractDOI searches the first pages of a PDF for a DOI.
// A PDF without one returns "" and no error.
func ExtractDOI(filePath string) (doi string, err error) {
	defer func() {
		if r := recover(); r != nil {
			doi, err = "", fmt.Errorf("reading PDF %s: %v", filePath, r)
		}
	}()

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	maxPages := min(doiPages, r.NumPage())
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		if found := findDOI(text); found != "" {
			return found, nil
		}
	}

	return "", nil
}

// findDOI finds a DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		// arXiv's own DataCite DOIs identify the preprint, not the publication.
		if strings.HasPrefix(strings.ToLower(match), "10.48550/arxiv") {
			continue
		}
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}
