// Package note renders the HTML summary attached to each ingested paper.
package note

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/matsen/paperfeed/internal/reference"
)

// compiledTemplate is parsed at init time to fail fast on template errors.
var compiledTemplate *template.Template

func init() {
	compiledTemplate = template.Must(template.New("note").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(noteTemplate))
}

// Summary is the content of a note.
type Summary struct {
	Title    string
	PDFURL   string
	Keywords []string
	Authors  []reference.AffiliatedAuthor
	Abstract string
	Headings []string
}

// FromRecord collects the note content of an enriched record. The
// provenance tag is not a keyword.
func FromRecord(rec *reference.Record) Summary {
	var keywords []string
	for _, t := range rec.Tags {
		if t != reference.ProvenanceTag {
			keywords = append(keywords, t)
		}
	}
	return Summary{
		Title:    rec.Title,
		PDFURL:   rec.URL,
		Keywords: keywords,
		Authors:  rec.Aux.Authors,
		Abstract: rec.Abstract,
		Headings: rec.SectionHeadings(),
	}
}

// AbsURL derives the landing page from an arXiv PDF link.
func AbsURL(pdfURL string) string {
	u := strings.TrimSuffix(pdfURL, ".pdf")
	return strings.Replace(u, "/pdf/", "/abs/", 1)
}

type templateData struct {
	Summary
	AbsURL string
}

// RenderHTML renders the note body. Sections appear in a fixed order:
// title, links, keywords, authors, abstract, table of contents. The
// authors table is omitted when no affiliations were extracted.
func RenderHTML(s Summary) (string, error) {
	headings := make([]string, len(s.Headings))
	for i, h := range s.Headings {
		headings[i] = reference.TitleCase(h)
	}
	s.Headings = headings

	var buf bytes.Buffer
	if err := compiledTemplate.Execute(&buf, templateData{Summary: s, AbsURL: AbsURL(s.PDFURL)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const noteTemplate = `<div data-schema-version="8">
<h2>Information</h2>
<h3>{{.Title}}</h3>
<div id="url">
<a href="{{.PDFURL}}">URL Link: {{.AbsURL}}</a>
</div>
<div id="url">
<a href="{{.PDFURL}}">PDF Link: {{.PDFURL}}</a>
</div>

<div id="keywords">Keywords: {{join .Keywords " , "}}</div>

{{if .Authors}}<div id="authors">
<table>
{{range .Authors}}<tr>
<td>{{.Name}}</td>
{{range .Affiliations}}<td>{{.}}</td>
{{end}}</tr>
{{end}}</table>
</div>

{{end}}<br>
<div id="abstract"><strong>Abstract</strong><p>{{.Abstract}}</p>
</div>
<br>
<div id="toc">{{range .Headings}}<h4>{{.}}</h4>
{{end}}</div>
</div>`
