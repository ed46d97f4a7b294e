package grobid

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/matsen/paperfeed/internal/reference"
)

// Document is the subset of a GROBID TEI document the pipeline reads.
// Element names are matched without their namespace.
type Document struct {
	XMLName xml.Name  `xml:"TEI"`
	Header  teiHeader `xml:"teiHeader"`
	Text    teiText   `xml:"text"`
}

type teiHeader struct {
	TitleStmt struct {
		Titles []teiTitle `xml:"title"`
	} `xml:"fileDesc>titleStmt"`
	PublicationDate teiDate       `xml:"fileDesc>publicationStmt>date"`
	Source          teiBiblStruct `xml:"fileDesc>sourceDesc>biblStruct"`
	Keywords        []mixedText   `xml:"profileDesc>textClass>keywords>term"`
	Abstract        []mixedText   `xml:"profileDesc>abstract>div>p"`
	AbstractFlat    []mixedText   `xml:"profileDesc>abstract>p"`
}

type teiTitle struct {
	Level string
	Type  string
	Text  string
}

func (t *teiTitle) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "level":
			t.Level = a.Value
		case "type":
			t.Type = a.Value
		}
	}
	var m mixedText
	if err := m.UnmarshalXML(d, start); err != nil {
		return err
	}
	t.Text = string(m)
	return nil
}

type teiDate struct {
	When string `xml:"when,attr"`
	Text string `xml:",chardata"`
}

type teiBiblStruct struct {
	ID       string    `xml:"id,attr"`
	Analytic teiPart   `xml:"analytic"`
	Monogr   teiPart   `xml:"monogr"`
	IDNos    []teiIDNo `xml:"idno"`
}

type teiPart struct {
	Titles    []teiTitle  `xml:"title"`
	Authors   []teiAuthor `xml:"author"`
	Publisher string      `xml:"imprint>publisher"`
	Date      teiDate     `xml:"imprint>date"`
	IDNos     []teiIDNo   `xml:"idno"`
}

type teiIDNo struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type teiAuthor struct {
	Forenames    []teiForename    `xml:"persName>forename"`
	Surname      string           `xml:"persName>surname"`
	Affiliations []teiAffiliation `xml:"affiliation"`
}

type teiForename struct {
	Type string `xml:"type,attr"`
	Name string `xml:",chardata"`
}

type teiAffiliation struct {
	OrgNames []string `xml:"orgName"`
	Country  string   `xml:"address>country"`
}

type teiText struct {
	Body struct {
		Divs     []teiDiv     `xml:"div"`
		Figures  []teiFigure  `xml:"figure"`
		Formulas []teiFormula `xml:"formula"`
	} `xml:"body"`
	Back struct {
		Divs []struct {
			Type    string          `xml:"type,attr"`
			Entries []teiBiblStruct `xml:"listBibl>biblStruct"`
		} `xml:"div"`
	} `xml:"back"`
}

type teiDiv struct {
	Head       mixedText    `xml:"head"`
	Paragraphs []mixedText  `xml:"p"`
	Formulas   []teiFormula `xml:"formula"`
	Figures    []teiFigure  `xml:"figure"`
}

type teiFigure struct {
	ID    string    `xml:"id,attr"`
	Type  string    `xml:"type,attr"`
	Head  mixedText `xml:"head"`
	Label mixedText `xml:"label"`
	Desc  mixedText `xml:"figDesc"`
}

type teiFormula struct {
	ID   string
	Text string
}

func (f *teiFormula) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "id" {
			f.ID = a.Value
		}
	}
	var m mixedText
	if err := m.UnmarshalXML(d, start); err != nil {
		return err
	}
	f.Text = string(m)
	return nil
}

// mixedText collects all character data under an element, including
// text inside inline children such as <ref> or <hi>.
type mixedText string

func (m *mixedText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*m = mixedText(collapse(b.String()))
				return nil
			}
			depth--
		}
	}
}

// collapse trims and squeezes runs of whitespace to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseTEI decodes a GROBID TEI document.
func ParseTEI(data []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing TEI: %w", err)
	}
	return &doc, nil
}

// Title returns the main title of the paper.
func (d *Document) Title() string {
	for _, t := range d.Header.TitleStmt.Titles {
		if t.Type == "main" {
			return t.Text
		}
	}
	for _, t := range d.Header.Source.Analytic.Titles {
		if t.Type == "main" {
			return t.Text
		}
	}
	return ""
}

// Date returns the publication date as GROBID normalized it.
func (d *Document) Date() string {
	return strings.TrimSpace(d.Header.PublicationDate.When)
}

// DOI returns the paper's DOI, if GROBID found one.
func (d *Document) DOI() string {
	src := d.Header.Source
	for _, ids := range [][]teiIDNo{src.IDNos, src.Analytic.IDNos, src.Monogr.IDNos} {
		for _, id := range ids {
			if strings.EqualFold(id.Type, "DOI") {
				return strings.TrimSpace(id.Value)
			}
		}
	}
	return ""
}

// Abstract returns the abstract paragraphs joined by blank lines.
func (d *Document) Abstract() string {
	paras := d.Header.Abstract
	if len(paras) == 0 {
		paras = d.Header.AbstractFlat
	}
	parts := make([]string, 0, len(paras))
	for _, p := range paras {
		if p != "" {
			parts = append(parts, string(p))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Keywords returns the keyword terms, lower-cased.
func (d *Document) Keywords() []string {
	out := make([]string, 0, len(d.Header.Keywords))
	for _, k := range d.Header.Keywords {
		if k != "" {
			out = append(out, strings.ToLower(string(k)))
		}
	}
	return out
}

// References returns the bibliography as stubs.
func (d *Document) References() []reference.Stub {
	var out []reference.Stub
	for _, div := range d.Text.Back.Divs {
		if div.Type != "references" {
			continue
		}
		for _, b := range div.Entries {
			out = append(out, b.stub())
		}
	}
	if out == nil {
		out = []reference.Stub{}
	}
	return out
}

func (b teiBiblStruct) stub() reference.Stub {
	s := reference.Stub{
		Title: firstTitle(b.Analytic.Titles, "a"),
		Year:  yearOf(b.Monogr.Date.When),
	}
	if s.Title == "" {
		s.Title = firstTitle(b.Monogr.Titles, "m")
	}
	s.Venue = firstTitle(b.Monogr.Titles, "j")
	if s.Venue == "" {
		s.Venue = strings.TrimSpace(b.Monogr.Publisher)
	}

	authors := b.Analytic.Authors
	if len(authors) == 0 {
		authors = b.Monogr.Authors
	}
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if n := a.name(); n != "" {
			names = append(names, n)
		}
	}
	s.Authors = strings.Join(names, "; ")
	return s
}

func firstTitle(titles []teiTitle, level string) string {
	for _, t := range titles {
		if t.Level == level {
			return t.Text
		}
	}
	return ""
}

func yearOf(when string) string {
	if len(when) >= 4 {
		return when[:4]
	}
	return when
}

// name joins first, middle and last names.
func (a teiAuthor) name() string {
	parts := make([]string, 0, len(a.Forenames)+1)
	for _, f := range a.Forenames {
		parts = append(parts, f.Name)
	}
	parts = append(parts, a.Surname)
	return collapse(strings.Join(parts, " "))
}

// Authors returns the paper's authors that carry at least one affiliation.
// Each affiliation reads "org names, country"; repeats are dropped.
func (d *Document) Authors() []reference.AffiliatedAuthor {
	out := []reference.AffiliatedAuthor{}
	for _, a := range d.Header.Source.Analytic.Authors {
		if len(a.Affiliations) == 0 || a.Surname == "" {
			continue
		}
		var affs []string
		for _, aff := range a.Affiliations {
			orgs := make([]string, 0, len(aff.OrgNames))
			for _, o := range aff.OrgNames {
				if o = collapse(o); o != "" {
					orgs = append(orgs, o)
				}
			}
			combined := strings.Join(orgs, " ") + ", " + collapse(aff.Country)
			if !contains(affs, combined) {
				affs = append(affs, combined)
			}
		}
		out = append(out, reference.AffiliatedAuthor{Name: a.name(), Affiliations: affs})
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Sections returns the body sections that have a heading or text.
func (d *Document) Sections() []reference.Section {
	out := []reference.Section{}
	for _, div := range d.Text.Body.Divs {
		paras := make([]string, 0, len(div.Paragraphs))
		for _, p := range div.Paragraphs {
			if p != "" {
				paras = append(paras, string(p))
			}
		}
		s := reference.Section{Heading: string(div.Head), Text: strings.Join(paras, "\n")}
		if s.Heading != "" || s.Text != "" {
			out = append(out, s)
		}
	}
	return out
}

// Figures returns figure and table captions.
func (d *Document) Figures() []reference.Figure {
	out := []reference.Figure{}
	add := func(f teiFigure) {
		typ := f.Type
		if typ == "" {
			typ = "figure"
		}
		out = append(out, reference.Figure{
			ID:      f.ID,
			Label:   string(f.Label),
			Type:    typ,
			Caption: string(f.Desc),
		})
	}
	for _, f := range d.Text.Body.Figures {
		add(f)
	}
	for _, div := range d.Text.Body.Divs {
		for _, f := range div.Figures {
			add(f)
		}
	}
	return out
}

// Formulas returns display formulas.
func (d *Document) Formulas() []reference.Formula {
	out := []reference.Formula{}
	add := func(f teiFormula) {
		out = append(out, reference.Formula{ID: f.ID, Text: f.Text})
	}
	for _, f := range d.Text.Body.Formulas {
		add(f)
	}
	for _, div := range d.Text.Body.Divs {
		for _, f := range div.Formulas {
			add(f)
		}
	}
	return out
}
