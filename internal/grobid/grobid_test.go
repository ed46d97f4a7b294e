package grobid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matsen/paperfeed/internal/reference"
)

const sampleTEI = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0" xmlns:xlink="http://www.w3.org/1999/xlink">
 <teiHeader xml:lang="en">
  <fileDesc>
   <titleStmt><title level="a" type="main">Neural ASR for Tonal Languages</title></titleStmt>
   <publicationStmt><publisher/><date type="published" when="2023-10-27">27 Oct 2023</date></publicationStmt>
   <sourceDesc>
    <biblStruct>
     <analytic>
      <author>
       <persName><forename type="first">Wei</forename><surname>Zhang</surname></persName>
       <affiliation key="aff0">
        <orgName type="department">Dept. of EE</orgName>
        <orgName type="institution">Tsinghua University</orgName>
        <address><country key="CN">China</country></address>
       </affiliation>
       <affiliation key="aff1">
        <orgName type="department">Dept. of EE</orgName>
        <orgName type="institution">Tsinghua University</orgName>
        <address><country key="CN">China</country></address>
       </affiliation>
      </author>
      <author><persName><forename type="first">Ann</forename><surname>Lee</surname></persName></author>
      <title level="a" type="main">Neural ASR for Tonal Languages</title>
     </analytic>
     <monogr><imprint><date/></imprint></monogr>
     <idno type="DOI">10.1109/TASLP.2023.0001</idno>
    </biblStruct>
   </sourceDesc>
  </fileDesc>
  <profileDesc>
   <textClass><keywords><term>Speech Recognition</term><term>Low-Resource</term></keywords></textClass>
   <abstract><div><p>We study <ref>ASR</ref> in   low-resource settings.</p></div></abstract>
  </profileDesc>
 </teiHeader>
 <text xml:lang="en">
  <body>
   <div><head n="1">Introduction</head><p>Speech is hard.</p><formula xml:id="formula_0">y = Wx + b</formula></div>
   <div><head n="2">Method</head><p>We train.</p><p>We test.</p></div>
   <figure xml:id="fig_0"><head>Fig. 1.</head><label>1</label><figDesc>Model overview.</figDesc></figure>
   <figure type="table" xml:id="tab_0"><label>2</label><figDesc>Results.</figDesc></figure>
  </body>
  <back>
   <div type="acknowledgement"><p>Thanks.</p></div>
   <div type="references">
    <listBibl>
     <biblStruct xml:id="b0">
      <analytic>
       <title level="a" type="main">Attention Is All You Need</title>
       <author><persName><forename type="first">Ashish</forename><surname>Vaswani</surname></persName></author>
       <author><persName><forename type="first">Noam</forename><forename type="middle">M</forename><surname>Shazeer</surname></persName></author>
      </analytic>
      <monogr><title level="j">NeurIPS</title><imprint><date type="published" when="2017-12"/></imprint></monogr>
     </biblStruct>
     <biblStruct xml:id="b1">
      <monogr><title level="m">Speech and Language Processing</title><imprint><publisher>Pearson</publisher><date when="2009"/></imprint></monogr>
     </biblStruct>
    </listBibl>
   </div>
  </back>
 </text>
</TEI>`

func TestParseTEI(t *testing.T) {
	doc, err := ParseTEI([]byte(sampleTEI))
	if err != nil {
		t.Fatalf("ParseTEI() error = %v", err)
	}

	if got := doc.Title(); got != "Neural ASR for Tonal Languages" {
		t.Errorf("Title() = %q", got)
	}
	if got := doc.Date(); got != "2023-10-27" {
		t.Errorf("Date() = %q", got)
	}
	if got := doc.DOI(); got != "10.1109/TASLP.2023.0001" {
		t.Errorf("DOI() = %q", got)
	}
	if got := doc.Abstract(); got != "We study ASR in low-resource settings." {
		t.Errorf("Abstract() = %q", got)
	}
	if got := doc.Keywords(); len(got) != 2 || got[0] != "speech recognition" || got[1] != "low-resource" {
		t.Errorf("Keywords() = %v", got)
	}

	refs := doc.References()
	if len(refs) != 2 {
		t.Fatalf("References() returned %d, want 2", len(refs))
	}
	want0 := reference.Stub{Title: "Attention Is All You Need", Authors: "Ashish Vaswani; Noam M Shazeer", Year: "2017", Venue: "NeurIPS"}
	if refs[0] != want0 {
		t.Errorf("References()[0] = %+v, want %+v", refs[0], want0)
	}
	if refs[1].Title != "Speech and Language Processing" || refs[1].Venue != "Pearson" || refs[1].Year != "2009" {
		t.Errorf("References()[1] = %+v", refs[1])
	}

	authors := doc.Authors()
	if len(authors) != 1 {
		t.Fatalf("Authors() = %+v, want only the affiliated author", authors)
	}
	if authors[0].Name != "Wei Zhang" {
		t.Errorf("author name = %q", authors[0].Name)
	}
	if len(authors[0].Affiliations) != 1 || authors[0].Affiliations[0] != "Dept. of EE Tsinghua University, China" {
		t.Errorf("affiliations = %v, want one deduplicated entry", authors[0].Affiliations)
	}

	sections := doc.Sections()
	if len(sections) != 2 || sections[0].Heading != "Introduction" || sections[1].Text != "We train.\nWe test." {
		t.Errorf("Sections() = %+v", sections)
	}

	figs := doc.Figures()
	if len(figs) != 2 || figs[0].Type != "figure" || figs[1].Type != "table" || figs[0].Caption != "Model overview." || figs[0].ID != "fig_0" {
		t.Errorf("Figures() = %+v", figs)
	}

	formulas := doc.Formulas()
	if len(formulas) != 1 || formulas[0].ID != "formula_0" || formulas[0].Text != "y = Wx + b" {
		t.Errorf("Formulas() = %+v", formulas)
	}
}

func TestParseTEI_Empty(t *testing.T) {
	doc, err := ParseTEI([]byte(`<TEI xmlns="http://www.tei-c.org/ns/1.0"/>`))
	if err != nil {
		t.Fatalf("ParseTEI() error = %v", err)
	}
	if doc.References() == nil || doc.Authors() == nil || doc.Sections() == nil {
		t.Error("empty document should yield empty, non-nil slices")
	}
}

type fakeExtractor struct {
	tei   string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, pdfPath string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.tei), nil
}

func newTestEnricher(ex Extractor, logger *zap.Logger) *Enricher {
	e := NewEnricher(ex, logger)
	e.validate = func(string) error { return nil }
	e.extractDOI = func(string) (string, error) { return "", nil }
	return e
}

func TestEnrich_NoPDF(t *testing.T) {
	ex := &fakeExtractor{tei: sampleTEI}
	e := newTestEnricher(ex, nil)

	rec := e.Enrich(context.Background(), "", &reference.Record{Title: "Neural ASR"})
	if !errors.Is(rec.EnrichErr, ErrNoPDF) {
		t.Errorf("EnrichErr = %v, want ErrNoPDF", rec.EnrichErr)
	}
	if ex.calls != 0 {
		t.Errorf("extractor called %d times, want 0", ex.calls)
	}
	if rec.Aux.References == nil || len(rec.Aux.References) != 0 {
		t.Errorf("References = %#v, want empty non-nil", rec.Aux.References)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != reference.ProvenanceTag {
		t.Errorf("Tags = %v, want provenance tag", rec.Tags)
	}
}

func TestEnrich_TitleConflictKeepsExisting(t *testing.T) {
	tei := strings.Replace(sampleTEI, "Neural ASR for Tonal Languages", "Bar", 2)
	core, logs := observer.New(zapcore.DebugLevel)
	e := newTestEnricher(&fakeExtractor{tei: tei}, zap.New(core))

	rec := e.Enrich(context.Background(), "paper.pdf", &reference.Record{Title: "Foo"})

	if rec.Title != "Foo" {
		t.Errorf("Title = %q, want Foo", rec.Title)
	}
	if !rec.Enriched() {
		t.Errorf("EnrichErr = %v, want nil", rec.EnrichErr)
	}
	entries := logs.FilterMessage("title mismatch").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d title mismatches, want 1", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("level = %v, want debug", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["have"] != "Foo" || fields["extracted"] != "Bar" {
		t.Errorf("fields = %v", fields)
	}
}

func TestEnrich_Merge(t *testing.T) {
	e := newTestEnricher(&fakeExtractor{tei: sampleTEI}, nil)
	rec := &reference.Record{
		Title: "neural asr for tonal languages",
		Date:  "2023-10-26",
		Tags:  []string{"ASR"},
	}

	rec = e.Enrich(context.Background(), "paper.pdf", rec)

	if rec.Title != "Neural Asr For Tonal Languages" {
		t.Errorf("Title = %q, want title-cased extraction", rec.Title)
	}
	if rec.Date != "2023-10-26" {
		t.Errorf("Date = %q, existing date must win", rec.Date)
	}
	if rec.DOI != "10.1109/TASLP.2023.0001" {
		t.Errorf("DOI = %q", rec.DOI)
	}
	if rec.Abstract == "" {
		t.Error("Abstract not filled")
	}
	wantTags := []string{"ASR", reference.ProvenanceTag, "speech recognition", "low-resource"}
	if strings.Join(rec.Tags, "|") != strings.Join(wantTags, "|") {
		t.Errorf("Tags = %v, want %v", rec.Tags, wantTags)
	}
	if len(rec.Aux.References) != 2 || len(rec.Aux.Sections) != 2 || len(rec.Aux.Authors) != 1 {
		t.Errorf("Aux = %+v", rec.Aux)
	}
}

func TestEnrich_TrustedTitleKeepsCasing(t *testing.T) {
	e := newTestEnricher(&fakeExtractor{tei: sampleTEI}, nil)
	rec := e.Enrich(context.Background(), "paper.pdf", &reference.Record{
		Title:        "Neural ASR for tonal languages",
		TitleTrusted: true,
	})
	if rec.Title != "Neural ASR for tonal languages" {
		t.Errorf("Title = %q, trusted title must not change", rec.Title)
	}
}

func TestEnrich_DOIFallback(t *testing.T) {
	tei := strings.Replace(sampleTEI, `<idno type="DOI">10.1109/TASLP.2023.0001</idno>`, "", 1)
	e := newTestEnricher(&fakeExtractor{tei: tei}, nil)
	e.extractDOI = func(string) (string, error) { return "10.21437/Interspeech.2023-1", nil }

	rec := e.Enrich(context.Background(), "paper.pdf", &reference.Record{})
	if rec.DOI != "10.21437/Interspeech.2023-1" {
		t.Errorf("DOI = %q, want fallback DOI", rec.DOI)
	}
}

func TestEnrich_UnreachableEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	client := NewClient([]string{srv.URL, srv.URL + "/"}, WithProbeTimeout(time.Second))
	e := newTestEnricher(client, zap.New(core))

	rec := e.Enrich(context.Background(), writeTempPDF(t), &reference.Record{Title: "Neural ASR", TitleTrusted: true})

	if !errors.Is(rec.EnrichErr, ErrNoEndpoint) {
		t.Errorf("EnrichErr = %v, want ErrNoEndpoint", rec.EnrichErr)
	}
	if rec.Title != "Neural ASR" {
		t.Errorf("Title = %q", rec.Title)
	}
	if len(rec.Aux.References) != 0 || rec.Aux.References == nil {
		t.Errorf("References = %#v, want empty", rec.Aux.References)
	}
	if logs.FilterMessage("extraction unavailable").Len() != 1 {
		t.Errorf("warning not logged: %v", logs.All())
	}
}

func TestField_RecoversPanic(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := newTestEnricher(&fakeExtractor{}, nil)

	ran := false
	e.field(zap.New(core), "keywords", func() { panic("boom") })
	e.field(zap.New(core), "sections", func() { ran = true })

	if !ran {
		t.Error("later field did not run")
	}
	entries := logs.FilterMessage("field extraction failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["field"] != "keywords" {
		t.Errorf("logged %v", entries)
	}
}

func writeTempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClient_Extract(t *testing.T) {
	var processed []string
	handler := func(alive string, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/isalive":
				w.Write([]byte(alive))
			case "/api/processFulltextDocument":
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("ParseMultipartForm: %v", err)
				}
				if _, _, err := r.FormFile("input"); err != nil {
					t.Errorf("missing input file: %v", err)
				}
				if r.FormValue("consolidateHeader") != "1" {
					t.Errorf("consolidateHeader = %q", r.FormValue("consolidateHeader"))
				}
				processed = append(processed, r.Host)
				w.Write([]byte(body))
			}
		}
	}

	dead := httptest.NewServer(handler("false", ""))
	defer dead.Close()
	broken := httptest.NewServer(handler("true", "[GENERAL] An exception occurred while running Grobid."))
	defer broken.Close()
	good := httptest.NewServer(handler("true", sampleTEI))
	defer good.Close()

	c := NewClient([]string{dead.URL, broken.URL + "/", good.URL})
	tei, err := c.Extract(context.Background(), writeTempPDF(t))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(string(tei), "Neural ASR") {
		t.Errorf("Extract() returned wrong document")
	}
	if len(processed) != 2 {
		t.Errorf("processed on %d endpoints, want 2 (broken then good)", len(processed))
	}

	status := c.Probe(context.Background())
	if len(status) != 3 || status[0].Alive || !status[1].Alive || !status[2].Alive {
		t.Errorf("Probe() = %+v", status)
	}
}
