package grobid

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/pdf"
	"github.com/matsen/paperfeed/internal/reference"
)

// Extractor turns a PDF into a TEI document. *Client implements it.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) ([]byte, error)
}

// Enricher merges extracted metadata into records.
type Enricher struct {
	extractor  Extractor
	logger     *zap.Logger
	validate   func(string) error
	extractDOI func(string) (string, error)
}

// NewEnricher creates an enricher backed by extractor.
func NewEnricher(extractor Extractor, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		extractor:  extractor,
		logger:     logger,
		validate:   pdf.Validate,
		extractDOI: pdf.ExtractDOI,
	}
}

// Enrich fills rec from the PDF at pdfPath and returns it.
//
// The provenance tag is always added and the auxiliary fields always end
// up non-nil. rec.EnrichErr stays set unless extraction succeeds; a
// missing PDF or an unreachable service is recorded there, never returned.
func (e *Enricher) Enrich(ctx context.Context, pdfPath string, rec *reference.Record) *reference.Record {
	log := e.logger.With(zap.String("title", rec.Title))

	rec.ResetAux()
	rec.AddTags(reference.ProvenanceTag)

	if pdfPath == "" {
		rec.EnrichErr = ErrNoPDF
		return rec
	}
	if err := e.validate(pdfPath); err != nil {
		rec.EnrichErr = fmt.Errorf("%w: %v", ErrInvalidPDF, err)
		log.Warn("skipping extraction", zap.String("pdf", pdfPath), zap.Error(err))
		return rec
	}

	data, err := e.extractor.Extract(ctx, pdfPath)
	if err != nil {
		rec.EnrichErr = err
		log.Warn("extraction unavailable", zap.Error(err))
		return rec
	}
	doc, err := ParseTEI(data)
	if err != nil {
		rec.EnrichErr = err
		log.Warn("extraction returned unreadable TEI", zap.Error(err))
		return rec
	}
	rec.EnrichErr = nil

	e.field(log, "header", func() { mergeHeader(log, rec, doc) })
	e.field(log, "keywords", func() { rec.AddTags(doc.Keywords()...) })
	e.field(log, "references", func() { rec.Aux.References = doc.References() })
	e.field(log, "authors", func() { rec.Aux.Authors = doc.Authors() })
	e.field(log, "sections", func() { rec.Aux.Sections = doc.Sections() })
	e.field(log, "figures", func() { rec.Aux.Figures = doc.Figures() })
	e.field(log, "formulas", func() { rec.Aux.Formulas = doc.Formulas() })

	if rec.DOI == "" {
		if doi, err := e.extractDOI(pdfPath); err != nil {
			log.Debug("DOI scan failed", zap.Error(err))
		} else if doi != "" {
			rec.DOI = doi
		}
	}
	return rec
}

// field runs one merge step; a panic in it is logged and contained.
func (e *Enricher) field(log *zap.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("field extraction failed", zap.String("field", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// mergeHeader applies the header fields. Title, date and DOI already on
// the record win over extracted ones; a mismatch is logged.
func mergeHeader(log *zap.Logger, rec *reference.Record, doc *Document) {
	if title := doc.Title(); title != "" {
		switch {
		case rec.Title != "" && !reference.SameTitle(rec.Title, title):
			log.Debug("title mismatch", zap.String("have", rec.Title), zap.String("extracted", title))
		case rec.TitleTrusted:
		default:
			rec.Title = reference.TitleCase(title)
		}
	}

	if date := doc.Date(); date != "" {
		if rec.Date != "" && rec.Date != date {
			log.Debug("date mismatch", zap.String("have", rec.Date), zap.String("extracted", date))
		} else {
			rec.Date = date
		}
	}

	if doi := doc.DOI(); doi != "" {
		if rec.DOI != "" && rec.DOI != doi {
			log.Debug("DOI mismatch", zap.String("have", rec.DOI), zap.String("extracted", doi))
		} else {
			rec.DOI = doi
		}
	}

	if rec.Abstract == "" {
		rec.Abstract = doc.Abstract()
	}
}
