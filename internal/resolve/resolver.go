package resolve

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/reference"
)

// DefaultLimit is the number of hits requested from each provider.
const DefaultLimit = 5

// DefaultJitter bounds the random pause before each provider call.
const DefaultJitter = time.Second

// Resolver asks providers, in order, for the best match to a stub.
type Resolver struct {
	providers []Provider
	logger    *zap.Logger
	limit     int
	jitter    time.Duration
	now       func() time.Time
	sleep     func(context.Context, time.Duration)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithJitter sets the upper bound of the random pre-call pause; zero disables it.
func WithJitter(d time.Duration) Option {
	return func(r *Resolver) {
		r.jitter = d
	}
}

// WithLimit sets how many hits each provider returns.
func WithLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithClock sets the clock used to date citation counts.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// New creates a resolver over providers, tried in order.
func New(providers []Provider, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		providers: providers,
		logger:    logger,
		limit:     DefaultLimit,
		jitter:    DefaultJitter,
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Baseline builds the fallback record from the stub alone.
func Baseline(stub reference.Stub) *reference.Record {
	return &reference.Record{
		ItemType:         reference.TypeConferencePaper,
		Title:            stub.Title,
		Creators:         reference.ParseAuthorList(stub.Authors),
		Date:             stub.Year,
		ProceedingsTitle: stub.Venue,
		ConferenceName:   stub.Venue,
	}
}

// Resolve returns the baseline record for stub, overlaid with the first
// provider match. It never fails: provider errors and empty results are
// logged and leave the baseline as is.
func (r *Resolver) Resolve(ctx context.Context, stub reference.Stub) *reference.Record {
	rec := Baseline(stub)
	log := r.logger.With(zap.String("title", stub.Title))

	for _, p := range r.providers {
		if r.jitter > 0 {
			r.sleep(ctx, rand.N(r.jitter))
		}
		switch out := p.Search(ctx, stub.Title, r.limit).(type) {
		case Match:
			log.Debug("resolved", zap.String("provider", p.Name()), zap.String("match", out.Candidate.Title))
			r.overlay(log, rec, out.Candidate)
			return rec
		case ProviderError:
			log.Warn("provider failed, keeping baseline", zap.String("provider", p.Name()), zap.Error(out.Err))
			return rec
		case NoMatch:
			log.Debug("no match", zap.String("provider", p.Name()))
		}
	}
	return rec
}

// overlay copies the candidate's fields onto rec.
func (r *Resolver) overlay(log *zap.Logger, rec *reference.Record, c Candidate) {
	rec.Abstract = c.Abstract
	if c.Date != "" {
		rec.Date = c.Date
	}
	rec.ProceedingsTitle = c.Journal
	rec.ConferenceName = c.Venue
	rec.Volume = c.Volume
	rec.Pages = c.Pages
	rec.DOI = c.DOI
	rec.Archive = c.ArxivID

	if c.ArxivID != "" {
		rec.URL = ArxivPDFURL(c.ArxivID)
		rec.ArchiveLocation = rec.URL
	} else {
		rec.URL = c.VenueURL
	}

	rec.LibraryCatalog = strings.Join(c.Fields, ", ")
	rec.AddTags(c.Fields...)
	rec.Extra = Extra(c, r.now())

	if creators, err := candidateCreators(c.Authors); err != nil {
		log.Warn("provider authors unusable, keeping stub authors", zap.Error(err))
	} else if len(creators) > 0 {
		rec.Creators = creators
	}
}

// candidateCreators builds creators from provider author names. A
// malformed entry surfaces as an error instead of taking down the record.
func candidateCreators(names []string) (creators []reference.Creator, err error) {
	defer func() {
		if p := recover(); p != nil {
			creators, err = nil, fmt.Errorf("building creators: %v", p)
		}
	}()
	return reference.CreatorsFromNames(names), nil
}

// ArxivPDFURL returns the PDF link of an arXiv identifier.
func ArxivPDFURL(id string) string {
	return "https://arxiv.org/pdf/" + id + ".pdf"
}

// Extra renders the free-text provenance block stored on the item:
// venue URL, provider URL, DBLP key and the citation count as of now.
func Extra(c Candidate, now time.Time) string {
	var b strings.Builder
	b.WriteString("pub_urls:\n")
	b.WriteString(" - public:" + c.VenueURL + "\n")
	b.WriteString(" - semantic-sch: " + c.URL + "\n")
	b.WriteString("DBLP-ID: " + c.DBLPKey + "\n")
	b.WriteString("citations: " + strconv.Itoa(c.Citations) + " till " + now.Format("2006-01-02") + "\n")
	return b.String()
}
