package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/arxiv"
	"github.com/matsen/paperfeed/internal/config"
	"github.com/matsen/paperfeed/internal/linker"
	"github.com/matsen/paperfeed/internal/note"
	"github.com/matsen/paperfeed/internal/reference"
	"github.com/matsen/paperfeed/internal/storage"
	"github.com/matsen/paperfeed/internal/zotero"
)

// Pipeline processes search results one at a time.
type Pipeline struct {
	deps   Deps
	linker *linker.Linker
	refs   *ReferenceCreator
}

// New validates deps and builds a pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Library == nil:
		return nil, errors.New("ingest: library is required")
	case deps.Downloader == nil:
		return nil, errors.New("ingest: downloader is required")
	case deps.Enricher == nil:
		return nil, errors.New("ingest: enricher is required")
	case deps.Resolver == nil:
		return nil, errors.New("ingest: resolver is required")
	case deps.Index == nil:
		return nil, errors.New("ingest: title index is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	p := &Pipeline{deps: deps}
	p.refs = NewReferenceCreator(deps)

	opts := []linker.Option{linker.WithLogger(deps.Logger), linker.WithWorkers(deps.Workers)}
	if deps.Progress != nil {
		opts = append(opts, linker.WithProgress(deps.Progress))
	}
	p.linker = linker.New(deps.Library, p.refs.Create, deps.Index, deps.Library.Library(), opts...)
	return p, nil
}

// RunSearch fetches the results of a search and processes each of them.
// Per-paper failures are logged and reported, never returned; the error
// is reserved for a search that could not be run at all.
func (p *Pipeline) RunSearch(ctx context.Context, s config.Search) ([]Report, error) {
	if p.deps.Feed == nil {
		return nil, errors.New("ingest: feed is required to run a search")
	}
	log := p.deps.Logger.With(zap.String("search", s.Name))

	ids := append([]string(nil), s.IDs...)
	for _, cat := range s.RSSCategories {
		found, err := p.deps.Feed.FeedIDs(ctx, cat)
		if err != nil {
			log.Warn("RSS feed unavailable", zap.String("category", cat), zap.Error(err))
			continue
		}
		log.Info("harvested RSS ids", zap.String("category", cat), zap.Int("count", len(found)))
		ids = append(ids, found...)
	}
	if s.Query == "" && len(ids) == 0 {
		log.Info("nothing to search")
		return nil, nil
	}

	limit := s.MaxResults
	if limit <= 0 || (len(s.RSSCategories) > 0 && len(ids) > limit) {
		limit = len(ids)
	}
	results, err := p.deps.Feed.Search(ctx, arxiv.Query{Search: s.Query, IDs: ids, MaxResults: limit})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.Name, err)
	}
	log.Info("search results", zap.Int("count", len(results)))

	reports := make([]Report, 0, len(results))
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r := p.safeProcess(ctx, s, res)
		p.record(s, r)
		reports = append(reports, r)
	}
	return reports, nil
}

// safeProcess turns a panic inside Process into a Failed report.
func (p *Pipeline) safeProcess(ctx context.Context, s config.Search, res arxiv.Result) (r Report) {
	defer func() {
		if v := recover(); v != nil {
			r = Report{ArxivID: res.ID, Title: res.Title}
			r.fail("panic", fmt.Errorf("%v\n%s", v, debug.Stack()))
			r.Status = r.State.String()
		}
	}()
	return p.Process(ctx, s, res)
}

func (p *Pipeline) record(s config.Search, r Report) {
	log := p.deps.Logger.With(zap.String("title", r.Title), zap.String("arxiv_id", r.ArxivID))
	switch r.State {
	case Failed:
		log.Error("paper failed", zap.String("stage", r.Stage), zap.Error(r.err))
	case Complete:
		log.Info("paper ingested", zap.String("key", r.ItemKey), zap.Int("refs", r.Refs), zap.Int("linked", r.Linked))
	default:
		log.Debug("paper skipped", zap.String("status", r.Status))
	}

	if p.deps.Ledger == nil {
		return
	}
	err := p.deps.Ledger.Record(storage.Outcome{
		Search:  s.Name,
		ArxivID: r.ArxivID,
		Title:   r.Title,
		ItemKey: r.ItemKey,
		Status:  r.Status,
		Stage:   r.Stage,
		Error:   r.Error,
		Refs:    r.Refs,
		Linked:  r.Linked,
	})
	if err != nil {
		log.Warn("ledger write failed", zap.Error(err))
	}
}

// Process runs one search result through the pipeline.
func (p *Pipeline) Process(ctx context.Context, s config.Search, res arxiv.Result) Report {
	r := Report{ArxivID: res.ID, Title: res.Title}
	p.process(ctx, s, res, &r)
	r.Status = r.State.String()
	return r
}

func (p *Pipeline) process(ctx context.Context, s config.Search, res arxiv.Result, r *Report) {
	log := p.deps.Logger.With(zap.String("title", res.Title))

	if p.deps.Index.Contains(res.Title) {
		log.Debug("title cached")
		r.State = Skipped
		return
	}
	hits, err := p.deps.Library.FindByTitle(ctx, res.Title)
	if err != nil {
		r.fail(StageLookup, err)
		return
	}
	if hit, ok := hits[reference.NormalizeTitle(res.Title)]; ok {
		log.Info("already in library, caching", zap.String("key", hit.Key))
		r.State = SkippedCached
		r.ItemKey = hit.Key
		if err := p.deps.Index.Record(res.Title, hit.Key); err != nil {
			log.Warn("title index write failed", zap.Error(err))
		}
		return
	}

	pdfPath := filepath.Join(p.deps.SaveRoot, s.Name, reference.PDFFileName(res.Updated, p.deps.Location, res.ID, res.Title))
	if err := p.deps.Downloader.Download(ctx, res.PDFURL(), pdfPath); err != nil {
		log.Warn("download failed, continuing without PDF", zap.Error(err))
		pdfPath = ""
	}

	rec := res.Record(p.deps.Location, p.deps.Now())
	rec.Collections = []string{s.Collection}
	p.deps.Enricher.Enrich(ctx, pdfPath, rec)
	rec.AddTags(s.Tags...)
	if !rec.Enriched() {
		log.Warn("creating without extracted metadata", zap.Error(rec.EnrichErr))
	}

	item, err := createOne(ctx, p.deps.Library, rec.Payload(), ErrCreateInvariant)
	if err != nil {
		r.fail(StageCreate, err)
		return
	}
	r.ItemKey = item.Key
	log = log.With(zap.String("key", item.Key))

	if rec.Enriched() {
		html, err := note.RenderHTML(note.FromRecord(rec))
		if err != nil {
			r.fail(StageNote, err)
			return
		}
		if _, err := createOne(ctx, p.deps.Library, reference.NewNote(item.Key, html), ErrNoteInvariant); err != nil {
			r.fail(StageNote, err)
			return
		}
	}

	if err := p.deps.Index.Record(res.Title, item.Key); err != nil {
		r.fail(StageCache, err)
		return
	}

	refs := rec.Aux.References
	r.Refs = len(refs)
	if len(refs) == 0 {
		r.State = Complete
		return
	}

	log.Info("linking references", zap.Int("count", len(refs)))
	links := make([]string, 0, len(refs))
	for _, h := range p.linker.Link(ctx, refs) {
		if h != nil {
			links = append(links, *h)
		}
	}
	r.Linked = len(links)

	if err := p.updateRelations(ctx, log, item, links); err != nil {
		r.fail(StageRelation, err)
		return
	}
	r.State = Complete
}

// createOne writes a single item and insists the library accepted exactly one.
func createOne(ctx context.Context, lib Library, data reference.ItemData, invariant error) (reference.Item, error) {
	res, err := lib.CreateItems(ctx, []reference.ItemData{data})
	if err != nil {
		return reference.Item{}, err
	}
	if len(res.Successful) != 1 {
		return reference.Item{}, fmt.Errorf("%w: %d created, failures %v", invariant, len(res.Successful), res.Failed)
	}
	for _, item := range res.Successful {
		return item, nil
	}
	return reference.Item{}, invariant
}

// updateRelations sets the item's relations. On a version conflict the
// item is re-fetched by title and the update retried once.
func (p *Pipeline) updateRelations(ctx context.Context, log *zap.Logger, item reference.Item, links []string) error {
	rel := reference.Relations{reference.RelationPredicate: links}

	_, err := p.deps.Library.UpdateRelations(ctx, item, rel)
	if err == nil {
		return nil
	}
	if !zotero.IsVersionConflict(err) {
		return fmt.Errorf("%w: %v", ErrRelationUpdate, err)
	}

	log.Warn("version conflict, refetching item", zap.Error(err))
	hits, ferr := p.deps.Library.FindByTitle(ctx, item.Title())
	if ferr != nil {
		return fmt.Errorf("%w: refetch: %v", ErrRelationUpdate, ferr)
	}
	fresh, ok := hits[reference.NormalizeTitle(item.Title())]
	if !ok {
		return fmt.Errorf("%w: item %s not found on refetch", ErrRelationUpdate, item.Key)
	}
	if _, err := p.deps.Library.UpdateRelations(ctx, fresh, rel); err != nil {
		return fmt.Errorf("%w: retry: %v", ErrRelationUpdate, err)
	}
	return nil
}
