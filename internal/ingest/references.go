package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/reference"
)

// ReferenceCreator creates library items for cited papers missing from
// the library. Its items are not linked further.
type ReferenceCreator struct {
	library    Library
	resolver   Resolver
	enricher   Enricher
	downloader Downloader
	dir        string
	collection string
	logger     *zap.Logger
}

// NewReferenceCreator builds a creator from pipeline dependencies.
func NewReferenceCreator(deps Deps) *ReferenceCreator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceCreator{
		library:    deps.Library,
		resolver:   deps.Resolver,
		enricher:   deps.Enricher,
		downloader: deps.Downloader,
		dir:        filepath.Join(deps.SaveRoot, DatabaseDir),
		collection: deps.ReferenceCollection,
		logger:     logger,
	}
}

// Create resolves stub, enriches it from its PDF when the resolved URL
// points at one, and stores the result.
func (c *ReferenceCreator) Create(ctx context.Context, stub reference.Stub) (reference.Item, error) {
	log := c.logger.With(zap.String("reference", stub.Title))
	rec := c.resolver.Resolve(ctx, stub)

	pdfPath := ""
	if strings.HasSuffix(strings.ToLower(rec.URL), ".pdf") {
		path := filepath.Join(c.dir, referencePDFName(rec.Title, rec.URL))
		if err := c.downloader.Download(ctx, rec.URL, path); err != nil {
			log.Warn("reference PDF download failed", zap.Error(err))
		} else {
			pdfPath = path
		}
	}
	c.enricher.Enrich(ctx, pdfPath, rec)

	if len(rec.Aux.Authors) > 0 {
		names := make([]string, len(rec.Aux.Authors))
		for i, a := range rec.Aux.Authors {
			names[i] = a.Name
		}
		rec.Creators = reference.CreatorsFromNames(names)
	}
	if c.collection != "" {
		rec.Collections = []string{c.collection}
	}

	return createOne(ctx, c.library, rec.Payload(), ErrCreateInvariant)
}

// referencePDFName names a reference's PDF after its title slug and a
// digest of its URL. Slugs collide for titles differing only in
// punctuation and are empty for non-Latin titles; the digest does not.
func referencePDFName(title, pdfURL string) string {
	digest := uuid.NewSHA1(uuid.NameSpaceURL, []byte(pdfURL)).String()[:8]
	if slug := reference.Slug(title); slug != "" {
		return slug + "-" + digest + ".pdf"
	}
	return digest + ".pdf"
}
