// Package ingest moves arXiv search results into the library: dedup,
// download, enrichment, creation, summary note and reference linking.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/arxiv"
	"github.com/matsen/paperfeed/internal/reference"
	"github.com/matsen/paperfeed/internal/storage"
	"github.com/matsen/paperfeed/internal/titleindex"
	"github.com/matsen/paperfeed/internal/zotero"
)

// Invariant violations on remote writes. Each is fatal to the paper being processed.
var (
	ErrCreateInvariant = errors.New("item creation did not return exactly one item")
	ErrNoteInvariant   = errors.New("note creation did not return exactly one item")
	ErrRelationUpdate  = errors.New("relation update failed")
)

// DatabaseDir is the directory under the save root holding reference PDFs.
const DatabaseDir = "DATABASE"

// Library is the remote store.
type Library interface {
	Library() reference.Library
	FindByTitle(ctx context.Context, title string) (map[string]reference.Item, error)
	CreateItems(ctx context.Context, items []reference.ItemData) (*zotero.WriteResult, error)
	UpdateRelations(ctx context.Context, item reference.Item, relations reference.Relations) (int, error)
}

// Feed supplies search results.
type Feed interface {
	Search(ctx context.Context, q arxiv.Query) ([]arxiv.Result, error)
	FeedIDs(ctx context.Context, category string) ([]string, error)
}

// Downloader fetches a document to a local path.
type Downloader interface {
	Download(ctx context.Context, url, path string) error
}

// Enricher fills a record from its PDF.
type Enricher interface {
	Enrich(ctx context.Context, pdfPath string, rec *reference.Record) *reference.Record
}

// Resolver builds a record for a bare reference.
type Resolver interface {
	Resolve(ctx context.Context, stub reference.Stub) *reference.Record
}

// Ledger keeps a history of outcomes.
type Ledger interface {
	Record(o storage.Outcome) error
}

// Deps holds the collaborators of a pipeline. Ledger and Progress may be nil.
type Deps struct {
	Library    Library
	Feed       Feed
	Downloader Downloader
	Enricher   Enricher
	Resolver   Resolver
	Index      *titleindex.Index
	Ledger     Ledger
	Logger     *zap.Logger

	// SaveRoot is the directory PDFs are downloaded under.
	SaveRoot string
	// Location renders dates and file names; nil means UTC.
	Location *time.Location
	// ReferenceCollection receives items created for cited papers.
	ReferenceCollection string
	// Workers bounds concurrent reference creations; zero means the linker default.
	Workers int
	// Progress is called once per reference while linking.
	Progress func(done, total int)
	// Now defaults to time.Now.
	Now func() time.Time
}

// State is the terminal outcome of one search result.
type State int

const (
	Failed State = iota
	Skipped
	SkippedCached
	Complete
)

func (s State) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case SkippedCached:
		return "skipped_cached"
	case Complete:
		return "complete"
	default:
		return "failed"
	}
}

// Stages a paper moves through, used to report where a failure happened.
const (
	StageLookup   = "lookup"
	StageDownload = "download"
	StageEnrich   = "enrich"
	StageCreate   = "create"
	StageNote     = "note"
	StageCache    = "cache"
	StageLink     = "link"
	StageRelation = "relations"
)

// Report describes what happened to one search result.
type Report struct {
	ArxivID string `json:"arxiv_id"`
	Title   string `json:"title"`
	State   State  `json:"-"`
	Status  string `json:"status"`
	Stage   string `json:"stage,omitempty"`
	ItemKey string `json:"item_key,omitempty"`
	Error   string `json:"error,omitempty"`
	Refs    int    `json:"refs"`
	Linked  int    `json:"linked"`

	err error
}

// Err returns the failure of a Failed report.
func (r Report) Err() error {
	return r.err
}

func (r *Report) fail(stage string, err error) {
	r.State = Failed
	r.Stage = stage
	r.err = err
	r.Error = err.Error()
}
