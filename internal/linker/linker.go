// Package linker resolves a paper's reference list into library items,
// creating the missing ones through a bounded worker pool.
package linker

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/paperfeed/internal/reference"
	"github.com/matsen/paperfeed/internal/titleindex"
	"github.com/matsen/paperfeed/internal/zotero"
)

// DefaultWorkers bounds concurrent reference creations.
const DefaultWorkers = 64

// Lookup finds library items by title. Results are keyed by normalized
// title and may contain near matches.
type Lookup interface {
	FindByTitle(ctx context.Context, title string) (map[string]reference.Item, error)
}

// CreateFunc builds and stores an item for a reference missing from the library.
type CreateFunc func(ctx context.Context, stub reference.Stub) (reference.Item, error)

// ProgressFunc is called once per reference with the running count.
type ProgressFunc func(done, total int)

// Linker turns references into relation handles.
type Linker struct {
	lookup   Lookup
	create   CreateFunc
	index    *titleindex.Index
	library  reference.Library
	logger   *zap.Logger
	workers  int
	progress ProgressFunc
}

// Option configures a Linker.
type Option func(*Linker)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(l *Linker) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Linker) {
		l.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Linker) {
		l.logger = logger
	}
}

// New creates a Linker. Items already in the index are linked without a
// lookup; library identifies them.
func New(lookup Lookup, create CreateFunc, index *titleindex.Index, library reference.Library, opts ...Option) *Linker {
	l := &Linker{
		lookup:   lookup,
		create:   create,
		index:    index,
		library:  library,
		logger:   zap.NewNop(),
		workers:  DefaultWorkers,
		progress: func(int, int) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// result is the outcome of one creation task: exactly one of item or err.
type result struct {
	item reference.Item
	err  error
}

// Link returns one handle per reference, in input order. A nil entry
// marks a reference that was skipped or could not be linked.
func (l *Linker) Link(ctx context.Context, refs []reference.Stub) []*string {
	handles := make([]*string, len(refs))
	results := make([]*result, len(refs))
	total := len(refs)
	done := 0
	tick := func() {
		done++
		l.progress(done, total)
	}

	var g errgroup.Group
	g.SetLimit(l.workers)
	pending := make(chan int, len(refs))

	for i, ref := range refs {
		log := l.logger.With(zap.String("reference", ref.Title))
		if ref.Title == "" {
			log.Debug("reference without title, skipped", zap.Int("index", i))
			tick()
			continue
		}

		if key, ok := l.index.Key(ref.Title); ok && key != "" {
			handles[i] = handle(reference.Item{Key: key, Library: l.library})
			tick()
			continue
		}

		hits, err := l.lookup.FindByTitle(ctx, ref.Title)
		if err != nil {
			log.Warn("reference lookup failed", zap.Error(err))
			tick()
			continue
		}
		if item, ok := hits[reference.NormalizeTitle(ref.Title)]; ok {
			l.remember(log, item, ref.Title)
			handles[i] = handle(item)
			tick()
			continue
		}

		results[i] = &result{}
		g.Go(func() error {
			*results[i] = l.run(ctx, ref)
			pending <- i
			return nil
		})
	}

	go func() {
		g.Wait()
		close(pending)
	}()
	for i := range pending {
		res := results[i]
		log := l.logger.With(zap.String("reference", refs[i].Title))
		if res.err != nil {
			log.Warn("reference not linked", zap.Error(res.err))
		} else {
			l.remember(log, res.item, refs[i].Title)
			handles[i] = handle(res.item)
		}
		tick()
	}
	return handles
}

// run creates one reference, converting a panic into an error. The
// created item is recorded in the index before the in-flight call ends,
// so a later task for the same title finds it instead of creating again.
func (l *Linker) run(ctx context.Context, ref reference.Stub) (res result) {
	defer func() {
		if p := recover(); p != nil {
			res = result{err: fmt.Errorf("panic creating reference: %v\n%s", p, debug.Stack())}
		}
	}()
	log := l.logger.With(zap.String("reference", ref.Title))
	item, err := l.index.Once(ref.Title, func() (reference.Item, error) {
		if key, ok := l.index.Key(ref.Title); ok && key != "" {
			return reference.Item{Key: key, Library: l.library}, nil
		}
		item, err := l.create(ctx, ref)
		if err != nil {
			return reference.Item{}, err
		}
		l.remember(log, item, ref.Title)
		return item, nil
	})
	if err != nil {
		return result{err: err}
	}
	return result{item: item}
}

// remember records an item under its own title and the title it was
// cited as, skipping titles already known.
func (l *Linker) remember(log *zap.Logger, item reference.Item, cited string) {
	for _, title := range []string{item.Title(), cited} {
		if title == "" || l.index.Contains(title) {
			continue
		}
		if err := l.index.Record(title, item.Key); err != nil {
			log.Warn("title index write failed", zap.Error(err))
		}
	}
}

func handle(item reference.Item) *string {
	h := zotero.RelationURL(item)
	return &h
}
