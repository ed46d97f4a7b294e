package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/arxiv"
	"github.com/matsen/paperfeed/internal/config"
	"github.com/matsen/paperfeed/internal/grobid"
	"github.com/matsen/paperfeed/internal/ingest"
	"github.com/matsen/paperfeed/internal/storage"
)

var runWorkers int

var runCmd = &cobra.Command{
	Use:   "run [search...]",
	Short: "Ingest the results of configured searches",
	Long: `Run every configured search, or only the named ones, and ingest new papers.

Per-paper failures are logged and recorded in the history; the run continues
with the next paper. The exit code is non-zero when any paper failed.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent reference creations (default 64)")
	rootCmd.AddCommand(runCmd)
}

// SearchReport is the JSON output of one search.
type SearchReport struct {
	Search  string          `json:"search"`
	Error   string          `json:"error,omitempty"`
	Reports []ingest.Report `json:"papers"`
}

func runRun(cmd *cobra.Command, args []string) error {
	mustValidateConfig()

	searches := cfg.Searches
	if len(args) > 0 {
		searches = nil
		for _, name := range args {
			s, ok := cfg.Search(name)
			if !ok {
				exitWithError(ExitConfigError, "unknown search %q", name)
			}
			searches = append(searches, s)
		}
	}

	out := ingestSearches(searches)
	if humanOutput {
		printRunReports(out)
	} else {
		outputJSON(out)
	}
	if partialFailure(out) {
		os.Exit(ExitPartial)
	}
	return nil
}

// ingestSearches runs each search in turn. It owns the ledger and the
// signal context, so both are released before the caller picks an exit code.
func ingestSearches(searches []config.Search) []SearchReport {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	idx, _ := mustOpenIndex()
	ledger := mustOpenLedger()
	defer ledger.Close()

	extractor := mustNewGrobid()
	for _, st := range extractor.Probe(ctx) {
		if !st.Alive {
			logger.Warn("GROBID endpoint not alive", zap.String("url", st.URL), zap.String("error", st.Error))
		}
	}

	arxivClient := arxiv.NewClient()
	pipeline, err := ingest.New(ingest.Deps{
		Library:             mustNewZotero(),
		Feed:                arxivClient,
		Downloader:          arxivClient,
		Enricher:            grobid.NewEnricher(extractor, logger),
		Resolver:            newResolver(),
		Index:               idx,
		Ledger:              ledger,
		Logger:              logger,
		SaveRoot:            cfg.SaveRoot,
		Location:            loc,
		ReferenceCollection: cfg.ReferenceCollection,
		Workers:             runWorkers,
		Progress: func(done, total int) {
			logger.Debug("linking progress", zap.Int("done", done), zap.Int("total", total))
		},
	})
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	out := make([]SearchReport, 0, len(searches))
	for _, s := range searches {
		out = append(out, runSearch(ctx, pipeline, s))
		if ctx.Err() != nil {
			break
		}
	}

	if entries, err := storage.ReadTitles(cfg.TitleCachePath()); err == nil {
		if _, err := ledger.RebuildTitles(entries); err != nil {
			logger.Warn("title search index not refreshed", zap.Error(err))
		}
	}
	return out
}

func runSearch(ctx context.Context, p *ingest.Pipeline, s config.Search) SearchReport {
	reports, err := p.RunSearch(ctx, s)
	sr := SearchReport{Search: s.Name, Reports: reports}
	if sr.Reports == nil {
		sr.Reports = []ingest.Report{}
	}
	if err != nil {
		logger.Error("search failed", zap.String("search", s.Name), zap.Error(err))
		sr.Error = err.Error()
	}
	return sr
}

// partialFailure reports whether any search or paper of the run failed.
func partialFailure(out []SearchReport) bool {
	for _, sr := range out {
		if sr.Error != "" {
			return true
		}
		for _, r := range sr.Reports {
			if r.State == ingest.Failed {
				return true
			}
		}
	}
	return false
}

func printRunReports(out []SearchReport) {
	for _, sr := range out {
		outputHuman("%s\n", sr.Search)
		if sr.Error != "" {
			outputHuman("  search failed: %s\n", sr.Error)
		}
		counts := map[string]int{}
		for _, r := range sr.Reports {
			counts[r.Status]++
			line := "  " + r.Status + "  " + truncateString(r.Title, ReportTitleMaxLen)
			if r.State == ingest.Complete {
				outputHuman("%s  (%d/%d refs linked)\n", line, r.Linked, r.Refs)
			} else if r.State == ingest.Failed {
				outputHuman("%s  [%s] %s\n", line, r.Stage, r.Error)
			} else {
				outputHuman("%s\n", line)
			}
		}
		outputHuman("  %d complete, %d skipped, %d cached, %d failed\n\n",
			counts["complete"], counts["skipped"], counts["skipped_cached"], counts["failed"])
	}
}
