package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/matsen/paperfeed/internal/config"
	"github.com/matsen/paperfeed/internal/dblp"
	"github.com/matsen/paperfeed/internal/grobid"
	"github.com/matsen/paperfeed/internal/resolve"
	"github.com/matsen/paperfeed/internal/s2"
	"github.com/matsen/paperfeed/internal/storage"
	"github.com/matsen/paperfeed/internal/titleindex"
	"github.com/matsen/paperfeed/internal/zotero"
)

// mustValidateConfig checks the settings an ingestion run needs, exits on error.
func mustValidateConfig() {
	if err := cfg.Validate(); err != nil {
		if humanOutput {
			fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		}
		exitWithError(ExitConfigError, "invalid config: %v", err)
	}
}

// mustNewZotero builds the library client, exits on error.
func mustNewZotero() *zotero.Client {
	lib, err := cfg.Library()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return zotero.NewClient(lib, zotero.WithAPIKey(cfg.ZoteroKey))
}

// newResolver builds the candidate resolver over the configured providers.
func newResolver() *resolve.Resolver {
	var providers []resolve.Provider
	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderS2:
			providers = append(providers, s2.NewClient(s2.WithAPIKey(cfg.S2APIKey)))
		case config.ProviderDBLP:
			providers = append(providers, dblp.NewClient(dblp.WithArxiv(cfg.DBLPIncludeArxiv)))
		}
	}
	return resolve.New(providers, logger)
}

// mustNewGrobid builds the extraction client, exits if no endpoint is configured.
func mustNewGrobid() *grobid.Client {
	if len(cfg.GrobidURLs) == 0 {
		exitWithError(ExitConfigError, "no GROBID endpoints configured (set GROBID_URLS)")
	}
	return grobid.NewClient(cfg.GrobidURLs)
}

// mustOpenIndex loads the title cache, exits on error.
func mustOpenIndex() (*titleindex.Index, *storage.TitleFile) {
	file := storage.NewTitleFile(cfg.TitleCachePath())
	idx, err := titleindex.Open(file)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	return idx, file
}

// mustOpenLedger opens the run ledger, exits on error.
// The caller is responsible for calling Close() on the returned ledger.
func mustOpenLedger() *storage.Ledger {
	path := cfg.LedgerPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		exitWithError(ExitDataError, "creating data directory: %v", err)
	}
	ledger, err := storage.OpenLedger(path)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	return ledger
}
