package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperfeed/internal/reference"
	"github.com/matsen/paperfeed/internal/storage"
)

var cacheSearchLimit int

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local title cache",
	Long: `The title cache records every title known to be in the library, one
"normalized title<TAB>item key" pair per line. It is what lets a run skip
papers without asking the library.`,
}

var cacheCheckCmd = &cobra.Command{
	Use:   "check <title>",
	Short: "Report whether a title is cached",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheCheck,
}

var cacheAddCmd = &cobra.Command{
	Use:   "add <title> <key>",
	Short: "Record a title and its item key",
	Args:  cobra.ExactArgs(2),
	RunE:  runCacheAdd,
}

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the full-text title index from the cache file",
	RunE:  runCacheRebuild,
}

var cacheSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over cached titles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheSearch,
}

func init() {
	cacheSearchCmd.Flags().IntVarP(&cacheSearchLimit, "limit", "n", 20, "Maximum results")
	cacheCmd.AddCommand(cacheCheckCmd, cacheAddCmd, cacheRebuildCmd, cacheSearchCmd)
	rootCmd.AddCommand(cacheCmd)
}

// CacheCheckResponse is the response for cache check.
type CacheCheckResponse struct {
	Title  string `json:"title"`
	Cached bool   `json:"cached"`
	Key    string `json:"key,omitempty"`
}

func runCacheCheck(cmd *cobra.Command, args []string) error {
	idx, _ := mustOpenIndex()
	title := strings.Join(args, " ")
	key, ok := idx.Key(title)

	resp := CacheCheckResponse{Title: reference.NormalizeTitle(title), Cached: ok, Key: key}
	if !humanOutput {
		return outputJSON(resp)
	}
	if ok {
		outputHuman("cached: %s (%s)\n", resp.Title, key)
	} else {
		outputHuman("not cached: %s\n", resp.Title)
	}
	return nil
}

func runCacheAdd(cmd *cobra.Command, args []string) error {
	idx, file := mustOpenIndex()
	if err := idx.Record(args[0], args[1]); err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if humanOutput {
		outputHuman("Recorded %s\n", reference.NormalizeTitle(args[0]))
		return nil
	}
	return outputJSON(StatusResponse{Status: "recorded", Path: file.Path()})
}

func runCacheRebuild(cmd *cobra.Command, args []string) error {
	entries, err := storage.ReadTitles(cfg.TitleCachePath())
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	ledger := mustOpenLedger()
	defer ledger.Close()

	n, err := ledger.RebuildTitles(entries)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if humanOutput {
		outputHuman("Indexed %d titles\n", n)
		return nil
	}
	return outputJSON(StatusResponse{Status: "rebuilt", Path: cfg.LedgerPath(), Count: n})
}

func runCacheSearch(cmd *cobra.Command, args []string) error {
	ledger := mustOpenLedger()
	defer ledger.Close()

	hits, err := ledger.SearchTitles(strings.Join(args, " "), cacheSearchLimit)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if hits == nil {
		hits = []storage.TitleEntry{}
	}
	if !humanOutput {
		return outputJSON(hits)
	}
	if len(hits) == 0 {
		outputHuman("No matches (run 'paperfeed cache rebuild' after new runs)\n")
		return nil
	}
	for _, h := range hits {
		outputHuman("%-10s %s\n", h.Key, h.Title)
	}
	return nil
}
