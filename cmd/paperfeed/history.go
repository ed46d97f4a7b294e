package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/paperfeed/internal/storage"
)

var (
	historyStatus string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent per-paper outcomes",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status: complete, skipped, skipped_cached, failed")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", DefaultHistoryLimit, "Maximum rows")
	rootCmd.AddCommand(historyCmd)
}

// DefaultHistoryLimit is the default number of rows listed.
const DefaultHistoryLimit = 50

func runHistory(cmd *cobra.Command, args []string) error {
	ledger := mustOpenLedger()
	defer ledger.Close()

	rows, err := ledger.Recent(historyStatus, historyLimit)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	if rows == nil {
		rows = []storage.Outcome{}
	}
	if !humanOutput {
		return outputJSON(rows)
	}
	for _, o := range rows {
		outputHuman("%s  %-14s %-12s %s\n", o.Recorded.Format("2006-01-02 15:04"), o.Status, o.Search,
			truncateString(o.Title, HistoryTitleMaxLen))
		if o.Error != "" {
			outputHuman("    [%s] %s\n", o.Stage, o.Error)
		}
	}
	return nil
}
