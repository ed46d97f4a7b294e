// Package main provides the paperfeed CLI entry point.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/paperfeed/internal/config"
	"github.com/matsen/paperfeed/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	logLevel    string

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperfeed",
	Short: "Ingest new arXiv papers into a Zotero library",
	Long: `paperfeed pulls newly submitted arXiv papers matching configured searches
into a Zotero library.

For each paper it:
  - skips titles already in the local cache or the library
  - downloads the PDF and extracts metadata with GROBID
  - creates the item with a summary note
  - links the item to the papers it cites, creating missing ones

All commands output JSON by default. Use --human for readable output.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/paperfeed/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Version = Version
}

// setup loads .env, the config file and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	// Load .env file if present (for ZOTERO_KEY and friends)
	_ = godotenv.Load()

	var err error
	logger, err = logging.New(logLevel, humanOutput)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	cfg, err = config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return nil
}
