package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/paperfeed/internal/reference"
)

var (
	resolveAuthors string
	resolveYear    string
	resolveVenue   string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <title>",
	Short: "Show the record a cited title would be created as",
	Long: `Run the candidate resolver on a title without writing anything.

The output is the item data that would be stored for a cited paper
before PDF extraction.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAuthors, "authors", "", "Semicolon-separated author names")
	resolveCmd.Flags().StringVar(&resolveYear, "year", "", "Publication year")
	resolveCmd.Flags().StringVar(&resolveVenue, "venue", "", "Journal or proceedings")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	stub := reference.Stub{
		Title:   strings.Join(args, " "),
		Authors: resolveAuthors,
		Year:    resolveYear,
		Venue:   resolveVenue,
	}
	data := newResolver().Resolve(context.Background(), stub).Payload()

	if !humanOutput {
		return outputJSON(data)
	}
	outputHuman("%s\n", data.Title)
	for _, c := range data.Creators {
		outputHuman("  %s %s\n", c.FirstName, c.LastName)
	}
	if data.Date != "" {
		outputHuman("Date:  %s\n", data.Date)
	}
	if data.ConferenceName != "" {
		outputHuman("Venue: %s\n", data.ConferenceName)
	}
	if data.DOI != "" {
		outputHuman("DOI:   %s\n", data.DOI)
	}
	if data.URL != "" {
		outputHuman("URL:   %s\n", data.URL)
	}
	if data.Extra != "" {
		outputHuman("\n%s", data.Extra)
	}
	return nil
}
