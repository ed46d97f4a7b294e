package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check which GROBID endpoints are alive",
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	statuses := mustNewGrobid().Probe(context.Background())

	alive := 0
	for _, st := range statuses {
		if st.Alive {
			alive++
		}
	}

	if humanOutput {
		for _, st := range statuses {
			if st.Alive {
				outputHuman("alive  %s\n", st.URL)
			} else {
				outputHuman("down   %s  %s\n", st.URL, st.Error)
			}
		}
	} else {
		outputJSON(statuses)
	}
	if alive == 0 {
		os.Exit(ExitRemoteError)
	}
	return nil
}
