package main

import (
	"testing"

	"github.com/matsen/paperfeed/internal/ingest"
)

func TestPartialFailure(t *testing.T) {
	tests := []struct {
		name string
		out  []SearchReport
		want bool
	}{
		{"no searches", nil, false},
		{"all complete", []SearchReport{{Reports: []ingest.Report{{State: ingest.Complete}, {State: ingest.Skipped}}}}, false},
		{"failed paper", []SearchReport{{}, {Reports: []ingest.Report{{State: ingest.SkippedCached}, {State: ingest.Failed}}}}, true},
		{"failed search", []SearchReport{{Error: "arXiv unreachable"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := partialFailure(tt.out); got != tt.want {
				t.Errorf("partialFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
