package storage

import (
	"path/filepath"
	"testing"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordAndRecent(t *testing.T) {
	l := openTestLedger(t)

	rows := []Outcome{
		{Search: "ARXIV_ASR", ArxivID: "2310.1", Title: "Paper A", ItemKey: "AAA", Status: "complete", Refs: 12, Linked: 10},
		{Search: "ARXIV_ASR", ArxivID: "2310.2", Title: "Paper B", Status: "skipped"},
		{Search: "ARXIV_ASR", ArxivID: "2310.3", Title: "Paper C", Status: "failed", Stage: "create", Error: "boom"},
	}
	for _, o := range rows {
		if err := l.Record(o); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	all, err := l.Recent("", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Recent() returned %d rows, want 3", len(all))
	}
	if all[0].Title != "Paper C" {
		t.Errorf("Recent()[0] = %q, want newest first", all[0].Title)
	}
	if all[0].Stage != "create" || all[0].Error != "boom" {
		t.Errorf("failed row = %+v", all[0])
	}
	if all[2].Linked != 10 || all[2].ItemKey != "AAA" {
		t.Errorf("complete row = %+v", all[2])
	}

	failed, err := l.Recent("failed", 10)
	if err != nil {
		t.Fatalf("Recent(failed) error = %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("Recent(failed) returned %d rows, want 1", len(failed))
	}
}

func TestLedger_RebuildAndSearchTitles(t *testing.T) {
	l := openTestLedger(t)

	entries := []TitleEntry{
		{Title: "neural asr for low-resource languages", Key: "K1"},
		{Title: "target speaker extraction", Key: "K2"},
		{Title: "neural asr for low-resource languages", Key: "K1"},
	}
	n, err := l.RebuildTitles(entries)
	if err != nil {
		t.Fatalf("RebuildTitles() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RebuildTitles() = %d, want 2 unique titles", n)
	}

	got, err := l.SearchTitles("speaker", 10)
	if err != nil {
		t.Fatalf("SearchTitles() error = %v", err)
	}
	if len(got) != 1 || got[0].Key != "K2" {
		t.Errorf("SearchTitles(speaker) = %+v, want K2", got)
	}

	got, err = l.SearchTitles("low-resource", 10)
	if err != nil {
		t.Fatalf("SearchTitles() with operator chars error = %v", err)
	}
	if len(got) != 1 || got[0].Key != "K1" {
		t.Errorf("SearchTitles(low-resource) = %+v, want K1", got)
	}

	// Rebuild replaces the previous contents.
	if _, err := l.RebuildTitles(entries[1:2]); err != nil {
		t.Fatalf("RebuildTitles() error = %v", err)
	}
	got, _ = l.SearchTitles("neural", 10)
	if len(got) != 0 {
		t.Errorf("SearchTitles(neural) after rebuild = %+v, want none", got)
	}
}

func TestPrepareFTSQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"speech", "speech"},
		{"  ", ""},
		{"low-resource", `"low-resource"`},
		{`say "hi"`, `"say ""hi"""`},
	}
	for _, tt := range tests {
		if got := prepareFTSQuery(tt.input); got != tt.want {
			t.Errorf("prepareFTSQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
