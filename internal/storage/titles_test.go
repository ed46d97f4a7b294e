package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadTitles_NonExistentFile(t *testing.T) {
	entries, err := ReadTitles("/nonexistent/path/titles.tsv")
	if err != nil {
		t.Fatalf("ReadTitles() error = %v (should return nil for nonexistent file)", err)
	}
	if len(entries) != 0 {
		t.Errorf("ReadTitles() returned %v, want empty", entries)
	}
}

func TestReadTitles_MixedLayouts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.tsv")
	content := "neural asr\tABCD1234\n\ntitle only line\nspeech enhancement\tEFGH5678\r\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	entries, err := ReadTitles(path)
	if err != nil {
		t.Fatalf("ReadTitles() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadTitles() returned %d entries, want 3", len(entries))
	}
	if entries[0] != (TitleEntry{Title: "neural asr", Key: "ABCD1234"}) {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1] != (TitleEntry{Title: "title only line"}) {
		t.Errorf("entries[1] = %+v, want title-only entry", entries[1])
	}
	if entries[2].Key != "EFGH5678" {
		t.Errorf("entries[2].Key = %q, want trailing CR stripped", entries[2].Key)
	}
}

func TestTitleFile_AppendThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "titles.tsv")
	f := NewTitleFile(path)

	if err := f.Append("neural asr", "KEY1"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := f.Append("neural asr", "KEY1"); err != nil {
		t.Fatalf("Append() duplicate error = %v", err)
	}
	if err := f.Append("speech\tseparation", "KEY2"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	known, err := f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(known) != 2 {
		t.Errorf("Load() returned %d titles, want 2: %v", len(known), known)
	}
	if known["neural asr"] != "KEY1" {
		t.Errorf("known[neural asr] = %q, want KEY1", known["neural asr"])
	}
	if known["speech separation"] != "KEY2" {
		t.Errorf("tab in title not replaced: %v", known)
	}

	entries, err := ReadTitles(path)
	if err != nil {
		t.Fatalf("ReadTitles() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("file has %d lines, want 3 (append-only)", len(entries))
	}
}
