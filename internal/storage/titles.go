// Package storage persists the local title cache and the run ledger.
package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxLineCapacity is the maximum buffer size for reading cache lines.
const MaxLineCapacity = 1024 * 1024

// TitleEntry is one line of the title cache file.
type TitleEntry struct {
	Title string `json:"title"`         // Normalized title
	Key   string `json:"key,omitempty"` // Remote item key; empty for title-only lines
}

// TitleFile is the append-only cache file holding one
// "normalizedTitle<TAB>remoteKey" pair per line.
type TitleFile struct {
	path string
	mu   sync.Mutex
}

// NewTitleFile returns a TitleFile at path. The file is created on first append.
func NewTitleFile(path string) *TitleFile {
	return &TitleFile{path: path}
}

// Path returns the file location.
func (f *TitleFile) Path() string {
	return f.path
}

// ReadTitles reads every entry from a title cache file.
// A missing file is an empty cache.
func ReadTitles(path string) ([]TitleEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening title cache: %w", err)
	}
	defer f.Close()

	var entries []TitleEntry
	scanner := bufio.NewScanner(f)
	buf := make([]byte, MaxLineCapacity)
	scanner.Buffer(buf, MaxLineCapacity)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		title, key, _ := strings.Cut(line, "\t")
		entries = append(entries, TitleEntry{Title: title, Key: key})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading title cache: %w", err)
	}
	return entries, nil
}

// Load returns the cache contents as title → key. Later lines win.
func (f *TitleFile) Load() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := ReadTitles(f.path)
	if err != nil {
		return nil, err
	}
	known := make(map[string]string, len(entries))
	for _, e := range entries {
		known[e.Title] = e.Key
	}
	return known, nil
}

// Append writes one entry and syncs it to disk before returning.
func (f *TitleFile) Append(title, key string) error {
	if strings.ContainsAny(title, "\t\n") || strings.ContainsAny(key, "\t\n") {
		title = strings.NewReplacer("\t", " ", "\n", " ").Replace(title)
		key = strings.NewReplacer("\t", " ", "\n", " ").Replace(key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening title cache for append: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(title + "\t" + key + "\n"); err != nil {
		return fmt.Errorf("writing title cache entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing title cache: %w", err)
	}
	return nil
}
