package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFindDOI(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "Published at doi: 10.1109/ICASSP.2023.1234 in proc.", "10.1109/ICASSP.2023.1234"},
		{"trailing punctuation", "see https://doi.org/10.21437/Interspeech.2023-99).", "10.21437/Interspeech.2023-99"},
		{"skips arxiv datacite", "10.48550/arXiv.2310.17558 and 10.1145/3580305.3599", "10.1145/3580305.3599"},
		{"none", "no identifier on this page", ""},
		{"too short", "10.1234/a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findDOI(tt.text); got != tt.want {
				t.Errorf("findDOI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate_Missing(t *testing.T) {
	err := Validate(filepath.Join(t.TempDir(), "nope.pdf"))
	if err == nil {
		t.Fatal("Validate() error = nil for missing file")
	}
}

func TestValidate_HTMLErrorPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("<html><body>Not Found</body></html>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Validate(path); !errors.Is(err, ErrNotPDF) {
		t.Errorf("Validate() error = %v, want ErrNotPDF", err)
	}
}

func TestValidate_TruncatedPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\ngarbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Validate(path); err == nil {
		t.Error("Validate() error = nil for truncated PDF")
	}
}
