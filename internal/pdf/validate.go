// Package pdf checks downloaded PDFs and pulls identifiers out of them.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF indicates the file does not carry a PDF header.
var ErrNotPDF = errors.New("not a PDF file")

var pdfMagic = []byte("%PDF-")

// Validate checks that path exists, starts with a PDF header and has a
// readable page tree. Servers that answer a PDF URL with an HTML error
// page fail the header check.
func Validate(path string) (err error) {
	// The parser panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading PDF %s: %v", path, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PDF not found: %s", path)
		}
		return fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return fmt.Errorf("%w: %s", ErrNotPDF, path)
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("checking PDF: %w", err)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("reading PDF %s: %w", path, err)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("PDF %s has no pages", path)
	}
	return nil
}
