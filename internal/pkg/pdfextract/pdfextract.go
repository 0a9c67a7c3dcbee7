package pdfextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrInvalidPDF = errors.New("file is not a valid PDF")
	ErrNoText     = errors.New("PDF contains no extractable text")
)

// ExtractPages spools r into a temporary file under tempDir (the OS default when empty)
// and returns the plain text of every page in document order. The temporary file is
// removed before ExtractPages returns, including when the parser panics.
func ExtractPages(ctx context.Context, r io.Reader, tempDir string) ([]string, error) {
	tmp, err := os.CreateTemp(tempDir, "upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file failed: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("spool upload failed: %w", err)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidPDF)
	}
	return extract(ctx, tmp, size)
}

// readPages parses a spooled PDF. Replaced in tests.
var readPages = readPDFPages

func extract(ctx context.Context, ra io.ReaderAt, size int64) (pages []string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	return readPages(ctx, ra, size)
}

func readPDFPages(ctx context.Context, ra io.ReaderAt, size int64) ([]string, error) {
	reader, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, ErrNoText
	}

	pages := make([]string, 0, numPages)
	hasText := false
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, i, err)
		}
		if strings.TrimSpace(text) != "" {
			hasText = true
		}
		pages = append(pages, text)
	}
	if !hasText {
		return nil, ErrNoText
	}
	return pages, nil
}
