// Package ocr turns PDF documents into text, either by reading the embedded
// text layer page by page or by running an asynchronous OCR job.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/nicsan/crm-extract/internal/config"
)

// Parser reads the embedded text of a PDF, one string per page. Pages beyond
// pageLimit are not read; pageLimit <= 0 reads every page. A page whose
// content cannot be decoded yields "".
type Parser interface {
	ParsePages(ctx context.Context, pdf []byte, pageLimit int) ([]string, error)
}

// NewParser creates a Parser based on config.
func NewParser(cfg config.TextConfig) (Parser, error) {
	switch cfg.Parser {
	case "pdf", "":
		return NewPDFParser(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown parser %q", cfg.Parser)
	}
}
