package ocr

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PDFParser reads the text layer in-process, row by row.
type PDFParser struct{}

// NewPDFParser creates a PDFParser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// ParsePages implements Parser.
func (p *PDFParser) ParsePages(ctx context.Context, data []byte, pageLimit int) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: open pdf")
	}

	n := r.NumPage()
	if pageLimit > 0 && n > pageLimit {
		n = pageLimit
	}

	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ocr: parse pages")
		}
		pages = append(pages, pageText(r, i))
	}
	return pages, nil
}

// pageText renders one page as newline-separated rows. The pdf package
// panics on some malformed content streams, so those pages read as empty.
func pageText(r *pdf.Reader, i int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Debug("ocr: undecodable page", zap.Int("page", i), zap.Any("panic", rec))
			text = ""
		}
	}()

	page := r.Page(i)
	if page.V.IsNull() {
		return ""
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		zap.L().Debug("ocr: read page rows", zap.Int("page", i), zap.Error(err))
		return ""
	}

	var b strings.Builder
	for _, row := range rows {
		var line strings.Builder
		var prev pdf.Text
		for j, word := range row.Content {
			if j > 0 && gap(prev, word) {
				line.WriteByte(' ')
			}
			line.WriteString(word.S)
			prev = word
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// gap reports whether two glyph runs on a row are far enough apart to be
// separate words.
func gap(prev, cur pdf.Text) bool {
	if strings.HasSuffix(prev.S, " ") || strings.HasPrefix(cur.S, " ") {
		return false
	}
	return cur.X-(prev.X+prev.W) > prev.FontSize*0.2
}
