package pdf

import (
	"context"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// OCRFunc recognizes the text of one page when direct extraction yields
// nothing, typically by rasterizing and calling the OCR client.
type OCRFunc func(ctx context.Context, path string, page int) (string, error)

// Extractor pulls text out of a PDF with a layered strategy: direct plain
// text first, row-based assembly second, and an optional OCR fallback last.
type Extractor struct {
	ocr OCRFunc
}

// NewExtractor creates an extractor. ocr may be nil; extraction then stops
// after the row-based layer.
func NewExtractor(ocr OCRFunc) *Extractor {
	return &Extractor{ocr: ocr}
}

// ExtractPages returns the text of every page in order. A page that yields
// nothing on all layers comes back as an empty string rather than an error.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]string, error) {
	f, reader, err := lpdf.Open(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCorrupted, "failed to open document for extraction", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCancelled, "extraction cancelled", err)
		}
		pages = append(pages, e.extractPage(ctx, reader, path, i))
	}
	return pages, nil
}

func (e *Extractor) extractPage(ctx context.Context, reader *lpdf.Reader, path string, pageNum int) string {
	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	if text, err := page.GetPlainText(nil); err == nil && strings.TrimSpace(text) != "" {
		return text
	}

	if text := extractByRows(page); strings.TrimSpace(text) != "" {
		logger.Debug("row-based extraction used", logger.Int("page", pageNum))
		return text
	}

	if e.ocr != nil {
		text, err := e.ocr(ctx, path, pageNum)
		if err != nil {
			logger.Warn("ocr fallback extraction failed",
				logger.Int("page", pageNum), logger.Err(err))
			return ""
		}
		return text
	}
	return ""
}

// extractByRows rebuilds page text from positioned rows. Survives documents
// whose content streams confuse the plain-text walker.
func extractByRows(page lpdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, row := range rows {
		var line strings.Builder
		for _, word := range row.Content {
			line.WriteString(word.S)
		}
		text := strings.TrimSpace(line.String())
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// PageFonts lists the font names referenced by each page.
func PageFonts(path string) ([][]string, error) {
	f, reader, err := lpdf.Open(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCorrupted, "failed to open document for font listing", err)
	}
	defer f.Close()

	total := reader.NumPage()
	fonts := make([][]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			fonts = append(fonts, nil)
			continue
		}
		fonts = append(fonts, page.Fonts())
	}
	return fonts, nil
}
