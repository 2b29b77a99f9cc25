package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultDPI is the rasterization resolution when none is configured.
	DefaultDPI = 300
	MinDPI     = 72
	MaxDPI     = 600

	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Rasterizer renders PDF pages to images through pdftoppm. Pages are
// written to temporary files and read back one at a time so memory stays
// bounded by a single page.
type Rasterizer struct {
	dpi    int
	format string
}

// NewRasterizer creates a rasterizer. DPI is clamped to the supported range;
// an unknown format falls back to PNG.
func NewRasterizer(dpi int, format string) *Rasterizer {
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if dpi < MinDPI {
		dpi = MinDPI
	}
	if dpi > MaxDPI {
		dpi = MaxDPI
	}
	if format != FormatJPEG {
		format = FormatPNG
	}
	return &Rasterizer{dpi: dpi, format: format}
}

// PageIterator yields rendered pages in document order. Each temp file is
// deleted after its bytes are handed out.
type PageIterator struct {
	rast    *Rasterizer
	path    string
	tempDir string
	page    int
	total   int
}

// Render prepares page-by-page rasterization of the document. Encrypted
// documents are rejected up front.
func (r *Rasterizer) Render(path string) (*PageIterator, error) {
	if err := rejectEncrypted(path); err != nil {
		return nil, err
	}
	total, err := pageCount(path)
	if err != nil {
		return nil, err
	}
	tempDir, err := os.MkdirTemp("", "rasterize_*")
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create raster temp dir", err)
	}
	logger.Debug("rasterization started",
		logger.Int("pages", total),
		logger.Int("dpi", r.dpi),
		logger.String("format", r.format))
	return &PageIterator{rast: r, path: path, tempDir: tempDir, total: total}, nil
}

// Total reports the document's page count.
func (it *PageIterator) Total() int { return it.total }

// Next renders and returns the next page's image bytes together with its
// 1-based page number. io.EOF signals the end of the document.
func (it *PageIterator) Next(ctx context.Context) ([]byte, int, error) {
	if it.page >= it.total {
		return nil, 0, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCancelled, "rasterization cancelled", err)
	}
	it.page++

	data, err := it.rast.renderPage(ctx, it.path, it.tempDir, it.page)
	if err != nil {
		return nil, 0, err
	}
	return data, it.page, nil
}

// renderPage runs pdftoppm for one page into dir and returns the image bytes.
// The image file is removed after reading.
func (r *Rasterizer) renderPage(ctx context.Context, path, dir string, page int) ([]byte, error) {
	prefix := filepath.Join(dir, fmt.Sprintf("page_%d", page))
	args := []string{
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-" + r.format,
		"-r", strconv.Itoa(r.dpi),
		"-singlefile",
		path,
		prefix,
	}
	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewAppError(types.ErrCancelled, "rasterization cancelled", ctx.Err())
		}
		return nil, types.NewAppErrorWithDetails(types.ErrInternal,
			"page rasterization failed", strings.TrimSpace(string(output)), err)
	}

	imgPath := prefix + "." + fileExt(r.format)
	data, err := os.ReadFile(imgPath)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to read rendered page", err)
	}
	os.Remove(imgPath)
	return data, nil
}

// RenderPage rasterizes a single 1-based page without the iterator. Used by
// the extraction OCR fallback, which needs one page at a time.
func (r *Rasterizer) RenderPage(ctx context.Context, path string, page int) ([]byte, error) {
	if err := rejectEncrypted(path); err != nil {
		return nil, err
	}
	total, err := pageCount(path)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > total {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"page out of range", fmt.Sprintf("page %d of %d", page, total), nil)
	}
	dir, err := os.MkdirTemp("", "rasterize_*")
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create raster temp dir", err)
	}
	defer os.RemoveAll(dir)
	return r.renderPage(ctx, path, dir, page)
}

// Close removes the iterator's temporary directory.
func (it *PageIterator) Close() error {
	return os.RemoveAll(it.tempDir)
}

func fileExt(format string) string {
	if format == FormatJPEG {
		return "jpg"
	}
	return "png"
}

// rejectEncrypted scans the trailer window for an encryption dictionary so
// rendering never runs against a protected document.
func rejectEncrypted(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return types.NewAppError(types.ErrNotFound, "input file not found", err)
	}
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to open input file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to stat input file", err)
	}
	tail := make([]byte, headerWindow)
	offset := info.Size() - headerWindow
	if offset < 0 {
		offset = 0
	}
	n, err := f.ReadAt(tail, offset)
	if err != nil && err != io.EOF {
		return types.NewAppError(types.ErrInternal, "failed to read file trailer", err)
	}
	if bytes.Contains(tail[:n], []byte("/Encrypt")) {
		return types.NewAppError(types.ErrEncrypted, "document is encrypted", nil)
	}
	return nil
}
