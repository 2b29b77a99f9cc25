// Package pdf handles the document ends of the pipeline: validating and
// rasterizing input PDFs, extracting text, rebuilding the translated output,
// and scoring the result.
package pdf

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// headerWindow bounds how much of each file end the validator reads.
	headerWindow = 1024

	// DefaultMaxFileSizeMB caps accepted input size.
	DefaultMaxFileSizeMB = 50
)

var pdfHeader = []byte("%PDF-")

// Validator performs the pre-flight checks on an input document.
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator with the given size cap in MiB. Zero or
// negative falls back to the default.
func NewValidator(maxFileSizeMB int) *Validator {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = DefaultMaxFileSizeMB
	}
	return &Validator{maxFileSize: int64(maxFileSizeMB) << 20}
}

// Validate checks that path names a readable, unencrypted, structurally
// sound PDF within the size cap. Failures carry stable error codes; file
// paths never appear in the returned messages.
func (v *Validator) Validate(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return types.NewAppError(types.ErrNotFound, "input file not found", err)
	}
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to stat input file", err)
	}
	if info.IsDir() {
		return types.NewAppError(types.ErrInvalidInput, "input is a directory", nil)
	}
	if info.Size() > v.maxFileSize {
		return types.NewAppError(types.ErrInvalidInput, "input exceeds the size limit", nil)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return types.NewAppError(types.ErrFormatUnsupported, "input does not have a .pdf extension", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to open input file", err)
	}
	defer f.Close()

	head := make([]byte, headerWindow)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return types.NewAppError(types.ErrInternal, "failed to read file header", err)
	}
	head = head[:n]
	if !bytes.HasPrefix(head, pdfHeader) {
		return types.NewAppError(types.ErrFormatUnsupported, "file does not start with a PDF header", nil)
	}

	tail := make([]byte, headerWindow)
	offset := info.Size() - headerWindow
	if offset < 0 {
		offset = 0
	}
	n, err = f.ReadAt(tail, offset)
	if err != nil && err != io.EOF {
		return types.NewAppError(types.ErrInternal, "failed to read file trailer", err)
	}
	tail = tail[:n]
	if !bytes.Contains(tail, []byte("%%EOF")) {
		return types.NewAppError(types.ErrCorrupted, "file trailer is missing the end-of-file marker", nil)
	}
	if bytes.Contains(tail, []byte("/Encrypt")) {
		return types.NewAppError(types.ErrEncrypted, "document is encrypted", nil)
	}

	// Structural pass over the cross-reference tables. pdfcpu also catches
	// encryption dictionaries that live outside the trailer window.
	if err := pdfcpu.ValidateFile(path, nil); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "encrypt") {
			return types.NewAppError(types.ErrEncrypted, "document is encrypted", err)
		}
		return types.NewAppError(types.ErrCorrupted, "document structure is invalid", err)
	}

	logger.Debug("input validated", logger.Int64("size", info.Size()))
	return nil
}

// PageCount returns the number of pages. The document should already have
// passed Validate.
func (v *Validator) PageCount(path string) (int, error) {
	return pageCount(path)
}

func pageCount(path string) (int, error) {
	n, err := pdfcpu.PageCountFile(path)
	if err != nil {
		return 0, types.NewAppError(types.ErrCorrupted, "failed to count pages", err)
	}
	if n < 1 {
		return 0, types.NewAppError(types.ErrCorrupted, "document has no pages", nil)
	}
	return n, nil
}

// PageDimensions returns the media box of every page in points, in page
// order.
func PageDimensions(path string) ([][2]float64, error) {
	dims, err := pdfcpu.PageDimsFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCorrupted, "failed to read page dimensions", err)
	}
	out := make([][2]float64, len(dims))
	for i, d := range dims {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out, nil
}
