package job

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/ocr"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/translate"
	"pdf-translator/internal/types"
)

// ocrChunkSize is the most page images one OCR call may carry; longer
// documents are split here, never by the OCR client.
const ocrChunkSize = ocr.MaxImagesPerRequest

// Pipeline is the stage surface the orchestrator drives. Each method covers
// one progress milestone; tests substitute lightweight implementations.
type Pipeline interface {
	Validate(ctx context.Context, sourcePath string) error
	Rasterize(ctx context.Context, sourcePath, workDir string) ([]string, error)
	Recognize(ctx context.Context, imagePaths []string) ([]ocr.PageBlocks, error)
	Translate(ctx context.Context, pages []ocr.PageBlocks, sourceLang, targetLang, sessionID, documentID string) (*layout.TranslatedLayout, error)
	Reconstruct(ctx context.Context, doc *layout.TranslatedLayout, outPath string) (*pdf.BuildReport, error)
	Verify(ctx context.Context, sourcePath, outPath string, original []ocr.PageBlocks, doc *layout.TranslatedLayout) (*pdf.ReconstructionReport, error)
}

// pipeline wires the real components together.
type pipeline struct {
	validator     *pdf.Validator
	rasterizer    *pdf.Rasterizer
	ocrClient     *ocr.Client
	translator    *translate.Translator
	reconstructor *pdf.Reconstructor
	quality       *pdf.QualityValidator
}

// PipelineConfig names the components of a production pipeline.
type PipelineConfig struct {
	Validator     *pdf.Validator
	Rasterizer    *pdf.Rasterizer
	OCRClient     *ocr.Client
	Translator    *translate.Translator
	Reconstructor *pdf.Reconstructor
	Quality       *pdf.QualityValidator
}

// NewPipeline builds the production pipeline from its components.
func NewPipeline(cfg PipelineConfig) Pipeline {
	return &pipeline{
		validator:     cfg.Validator,
		rasterizer:    cfg.Rasterizer,
		ocrClient:     cfg.OCRClient,
		translator:    cfg.Translator,
		reconstructor: cfg.Reconstructor,
		quality:       cfg.Quality,
	}
}

// NewOCRFallback builds the last extraction layer: when direct text reads
// come up empty, the page is rasterized and read through the OCR service.
func NewOCRFallback(r *pdf.Rasterizer, client *ocr.Client) pdf.OCRFunc {
	return func(ctx context.Context, path string, page int) (string, error) {
		img, err := r.RenderPage(ctx, path, page)
		if err != nil {
			return "", err
		}
		result, err := client.Process(ctx, [][]byte{img})
		if err != nil {
			return "", err
		}
		pages := ocr.Parse(result)
		if len(pages) == 0 {
			return "", nil
		}
		texts := make([]string, 0, len(pages[0].Blocks))
		for _, block := range pages[0].Blocks {
			texts = append(texts, block.Text)
		}
		return strings.Join(texts, "\n"), nil
	}
}

func (p *pipeline) Validate(ctx context.Context, sourcePath string) error {
	return p.validator.Validate(sourcePath)
}

// Rasterize renders every page into workDir and returns the image paths in
// page order. Images live on disk so the in-memory working set stays one
// page at a time.
func (p *pipeline) Rasterize(ctx context.Context, sourcePath, workDir string) ([]string, error) {
	it, err := p.rasterizer.Render(sourcePath)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var paths []string
	for {
		data, pageNum, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		path := filepath.Join(workDir, fmt.Sprintf("page_%04d.png", pageNum))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to store page image", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Recognize runs OCR over the page images in chunks and stitches the pages
// back together in order. Each consumed image file is deleted afterwards.
func (p *pipeline) Recognize(ctx context.Context, imagePaths []string) ([]ocr.PageBlocks, error) {
	var pages []ocr.PageBlocks
	for start := 0; start < len(imagePaths); start += ocrChunkSize {
		end := start + ocrChunkSize
		if end > len(imagePaths) {
			end = len(imagePaths)
		}
		chunk := imagePaths[start:end]
		images := make([][]byte, len(chunk))
		for i, path := range chunk {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, types.NewAppError(types.ErrInternal, "failed to read page image", err)
			}
			images[i] = data
		}

		result, err := p.ocrClient.Process(ctx, images)
		if err != nil {
			return nil, err
		}
		parsed := ocr.Parse(result)
		if len(parsed) != len(chunk) {
			logger.Warn("ocr returned a different page count",
				logger.Int("sent", len(chunk)), logger.Int("received", len(parsed)))
		}
		pages = append(pages, parsed...)

		for _, path := range chunk {
			os.Remove(path)
		}
	}
	return pages, nil
}

func (p *pipeline) Translate(ctx context.Context, pages []ocr.PageBlocks, sourceLang, targetLang, sessionID, documentID string) (*layout.TranslatedLayout, error) {
	doc := &layout.TranslatedLayout{Pages: make([]layout.TranslatedPage, len(pages))}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCancelled, "translation cancelled", err)
		}
		elements, err := p.translator.TranslateBlocks(ctx, page.Blocks, sourceLang, targetLang, sessionID, documentID)
		if err != nil {
			return nil, err
		}
		doc.Pages[i] = layout.TranslatedPage{
			PageNumber: i + 1,
			Elements:   elements,
			Width:      page.Width,
			Height:     page.Height,
		}
	}
	return doc, nil
}

func (p *pipeline) Reconstruct(ctx context.Context, doc *layout.TranslatedLayout, outPath string) (*pdf.BuildReport, error) {
	return p.reconstructor.Reconstruct(doc, outPath)
}

func (p *pipeline) Verify(ctx context.Context, sourcePath, outPath string, original []ocr.PageBlocks, doc *layout.TranslatedLayout) (*pdf.ReconstructionReport, error) {
	origGeo := make([]pdf.PageGeometry, len(original))
	for i, page := range original {
		for _, block := range page.Blocks {
			origGeo[i] = append(origGeo[i], block.BBox)
		}
	}
	outGeo := make([]pdf.PageGeometry, len(doc.Pages))
	for i, page := range doc.Pages {
		for _, el := range page.Elements {
			outGeo[i] = append(outGeo[i], el.BBox)
		}
	}
	return p.quality.Validate(ctx, sourcePath, outPath, origGeo, outGeo)
}
