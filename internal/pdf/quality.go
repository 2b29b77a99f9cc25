package pdf

import (
	"context"
	"math"
	"strings"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
)

// QualityConfig holds the acceptance thresholds of the post-hoc validator.
type QualityConfig struct {
	MinCoverageRatio float64
	MaxCoverageRatio float64
	// MinLayoutSimilarity is the lowest acceptable centroid-grid similarity.
	MinLayoutSimilarity float64
	// MinFontPreservation is the lowest acceptable preserved-font ratio.
	MinFontPreservation float64
	// GridSize is the edge length of the centroid hash grid.
	GridSize int
}

// DefaultQualityConfig returns the default acceptance window.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinCoverageRatio:    0.5,
		MaxCoverageRatio:    2.5,
		MinLayoutSimilarity: 0.5,
		MinFontPreservation: 0.5,
		GridSize:            8,
	}
}

// ReconstructionReport scores a reconstructed document against its source.
type ReconstructionReport struct {
	TextCoverageRatio    float64 `json:"text_coverage_ratio"`
	CoveragePass         bool    `json:"coverage_pass"`
	LayoutHashSimilarity float64 `json:"layout_hash_similarity"`
	LayoutPass           bool    `json:"layout_pass"`
	FontPreservation     float64 `json:"font_preservation_ratio"`
	FontPass             bool    `json:"font_pass"`
	Pass                 bool    `json:"pass"`
}

// PageGeometry is the set of text bounding boxes on one page.
type PageGeometry []layout.BoundingBox

// QualityValidator compares an original document against its reconstruction.
type QualityValidator struct {
	cfg       QualityConfig
	extractor *Extractor
}

// NewQualityValidator creates a validator. Zero thresholds fall back to the
// defaults.
func NewQualityValidator(cfg QualityConfig, extractor *Extractor) *QualityValidator {
	def := DefaultQualityConfig()
	if cfg.MinCoverageRatio <= 0 {
		cfg.MinCoverageRatio = def.MinCoverageRatio
	}
	if cfg.MaxCoverageRatio <= cfg.MinCoverageRatio {
		cfg.MaxCoverageRatio = def.MaxCoverageRatio
	}
	if cfg.MinLayoutSimilarity <= 0 {
		cfg.MinLayoutSimilarity = def.MinLayoutSimilarity
	}
	if cfg.MinFontPreservation <= 0 {
		cfg.MinFontPreservation = def.MinFontPreservation
	}
	if cfg.GridSize <= 0 {
		cfg.GridSize = def.GridSize
	}
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	return &QualityValidator{cfg: cfg, extractor: extractor}
}

// Validate extracts text from both files, compares geometry grids, and
// checks font survival. original and reconstructed carry the per-page text
// boxes of the source layout and the rendered layout.
func (q *QualityValidator) Validate(ctx context.Context, originalPath, outputPath string, original, reconstructed []PageGeometry) (*ReconstructionReport, error) {
	origText, err := q.extractor.ExtractPages(ctx, originalPath)
	if err != nil {
		return nil, err
	}
	outText, err := q.extractor.ExtractPages(ctx, outputPath)
	if err != nil {
		return nil, err
	}

	report := &ReconstructionReport{}
	report.TextCoverageRatio = coverageRatio(origText, outText)
	report.CoveragePass = report.TextCoverageRatio >= q.cfg.MinCoverageRatio &&
		report.TextCoverageRatio <= q.cfg.MaxCoverageRatio

	report.LayoutHashSimilarity = q.layoutSimilarity(original, reconstructed)
	report.LayoutPass = report.LayoutHashSimilarity >= q.cfg.MinLayoutSimilarity

	report.FontPreservation = fontPreservation(originalPath, outputPath)
	report.FontPass = report.FontPreservation >= q.cfg.MinFontPreservation

	report.Pass = report.CoveragePass && report.LayoutPass && report.FontPass
	logger.Info("quality validation finished",
		logger.Float64("coverage", report.TextCoverageRatio),
		logger.Float64("layout_similarity", report.LayoutHashSimilarity),
		logger.Float64("font_preservation", report.FontPreservation),
		logger.Bool("pass", report.Pass))
	return report, nil
}

func coverageRatio(original, reconstructed []string) float64 {
	origLen := textLength(original)
	outLen := textLength(reconstructed)
	if origLen == 0 {
		if outLen == 0 {
			return 1
		}
		return math.Inf(1)
	}
	return float64(outLen) / float64(origLen)
}

func textLength(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len([]rune(strings.Join(strings.Fields(p), " ")))
	}
	return n
}

// layoutSimilarity averages the per-page Jaccard overlap of occupied grid
// cells. Pages present on only one side score 0.
func (q *QualityValidator) layoutSimilarity(a, b []PageGeometry) float64 {
	pages := len(a)
	if len(b) > pages {
		pages = len(b)
	}
	if pages == 0 {
		return 1
	}
	total := 0.0
	for i := 0; i < pages; i++ {
		if i >= len(a) || i >= len(b) {
			continue
		}
		total += gridJaccard(q.gridCells(a[i]), q.gridCells(b[i]))
	}
	return total / float64(pages)
}

// gridCells hashes element centroids onto a normalized GridSize x GridSize
// grid. Normalization uses the page extent implied by the boxes themselves
// so the comparison is insensitive to absolute page size.
func (q *QualityValidator) gridCells(page PageGeometry) map[int]struct{} {
	cells := make(map[int]struct{})
	if len(page) == 0 {
		return cells
	}
	var maxX, maxY float64
	for _, box := range page {
		if r := box.X + box.Width; r > maxX {
			maxX = r
		}
		if b := box.Y + box.Height; b > maxY {
			maxY = b
		}
	}
	if maxX <= 0 || maxY <= 0 {
		return cells
	}
	n := q.cfg.GridSize
	for _, box := range page {
		cx := (box.X + box.Width/2) / maxX
		cy := (box.Y + box.Height/2) / maxY
		col := int(cx * float64(n))
		row := int(cy * float64(n))
		if col >= n {
			col = n - 1
		}
		if row >= n {
			row = n - 1
		}
		cells[row*n+col] = struct{}{}
	}
	return cells
}

func gridJaccard(a, b map[int]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for c := range a {
		if _, ok := b[c]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// fontPreservation compares the font sets of both documents after stripping
// subset prefixes ("ABCDEF+Helvetica"). An unreadable side scores 0; an
// original with no fonts scores 1.
func fontPreservation(originalPath, outputPath string) float64 {
	orig := fontSet(originalPath)
	if orig == nil {
		return 0
	}
	out := fontSet(outputPath)
	if out == nil {
		return 0
	}
	if len(orig) == 0 {
		return 1
	}
	inter := 0
	for f := range orig {
		if _, ok := out[f]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(orig))
}

func fontSet(path string) map[string]struct{} {
	pages, err := PageFonts(path)
	if err != nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, fonts := range pages {
		for _, name := range fonts {
			set[normalizeFontName(name)] = struct{}{}
		}
	}
	return set
}

func normalizeFontName(name string) string {
	if i := strings.IndexByte(name, '+'); i >= 0 && i == 6 {
		name = name[i+1:]
	}
	// Face suffixes collapse onto the family for comparison purposes.
	if i := strings.IndexByte(name, '-'); i > 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}
