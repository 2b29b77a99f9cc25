package pdf

import (
	"math"
	"strings"

	"github.com/jung-kurt/gofpdf"
	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// DefaultLineHeightFactor matches the layout engine's default so drawn line
// spacing agrees with the fit analysis.
const DefaultLineHeightFactor = 1.2

// baselineRatio approximates the ascent of the standard 14 fonts.
const baselineRatio = 0.8

// BuildReport summarizes a reconstruction run.
type BuildReport struct {
	Elements         int      `json:"elements"`
	OverflowEvents   int      `json:"overflow_events"`
	FontFallbacks    int      `json:"font_fallbacks"`
	OverflowRate     float64  `json:"overflow_rate"`
	FontFallbackRate float64  `json:"font_fallback_rate"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Reconstructor draws translated elements into a new PDF at their original
// coordinates.
type Reconstructor struct {
	lineHeightFactor float64
}

// NewReconstructor creates a reconstructor. A non-positive factor falls back
// to the default.
func NewReconstructor(lineHeightFactor float64) *Reconstructor {
	if lineHeightFactor <= 0 {
		lineHeightFactor = DefaultLineHeightFactor
	}
	return &Reconstructor{lineHeightFactor: lineHeightFactor}
}

// Reconstruct writes the translated document to outPath and validates the
// result. Overflowing text is truncated and counted rather than failing the
// build.
func (r *Reconstructor) Reconstruct(doc *layout.TranslatedLayout, outPath string) (*BuildReport, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return nil, types.NewAppError(types.ErrInvalidInput, "no pages to reconstruct", nil)
	}

	report := &BuildReport{}

	first := pageSize(doc.Pages[0])
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: first[0], Ht: first[1]},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range doc.Pages {
		size := pageSize(page)
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: size[0], Ht: size[1]})
		for _, el := range page.Elements {
			r.drawElement(pdf, translate, el, report)
		}
	}

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to write output document", err)
	}
	if err := pdfcpu.ValidateFile(outPath, nil); err != nil {
		return nil, types.NewAppError(types.ErrCorrupted, "reconstructed document failed validation", err)
	}

	if report.Elements > 0 {
		report.OverflowRate = float64(report.OverflowEvents) / float64(report.Elements)
		report.FontFallbackRate = float64(report.FontFallbacks) / float64(report.Elements)
	}
	logger.Info("document reconstructed",
		logger.Int("pages", len(doc.Pages)),
		logger.Int("elements", report.Elements),
		logger.Int("overflow_events", report.OverflowEvents),
		logger.Int("font_fallbacks", report.FontFallbacks))
	return report, nil
}

func (r *Reconstructor) drawElement(pdf *gofpdf.Fpdf, translate func(string) string, el layout.TranslatedElement, report *BuildReport) {
	report.Elements++

	font := el.FontInfo
	family, fallback := layout.NormalizeFamily(font.Family)
	if fallback {
		report.FontFallbacks++
		report.Warnings = appendCapped(report.Warnings,
			"font family substituted: "+font.Family+" -> "+layout.FaceName(font))
	}
	pdf.SetFont(family, styleString(family, font), font.Size)
	pdf.SetTextColor(font.Color.R, font.Color.G, font.Color.B)

	lineHeight := font.Size * r.lineHeightFactor
	capacity := int(math.Floor(el.BBox.Height / lineHeight))
	if capacity < 1 {
		capacity = 1
	}

	lines := strings.Split(el.AdjustedText, "\n")
	if len(lines) > capacity {
		lines = lines[:capacity]
		report.OverflowEvents++
		report.Warnings = appendCapped(report.Warnings, "element text truncated at render time")
	}

	for i, line := range lines {
		if line == "" {
			continue
		}
		baseline := el.BBox.Y + float64(i)*lineHeight + font.Size*baselineRatio
		pdf.Text(el.BBox.X, baseline, translate(line))
	}
}

// styleString maps weight and style onto a gofpdf style code. Symbol fonts
// have no bold or italic faces.
func styleString(family string, font layout.FontInfo) string {
	if family == "Symbol" || family == "ZapfDingbats" {
		return ""
	}
	style := ""
	if font.Weight == layout.WeightBold {
		style += "B"
	}
	if font.Style == layout.StyleItalic {
		style += "I"
	}
	return style
}

const maxWarnings = 50

func appendCapped(warnings []string, w string) []string {
	if len(warnings) >= maxWarnings {
		return warnings
	}
	return append(warnings, w)
}

// pageSize returns the page dimensions, falling back to the union of its
// element boxes when the originals are unknown.
func pageSize(page layout.TranslatedPage) [2]float64 {
	if page.Width > 0 && page.Height > 0 {
		return [2]float64{page.Width, page.Height}
	}
	var w, h float64
	for _, el := range page.Elements {
		if right := el.BBox.X + el.BBox.Width; right > w {
			w = right
		}
		if bottom := el.BBox.Y + el.BBox.Height; bottom > h {
			h = bottom
		}
	}
	if w <= 0 || h <= 0 {
		// US Letter in points.
		return [2]float64{612, 792}
	}
	return [2]float64{w, h}
}
