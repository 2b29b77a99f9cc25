// Package layout implements the layout preservation engine: given a source
// text, its translation, a bounding box, and font metrics it decides how to
// fit the translation visually into the original region.
package layout

// BoundingBox is a rectangular area in PDF user units (points, 72/inch).
// The origin is the page's top-left as reported by OCR; the reconstructor
// translates into its PDF library's coordinate system.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FontWeight is the weight of a font.
type FontWeight string

// FontStyle is the slant style of a font.
type FontStyle string

const (
	WeightNormal FontWeight = "normal"
	WeightBold   FontWeight = "bold"

	StyleNormal FontStyle = "normal"
	StyleItalic FontStyle = "italic"
)

// RGB is a 24-bit color with components in 0-255.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// FontInfo describes the font of a text block.
type FontInfo struct {
	Family string     `json:"family"`
	Size   float64    `json:"size"`
	Weight FontWeight `json:"weight"`
	Style  FontStyle  `json:"style"`
	Color  RGB        `json:"color"`
}

// DefaultFontFamily is used when OCR reports no font family.
const DefaultFontFamily = "Helvetica"

// DefaultFont returns the fallback font at the given size.
func DefaultFont(size float64) FontInfo {
	return FontInfo{
		Family: DefaultFontFamily,
		Size:   size,
		Weight: WeightNormal,
		Style:  StyleNormal,
		Color:  RGB{0, 0, 0},
	}
}

// TextBlock is the fundamental OCR output unit: a run of text with its
// position and font. Created by the OCR parser, read by the translator and
// reconstructor, never mutated.
type TextBlock struct {
	Text          string      `json:"text"`
	BBox          BoundingBox `json:"bbox"`
	Font          FontInfo    `json:"font"`
	OCRConfidence float64     `json:"ocr_confidence,omitempty"`
}

// TranslatedElement is one text block after translation and layout
// adjustment, ready for reconstruction.
type TranslatedElement struct {
	OriginalText   string      `json:"original_text"`
	TranslatedText string      `json:"translated_text"`
	AdjustedText   string      `json:"adjusted_text"`
	BBox           BoundingBox `json:"bbox"`
	FontInfo       FontInfo    `json:"font_info"`
	LayoutStrategy string      `json:"layout_strategy"`
	Confidence     float64     `json:"confidence"`
}

// TranslatedPage holds the translated elements of one page. Width and Height
// are the original page dimensions in points when known.
type TranslatedPage struct {
	PageNumber int                 `json:"page_number"`
	Elements   []TranslatedElement `json:"elements"`
	Width      float64             `json:"width,omitempty"`
	Height     float64             `json:"height,omitempty"`
}

// TranslatedLayout owns the pages and elements of a translated document.
type TranslatedLayout struct {
	Pages []TranslatedPage `json:"pages"`
}
