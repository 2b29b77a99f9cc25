// Package ocr submits rasterized pages to a remote OCR service and parses
// the layout-aware response into text blocks.
package ocr

// Wire shapes of the OCR service response. All numeric fields are optional
// with zero defaults; the parser applies clamping and fallbacks.

// Layout is the top-level OCR response body.
type Layout struct {
	Pages []Page `json:"pages"`
}

// Page is one OCR'd page.
type Page struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Blocks []Block `json:"blocks"`
}

// Block is a logical text block of lines.
type Block struct {
	Lines []Line `json:"lines"`
}

// Line is one visual line of words.
type Line struct {
	Words []Word `json:"words"`
}

// Word is the smallest OCR unit.
type Word struct {
	Text       string     `json:"text"`
	BBox       [4]float64 `json:"bbox"` // x, y, w, h
	Confidence float64    `json:"confidence,omitempty"`
	Font       *WordFont  `json:"font,omitempty"`
}

// WordFont is the font info the OCR service attaches to a word.
type WordFont struct {
	Family string     `json:"family,omitempty"`
	Size   float64    `json:"size,omitempty"`
	Weight string     `json:"weight,omitempty"`
	Style  string     `json:"style,omitempty"`
	Color  [3]int     `json:"color,omitempty"`
}
