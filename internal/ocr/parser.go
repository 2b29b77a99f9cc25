package ocr

import (
	"strings"

	"pdf-translator/internal/layout"
)

// minDimension clamps non-positive block dimensions, in points.
const minDimension = 1.0

// PageBlocks is the parse result for one page: its normalized text blocks
// plus the page dimensions when the service reported them.
type PageBlocks struct {
	Blocks []layout.TextBlock
	Width  float64
	Height float64
}

// Parse normalizes an OCR layout into per-page text blocks:
//
//   - words within a line join with a single space, lines within a block with
//     a newline;
//   - a block's bounding box is the union of its lines' boxes (not its
//     words', to avoid kerning jitter);
//   - a block's font comes from its first non-empty word, color defaulting
//     to black;
//   - empty or whitespace-only blocks are discarded;
//   - non-positive dimensions clamp to 1 pt.
func Parse(l *Layout) []PageBlocks {
	if l == nil {
		return nil
	}
	pages := make([]PageBlocks, 0, len(l.Pages))
	for _, page := range l.Pages {
		pb := PageBlocks{Width: page.Width, Height: page.Height}
		for _, block := range page.Blocks {
			if tb, ok := parseBlock(block); ok {
				pb.Blocks = append(pb.Blocks, tb)
			}
		}
		pages = append(pages, pb)
	}
	return pages
}

func parseBlock(block Block) (layout.TextBlock, bool) {
	var textLines []string
	var union layout.BoundingBox
	haveBox := false
	var font *layout.FontInfo
	var confSum float64
	var confCount int

	for _, line := range block.Lines {
		var words []string
		lineBox, haveLineBox := lineBBox(line)
		for _, w := range line.Words {
			if strings.TrimSpace(w.Text) == "" {
				continue
			}
			words = append(words, w.Text)
			if w.Confidence > 0 {
				confSum += w.Confidence
				confCount++
			}
			if font == nil {
				f := wordFont(w)
				font = &f
			}
		}
		if len(words) == 0 {
			continue
		}
		textLines = append(textLines, strings.Join(words, " "))
		if haveLineBox {
			if !haveBox {
				union = lineBox
				haveBox = true
			} else {
				union = unionBox(union, lineBox)
			}
		}
	}

	text := strings.Join(textLines, "\n")
	if strings.TrimSpace(text) == "" {
		return layout.TextBlock{}, false
	}

	if font == nil {
		f := layout.DefaultFont(12)
		font = &f
	}

	union.Width = clampDim(union.Width)
	union.Height = clampDim(union.Height)

	tb := layout.TextBlock{
		Text: text,
		BBox: union,
		Font: *font,
	}
	if confCount > 0 {
		tb.OCRConfidence = confSum / float64(confCount)
	}
	return tb, true
}

// lineBBox is the union of a line's word boxes. Line geometry comes from the
// words because the wire format carries boxes only at word level.
func lineBBox(line Line) (layout.BoundingBox, bool) {
	have := false
	var box layout.BoundingBox
	for _, w := range line.Words {
		wb := layout.BoundingBox{X: w.BBox[0], Y: w.BBox[1], Width: w.BBox[2], Height: w.BBox[3]}
		if wb.Width <= 0 && wb.Height <= 0 {
			continue
		}
		if !have {
			box = wb
			have = true
		} else {
			box = unionBox(box, wb)
		}
	}
	return box, have
}

func unionBox(a, b layout.BoundingBox) layout.BoundingBox {
	x1 := minF(a.X, b.X)
	y1 := minF(a.Y, b.Y)
	x2 := maxF(a.X+a.Width, b.X+b.Width)
	y2 := maxF(a.Y+a.Height, b.Y+b.Height)
	return layout.BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func wordFont(w Word) layout.FontInfo {
	size := 12.0
	family := layout.DefaultFontFamily
	weight := layout.WeightNormal
	style := layout.StyleNormal
	color := layout.RGB{R: 0, G: 0, B: 0}

	if w.Font != nil {
		if w.Font.Size > 0 {
			size = w.Font.Size
		}
		if w.Font.Family != "" {
			family = w.Font.Family
		}
		if w.Font.Weight == string(layout.WeightBold) {
			weight = layout.WeightBold
		}
		if w.Font.Style == string(layout.StyleItalic) {
			style = layout.StyleItalic
		}
		c := w.Font.Color
		if c[0] != 0 || c[1] != 0 || c[2] != 0 {
			color = layout.RGB{R: clampColor(c[0]), G: clampColor(c[1]), B: clampColor(c[2])}
		}
	}
	return layout.FontInfo{Family: family, Size: size, Weight: weight, Style: style, Color: color}
}

func clampDim(v float64) float64 {
	if v < minDimension {
		return minDimension
	}
	return v
}

func clampColor(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
