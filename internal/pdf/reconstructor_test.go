package pdf

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"pdf-translator/internal/layout"
	"pdf-translator/internal/types"
)

func element(text string, x, y, w, h float64) layout.TranslatedElement {
	return layout.TranslatedElement{
		OriginalText:   text,
		TranslatedText: text,
		AdjustedText:   text,
		BBox:           layout.BoundingBox{X: x, Y: y, Width: w, Height: h},
		FontInfo:       layout.DefaultFont(12),
		LayoutStrategy: string(layout.StrategyNone),
		Confidence:     1,
	}
}

func TestReconstructWritesValidPDF(t *testing.T) {
	doc := &layout.TranslatedLayout{Pages: []layout.TranslatedPage{
		{PageNumber: 1, Width: 612, Height: 792, Elements: []layout.TranslatedElement{
			element("Hello world", 72, 72, 200, 20),
			element("Second block", 72, 120, 200, 20),
		}},
		{PageNumber: 2, Width: 612, Height: 792, Elements: []layout.TranslatedElement{
			element("Page two", 72, 72, 200, 20),
		}},
	}}

	out := filepath.Join(t.TempDir(), "out.pdf")
	report, err := NewReconstructor(0).Reconstruct(doc, out)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if report.Elements != 3 {
		t.Errorf("expected 3 elements, got %d", report.Elements)
	}
	if report.OverflowEvents != 0 || report.FontFallbacks != 0 {
		t.Errorf("unexpected events in %+v", report)
	}

	// The produced file passes the input validator and keeps page count.
	v := NewValidator(0)
	if err := v.Validate(out); err != nil {
		t.Fatalf("output failed validation: %v", err)
	}
	if n, _ := v.PageCount(out); n != 2 {
		t.Errorf("expected 2 pages, got %d", n)
	}

	// Extraction gets the drawn text back.
	pages, err := NewExtractor(nil).ExtractPages(context.Background(), out)
	if err != nil {
		t.Fatalf("extraction failed: %v", err)
	}
	if len(pages) != 2 || !strings.Contains(pages[0], "Hello world") {
		t.Errorf("drawn text not extractable: %q", pages)
	}
}

func TestReconstructCountsFontFallbacks(t *testing.T) {
	el := element("text", 72, 72, 200, 20)
	el.FontInfo.Family = "Comic Sans MS"
	doc := &layout.TranslatedLayout{Pages: []layout.TranslatedPage{
		{PageNumber: 1, Width: 612, Height: 792, Elements: []layout.TranslatedElement{el}},
	}}

	out := filepath.Join(t.TempDir(), "out.pdf")
	report, err := NewReconstructor(0).Reconstruct(doc, out)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if report.FontFallbacks != 1 || report.FontFallbackRate != 1 {
		t.Errorf("unknown family must be a fallback event, got %+v", report)
	}
	if len(report.Warnings) == 0 {
		t.Error("fallback must leave a warning")
	}
}

func TestReconstructTruncatesOverflow(t *testing.T) {
	el := element(strings.Repeat("line\n", 9)+"line", 72, 72, 200, 30)
	doc := &layout.TranslatedLayout{Pages: []layout.TranslatedPage{
		{PageNumber: 1, Width: 612, Height: 792, Elements: []layout.TranslatedElement{el}},
	}}

	out := filepath.Join(t.TempDir(), "out.pdf")
	report, err := NewReconstructor(0).Reconstruct(doc, out)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	// 30pt box at 12pt font and 1.2 line height holds 2 lines; 10 were given.
	if report.OverflowEvents != 1 {
		t.Errorf("expected a render-time overflow event, got %+v", report)
	}
}

func TestReconstructEmptyLayout(t *testing.T) {
	_, err := NewReconstructor(0).Reconstruct(&layout.TranslatedLayout{}, filepath.Join(t.TempDir(), "x.pdf"))
	if types.CodeOf(err) != types.ErrInvalidInput {
		t.Fatalf("empty layout must be INVALID_INPUT, got %v", err)
	}
}

func TestPageSizeFallsBackToElementUnion(t *testing.T) {
	page := layout.TranslatedPage{Elements: []layout.TranslatedElement{
		element("a", 10, 20, 100, 30),
		element("b", 200, 300, 150, 40),
	}}
	size := pageSize(page)
	if size[0] != 350 || size[1] != 340 {
		t.Errorf("expected union 350x340, got %v", size)
	}
}
