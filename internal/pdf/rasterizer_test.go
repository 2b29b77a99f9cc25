package pdf

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"testing"

	"pdf-translator/internal/types"
)

func TestNewRasterizerClampsDPI(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero uses default", 0, DefaultDPI},
		{"below minimum", 10, MinDPI},
		{"above maximum", 1200, MaxDPI},
		{"in range", 150, 150},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRasterizer(tc.in, FormatPNG)
			if r.dpi != tc.want {
				t.Errorf("dpi = %d, want %d", r.dpi, tc.want)
			}
		})
	}
}

func TestNewRasterizerUnknownFormatFallsBackToPNG(t *testing.T) {
	r := NewRasterizer(300, "webp")
	if r.format != FormatPNG {
		t.Errorf("expected png fallback, got %s", r.format)
	}
}

func TestRenderRejectsEncrypted(t *testing.T) {
	path := writeRaw(t, t.TempDir(), "enc.pdf",
		[]byte("%PDF-1.7\ntrailer << /Encrypt 5 0 R >>\n%%EOF"))
	_, err := NewRasterizer(300, FormatPNG).Render(path)
	if types.CodeOf(err) != types.ErrEncrypted {
		t.Fatalf("expected ENCRYPTED, got %v", err)
	}
}

func TestRenderMissingFile(t *testing.T) {
	_, err := NewRasterizer(300, FormatPNG).Render("/does/not/exist.pdf")
	if types.CodeOf(err) != types.ErrNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRenderIteratesPagesInOrder(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
	path := writeTestPDF(t, t.TempDir(), 3)

	it, err := NewRasterizer(72, FormatPNG).Render(path)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	defer it.Close()

	if it.Total() != 3 {
		t.Fatalf("expected 3 pages, got %d", it.Total())
	}

	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	for want := 1; want <= 3; want++ {
		data, page, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next(%d) failed: %v", want, err)
		}
		if page != want {
			t.Errorf("page order broken: got %d, want %d", page, want)
		}
		if !bytes.HasPrefix(data, pngMagic) {
			t.Errorf("page %d is not a PNG", page)
		}
	}
	if _, _, err := it.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF after the last page, got %v", err)
	}
}

func TestRenderCancelledContext(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), 1)
	it, err := NewRasterizer(72, FormatPNG).Render(path)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	defer it.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = it.Next(ctx)
	if types.CodeOf(err) != types.ErrCancelled {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
}

func TestRenderPageSingle(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
	path := writeTestPDF(t, t.TempDir(), 3)

	data, err := NewRasterizer(72, FormatPNG).RenderPage(context.Background(), path, 2)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}) {
		t.Error("rendered page is not a PNG")
	}
}

func TestRenderPageOutOfRange(t *testing.T) {
	path := writeTestPDF(t, t.TempDir(), 1)
	_, err := NewRasterizer(72, FormatPNG).RenderPage(context.Background(), path, 4)
	if types.CodeOf(err) != types.ErrInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
