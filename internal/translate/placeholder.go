package translate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pdf-translator/internal/types"
)

// Protected terms travel through the model wrapped in paired markers:
// ⟦NEO:n⟧term⟦NEO:n⟧ with n a per-document index. Literal delimiter
// characters occurring in natural text are doubled so a marker can never be
// forged by input.
const (
	markerOpen  = "⟦"
	markerClose = "⟧"
)

var markerRe = regexp.MustCompile(`⟦NEO:(\d+)⟧(?s:.*?)⟦NEO:(\d+)⟧`)

// ProtectedSpan marks a byte range of the source text to shield from
// translation. Restore is the text that replaces the range afterwards: the
// original term for a preserved one, the user's wording for a custom one.
type ProtectedSpan struct {
	Start   int
	End     int
	Restore string
}

// Protector assigns marker indexes and remembers what each one restores to.
// One Protector serves one document; indexes stay unique across its blocks.
type Protector struct {
	next  int
	terms map[int]string
}

func NewProtector() *Protector {
	return &Protector{terms: make(map[int]string)}
}

// Protect wraps the given spans of text in markers and escapes any literal
// delimiter characters outside them. Spans must not overlap.
func (p *Protector) Protect(text string, spans []ProtectedSpan) (string, error) {
	if len(spans) == 0 {
		return escapeDelims(text), nil
	}
	sorted := make([]ProtectedSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var sb strings.Builder
	prev := 0
	for _, span := range sorted {
		if span.Start < prev || span.End > len(text) || span.End < span.Start {
			return "", types.NewAppError(types.ErrInvalidInput, "protected spans overlap or exceed the text", nil)
		}
		sb.WriteString(escapeDelims(text[prev:span.Start]))

		idx := p.next
		p.next++
		p.terms[idx] = span.Restore
		marker := fmt.Sprintf("%sNEO:%d%s", markerOpen, idx, markerClose)
		sb.WriteString(marker)
		sb.WriteString(text[span.Start:span.End])
		sb.WriteString(marker)
		prev = span.End
	}
	sb.WriteString(escapeDelims(text[prev:]))
	return sb.String(), nil
}

// Restore replaces every marker pair in translated text with its recorded
// restore string and undoes delimiter escaping. Markers with mismatched or
// unknown indexes are reported as a protocol error; the text is still
// returned with everything restorable restored.
func (p *Protector) Restore(translated string) (string, error) {
	var bad int
	restored := markerRe.ReplaceAllStringFunc(translated, func(m string) string {
		groups := markerRe.FindStringSubmatch(m)
		a, _ := strconv.Atoi(groups[1])
		b, _ := strconv.Atoi(groups[2])
		if a != b {
			bad++
			return m
		}
		term, ok := p.terms[a]
		if !ok {
			bad++
			return m
		}
		return term
	})
	restored = unescapeDelims(restored)
	if bad > 0 {
		return restored, types.NewAppErrorWithDetails(types.ErrProtocol,
			"translation response corrupted protected markers",
			strconv.Itoa(bad), nil)
	}
	return restored, nil
}

func escapeDelims(s string) string {
	if !strings.Contains(s, markerOpen) && !strings.Contains(s, markerClose) {
		return s
	}
	s = strings.ReplaceAll(s, markerOpen, markerOpen+markerOpen)
	return strings.ReplaceAll(s, markerClose, markerClose+markerClose)
}

func unescapeDelims(s string) string {
	s = strings.ReplaceAll(s, markerOpen+markerOpen, markerOpen)
	return strings.ReplaceAll(s, markerClose+markerClose, markerClose)
}
