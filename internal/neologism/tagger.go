// Package neologism identifies candidate domain-specific terms in extracted
// text and attaches translation context. Detection is heuristic; callers
// treat the tagger as a black box producing spans with confidence scores.
package neologism

import (
	"strings"
	"unicode"

	"pdf-translator/internal/choices"
)

// Span is one tagged term occurrence. Start and End are byte offsets into
// the tagged text, End exclusive.
type Span struct {
	Start      int
	End        int
	Term       string
	Confidence float64
	Context    *choices.TranslationContext
}

// Tagger finds candidate terms in text. Implementations are pure functions
// of their inputs and hold no per-call state.
type Tagger interface {
	Tag(text, sourceLang, targetLang string) ([]Span, error)
}

// HeuristicTagger is a single-pass detector. It flags four shapes of
// candidate term, strongest signal first:
//
//	known terms from a terminology map  confidence 0.95
//	hyphenated compounds                confidence 0.75
//	words enclosed in quotes            confidence 0.70
//	mid-sentence capitalized words      confidence 0.60
//
// Words shorter than minTermLength never match.
type HeuristicTagger struct {
	terms  map[string]TermEntry
	domain string
}

const (
	minTermLength = 4

	confKnownTerm  = 0.95
	confCompound   = 0.75
	confQuoted     = 0.70
	confMidCapital = 0.60
)

// NewHeuristicTagger builds a tagger over an optional terminology map.
// domain labels the semantic field attached to every produced context.
func NewHeuristicTagger(terms map[string]TermEntry, domain string) *HeuristicTagger {
	canon := make(map[string]TermEntry, len(terms))
	for k, v := range terms {
		canon[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &HeuristicTagger{terms: canon, domain: domain}
}

// Tag scans text once, left to right. Spans never overlap; each word is
// claimed by at most its strongest matching rule.
func (h *HeuristicTagger) Tag(text, sourceLang, targetLang string) ([]Span, error) {
	var spans []Span
	sentenceStart := true

	for i := 0; i < len(text); {
		r := rune(text[i])
		if !isWordByte(text[i]) {
			if r == '.' || r == '!' || r == '?' || r == '\n' {
				sentenceStart = true
			}
			i++
			continue
		}

		start := i
		for i < len(text) && isWordByte(text[i]) {
			i++
		}
		word := text[start:i]
		atSentenceStart := sentenceStart
		sentenceStart = false

		if len(word) < minTermLength {
			continue
		}

		lower := strings.ToLower(word)
		if entry, ok := h.terms[lower]; ok {
			spans = append(spans, Span{
				Start: start, End: start + len(word), Term: word,
				Confidence: confKnownTerm,
				Context:    h.knownContext(entry, sourceLang, targetLang, text, start),
			})
			continue
		}
		if strings.Contains(word, "-") && len(word) >= 2*minTermLength {
			spans = append(spans, Span{
				Start: start, End: start + len(word), Term: word,
				Confidence: confCompound,
				Context:    h.heuristicContext(sourceLang, targetLang, text, start),
			})
			continue
		}
		if isQuoted(text, start, i) {
			spans = append(spans, Span{
				Start: start, End: start + len(word), Term: word,
				Confidence: confQuoted,
				Context:    h.heuristicContext(sourceLang, targetLang, text, start),
			})
			continue
		}
		if !atSentenceStart && startsUpper(word) {
			spans = append(spans, Span{
				Start: start, End: start + len(word), Term: word,
				Confidence: confMidCapital,
				Context:    h.heuristicContext(sourceLang, targetLang, text, start),
			})
		}
	}
	return spans, nil
}

// knownContext mirrors the context a seeded terminology choice was stored
// under, so exact-hash lookups hit. SentenceContext is informational and not
// hashed.
func (h *HeuristicTagger) knownContext(entry TermEntry, sourceLang, targetLang, text string, pos int) *choices.TranslationContext {
	ctx := entry.Context(sourceLang, targetLang)
	ctx.SentenceContext = surroundingSentence(text, pos)
	return ctx
}

// heuristicContext labels a rule-detected span with the tagger's domain.
func (h *HeuristicTagger) heuristicContext(sourceLang, targetLang, text string, pos int) *choices.TranslationContext {
	return &choices.TranslationContext{
		SemanticField:   h.domain,
		SourceLanguage:  sourceLang,
		TargetLanguage:  targetLang,
		SentenceContext: surroundingSentence(text, pos),
	}
}

// surroundingSentence returns the sentence containing pos, trimmed to a
// bounded window so contexts stay small.
func surroundingSentence(text string, pos int) string {
	const window = 200
	lo := pos
	for lo > 0 && pos-lo < window && text[lo-1] != '.' && text[lo-1] != '\n' {
		lo--
	}
	hi := pos
	for hi < len(text) && hi-pos < window && text[hi] != '.' && text[hi] != '\n' {
		hi++
	}
	if hi < len(text) && text[hi] == '.' {
		hi++
	}
	return strings.TrimSpace(text[lo:hi])
}

// isWordByte treats ASCII letters, hyphens and bytes of multibyte runes as
// word content. Offsets stay byte-accurate for UTF-8 input.
func isWordByte(b byte) bool {
	return b >= 0x80 || b == '-' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// isQuoted reports whether text[start:end] sits directly inside a matching
// pair of ASCII quotes. Typographic quotes are multibyte and the scanner is
// byte-based, so only " and ' are recognized.
func isQuoted(text string, start, end int) bool {
	if start == 0 || end >= len(text) {
		return false
	}
	before, after := text[start-1], text[end]
	return (before == '"' && after == '"') || (before == '\'' && after == '\'')
}

func startsUpper(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}
