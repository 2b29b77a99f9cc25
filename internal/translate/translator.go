package translate

import (
	"context"
	"strings"

	"pdf-translator/internal/choices"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/neologism"
)

// DefaultBatchSize caps how many blocks go into one concurrent batch.
const DefaultBatchSize = 100

// Translator turns OCR text blocks into layout-fitted translated elements.
// The tagger and the choice store are optional; without them every block is
// translated as-is.
type Translator struct {
	client    *Client
	engine    *layout.Engine
	cache     *Cache
	tagger    neologism.Tagger
	store     *choices.Store
	batchSize int
}

// TranslatorOption customizes a Translator.
type TranslatorOption func(*Translator)

// WithCache attaches a translation result cache.
func WithCache(c *Cache) TranslatorOption {
	return func(t *Translator) { t.cache = c }
}

// WithTagger attaches a neologism tagger.
func WithTagger(tg neologism.Tagger) TranslatorOption {
	return func(t *Translator) { t.tagger = tg }
}

// WithChoices attaches a user-choice store consulted per tagged term.
func WithChoices(s *choices.Store) TranslatorOption {
	return func(t *Translator) { t.store = s }
}

// WithBatchSize overrides the per-batch block count.
func WithBatchSize(n int) TranslatorOption {
	return func(t *Translator) {
		if n > 0 {
			t.batchSize = n
		}
	}
}

func NewTranslator(client *Client, engine *layout.Engine, opts ...TranslatorOption) *Translator {
	t := &Translator{client: client, engine: engine, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// preparedBlock is one block staged for translation.
type preparedBlock struct {
	block      layout.TextBlock
	normalized string // whitespace-normalized source
	protected  string // normalized text with markers inserted
	cached     string // cache hit, empty if none
	choiceIDs  []string
}

// TranslateBlocks translates the blocks of one page and fits each result
// back into its bounding box. Failed blocks fall back to their source text
// with confidence 0 rather than failing the page. sessionID and documentID
// scope the user choices consulted per tagged term.
func (t *Translator) TranslateBlocks(ctx context.Context, blocks []layout.TextBlock, sourceLang, targetLang, sessionID, documentID string) ([]layout.TranslatedElement, error) {
	protector := NewProtector()
	prepared := make([]preparedBlock, len(blocks))
	for i, block := range blocks {
		p, err := t.prepare(block, protector, sourceLang, targetLang, sessionID, documentID)
		if err != nil {
			return nil, err
		}
		prepared[i] = p
	}

	// Translate the cache misses in bounded batches.
	type pending struct{ idx int }
	var misses []pending
	for i := range prepared {
		if prepared[i].cached == "" {
			misses = append(misses, pending{idx: i})
		}
	}

	translations := make([]string, len(prepared))
	failures := make([]error, len(prepared))
	for i := range prepared {
		translations[i] = prepared[i].cached
	}

	for start := 0; start < len(misses); start += t.batchSize {
		end := start + t.batchSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]
		items := make([]BatchItem, len(chunk))
		for j, m := range chunk {
			items[j] = BatchItem{Text: prepared[m.idx].protected}
		}
		results := t.client.TranslateBatch(ctx, items, sourceLang, targetLang)
		for j, res := range results {
			idx := chunk[j].idx
			if res.Err != nil {
				failures[idx] = res.Err
				continue
			}
			translations[idx] = res.Translated
			if t.cache != nil {
				t.cache.Set(prepared[idx].protected, res.Translated, sourceLang, targetLang)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elements := make([]layout.TranslatedElement, len(prepared))
	for i := range prepared {
		elements[i] = t.finish(prepared[i], protector, translations[i], failures[i])
	}
	return elements, nil
}

func (t *Translator) prepare(block layout.TextBlock, protector *Protector, sourceLang, targetLang, sessionID, documentID string) (preparedBlock, error) {
	p := preparedBlock{block: block, normalized: normalizeWhitespace(block.Text)}

	spans, err := t.protectedSpans(p.normalized, sourceLang, targetLang, sessionID, documentID, &p.choiceIDs)
	if err != nil {
		return p, err
	}
	p.protected, err = protector.Protect(p.normalized, spans)
	if err != nil {
		return p, err
	}

	if t.cache != nil {
		if hit, ok := t.cache.Get(p.protected, sourceLang, targetLang); ok {
			p.cached = hit
			t.client.count(func(m *Metrics) { m.CacheHits++ })
		}
	}
	return p, nil
}

// protectedSpans tags the text and converts each span with an applicable
// user choice into a protected span. SKIP choices and terms without a
// choice translate normally.
func (t *Translator) protectedSpans(text, sourceLang, targetLang, sessionID, documentID string, choiceIDs *[]string) ([]ProtectedSpan, error) {
	if t.tagger == nil || t.store == nil {
		return nil, nil
	}
	spans, err := t.tagger.Tag(text, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}

	var protected []ProtectedSpan
	lastEnd := -1
	for _, span := range spans {
		if span.Start < lastEnd {
			continue
		}
		choice, err := t.store.GetChoice(span.Term, span.Context, sessionID, documentID)
		if err != nil {
			return nil, err
		}
		if choice == nil {
			continue
		}

		restore := ""
		switch choice.ChoiceType {
		case choices.ChoicePreserve:
			restore = span.Term
		case choices.ChoiceCustom:
			restore = choice.TranslationResult
		case choices.ChoiceTranslate:
			if choice.TranslationResult == "" {
				continue
			}
			restore = choice.TranslationResult
		default: // SKIP
			continue
		}
		protected = append(protected, ProtectedSpan{Start: span.Start, End: span.End, Restore: restore})
		*choiceIDs = append(*choiceIDs, choice.ChoiceID)
		lastEnd = span.End
	}
	return protected, nil
}

// finish restores placeholders, fits the text, and records choice usage.
func (t *Translator) finish(p preparedBlock, protector *Protector, translated string, failure error) layout.TranslatedElement {
	fallback := failure != nil
	if fallback {
		logger.Warn("block translation failed, keeping source text",
			logger.Err(failure))
		translated = p.normalized
	} else {
		restored, err := protector.Restore(translated)
		if err != nil {
			logger.Warn("marker restoration incomplete", logger.Err(err))
		}
		translated = restored
	}

	t.recordUsage(p.choiceIDs, !fallback)

	fit := t.engine.AnalyzeFit(len([]rune(p.normalized)), len([]rune(translated)), p.block.BBox, p.block.Font)
	strategy := t.engine.DecideStrategy(fit)
	applied := t.engine.Apply(translated, p.block.BBox, p.block.Font, strategy)

	confidence := t.engine.QualityScore(fit, strategy)
	if fallback {
		confidence = 0
	}

	return layout.TranslatedElement{
		OriginalText:   p.block.Text,
		TranslatedText: translated,
		AdjustedText:   applied.Text,
		BBox:           applied.BBox,
		FontInfo:       applied.Font,
		LayoutStrategy: string(strategy.Type),
		Confidence:     confidence,
	}
}

func (t *Translator) recordUsage(ids []string, success bool) {
	if t.store == nil {
		return
	}
	for _, id := range ids {
		if err := t.store.RecordUsage(id, success); err != nil {
			logger.Warn("failed to record choice usage",
				logger.String("choice_id", id), logger.Err(err))
		}
	}
}

// normalizeWhitespace collapses runs of whitespace. Runs containing a
// newline become one newline, all others one space.
func normalizeWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inRun := false
	runHasNewline := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v' {
			inRun = true
			if r == '\n' || r == '\r' {
				runHasNewline = true
			}
			continue
		}
		if inRun {
			if sb.Len() > 0 {
				if runHasNewline {
					sb.WriteByte('\n')
				} else {
					sb.WriteByte(' ')
				}
			}
			inRun = false
			runHasNewline = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
