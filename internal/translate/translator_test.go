package translate

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"

	"pdf-translator/internal/choices"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/neologism"
)

func openTranslatorTestStore(t *testing.T) *choices.Store {
	t.Helper()
	s, err := choices.Open(filepath.Join(t.TempDir(), "choices.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBlock(text string) layout.TextBlock {
	return layout.TextBlock{
		Text: text,
		BBox: layout.BoundingBox{X: 10, Y: 10, Width: 400, Height: 20},
		Font: layout.DefaultFont(12),
	}
}

func newTestTranslator(t *testing.T, fake *fakeChatModel, opts ...TranslatorOption) *Translator {
	t.Helper()
	client := newTestClient(t, fake, nil)
	return NewTranslator(client, layout.NewEngine(layout.DefaultConfig()), opts...)
}

func TestTranslateBlocksNormalizesWhitespace(t *testing.T) {
	var sent string
	fake := &fakeChatModel{respond: func(call int, in []*schema.Message) (*schema.Message, error) {
		sent = in[len(in)-1].Content
		return schema.AssistantMessage("ok", nil), nil
	}}
	tr := newTestTranslator(t, fake)

	_, err := tr.TranslateBlocks(context.Background(),
		[]layout.TextBlock{testBlock("hello   world\n\n\nagain\t here")}, "en", "de", "", "")
	if err != nil {
		t.Fatalf("TranslateBlocks failed: %v", err)
	}
	if sent != "hello world\nagain here" {
		t.Errorf("whitespace must be normalized before submission, got %q", sent)
	}
}

func TestTranslateBlocksEmitsElements(t *testing.T) {
	fake := &fakeChatModel{respond: echoUpper}
	tr := newTestTranslator(t, fake)

	blocks := []layout.TextBlock{testBlock("short text"), testBlock("another block")}
	elements, err := tr.TranslateBlocks(context.Background(), blocks, "en", "de", "", "")
	if err != nil {
		t.Fatalf("TranslateBlocks failed: %v", err)
	}
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}
	el := elements[0]
	if el.TranslatedText != "SHORT TEXT" || el.OriginalText != "short text" {
		t.Errorf("unexpected element %+v", el)
	}
	if el.LayoutStrategy != string(layout.StrategyNone) {
		t.Errorf("same-length text must fit unchanged, got %s", el.LayoutStrategy)
	}
	if el.Confidence <= 0 || el.Confidence > 1 {
		t.Errorf("confidence out of range: %v", el.Confidence)
	}
	if el.BBox != blocks[0].BBox {
		t.Errorf("unchanged fit must keep the bbox, got %+v", el.BBox)
	}
}

func TestTranslateBlocksFallbackOnFailure(t *testing.T) {
	fake := &fakeChatModel{respond: func(call int, in []*schema.Message) (*schema.Message, error) {
		user := in[len(in)-1].Content
		if strings.Contains(user, "bad") {
			return nil, errors.New("400 invalid request")
		}
		return echoUpper(call, in)
	}}
	tr := newTestTranslator(t, fake)

	blocks := []layout.TextBlock{testBlock("good text"), testBlock("bad text")}
	elements, err := tr.TranslateBlocks(context.Background(), blocks, "en", "de", "", "")
	if err != nil {
		t.Fatalf("page must not fail on one bad block: %v", err)
	}
	if elements[0].TranslatedText != "GOOD TEXT" {
		t.Errorf("good block lost: %+v", elements[0])
	}
	if elements[1].TranslatedText != "bad text" || elements[1].Confidence != 0 {
		t.Errorf("failed block must fall back to source with confidence 0, got %+v", elements[1])
	}
}

func TestTranslateBlocksProtectsChosenTerms(t *testing.T) {
	store := openTranslatorTestStore(t)
	_, err := store.MakeChoice(choices.MakeChoiceParams{
		Term: "Dasein", ChoiceType: choices.ChoicePreserve,
		Context: &choices.TranslationContext{
			SemanticField: "philosophy", SourceLanguage: "de", TargetLanguage: "en",
		},
		Scope: choices.ScopeContextual,
	})
	if err != nil {
		t.Fatalf("MakeChoice failed: %v", err)
	}

	tagger := neologism.NewHeuristicTagger(map[string]neologism.TermEntry{
		"Dasein": {Term: "Dasein", SemanticField: "philosophy"},
	}, "philosophy")

	var sent string
	fake := &fakeChatModel{respond: func(call int, in []*schema.Message) (*schema.Message, error) {
		sent = in[len(in)-1].Content
		// A cooperative model: translate around the marker pair.
		out := strings.Replace(sent, "das ", "the ", 1)
		out = strings.Replace(out, " ist zeitlich", " is temporal", 1)
		return schema.AssistantMessage(out, nil), nil
	}}
	tr := newTestTranslator(t, fake, WithTagger(tagger), WithChoices(store))

	elements, err := tr.TranslateBlocks(context.Background(),
		[]layout.TextBlock{testBlock("das Dasein ist zeitlich")}, "de", "en", "", "")
	if err != nil {
		t.Fatalf("TranslateBlocks failed: %v", err)
	}
	if !strings.Contains(sent, "⟦NEO:0⟧Dasein⟦NEO:0⟧") {
		t.Errorf("chosen term must travel wrapped in markers, got %q", sent)
	}
	if elements[0].TranslatedText != "the Dasein is temporal" {
		t.Errorf("preserved term must be restored verbatim, got %q", elements[0].TranslatedText)
	}

	// Usage was recorded as a success.
	got, err := store.GetChoice("Dasein",
		&choices.TranslationContext{
			SemanticField: "philosophy", SourceLanguage: "de", TargetLanguage: "en",
		}, "", "")
	if err != nil || got == nil {
		t.Fatalf("choice lookup failed: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("expected usage_count 1, got %d", got.UsageCount)
	}
}

func TestTranslateBlocksCustomChoiceSubstitutes(t *testing.T) {
	store := openTranslatorTestStore(t)
	_, err := store.MakeChoice(choices.MakeChoiceParams{
		Term: "Angst", ChoiceType: choices.ChoiceCustom, TranslationResult: "anxiety (Angst)",
		Context: &choices.TranslationContext{
			SemanticField: "philosophy", SourceLanguage: "de", TargetLanguage: "en",
		},
		Scope: choices.ScopeContextual,
	})
	if err != nil {
		t.Fatal(err)
	}
	tagger := neologism.NewHeuristicTagger(map[string]neologism.TermEntry{
		"Angst": {Term: "Angst", SemanticField: "philosophy"},
	}, "philosophy")

	fake := &fakeChatModel{respond: func(call int, in []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(in[len(in)-1].Content, nil), nil
	}}
	tr := newTestTranslator(t, fake, WithTagger(tagger), WithChoices(store))

	elements, err := tr.TranslateBlocks(context.Background(),
		[]layout.TextBlock{testBlock("die Angst bleibt")}, "de", "en", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(elements[0].TranslatedText, "anxiety (Angst)") {
		t.Errorf("CUSTOM choice must substitute its wording, got %q", elements[0].TranslatedText)
	}
}

func TestTranslateBlocksCacheHitSkipsModel(t *testing.T) {
	fake := &fakeChatModel{respond: echoUpper}
	cache := NewCache("")
	tr := newTestTranslator(t, fake, WithCache(cache))

	blocks := []layout.TextBlock{testBlock("repeated text")}
	if _, err := tr.TranslateBlocks(context.Background(), blocks, "en", "de", "", ""); err != nil {
		t.Fatal(err)
	}
	first := atomic.LoadInt32(&fake.calls)

	elements, err := tr.TranslateBlocks(context.Background(), blocks, "en", "de", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&fake.calls) != first {
		t.Error("second run must be served from the cache")
	}
	if elements[0].TranslatedText != "REPEATED TEXT" {
		t.Errorf("cache must return the stored translation, got %q", elements[0].TranslatedText)
	}
	if tr.client.Metrics().CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", tr.client.Metrics().CacheHits)
	}
}

func TestTranslateBlocksLongTextGetsWrapped(t *testing.T) {
	long := strings.Repeat("translated words flow here ", 6)
	fake := &fakeChatModel{respond: func(call int, in []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(long, nil), nil
	}}
	tr := newTestTranslator(t, fake)

	block := layout.TextBlock{
		Text: "short",
		BBox: layout.BoundingBox{X: 0, Y: 0, Width: 200, Height: 60},
		Font: layout.DefaultFont(12),
	}
	elements, err := tr.TranslateBlocks(context.Background(), []layout.TextBlock{block}, "en", "de", "", "")
	if err != nil {
		t.Fatal(err)
	}
	el := elements[0]
	if el.LayoutStrategy == string(layout.StrategyNone) {
		t.Errorf("a much longer translation cannot fit unchanged, got %s", el.LayoutStrategy)
	}
	if !strings.Contains(el.AdjustedText, "\n") && el.LayoutStrategy != string(layout.StrategyFontScale) {
		t.Errorf("expected wrapped or scaled text, got %+v", el)
	}
}
