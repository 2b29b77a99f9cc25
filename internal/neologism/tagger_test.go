package neologism

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTagKnownTermHighestConfidence(t *testing.T) {
	tagger := NewHeuristicTagger(map[string]TermEntry{
		"Dasein": {Term: "Dasein", SemanticField: "ontology", Author: "Heidegger"},
	}, "philosophy")

	spans, err := tagger.Tag("the analysis of dasein begins here", "de", "en")
	if err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d: %+v", len(spans), spans)
	}
	s := spans[0]
	if s.Term != "dasein" || s.Confidence != confKnownTerm {
		t.Errorf("unexpected span %+v", s)
	}
	if s.Context.SemanticField != "ontology" || s.Context.Author != "Heidegger" {
		t.Errorf("terminology context lost: %+v", s.Context)
	}
	if s.Context.SourceLanguage != "de" {
		t.Errorf("locale must flow into context, got %q", s.Context.SourceLanguage)
	}
}

func TestTagSpanOffsetsAreByteAccurate(t *testing.T) {
	tagger := NewHeuristicTagger(map[string]TermEntry{
		"Zeitlichkeit": {Term: "Zeitlichkeit"},
	}, "")

	text := "über Zeitlichkeit sprechen"
	spans, _ := tagger.Tag(text, "de", "en")
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %+v", spans)
	}
	if got := text[spans[0].Start:spans[0].End]; got != "Zeitlichkeit" {
		t.Errorf("offsets must slice the term back out, got %q", got)
	}
}

func TestTagHyphenatedCompound(t *testing.T) {
	tagger := NewHeuristicTagger(nil, "philosophy")
	spans, _ := tagger.Tag("the being-in-the-world structure", "en", "de")
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %+v", spans)
	}
	if spans[0].Term != "being-in-the-world" || spans[0].Confidence != confCompound {
		t.Errorf("unexpected span %+v", spans[0])
	}
}

func TestTagMidSentenceCapital(t *testing.T) {
	tagger := NewHeuristicTagger(nil, "")
	spans, _ := tagger.Tag("Erste Worte. Wir untersuchen Angst genau", "de", "en")

	// "Erste" and "Wir" open sentences; "Worte", "Angst" are mid-sentence.
	got := map[string]bool{}
	for _, s := range spans {
		got[s.Term] = true
	}
	if !got["Angst"] || !got["Worte"] {
		t.Errorf("mid-sentence capitals must be tagged, got %+v", spans)
	}
	if got["Erste"] || got["Wir"] {
		t.Errorf("sentence-initial capitals must not be tagged, got %+v", spans)
	}
}

func TestTagShortWordsIgnored(t *testing.T) {
	tagger := NewHeuristicTagger(map[string]TermEntry{"Ort": {Term: "Ort"}}, "")
	spans, _ := tagger.Tag("ein ort im text", "de", "en")
	if len(spans) != 0 {
		t.Errorf("words under %d chars must be ignored, got %+v", minTermLength, spans)
	}
}

func TestTagNoOverlappingSpans(t *testing.T) {
	tagger := NewHeuristicTagger(map[string]TermEntry{
		"Selbst-Bewusstsein": {Term: "Selbst-Bewusstsein"},
	}, "")
	spans, _ := tagger.Tag("das Selbst-Bewusstsein erwacht", "de", "en")
	if len(spans) != 1 {
		t.Fatalf("known term must claim the word once, got %+v", spans)
	}
	if spans[0].Confidence != confKnownTerm {
		t.Errorf("known-term rule must win over compound rule, got %+v", spans[0])
	}
}

func TestLoadTerminology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.json")
	payload := `[
		{"term": "Dasein", "preserve": true, "semantic_field": "ontology"},
		{"term": "Angst", "translation": "anxiety"},
		{"term": ""}
	]`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	terms, err := LoadTerminology(path)
	if err != nil {
		t.Fatalf("LoadTerminology failed: %v", err)
	}
	if len(terms) != 2 {
		t.Fatalf("empty terms must be dropped, got %d entries", len(terms))
	}
	if !terms["Dasein"].Preserve || terms["Angst"].Translation != "anxiety" {
		t.Errorf("entries lost fields: %+v", terms)
	}
}

func TestLoadTerminologyMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := LoadTerminology(path); err == nil {
		t.Fatal("malformed file must fail")
	}
}

func TestTagQuotedTerm(t *testing.T) {
	tagger := NewHeuristicTagger(nil, "philosophy")
	spans, _ := tagger.Tag(`the notion of "thrownness" matters`, "en", "de")
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %+v", spans)
	}
	if spans[0].Term != "thrownness" || spans[0].Confidence != confQuoted {
		t.Errorf("unexpected span %+v", spans[0])
	}

	// An unmatched quote is not a signal.
	spans, _ = tagger.Tag(`the notion of "thrownness matters`, "en", "de")
	for _, s := range spans {
		if s.Confidence == confQuoted {
			t.Errorf("half-quoted word must not match: %+v", s)
		}
	}
}
