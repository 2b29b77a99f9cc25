package neologism

import (
	"encoding/json"
	"os"

	"pdf-translator/internal/choices"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// TermEntry is one terminology-map record: a known specialized term and how
// it should be handled by default.
type TermEntry struct {
	Term            string   `json:"term"`
	Translation     string   `json:"translation,omitempty"`
	Preserve        bool     `json:"preserve,omitempty"`
	SemanticField   string   `json:"semantic_field,omitempty"`
	Domain          string   `json:"domain,omitempty"`
	Author          string   `json:"author,omitempty"`
	RelatedConcepts []string `json:"related_concepts,omitempty"`
}

// Context builds the translation context a terminology entry is stored and
// looked up under. Seeding and tagging must build it from the same fields or
// the context hashes will never line up.
func (e TermEntry) Context(sourceLang, targetLang string) *choices.TranslationContext {
	return &choices.TranslationContext{
		SemanticField:       e.SemanticField,
		PhilosophicalDomain: e.Domain,
		Author:              e.Author,
		SourceLanguage:      sourceLang,
		TargetLanguage:      targetLang,
		RelatedConcepts:     e.RelatedConcepts,
	}
}

// LoadTerminology reads a terminology map from a JSON file: an array of
// TermEntry records keyed by their Term field.
func LoadTerminology(path string) (map[string]TermEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrNotFound, "failed to read terminology file", err)
	}
	var entries []TermEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "malformed terminology file", err)
	}
	terms := make(map[string]TermEntry, len(entries))
	for _, e := range entries {
		if e.Term == "" {
			continue
		}
		terms[e.Term] = e
	}
	logger.Info("terminology map loaded",
		logger.String("path", path), logger.Int("terms", len(terms)))
	return terms, nil
}

// SeedGlobalChoices installs terminology entries as GLOBAL-scope choices so
// the translator honors them before any user has decided anything. Existing
// rows for the same (term, context) are updated in place.
func SeedGlobalChoices(store *choices.Store, terms map[string]TermEntry, sourceLang, targetLang string) error {
	for _, e := range terms {
		choiceType := choices.ChoiceTranslate
		result := e.Translation
		switch {
		case e.Preserve:
			choiceType = choices.ChoicePreserve
			result = ""
		case e.Translation != "":
			choiceType = choices.ChoiceCustom
		default:
			continue
		}
		_, err := store.MakeChoice(choices.MakeChoiceParams{
			Term:              e.Term,
			ChoiceType:        choiceType,
			TranslationResult: result,
			Context:           e.Context(sourceLang, targetLang),
			Scope:             choices.ScopeGlobal,
			ConfidenceLevel:   0.9,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
