package choices

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// TranslationContext captures where a term occurred. It is the key space for
// matching stored choices against new occurrences.
type TranslationContext struct {
	SentenceContext     string   `json:"sentence_context,omitempty"`
	ParagraphContext    string   `json:"paragraph_context,omitempty"`
	SemanticField       string   `json:"semantic_field,omitempty"`
	PhilosophicalDomain string   `json:"philosophical_domain,omitempty"`
	Author              string   `json:"author,omitempty"`
	SourceLanguage      string   `json:"source_language,omitempty"`
	TargetLanguage      string   `json:"target_language,omitempty"`
	PageNumber          int      `json:"page_number,omitempty"`
	SurroundingTerms    []string `json:"surrounding_terms,omitempty"`
	RelatedConcepts     []string `json:"related_concepts,omitempty"`
	ConfidenceScore     float64  `json:"confidence_score,omitempty"`
}

// Similarity weights over context fields. The sum is 1.0; a score >= the
// conflict threshold means "same context" for matching purposes.
const (
	weightSemanticField    = 0.25
	weightPhilosDomain     = 0.20
	weightAuthor           = 0.15
	weightSurrounding      = 0.15
	weightRelatedConcepts  = 0.10
	weightSourceLanguage   = 0.075
	weightTargetLanguage   = 0.075
	// SimilarityThreshold is the default bar for contextual matching.
	SimilarityThreshold = 0.8
)

// Hash returns the 256-bit fingerprint of the canonicalized semantic fields.
// Contexts with equal hashes are treated as identical.
func (c *TranslationContext) Hash() string {
	if c == nil {
		return emptyContextHash()
	}
	var sb strings.Builder
	sb.WriteString(canon(c.SemanticField))
	sb.WriteByte('\n')
	sb.WriteString(canon(c.PhilosophicalDomain))
	sb.WriteByte('\n')
	sb.WriteString(canon(c.Author))
	sb.WriteByte('\n')
	sb.WriteString(canon(c.SourceLanguage))
	sb.WriteByte('\n')
	sb.WriteString(canon(c.TargetLanguage))
	sb.WriteByte('\n')
	sb.WriteString(canonSet(c.SurroundingTerms))
	sb.WriteByte('\n')
	sb.WriteString(canonSet(c.RelatedConcepts))

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func emptyContextHash() string {
	sum := sha256.Sum256([]byte("\n\n\n\n\n\n"))
	return hex.EncodeToString(sum[:])
}

// Similarity scores two contexts in [0,1] with the weighted field scheme:
// scalar fields score by case-insensitive equality, term sets by Jaccard
// overlap.
func (c *TranslationContext) Similarity(other *TranslationContext) float64 {
	if c == nil || other == nil {
		return 0
	}
	score := 0.0
	score += weightSemanticField * eq(c.SemanticField, other.SemanticField)
	score += weightPhilosDomain * eq(c.PhilosophicalDomain, other.PhilosophicalDomain)
	score += weightAuthor * eq(c.Author, other.Author)
	score += weightSurrounding * jaccard(c.SurroundingTerms, other.SurroundingTerms)
	score += weightRelatedConcepts * jaccard(c.RelatedConcepts, other.RelatedConcepts)
	score += weightSourceLanguage * eq(c.SourceLanguage, other.SourceLanguage)
	score += weightTargetLanguage * eq(c.TargetLanguage, other.TargetLanguage)
	return score
}

func eq(a, b string) float64 {
	if canon(a) == canon(b) {
		return 1
	}
	return 0
}

// jaccard computes |A∩B| / |A∪B| over canonicalized term sets. Two empty
// sets count as identical.
func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func toSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = canon(t)
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func canonSet(terms []string) string {
	set := toSet(terms)
	sorted := make([]string, 0, len(set))
	for t := range set {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
