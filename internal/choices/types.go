// Package choices persists user translation decisions for specialized terms
// and retrieves the best match for a term in context, with session scoping
// and conflict resolution. Storage is an embedded SQLite database.
package choices

import "time"

// ChoiceType is what the user decided to do with a term.
type ChoiceType string

const (
	ChoiceTranslate ChoiceType = "TRANSLATE"
	ChoicePreserve  ChoiceType = "PRESERVE"
	ChoiceCustom    ChoiceType = "CUSTOM"
	ChoiceSkip      ChoiceType = "SKIP"
)

// Scope controls where a choice applies.
type Scope string

const (
	ScopeGlobal     Scope = "GLOBAL"
	ScopeContextual Scope = "CONTEXTUAL"
	ScopeDocument   Scope = "DOCUMENT"
	ScopeSession    Scope = "SESSION"
)

// scopeRank orders scopes for match preference: SESSION > DOCUMENT >
// CONTEXTUAL > GLOBAL.
func scopeRank(s Scope) int {
	switch s {
	case ScopeSession:
		return 3
	case ScopeDocument:
		return 2
	case ScopeContextual:
		return 1
	default:
		return 0
	}
}

// UserChoice is one persisted decision.
//
// Invariants: ChoiceID unique; SuccessRate in [0,1]; a CUSTOM choice carries
// a non-empty TranslationResult.
type UserChoice struct {
	ChoiceID          string              `json:"choice_id"`
	Term              string              `json:"term"`
	ChoiceType        ChoiceType          `json:"choice_type"`
	TranslationResult string              `json:"translation_result,omitempty"`
	Context           *TranslationContext `json:"context"`
	Scope             Scope               `json:"scope"`
	ConfidenceLevel   float64             `json:"confidence_level"`
	UsageCount        int                 `json:"usage_count"`
	SuccessRate       float64             `json:"success_rate"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	LastUsedAt        time.Time           `json:"last_used_at"`
	SessionID         string              `json:"session_id,omitempty"`
	DocumentID        string              `json:"document_id,omitempty"`
}

// Validate checks the UserChoice invariants.
func (c *UserChoice) Validate() error {
	if c.ChoiceID == "" {
		return errInvalid("choice_id is empty")
	}
	if c.Term == "" {
		return errInvalid("term is empty")
	}
	switch c.ChoiceType {
	case ChoiceTranslate, ChoicePreserve, ChoiceCustom, ChoiceSkip:
	default:
		return errInvalid("unknown choice_type " + string(c.ChoiceType))
	}
	if c.ChoiceType == ChoiceCustom && c.TranslationResult == "" {
		return errInvalid("CUSTOM choice requires a translation_result")
	}
	switch c.Scope {
	case ScopeGlobal, ScopeContextual, ScopeDocument, ScopeSession:
	default:
		return errInvalid("unknown scope " + string(c.Scope))
	}
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return errInvalid("success_rate out of [0,1]")
	}
	return nil
}

// SessionStatus is the lifecycle state of a choice session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionSuspended SessionStatus = "SUSPENDED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// SessionCounts tallies choices made in a session by type.
type SessionCounts struct {
	Translate int `json:"translate"`
	Preserve  int `json:"preserve"`
	Custom    int `json:"custom"`
	Skip      int `json:"skip"`
	Total     int `json:"total"`
}

// ChoiceSession groups choices made during one working session. Sessions
// reference choices by session id and do not own them: deleting a session
// leaves GLOBAL and CONTEXTUAL choices in place.
type ChoiceSession struct {
	SessionID        string        `json:"session_id"`
	Name             string        `json:"name"`
	Status           SessionStatus `json:"status"`
	UserID           string        `json:"user_id,omitempty"`
	DocumentID       string        `json:"document_id,omitempty"`
	SourceLanguage   string        `json:"source_language"`
	TargetLanguage   string        `json:"target_language"`
	Counts           SessionCounts `json:"counts"`
	ConsistencyScore float64       `json:"consistency_score"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"expires_at"`
}

// ResolutionPolicy selects how a conflict between two choices is resolved.
type ResolutionPolicy string

const (
	ResolveLatestWins        ResolutionPolicy = "LATEST_WINS"
	ResolveHighestConfidence ResolutionPolicy = "HIGHEST_CONFIDENCE"
	ResolveContextSpecific   ResolutionPolicy = "CONTEXT_SPECIFIC"
	ResolveUserPrompt        ResolutionPolicy = "USER_PROMPT"
)

// ChoiceConflict is a pair of choices on the same term whose contexts are
// similar but whose decisions differ.
type ChoiceConflict struct {
	ConflictID string    `json:"conflict_id"`
	Term       string    `json:"term"`
	ChoiceA    string    `json:"choice_a"`
	ChoiceB    string    `json:"choice_b"`
	Similarity float64   `json:"similarity"`
	DetectedAt time.Time `json:"detected_at"`
	Resolved   bool      `json:"resolved"`
	KeptChoice string    `json:"kept_choice,omitempty"`
}

type invalidError string

func (e invalidError) Error() string { return string(e) }

func errInvalid(msg string) error { return invalidError(msg) }
