package choices

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// usageAlpha is the EMA factor for success-rate updates.
const usageAlpha = 0.1

// ConflictThreshold is the context similarity above which two differing
// choices on the same term are in conflict.
const ConflictThreshold = 0.8

const schema = `
CREATE TABLE IF NOT EXISTS user_choices (
	choice_id          TEXT PRIMARY KEY,
	term               TEXT NOT NULL,
	choice_type        TEXT NOT NULL,
	translation_result TEXT NOT NULL DEFAULT '',
	context_json       TEXT NOT NULL DEFAULT '{}',
	context_hash       TEXT NOT NULL,
	scope              TEXT NOT NULL,
	session_id         TEXT NOT NULL DEFAULT '',
	document_id        TEXT NOT NULL DEFAULT '',
	confidence_level   REAL NOT NULL DEFAULT 0,
	usage_count        INTEGER NOT NULL DEFAULT 0,
	success_rate       REAL NOT NULL DEFAULT 0.5,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	last_used_at       TEXT NOT NULL DEFAULT '',
	UNIQUE (term, context_hash, scope, session_id)
);
CREATE INDEX IF NOT EXISTS idx_user_choices_term ON user_choices (term);

CREATE TABLE IF NOT EXISTS choice_sessions (
	session_id        TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	user_id           TEXT NOT NULL DEFAULT '',
	document_id       TEXT NOT NULL DEFAULT '',
	source_language   TEXT NOT NULL DEFAULT '',
	target_language   TEXT NOT NULL DEFAULT '',
	consistency_score REAL NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	expires_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS choice_conflicts (
	conflict_id TEXT PRIMARY KEY,
	term        TEXT NOT NULL,
	choice_a    TEXT NOT NULL,
	choice_b    TEXT NOT NULL,
	similarity  REAL NOT NULL,
	detected_at TEXT NOT NULL,
	resolved    INTEGER NOT NULL DEFAULT 0,
	kept_choice TEXT NOT NULL DEFAULT ''
);
`

// Store is the durable user-choice store. Writes serialize through SQLite
// transactions; reads go through the same pool.
type Store struct {
	db       *sql.DB
	sessions *sessionCache
	now      func() time.Time
}

// Open opens (creating if needed) the choice database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to open choice database", err)
	}
	// SQLite allows one writer; serialize access at the pool level.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, types.NewAppError(types.ErrInternal, "failed to initialize choice schema", err)
	}
	cache, err := newSessionCache(defaultSessionCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, sessions: cache, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// MakeChoiceParams are the inputs to MakeChoice.
type MakeChoiceParams struct {
	Term              string
	ChoiceType        ChoiceType
	TranslationResult string
	Context           *TranslationContext
	Scope             Scope
	SessionID         string
	DocumentID        string
	ConfidenceLevel   float64
}

// MakeChoice records a decision, upserting by (term, context_hash, scope,
// session_id). Writes into an expired or completed session are rejected.
func (s *Store) MakeChoice(p MakeChoiceParams) (*UserChoice, error) {
	if p.Term == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "term is empty", nil)
	}
	if p.ChoiceType == ChoiceCustom && p.TranslationResult == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "CUSTOM choice requires a translation result", nil)
	}
	if p.Scope == "" {
		p.Scope = ScopeContextual
	}
	if p.SessionID != "" {
		sess, err := s.GetSession(p.SessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status != SessionActive {
			return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
				"session does not accept new choices", string(sess.Status), nil)
		}
	}

	now := s.now().UTC()
	choice := &UserChoice{
		ChoiceID:          uuid.NewString(),
		Term:              p.Term,
		ChoiceType:        p.ChoiceType,
		TranslationResult: p.TranslationResult,
		Context:           p.Context,
		Scope:             p.Scope,
		ConfidenceLevel:   p.ConfidenceLevel,
		SuccessRate:       0.5,
		CreatedAt:         now,
		UpdatedAt:         now,
		SessionID:         p.SessionID,
		DocumentID:        p.DocumentID,
	}
	if err := choice.Validate(); err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid choice", err)
	}

	hash := p.Context.Hash()
	ctxJSON, err := json.Marshal(p.Context)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to encode context", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	// Upsert: an existing row for the key keeps its id and usage history.
	var existingID string
	err = tx.QueryRow(
		`SELECT choice_id FROM user_choices WHERE term = ? AND context_hash = ? AND scope = ? AND session_id = ?`,
		p.Term, hash, string(p.Scope), p.SessionID,
	).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(
			`INSERT INTO user_choices
			 (choice_id, term, choice_type, translation_result, context_json, context_hash,
			  scope, session_id, document_id, confidence_level, usage_count, success_rate,
			  created_at, updated_at, last_used_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, '')`,
			choice.ChoiceID, choice.Term, string(choice.ChoiceType), choice.TranslationResult,
			string(ctxJSON), hash, string(choice.Scope), choice.SessionID, choice.DocumentID,
			choice.ConfidenceLevel, choice.SuccessRate,
			fmtTime(choice.CreatedAt), fmtTime(choice.UpdatedAt),
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to insert choice", err)
		}
	case err != nil:
		return nil, types.NewAppError(types.ErrInternal, "failed to query existing choice", err)
	default:
		choice.ChoiceID = existingID
		_, err = tx.Exec(
			`UPDATE user_choices SET choice_type = ?, translation_result = ?, context_json = ?,
			 confidence_level = ?, document_id = ?, updated_at = ? WHERE choice_id = ?`,
			string(choice.ChoiceType), choice.TranslationResult, string(ctxJSON),
			choice.ConfidenceLevel, choice.DocumentID, fmtTime(now), existingID,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to update choice", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to commit choice", err)
	}
	s.sessions.invalidate(p.SessionID)

	logger.Debug("choice recorded",
		logger.String("term", p.Term),
		logger.String("type", string(p.ChoiceType)),
		logger.String("scope", string(p.Scope)))
	return s.GetChoiceByID(choice.ChoiceID)
}

// GetChoice returns the best stored choice for a term in context:
// an exact (term, context_hash) match in the most specific applicable scope,
// else the best similar CONTEXTUAL choice (similarity >= 0.8 and
// success_rate >= 0.5, ranked by similarity * success_rate), else nil.
// SESSION and DOCUMENT choices only apply within their own session or
// document.
func (s *Store) GetChoice(term string, ctx *TranslationContext, sessionID, documentID string) (*UserChoice, error) {
	candidates, err := s.choicesForTerm(term)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	hash := ctx.Hash()

	// Pass 1: exact hash match, most specific scope wins.
	var exact *UserChoice
	for _, c := range candidates {
		if c.Context.Hash() != hash {
			continue
		}
		if c.Scope == ScopeSession && c.SessionID != sessionID {
			continue
		}
		if c.Scope == ScopeDocument && c.DocumentID != documentID {
			continue
		}
		if exact == nil || scopeRank(c.Scope) > scopeRank(exact.Scope) {
			exact = c
		}
	}
	if exact != nil {
		return exact, nil
	}

	// Pass 2: nearest contextual match.
	var best *UserChoice
	bestRank := 0.0
	for _, c := range candidates {
		if c.Scope != ScopeContextual || c.SuccessRate < 0.5 {
			continue
		}
		sim := ctx.Similarity(c.Context)
		if sim < SimilarityThreshold {
			continue
		}
		rank := sim * c.SuccessRate
		if rank > bestRank {
			bestRank = rank
			best = c
		}
	}
	return best, nil
}

// GetChoiceByID fetches a single choice.
func (s *Store) GetChoiceByID(id string) (*UserChoice, error) {
	row := s.db.QueryRow(selectChoice+` WHERE choice_id = ?`, id)
	c, err := scanChoice(row)
	if err == sql.ErrNoRows {
		return nil, types.NewAppError(types.ErrNotFound, "choice not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to load choice", err)
	}
	return c, nil
}

// RecordUsage applies the exponential-moving-average update to a choice's
// success rate and bumps its usage counters.
func (s *Store) RecordUsage(choiceID string, success bool) error {
	c, err := s.GetChoiceByID(choiceID)
	if err != nil {
		return err
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	newRate := (1-usageAlpha)*c.SuccessRate + usageAlpha*outcome
	now := fmtTime(s.now().UTC())
	_, err = s.db.Exec(
		`UPDATE user_choices SET success_rate = ?, usage_count = usage_count + 1,
		 last_used_at = ?, updated_at = ? WHERE choice_id = ?`,
		newRate, now, now, choiceID,
	)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to record usage", err)
	}
	return nil
}

const selectChoice = `
SELECT choice_id, term, choice_type, translation_result, context_json, scope,
       session_id, document_id, confidence_level, usage_count, success_rate,
       created_at, updated_at, last_used_at
FROM user_choices`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChoice(row rowScanner) (*UserChoice, error) {
	var c UserChoice
	var ctxJSON, choiceType, scope, createdAt, updatedAt, lastUsedAt string
	err := row.Scan(&c.ChoiceID, &c.Term, &choiceType, &c.TranslationResult, &ctxJSON,
		&scope, &c.SessionID, &c.DocumentID, &c.ConfidenceLevel, &c.UsageCount,
		&c.SuccessRate, &createdAt, &updatedAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}
	c.ChoiceType = ChoiceType(choiceType)
	c.Scope = Scope(scope)
	var ctx TranslationContext
	if err := json.Unmarshal([]byte(ctxJSON), &ctx); err == nil {
		c.Context = &ctx
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.LastUsedAt = parseTime(lastUsedAt)
	return &c, nil
}

func (s *Store) choicesForTerm(term string) ([]*UserChoice, error) {
	rows, err := s.db.Query(selectChoice+` WHERE term = ?`, term)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to query choices", err)
	}
	defer rows.Close()

	var result []*UserChoice
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to scan choice", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// DeleteSessionChoices removes SESSION-scoped choices of a session. Choices
// in other scopes keep living regardless of the session's fate.
func (s *Store) DeleteSessionChoices(sessionID string) error {
	_, err := s.db.Exec(
		`DELETE FROM user_choices WHERE session_id = ? AND scope = ?`,
		sessionID, string(ScopeSession),
	)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to delete session choices", err)
	}
	return nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
