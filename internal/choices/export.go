package choices

import (
	"encoding/json"
	"io"
	"time"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// ExportFile is the portable serialization of a choice store.
type ExportFile struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Choices    []*UserChoice `json:"choices"`
}

const exportVersion = 1

// Export writes stored choices as JSON. With an empty sessionID it exports
// everything durable, skipping SESSION-scoped choices since those are bound
// to a session lifetime and do not travel. With a sessionID it exports that
// session's choices across all scopes.
func (s *Store) Export(w io.Writer, sessionID string) error {
	query := selectChoice + ` WHERE scope != 'SESSION' ORDER BY created_at`
	args := []any{}
	if sessionID != "" {
		query = selectChoice + ` WHERE session_id = ? ORDER BY created_at`
		args = append(args, sessionID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to query choices for export", err)
	}
	defer rows.Close()

	file := ExportFile{Version: exportVersion, ExportedAt: s.now().UTC()}
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return types.NewAppError(types.ErrInternal, "failed to scan choice for export", err)
		}
		file.Choices = append(file.Choices, c)
	}
	if err := rows.Err(); err != nil {
		return types.NewAppError(types.ErrInternal, "export iteration failed", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&file); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to encode export", err)
	}
	logger.Info("choices exported", logger.Int("count", len(file.Choices)))
	return nil
}

// Import loads choices from an export file. Import is idempotent on
// choice_id: a choice already present is updated in place, never duplicated.
// Invalid entries abort the import before anything is written.
func (s *Store) Import(r io.Reader) (int, error) {
	var file ExportFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return 0, types.NewAppError(types.ErrInvalidInput, "malformed import file", err)
	}
	if file.Version != exportVersion {
		return 0, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"unsupported export version", "", nil)
	}
	for _, c := range file.Choices {
		if err := c.Validate(); err != nil {
			return 0, types.NewAppError(types.ErrInvalidInput, "invalid choice in import", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, types.NewAppError(types.ErrInternal, "failed to begin import", err)
	}
	defer tx.Rollback()

	imported := 0
	for _, c := range file.Choices {
		ctxJSON, err := json.Marshal(c.Context)
		if err != nil {
			return 0, types.NewAppError(types.ErrInternal, "failed to encode context", err)
		}
		hash := c.Context.Hash()
		_, err = tx.Exec(
			`INSERT INTO user_choices
			 (choice_id, term, choice_type, translation_result, context_json, context_hash,
			  scope, session_id, document_id, confidence_level, usage_count, success_rate,
			  created_at, updated_at, last_used_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (choice_id) DO UPDATE SET
			   choice_type = excluded.choice_type,
			   translation_result = excluded.translation_result,
			   context_json = excluded.context_json,
			   context_hash = excluded.context_hash,
			   confidence_level = excluded.confidence_level,
			   usage_count = excluded.usage_count,
			   success_rate = excluded.success_rate,
			   updated_at = excluded.updated_at,
			   last_used_at = excluded.last_used_at`,
			c.ChoiceID, c.Term, string(c.ChoiceType), c.TranslationResult, string(ctxJSON), hash,
			string(c.Scope), c.SessionID, c.DocumentID, c.ConfidenceLevel, c.UsageCount,
			c.SuccessRate, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt), fmtTime(c.LastUsedAt),
		)
		if err != nil {
			return 0, types.NewAppError(types.ErrInternal, "failed to import choice", err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, types.NewAppError(types.ErrInternal, "failed to commit import", err)
	}
	logger.Info("choices imported", logger.Int("count", imported))
	return imported, nil
}
