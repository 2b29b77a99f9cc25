package choices

import (
	"github.com/google/uuid"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// DetectConflicts scans all stored choices for a term and records pairs whose
// contexts are similar above the conflict threshold but whose decisions
// differ. Already-recorded pairs are not duplicated.
func (s *Store) DetectConflicts(term string) ([]*ChoiceConflict, error) {
	candidates, err := s.choicesForTerm(term)
	if err != nil {
		return nil, err
	}

	var found []*ChoiceConflict
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.ChoiceType == b.ChoiceType && a.TranslationResult == b.TranslationResult {
				continue
			}
			sim := a.Context.Similarity(b.Context)
			if sim < ConflictThreshold {
				continue
			}
			exists, err := s.conflictExists(a.ChoiceID, b.ChoiceID)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
			conflict := &ChoiceConflict{
				ConflictID: uuid.NewString(),
				Term:       term,
				ChoiceA:    a.ChoiceID,
				ChoiceB:    b.ChoiceID,
				Similarity: sim,
				DetectedAt: s.now().UTC(),
			}
			_, err = s.db.Exec(
				`INSERT INTO choice_conflicts (conflict_id, term, choice_a, choice_b, similarity, detected_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				conflict.ConflictID, term, conflict.ChoiceA, conflict.ChoiceB,
				conflict.Similarity, fmtTime(conflict.DetectedAt),
			)
			if err != nil {
				return nil, types.NewAppError(types.ErrInternal, "failed to record conflict", err)
			}
			found = append(found, conflict)
		}
	}
	if len(found) > 0 {
		logger.Info("choice conflicts detected",
			logger.String("term", term), logger.Int("count", len(found)))
	}
	return found, nil
}

func (s *Store) conflictExists(a, b string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM choice_conflicts
		 WHERE (choice_a = ? AND choice_b = ?) OR (choice_a = ? AND choice_b = ?)`,
		a, b, b, a,
	).Scan(&n)
	if err != nil {
		return false, types.NewAppError(types.ErrInternal, "failed to check conflict", err)
	}
	return n > 0, nil
}

// ResolveConflict settles a recorded conflict under the given policy.
//
//	LATEST_WINS         keep the more recently updated choice, delete the other
//	HIGHEST_CONFIDENCE  keep the choice with the higher confidence level
//	CONTEXT_SPECIFIC    keep both; they serve different contexts
//	USER_PROMPT         keep the explicitly named choice
//
// keepID is consulted only under USER_PROMPT.
func (s *Store) ResolveConflict(conflictID string, policy ResolutionPolicy, keepID string) (*ChoiceConflict, error) {
	conflict, err := s.getConflict(conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Resolved {
		return conflict, nil
	}

	a, err := s.GetChoiceByID(conflict.ChoiceA)
	if err != nil {
		return nil, err
	}
	b, err := s.GetChoiceByID(conflict.ChoiceB)
	if err != nil {
		return nil, err
	}

	var keep, drop *UserChoice
	switch policy {
	case ResolveLatestWins:
		keep, drop = a, b
		if b.UpdatedAt.After(a.UpdatedAt) {
			keep, drop = b, a
		}
	case ResolveHighestConfidence:
		keep, drop = a, b
		if b.ConfidenceLevel > a.ConfidenceLevel {
			keep, drop = b, a
		}
	case ResolveContextSpecific:
		// Both survive; the conflict is closed without a winner.
	case ResolveUserPrompt:
		switch keepID {
		case a.ChoiceID:
			keep, drop = a, b
		case b.ChoiceID:
			keep, drop = b, a
		default:
			return nil, types.NewAppError(types.ErrInvalidInput,
				"keep id names neither side of the conflict", nil)
		}
	default:
		return nil, types.NewAppError(types.ErrInvalidInput, "unknown resolution policy", nil)
	}

	if drop != nil {
		if _, err := s.db.Exec(`DELETE FROM user_choices WHERE choice_id = ?`, drop.ChoiceID); err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to delete losing choice", err)
		}
	}

	kept := ""
	if keep != nil {
		kept = keep.ChoiceID
	}
	if _, err := s.db.Exec(
		`UPDATE choice_conflicts SET resolved = 1, kept_choice = ? WHERE conflict_id = ?`,
		kept, conflictID,
	); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to mark conflict resolved", err)
	}

	conflict.Resolved = true
	conflict.KeptChoice = kept
	logger.Info("choice conflict resolved",
		logger.String("conflict_id", conflictID),
		logger.String("policy", string(policy)))
	return conflict, nil
}

func (s *Store) getConflict(id string) (*ChoiceConflict, error) {
	row := s.db.QueryRow(
		`SELECT conflict_id, term, choice_a, choice_b, similarity, detected_at, resolved, kept_choice
		 FROM choice_conflicts WHERE conflict_id = ?`, id)
	var c ChoiceConflict
	var detectedAt string
	var resolved int
	err := row.Scan(&c.ConflictID, &c.Term, &c.ChoiceA, &c.ChoiceB, &c.Similarity,
		&detectedAt, &resolved, &c.KeptChoice)
	if err != nil {
		return nil, types.NewAppError(types.ErrNotFound, "conflict not found", err)
	}
	c.DetectedAt = parseTime(detectedAt)
	c.Resolved = resolved != 0
	return &c, nil
}

// PendingConflicts lists unresolved conflicts, optionally filtered by term.
func (s *Store) PendingConflicts(term string) ([]*ChoiceConflict, error) {
	query := `SELECT conflict_id, term, choice_a, choice_b, similarity, detected_at, resolved, kept_choice
	          FROM choice_conflicts WHERE resolved = 0`
	args := []any{}
	if term != "" {
		query += ` AND term = ?`
		args = append(args, term)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to query conflicts", err)
	}
	defer rows.Close()

	var result []*ChoiceConflict
	for rows.Next() {
		var c ChoiceConflict
		var detectedAt string
		var resolved int
		if err := rows.Scan(&c.ConflictID, &c.Term, &c.ChoiceA, &c.ChoiceB, &c.Similarity,
			&detectedAt, &resolved, &c.KeptChoice); err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to scan conflict", err)
		}
		c.DetectedAt = parseTime(detectedAt)
		c.Resolved = resolved != 0
		result = append(result, &c)
	}
	return result, rows.Err()
}
