package choices

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultSessionTTL is how long a session stays usable after creation.
	DefaultSessionTTL = 24 * time.Hour

	// sweepInterval is how often the expiry sweeper runs.
	sweepInterval = time.Hour

	defaultSessionCacheSize = 256
)

// sessionCache is a small LRU in front of the choice_sessions table. Entries
// are invalidated on any write touching the session.
type sessionCache struct {
	lru *lru.Cache[string, *ChoiceSession]
}

func newSessionCache(size int) (*sessionCache, error) {
	c, err := lru.New[string, *ChoiceSession](size)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create session cache", err)
	}
	return &sessionCache{lru: c}, nil
}

func (c *sessionCache) get(id string) (*ChoiceSession, bool) { return c.lru.Get(id) }
func (c *sessionCache) put(s *ChoiceSession)                 { c.lru.Add(s.SessionID, s) }

func (c *sessionCache) invalidate(id string) {
	if id != "" {
		c.lru.Remove(id)
	}
}

// CreateSessionParams are the inputs to CreateSession.
type CreateSessionParams struct {
	Name           string
	UserID         string
	DocumentID     string
	SourceLanguage string
	TargetLanguage string
	TTL            time.Duration
}

// CreateSession opens a new ACTIVE session.
func (s *Store) CreateSession(p CreateSessionParams) (*ChoiceSession, error) {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := s.now().UTC()
	sess := &ChoiceSession{
		SessionID:      uuid.NewString(),
		Name:           p.Name,
		Status:         SessionActive,
		UserID:         p.UserID,
		DocumentID:     p.DocumentID,
		SourceLanguage: p.SourceLanguage,
		TargetLanguage: p.TargetLanguage,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	_, err := s.db.Exec(
		`INSERT INTO choice_sessions
		 (session_id, name, status, user_id, document_id, source_language, target_language,
		  consistency_score, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		sess.SessionID, sess.Name, string(sess.Status), sess.UserID, sess.DocumentID,
		sess.SourceLanguage, sess.TargetLanguage, fmtTime(sess.CreatedAt), fmtTime(sess.ExpiresAt),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create session", err)
	}
	s.sessions.put(sess)
	logger.Info("choice session created",
		logger.String("session_id", sess.SessionID),
		logger.String("name", sess.Name))
	return sess, nil
}

// GetSession loads a session, lazily marking it EXPIRED when past its
// deadline. Counts and consistency are computed from the choice table.
func (s *Store) GetSession(id string) (*ChoiceSession, error) {
	if sess, ok := s.sessions.get(id); ok {
		if sess.Status == SessionActive && s.now().UTC().After(sess.ExpiresAt) {
			s.sessions.invalidate(id)
		} else {
			return sess, nil
		}
	}

	row := s.db.QueryRow(
		`SELECT session_id, name, status, user_id, document_id, source_language,
		        target_language, consistency_score, created_at, expires_at
		 FROM choice_sessions WHERE session_id = ?`, id)

	var sess ChoiceSession
	var status, createdAt, expiresAt string
	err := row.Scan(&sess.SessionID, &sess.Name, &status, &sess.UserID, &sess.DocumentID,
		&sess.SourceLanguage, &sess.TargetLanguage, &sess.ConsistencyScore, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, types.NewAppError(types.ErrNotFound, "session not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to load session", err)
	}
	sess.Status = SessionStatus(status)
	sess.CreatedAt = parseTime(createdAt)
	sess.ExpiresAt = parseTime(expiresAt)

	if sess.Status == SessionActive && s.now().UTC().After(sess.ExpiresAt) {
		if err := s.setSessionStatus(id, SessionExpired); err != nil {
			return nil, err
		}
		sess.Status = SessionExpired
	}

	counts, err := s.sessionCounts(id)
	if err != nil {
		return nil, err
	}
	sess.Counts = counts
	sess.ConsistencyScore = consistencyScore(counts)

	s.sessions.put(&sess)
	return &sess, nil
}

// CompleteSession marks a session COMPLETED. Its non-SESSION choices persist.
func (s *Store) CompleteSession(id string) error {
	return s.transitionSession(id, SessionCompleted, SessionActive, SessionSuspended)
}

// SuspendSession pauses an active session.
func (s *Store) SuspendSession(id string) error {
	return s.transitionSession(id, SessionSuspended, SessionActive)
}

// ResumeSession reactivates a suspended session if it has not expired.
func (s *Store) ResumeSession(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if sess.Status != SessionSuspended {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"session is not suspended", string(sess.Status), nil)
	}
	if s.now().UTC().After(sess.ExpiresAt) {
		return s.setSessionStatus(id, SessionExpired)
	}
	return s.setSessionStatus(id, SessionActive)
}

func (s *Store) transitionSession(id string, to SessionStatus, from ...SessionStatus) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	ok := false
	for _, f := range from {
		if sess.Status == f {
			ok = true
			break
		}
	}
	if !ok {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"invalid session transition", string(sess.Status)+" -> "+string(to), nil)
	}
	return s.setSessionStatus(id, to)
}

func (s *Store) setSessionStatus(id string, status SessionStatus) error {
	_, err := s.db.Exec(`UPDATE choice_sessions SET status = ? WHERE session_id = ?`,
		string(status), id)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to update session status", err)
	}
	s.sessions.invalidate(id)
	return nil
}

func (s *Store) sessionCounts(id string) (SessionCounts, error) {
	rows, err := s.db.Query(
		`SELECT choice_type, COUNT(*) FROM user_choices WHERE session_id = ? GROUP BY choice_type`, id)
	if err != nil {
		return SessionCounts{}, types.NewAppError(types.ErrInternal, "failed to count session choices", err)
	}
	defer rows.Close()

	var counts SessionCounts
	for rows.Next() {
		var ct string
		var n int
		if err := rows.Scan(&ct, &n); err != nil {
			return SessionCounts{}, types.NewAppError(types.ErrInternal, "failed to scan counts", err)
		}
		switch ChoiceType(ct) {
		case ChoiceTranslate:
			counts.Translate = n
		case ChoicePreserve:
			counts.Preserve = n
		case ChoiceCustom:
			counts.Custom = n
		case ChoiceSkip:
			counts.Skip = n
		}
		counts.Total += n
	}
	return counts, rows.Err()
}

// consistencyScore is the share of the dominant choice type among all
// decisions in the session. An empty session scores 1.
func consistencyScore(c SessionCounts) float64 {
	if c.Total == 0 {
		return 1
	}
	max := c.Translate
	for _, n := range []int{c.Preserve, c.Custom, c.Skip} {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(c.Total)
}

// ExpireSessions marks past-deadline ACTIVE and SUSPENDED sessions EXPIRED
// and returns how many were expired. Expiry only blocks new writes; the
// sessions' choices stay readable under the usual scope rules until deleted
// explicitly.
func (s *Store) ExpireSessions() (int, error) {
	now := fmtTime(s.now().UTC())
	rows, err := s.db.Query(
		`SELECT session_id FROM choice_sessions
		 WHERE status IN (?, ?) AND expires_at <= ?`,
		string(SessionActive), string(SessionSuspended), now)
	if err != nil {
		return 0, types.NewAppError(types.ErrInternal, "failed to query expirable sessions", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, types.NewAppError(types.ErrInternal, "failed to scan session id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, types.NewAppError(types.ErrInternal, "failed iterating sessions", err)
	}

	for _, id := range ids {
		if err := s.setSessionStatus(id, SessionExpired); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		logger.Info("expired choice sessions", logger.Int("count", len(ids)))
	}
	return len(ids), nil
}

// StartExpirySweeper runs ExpireSessions every hour until ctx is done.
func (s *Store) StartExpirySweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExpireSessions(); err != nil {
					logger.Warn("session expiry sweep failed", logger.Err(err))
				}
			}
		}
	}()
}
