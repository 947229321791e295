package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/turnstile/pkg/auth"
)

// RecordSession appends an audit record of a successful authentication
func (s *Store) RecordSession(ctx context.Context, session *auth.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, ip, user_agent, method, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, session.IP, session.UserAgent, string(session.Method), session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// ListSessions returns a user's audit records, newest first
func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]*auth.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, ip, user_agent, method, created_at FROM sessions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		var (
			sess   auth.Session
			method string
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.IP, &sess.UserAgent, &method, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.Method = auth.SessionMethod(method)
		sess.CreatedAt = sess.CreatedAt.UTC()
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// PruneSessions deletes audit records created before cutoff and reports how many were removed
func (s *Store) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned sessions: %w", err)
	}
	return n, nil
}
