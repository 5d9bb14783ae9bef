package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is a visitor of the game, identified by the session cookie.
type Session struct {
	ID        string
	StartTime time.Time
	EndTime   *time.Time
	IPAddress string
	UserAgent string
}

// SessionRepository provides operations on visitor sessions.
type SessionRepository struct {
	db     *sql.DB
	driver string
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db, driver: s.driver}
}

// Ensure inserts the session unless one with the same ID already exists.
func (r *SessionRepository) Ensure(ctx context.Context, sess *Session) error {
	if sess.StartTime.IsZero() {
		sess.StartTime = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, rebind(r.driver,
		`INSERT INTO sessions (id, start_time, ip_address, user_agent)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		sess.ID, sess.StartTime, sess.IPAddress, sess.UserAgent,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var end sql.NullTime

	err := r.db.QueryRowContext(ctx, rebind(r.driver,
		`SELECT id, start_time, end_time, ip_address, user_agent
		 FROM sessions WHERE id = ?`),
		id,
	).Scan(&sess.ID, &sess.StartTime, &end, &sess.IPAddress, &sess.UserAgent)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if end.Valid {
		t := end.Time
		sess.EndTime = &t
	}
	return sess, nil
}

// End records when the visitor finished playing.
func (r *SessionRepository) End(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, rebind(r.driver,
		`UPDATE sessions SET end_time = ? WHERE id = ?`),
		at.UTC(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
