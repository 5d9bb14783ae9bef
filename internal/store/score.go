package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultLeaderboardSize is the number of scores shown on the leaderboard.
const DefaultLeaderboardSize = 10

// Score is one finished game. Lower TotalTime ranks higher. The per-set
// times are NULL when the client did not report them.
type Score struct {
	ID              string
	SessionID       string
	TotalTime       float64
	Set1Time        sql.NullFloat64
	Set2Time        sql.NullFloat64
	SuccessCount    int
	AverageHoldTime sql.NullFloat64
	CreatedAt       time.Time
}

// ScoreRepository provides operations on scores.
type ScoreRepository struct {
	db     *sql.DB
	driver string
}

// Scores returns the score repository for this store.
func (s *Store) Scores() *ScoreRepository {
	return &ScoreRepository{db: s.db, driver: s.driver}
}

// Create inserts a new score. The referenced session must exist.
func (r *ScoreRepository) Create(ctx context.Context, sc *Score) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	sc.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, rebind(r.driver,
		`INSERT INTO scores (id, session_id, total_time, set1_time, set2_time, success_count, average_hold_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		sc.ID, sc.SessionID, sc.TotalTime, sc.Set1Time, sc.Set2Time, sc.SuccessCount, sc.AverageHoldTime, sc.CreatedAt,
	)
	return err
}

// Top returns the best scores, fastest total time first.
func (r *ScoreRepository) Top(ctx context.Context, limit int) ([]*Score, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	return r.query(ctx,
		`SELECT id, session_id, total_time, set1_time, set2_time, success_count, average_hold_time, created_at
		 FROM scores ORDER BY total_time ASC, created_at ASC LIMIT ?`,
		limit,
	)
}

// ListBySession returns a visitor's scores, newest first.
func (r *ScoreRepository) ListBySession(ctx context.Context, sessionID string) ([]*Score, error) {
	return r.query(ctx,
		`SELECT id, session_id, total_time, set1_time, set2_time, success_count, average_hold_time, created_at
		 FROM scores WHERE session_id = ? ORDER BY created_at DESC`,
		sessionID,
	)
}

func (r *ScoreRepository) query(ctx context.Context, query string, args ...any) ([]*Score, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make([]*Score, 0)
	for rows.Next() {
		sc := &Score{}
		err := rows.Scan(&sc.ID, &sc.SessionID, &sc.TotalTime, &sc.Set1Time, &sc.Set2Time,
			&sc.SuccessCount, &sc.AverageHoldTime, &sc.CreatedAt)
		if err != nil {
			return nil, err
		}
		scores = append(scores, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}
