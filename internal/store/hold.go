package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/asana/internal/game"
)

// Hold is a recorded successful pose hold.
type Hold struct {
	ID         string
	ConnID     string
	Target     string
	StartedAt  time.Time
	EndedAt    time.Time
	FrameCount int
	Frames     [][]float64
}

// HoldRepository provides operations on recorded holds.
type HoldRepository struct {
	db     *sql.DB
	driver string
}

// Holds returns the hold repository for this store.
func (s *Store) Holds() *HoldRepository {
	return &HoldRepository{db: s.db, driver: s.driver}
}

// RecordHold stores a completed hold for a connection.
func (r *HoldRepository) RecordHold(ctx context.Context, connID string, h game.Hold) error {
	return r.Create(ctx, &Hold{
		ConnID:    connID,
		Target:    h.Target,
		StartedAt: h.StartedAt,
		EndedAt:   h.EndedAt,
		Frames:    h.Frames,
	})
}

// Create inserts a hold; frames are stored as JSON.
func (r *HoldRepository) Create(ctx context.Context, h *Hold) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	h.FrameCount = len(h.Frames)

	frames := h.Frames
	if frames == nil {
		frames = [][]float64{}
	}
	data, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("encode hold frames: %w", err)
	}

	_, err = r.db.ExecContext(ctx, rebind(r.driver,
		`INSERT INTO holds (id, conn_id, target, started_at, ended_at, frame_count, frames)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		h.ID, h.ConnID, h.Target, h.StartedAt.UTC(), h.EndedAt.UTC(), h.FrameCount, string(data),
	)
	return err
}

// ListByConnection returns the holds of one connection in completion order.
func (r *HoldRepository) ListByConnection(ctx context.Context, connID string) ([]*Hold, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.driver,
		`SELECT id, conn_id, target, started_at, ended_at, frame_count, frames
		 FROM holds WHERE conn_id = ? ORDER BY ended_at ASC`),
		connID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []*Hold
	for rows.Next() {
		h := &Hold{}
		var frames string
		if err := rows.Scan(&h.ID, &h.ConnID, &h.Target, &h.StartedAt, &h.EndedAt, &h.FrameCount, &frames); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(frames), &h.Frames); err != nil {
			return nil, fmt.Errorf("decode hold %s frames: %w", h.ID, err)
		}
		holds = append(holds, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}

// CountByTarget returns how many holds were completed per target pose.
func (r *HoldRepository) CountByTarget(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT target, COUNT(*) FROM holds GROUP BY target`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var target string
		var n int
		if err := rows.Scan(&target, &n); err != nil {
			return nil, err
		}
		counts[target] = n
	}
	return counts, rows.Err()
}
