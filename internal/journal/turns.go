package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status values for a recorded turn.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Turn is one transcript and what the loop did with it.
type Turn struct {
	ID         int64
	SessionID  string
	Generation uint64
	Transcript string
	Reply      string
	Provider   string
	BargeIn    bool
	Status     string
	ErrorStage string
	ErrorMsg   string
	Duration   time.Duration
	AudioBytes int
	CreatedAt  time.Time
}

// DailyStats is the per-day rollup.
type DailyStats struct {
	Date     string
	Turns    int
	Failures int
	BargeIns int
	TotalMs  int64
}

// Record inserts a turn and updates the daily rollup.
func (s *Store) Record(ctx context.Context, t *Turn) error {
	if t.Status == "" {
		t.Status = StatusOK
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, generation, transcript, reply, provider, barge_in,
			status, error_stage, error_msg, duration_ms, audio_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Generation, t.Transcript, t.Reply, t.Provider, boolToInt(t.BargeIn),
		t.Status, t.ErrorStage, t.ErrorMsg, t.Duration.Milliseconds(), t.AudioBytes, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal: insert turn: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("journal: turn id: %w", err)
	}

	failed := 0
	if t.Status != StatusOK {
		failed = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_stats (date, turns, failures, barge_ins, total_ms)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			turns = turns + 1,
			failures = failures + excluded.failures,
			barge_ins = barge_ins + excluded.barge_ins,
			total_ms = total_ms + excluded.total_ms`,
		t.CreatedAt.Format("2006-01-02"), failed, boolToInt(t.BargeIn), t.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("journal: update daily stats: %w", err)
	}

	return tx.Commit()
}

// Recent returns the last limit turns, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, generation, transcript, reply, provider, barge_in,
			status, error_stage, error_msg, duration_ms, audio_bytes, created_at
		FROM turns
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t       Turn
			bargeIn int
			ms      int64
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Generation, &t.Transcript, &t.Reply, &t.Provider,
			&bargeIn, &t.Status, &t.ErrorStage, &t.ErrorMsg, &ms, &t.AudioBytes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan turn: %w", err)
		}
		t.BargeIn = bargeIn != 0
		t.Duration = time.Duration(ms) * time.Millisecond
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Daily returns the rollup for date (YYYY-MM-DD). A day with no turns
// yields zero counts.
func (s *Store) Daily(ctx context.Context, date string) (DailyStats, error) {
	d := DailyStats{Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT turns, failures, barge_ins, total_ms FROM daily_stats WHERE date = ?`, date,
	).Scan(&d.Turns, &d.Failures, &d.BargeIns, &d.TotalMs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("journal: daily stats: %w", err)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
