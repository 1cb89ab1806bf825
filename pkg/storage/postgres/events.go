package postgres

import (
	"context"
	"fmt"

	"github.com/MrCodeEU/facetrack/pkg/attendance"
	"github.com/MrCodeEU/facetrack/pkg/storage"
	"github.com/google/uuid"
)

// Sink appends attendance rows to the attendance_events table.
type Sink struct {
	pool *Pool
}

// NewSink creates an attendance sink backed by pool.
func NewSink(pool *Pool) *Sink {
	return &Sink{pool: pool}
}

// Append implements storage.Sink. Rows without an ID get a fresh one.
func (s *Sink) Append(ctx context.Context, row storage.Row) error {
	id := row.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.pool.pool.Exec(ctx, `
		INSERT INTO attendance_events (id, name, event_type, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, id, row.Name, string(row.Type), row.Timestamp)
	if err != nil {
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

// Clear deletes every attendance event.
func (s *Sink) Clear(ctx context.Context) error {
	if _, err := s.pool.pool.Exec(ctx, "TRUNCATE attendance_events"); err != nil {
		return fmt.Errorf("clear attendance events: %w", err)
	}
	return nil
}

// Events returns the stored rows in chronological order, for one name or
// for everyone when name is empty.
func (s *Sink) Events(ctx context.Context, name string) ([]storage.Row, error) {
	query := "SELECT id::text, name, event_type, recorded_at FROM attendance_events"
	var args []any
	if name != "" {
		query += " WHERE name = $1"
		args = append(args, name)
	}
	query += " ORDER BY recorded_at, name"

	rows, err := s.pool.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance events: %w", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var (
			idText string
			typ    string
			row    storage.Row
		)
		if err := rows.Scan(&idText, &row.Name, &typ, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		if row.ID, err = uuid.Parse(idText); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		row.Type = attendance.EventType(typ)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return out, nil
}

// DeleteName removes the events of one identity.
func (s *Sink) DeleteName(ctx context.Context, name string) error {
	if _, err := s.pool.pool.Exec(ctx, "DELETE FROM attendance_events WHERE name = $1", name); err != nil {
		return fmt.Errorf("delete attendance events: %w", err)
	}
	return nil
}
