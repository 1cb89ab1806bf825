package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/roster"
	"github.com/pgvector/pgvector-go"
)

// RosterStore implements roster.Store on the identities table.
type RosterStore struct {
	pool *Pool
}

// NewRosterStore creates a roster store backed by pool.
func NewRosterStore(pool *Pool) *RosterStore {
	return &RosterStore{pool: pool}
}

// Save upserts the identity.
func (s *RosterStore) Save(ctx context.Context, id roster.Identity) error {
	vec := pgvector.NewVector(id.Descriptor[:])
	_, err := s.pool.pool.Exec(ctx, `
		INSERT INTO identities (name, embedding, enrolled_at)
		VALUES ($1, $2::vector, $3)
		ON CONFLICT (name) DO UPDATE SET embedding = EXCLUDED.embedding, enrolled_at = EXCLUDED.enrolled_at
	`, id.Name, vec.String(), id.EnrolledAt)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Delete removes the identity. Deleting an unknown name succeeds.
func (s *RosterStore) Delete(ctx context.Context, name string) error {
	if _, err := s.pool.pool.Exec(ctx, "DELETE FROM identities WHERE name = $1", name); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// Load returns every stored identity.
func (s *RosterStore) Load(ctx context.Context) ([]roster.Identity, error) {
	rows, err := s.pool.pool.Query(ctx, "SELECT name, embedding::text, enrolled_at FROM identities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var ids []roster.Identity
	for rows.Next() {
		var (
			name       string
			vecText    string
			enrolledAt time.Time
		)
		if err := rows.Scan(&name, &vecText, &enrolledAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}

		var vec pgvector.Vector
		if err := vec.Parse(vecText); err != nil {
			return nil, fmt.Errorf("parse embedding for %s: %w", name, err)
		}
		values := vec.Slice()
		if len(values) != len(recognition.Descriptor{}) {
			return nil, fmt.Errorf("embedding for %s has %d dimensions", name, len(values))
		}

		id := roster.Identity{Name: name, EnrolledAt: enrolledAt}
		copy(id.Descriptor[:], values)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return ids, nil
}
