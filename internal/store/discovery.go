package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type DiscoveryStore struct {
	db *pgxpool.Pool
}

func NewDiscoveryStore(db *pgxpool.Pool) *DiscoveryStore {
	return &DiscoveryStore{db: db}
}

// Append is insert-only. Discoveries are a log, never edited.
func (s *DiscoveryStore) Append(ctx context.Context, d *domain.Discovery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO discovery_log (id, discovery_type, content, importance, source_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, recorded_at`,
		d.ID, d.DiscoveryType, d.Content, d.Importance, d.SourceID,
	).Scan(&d.ID, &d.RecordedAt)
}

func (s *DiscoveryStore) ListByImportance(ctx context.Context, min domain.Importance, limit int) ([]domain.Discovery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, discovery_type, content, importance, source_id, recorded_at
		 FROM discovery_log
		 WHERE importance >= $1
		 ORDER BY importance DESC, recorded_at DESC
		 LIMIT $2`,
		min, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Discovery
	for rows.Next() {
		var d domain.Discovery
		if err := rows.Scan(&d.ID, &d.DiscoveryType, &d.Content, &d.Importance, &d.SourceID, &d.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DiscoveryStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM discovery_log`).Scan(&n)
	return n, err
}
