package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VersionEntry is one recorded change to a graph record.
type VersionEntry struct {
	ID         int64          `json:"id"`
	RecordKind string         `json:"record_kind"`
	RecordID   uuid.UUID      `json:"record_id"`
	Change     map[string]any `json:"change"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// VersionStore is an append-only audit of graph mutations. Nothing reads it
// on the hot path; it exists so a belief's history can be reconstructed.
type VersionStore struct {
	db *pgxpool.Pool
}

func NewVersionStore(db *pgxpool.Pool) *VersionStore {
	return &VersionStore{db: db}
}

func (s *VersionStore) Record(ctx context.Context, kind string, recordID uuid.UUID, change map[string]any) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO version_history (record_kind, record_id, change) VALUES ($1, $2, $3)`,
		kind, recordID, change,
	)
	return err
}

func (s *VersionStore) History(ctx context.Context, kind string, recordID uuid.UUID) ([]VersionEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, record_kind, record_id, change, recorded_at
		 FROM version_history
		 WHERE record_kind = $1 AND record_id = $2
		 ORDER BY id ASC`,
		kind, recordID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []VersionEntry
	for rows.Next() {
		var e VersionEntry
		if err := rows.Scan(&e.ID, &e.RecordKind, &e.RecordID, &e.Change, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
