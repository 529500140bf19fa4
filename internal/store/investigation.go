package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type InvestigationStore struct {
	db *pgxpool.Pool
}

func NewInvestigationStore(db *pgxpool.Pool) *InvestigationStore {
	return &InvestigationStore{db: db}
}

// Save persists the full row; the in-memory queue is the scheduling
// authority and this table is its durable mirror.
func (s *InvestigationStore) Save(ctx context.Context, inv *domain.Investigation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.TriggerData == nil {
		inv.TriggerData = map[string]any{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO investigations (id, topic, trigger_type, trigger_data, priority, status,
		                             spawned_from, depth, findings, acquired_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		 SET priority = EXCLUDED.priority,
		     status = EXCLUDED.status,
		     findings = EXCLUDED.findings,
		     acquired_at = EXCLUDED.acquired_at,
		     completed_at = EXCLUDED.completed_at
		 RETURNING id, created_at`,
		inv.ID, inv.Topic, inv.TriggerType, inv.TriggerData, inv.Priority, inv.Status,
		inv.SpawnedFrom, inv.Depth, inv.Findings, inv.AcquiredAt, inv.CompletedAt,
	).Scan(&inv.ID, &inv.CreatedAt)
}

func (s *InvestigationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investigation, error) {
	inv := &domain.Investigation{}
	err := s.db.QueryRow(ctx,
		`SELECT id, topic, trigger_type, trigger_data, priority, status, spawned_from, depth,
		        findings, created_at, acquired_at, completed_at
		 FROM investigations WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.Topic, &inv.TriggerType, &inv.TriggerData, &inv.Priority, &inv.Status,
		&inv.SpawnedFrom, &inv.Depth, &inv.Findings, &inv.CreatedAt, &inv.AcquiredAt, &inv.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *InvestigationStore) ListByStatus(ctx context.Context, status domain.InvestigationStatus, minPriority, limit int) ([]domain.Investigation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, topic, trigger_type, trigger_data, priority, status, spawned_from, depth,
		        findings, created_at, acquired_at, completed_at
		 FROM investigations
		 WHERE status = $1 AND priority >= $2
		 ORDER BY priority DESC, created_at ASC
		 LIMIT $3`,
		status, minPriority, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvestigations(rows)
}

func (s *InvestigationStore) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Investigation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, topic, trigger_type, trigger_data, priority, status, spawned_from, depth,
		        findings, created_at, acquired_at, completed_at
		 FROM investigations
		 WHERE spawned_from = $1
		 ORDER BY created_at ASC`,
		parentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvestigations(rows)
}

func (s *InvestigationStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM investigations`).Scan(&n)
	return n, err
}

func scanInvestigations(rows pgx.Rows) ([]domain.Investigation, error) {
	var out []domain.Investigation
	for rows.Next() {
		var inv domain.Investigation
		if err := rows.Scan(&inv.ID, &inv.Topic, &inv.TriggerType, &inv.TriggerData, &inv.Priority,
			&inv.Status, &inv.SpawnedFrom, &inv.Depth, &inv.Findings, &inv.CreatedAt,
			&inv.AcquiredAt, &inv.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
