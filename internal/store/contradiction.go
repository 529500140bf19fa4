package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type ContradictionStore struct {
	db *pgxpool.Pool
}

func NewContradictionStore(db *pgxpool.Pool) *ContradictionStore {
	return &ContradictionStore{db: db}
}

func (s *ContradictionStore) Upsert(ctx context.Context, c *domain.Contradiction) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Severity = domain.ClampSeverity(c.Severity)
	return s.db.QueryRow(ctx,
		`INSERT INTO contradictions (id, statement_a, statement_b, doc_id_a, doc_id_b, severity,
		                             confidence, explanation, investigation_priority, investigation_spawned, resolved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		 SET severity = EXCLUDED.severity,
		     confidence = EXCLUDED.confidence,
		     explanation = EXCLUDED.explanation,
		     investigation_priority = EXCLUDED.investigation_priority,
		     investigation_spawned = contradictions.investigation_spawned OR EXCLUDED.investigation_spawned,
		     resolved = EXCLUDED.resolved,
		     updated_at = NOW()
		 RETURNING id, investigation_spawned, identified_at, updated_at`,
		c.ID, c.StatementA, c.StatementB, c.DocIDA, c.DocIDB, c.Severity,
		c.Confidence, c.Explanation, c.InvestigationPriority, c.InvestigationSpawned, c.Resolved,
	).Scan(&c.ID, &c.InvestigationSpawned, &c.IdentifiedAt, &c.UpdatedAt)
}

func (s *ContradictionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contradiction, error) {
	c := &domain.Contradiction{}
	err := s.db.QueryRow(ctx,
		`SELECT id, statement_a, statement_b, doc_id_a, doc_id_b, severity, confidence, explanation,
		        investigation_priority, investigation_spawned, resolved, identified_at, updated_at
		 FROM contradictions WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.StatementA, &c.StatementB, &c.DocIDA, &c.DocIDB, &c.Severity, &c.Confidence,
		&c.Explanation, &c.InvestigationPriority, &c.InvestigationSpawned, &c.Resolved,
		&c.IdentifiedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ContradictionStore) ListBySeverity(ctx context.Context, minSeverity, limit int) ([]domain.Contradiction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, statement_a, statement_b, doc_id_a, doc_id_b, severity, confidence, explanation,
		        investigation_priority, investigation_spawned, resolved, identified_at, updated_at
		 FROM contradictions
		 WHERE severity >= $1
		 ORDER BY severity DESC, identified_at DESC
		 LIMIT $2`,
		minSeverity, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContradictions(rows)
}

func (s *ContradictionStore) SearchBySubject(ctx context.Context, subject string, limit int) ([]domain.Contradiction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, statement_a, statement_b, doc_id_a, doc_id_b, severity, confidence, explanation,
		        investigation_priority, investigation_spawned, resolved, identified_at, updated_at
		 FROM contradictions
		 WHERE statement_a ILIKE '%' || $1 || '%'
		    OR statement_b ILIKE '%' || $1 || '%'
		    OR explanation ILIKE '%' || $1 || '%'
		 ORDER BY severity DESC
		 LIMIT $2`,
		subject, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContradictions(rows)
}

func (s *ContradictionStore) MarkResolved(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE contradictions SET resolved = TRUE, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ContradictionStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM contradictions`).Scan(&n)
	return n, err
}

func scanContradictions(rows pgx.Rows) ([]domain.Contradiction, error) {
	var out []domain.Contradiction
	for rows.Next() {
		var c domain.Contradiction
		if err := rows.Scan(&c.ID, &c.StatementA, &c.StatementB, &c.DocIDA, &c.DocIDB, &c.Severity,
			&c.Confidence, &c.Explanation, &c.InvestigationPriority, &c.InvestigationSpawned,
			&c.Resolved, &c.IdentifiedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
