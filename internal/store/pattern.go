package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type PatternStore struct {
	db *pgxpool.Pool
}

func NewPatternStore(db *pgxpool.Pool) *PatternStore {
	return &PatternStore{db: db}
}

// Upsert writes the full pattern row. Evidence merging and confidence
// recomputation happen in the service layer; evolution history is
// append-only there and persisted whole here.
func (s *PatternStore) Upsert(ctx context.Context, p *domain.Pattern) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.SupportingDocs == nil {
		p.SupportingDocs = []string{}
	}
	if p.ContradictingDocs == nil {
		p.ContradictingDocs = []string{}
	}
	if p.EvolutionHistory == nil {
		p.EvolutionHistory = []domain.PatternEvolution{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO patterns (id, pattern_type, description, confidence, supporting_docs,
		                       contradicting_docs, evolution_history, investigation_spawned)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET description = EXCLUDED.description,
		     confidence = EXCLUDED.confidence,
		     supporting_docs = EXCLUDED.supporting_docs,
		     contradicting_docs = EXCLUDED.contradicting_docs,
		     evolution_history = EXCLUDED.evolution_history,
		     investigation_spawned = patterns.investigation_spawned OR EXCLUDED.investigation_spawned,
		     updated_at = NOW()
		 RETURNING id, investigation_spawned, first_seen, updated_at`,
		p.ID, p.PatternType, p.Description, p.Confidence, p.SupportingDocs,
		p.ContradictingDocs, p.EvolutionHistory, p.InvestigationSpawned,
	).Scan(&p.ID, &p.InvestigationSpawned, &p.FirstSeen, &p.UpdatedAt)
}

func (s *PatternStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pattern, error) {
	p := &domain.Pattern{}
	err := s.db.QueryRow(ctx,
		`SELECT id, pattern_type, description, confidence, supporting_docs, contradicting_docs,
		        evolution_history, investigation_spawned, first_seen, updated_at
		 FROM patterns WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.PatternType, &p.Description, &p.Confidence, &p.SupportingDocs,
		&p.ContradictingDocs, &p.EvolutionHistory, &p.InvestigationSpawned, &p.FirstSeen, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PatternStore) ListByConfidence(ctx context.Context, minConfidence float64, limit int) ([]domain.Pattern, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, pattern_type, description, confidence, supporting_docs, contradicting_docs,
		        evolution_history, investigation_spawned, first_seen, updated_at
		 FROM patterns
		 WHERE confidence >= $1
		 ORDER BY confidence DESC
		 LIMIT $2`,
		minConfidence, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []domain.Pattern
	for rows.Next() {
		var p domain.Pattern
		if err := rows.Scan(&p.ID, &p.PatternType, &p.Description, &p.Confidence, &p.SupportingDocs,
			&p.ContradictingDocs, &p.EvolutionHistory, &p.InvestigationSpawned, &p.FirstSeen, &p.UpdatedAt); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func (s *PatternStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&n)
	return n, err
}
