package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type RelationshipStore struct {
	db *pgxpool.Pool
}

func NewRelationshipStore(db *pgxpool.Pool) *RelationshipStore {
	return &RelationshipStore{db: db}
}

// Upsert merges by (source, target, type), accumulating distinct evidence.
// Strength is recomputed in SQL from the merged evidence count.
func (s *RelationshipStore) Upsert(ctx context.Context, r *domain.Relationship) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Evidence == nil {
		r.Evidence = []string{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO relationships (id, source_id, target_id, relation_type, confidence, evidence, strength)
		 VALUES ($1, $2, $3, $4, $5, $6, LEAST(jsonb_array_length($6::jsonb) / 10.0, 1.0))
		 ON CONFLICT (source_id, target_id, relation_type) DO UPDATE
		 SET confidence = GREATEST(relationships.confidence, EXCLUDED.confidence),
		     evidence = (SELECT jsonb_agg(DISTINCT v) FROM jsonb_array_elements(relationships.evidence || EXCLUDED.evidence) AS v),
		     strength = LEAST((SELECT COUNT(DISTINCT v) FROM jsonb_array_elements(relationships.evidence || EXCLUDED.evidence) AS v) / 10.0, 1.0),
		     updated_at = NOW()
		 RETURNING id, confidence, evidence, strength, created_at, updated_at`,
		r.ID, r.SourceID, r.TargetID, r.RelationType, r.Confidence, r.Evidence,
	).Scan(&r.ID, &r.Confidence, &r.Evidence, &r.Strength, &r.CreatedAt, &r.UpdatedAt)
}

func (s *RelationshipStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Relationship, error) {
	r := &domain.Relationship{}
	err := s.db.QueryRow(ctx,
		`SELECT id, source_id, target_id, relation_type, confidence, evidence, strength, created_at, updated_at
		 FROM relationships WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &r.Confidence, &r.Evidence,
		&r.Strength, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *RelationshipStore) GetByEntity(ctx context.Context, entityID uuid.UUID) ([]domain.Relationship, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source_id, target_id, relation_type, confidence, evidence, strength, created_at, updated_at
		 FROM relationships
		 WHERE source_id = $1 OR target_id = $1
		 ORDER BY strength DESC`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		var r domain.Relationship
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &r.Confidence,
			&r.Evidence, &r.Strength, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (s *RelationshipStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&n)
	return n, err
}
