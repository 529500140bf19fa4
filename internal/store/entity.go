package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type EntityStore struct {
	db *pgxpool.Pool
}

func NewEntityStore(db *pgxpool.Pool) *EntityStore {
	return &EntityStore{db: db}
}

// Upsert merges by (name, type). Confidence never decreases across merges
// and mention counts accumulate.
func (s *EntityStore) Upsert(ctx context.Context, e *domain.Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	e.Confidence = domain.ClampConfidence(e.Confidence)
	return s.db.QueryRow(ctx,
		`INSERT INTO entities (id, name, entity_type, subtype, confidence, suspicion_score,
		                       mention_count, properties, discovery_phase)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (LOWER(name), entity_type) DO UPDATE
		 SET subtype = CASE WHEN EXCLUDED.subtype <> '' THEN EXCLUDED.subtype ELSE entities.subtype END,
		     confidence = GREATEST(entities.confidence, EXCLUDED.confidence),
		     suspicion_score = GREATEST(entities.suspicion_score, EXCLUDED.suspicion_score),
		     mention_count = entities.mention_count + GREATEST(EXCLUDED.mention_count, 1),
		     properties = entities.properties || EXCLUDED.properties,
		     discovery_phase = CASE WHEN EXCLUDED.discovery_phase <> '' THEN EXCLUDED.discovery_phase ELSE entities.discovery_phase END,
		     updated_at = NOW()
		 RETURNING id, confidence, suspicion_score, mention_count, created_at, updated_at`,
		e.ID, e.Name, e.EntityType, e.Subtype, e.Confidence, e.SuspicionScore,
		max(e.MentionCount, 1), e.Properties, e.DiscoveryPhase,
	).Scan(&e.ID, &e.Confidence, &e.SuspicionScore, &e.MentionCount, &e.CreatedAt, &e.UpdatedAt)
}

func (s *EntityStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, entity_type, subtype, confidence, suspicion_score, mention_count,
		        properties, discovery_phase, created_at, updated_at
		 FROM entities WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.EntityType, &e.Subtype, &e.Confidence, &e.SuspicionScore,
		&e.MentionCount, &e.Properties, &e.DiscoveryPhase, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) FindByName(ctx context.Context, name string) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, entity_type, subtype, confidence, suspicion_score, mention_count,
		        properties, discovery_phase, created_at, updated_at
		 FROM entities WHERE LOWER(name) = LOWER($1)
		 ORDER BY mention_count DESC
		 LIMIT 1`,
		name,
	).Scan(&e.ID, &e.Name, &e.EntityType, &e.Subtype, &e.Confidence, &e.SuspicionScore,
		&e.MentionCount, &e.Properties, &e.DiscoveryPhase, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) SearchByTopic(ctx context.Context, topic string, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, name, entity_type, subtype, confidence, suspicion_score, mention_count,
		        properties, discovery_phase, created_at, updated_at
		 FROM entities
		 WHERE name ILIKE '%' || $1 || '%' OR properties::text ILIKE '%' || $1 || '%'
		 ORDER BY suspicion_score DESC, mention_count DESC
		 LIMIT $2`,
		topic, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *EntityStore) ListMostSuspicious(ctx context.Context, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, name, entity_type, subtype, confidence, suspicion_score, mention_count,
		        properties, discovery_phase, created_at, updated_at
		 FROM entities
		 WHERE suspicion_score > 0
		 ORDER BY suspicion_score DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *EntityStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

func scanEntities(rows pgx.Rows) ([]domain.Entity, error) {
	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.Subtype, &e.Confidence,
			&e.SuspicionScore, &e.MentionCount, &e.Properties, &e.DiscoveryPhase,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
