package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EntityStore interface {
	Upsert(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	FindByName(ctx context.Context, name string) (*Entity, error)
	SearchByTopic(ctx context.Context, topic string, limit int) ([]Entity, error)
	ListMostSuspicious(ctx context.Context, limit int) ([]Entity, error)
	Count(ctx context.Context) (int, error)
}

type RelationshipStore interface {
	Upsert(ctx context.Context, r *Relationship) error
	GetByID(ctx context.Context, id uuid.UUID) (*Relationship, error)
	GetByEntity(ctx context.Context, entityID uuid.UUID) ([]Relationship, error)
	Count(ctx context.Context) (int, error)
}

type ContradictionStore interface {
	Upsert(ctx context.Context, c *Contradiction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contradiction, error)
	ListBySeverity(ctx context.Context, minSeverity, limit int) ([]Contradiction, error)
	SearchBySubject(ctx context.Context, subject string, limit int) ([]Contradiction, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type PatternStore interface {
	Upsert(ctx context.Context, p *Pattern) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pattern, error)
	ListByConfidence(ctx context.Context, minConfidence float64, limit int) ([]Pattern, error)
	Count(ctx context.Context) (int, error)
}

type TimelineStore interface {
	Upsert(ctx context.Context, e *TimelineEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*TimelineEvent, error)
	ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]TimelineEvent, error)
	ListByEntityAndDate(ctx context.Context, entityID uuid.UUID, date time.Time) ([]TimelineEvent, error)
	SetImpossibility(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type InvestigationStore interface {
	Save(ctx context.Context, inv *Investigation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Investigation, error)
	ListByStatus(ctx context.Context, status InvestigationStatus, minPriority, limit int) ([]Investigation, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]Investigation, error)
	Count(ctx context.Context) (int, error)
}

type DiscoveryStore interface {
	Append(ctx context.Context, d *Discovery) error
	ListByImportance(ctx context.Context, min Importance, limit int) ([]Discovery, error)
	Count(ctx context.Context) (int, error)
}

// CorpusStore backs the vector tier: ingested chunks with embeddings.
type CorpusChunk struct {
	ID        uuid.UUID `json:"id"`
	DocID     string    `json:"doc_id"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

type ScoredChunk struct {
	CorpusChunk
	Similarity float64 `json:"similarity"`
}

type CorpusStore interface {
	Add(ctx context.Context, chunk *CorpusChunk, embedding []float32) error
	Search(ctx context.Context, embedding []float32, topK int) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
}

// EmbeddingClient turns text into a vector. The vector tier is disabled when
// no provider is configured.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GraphStats is the statistics block the status endpoint reports.
type GraphStats struct {
	Entities       int `json:"entities"`
	Relationships  int `json:"relationships"`
	Contradictions int `json:"contradictions"`
	Patterns       int `json:"patterns"`
	TimelineEvents int `json:"timeline_events"`
	Investigations int `json:"investigations"`
	Discoveries    int `json:"discoveries"`
}
