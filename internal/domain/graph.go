package domain

import (
	"time"

	"github.com/google/uuid"
)

type RelationType string

const (
	RelationControls     RelationType = "controls"
	RelationPaid         RelationType = "paid"
	RelationSigned       RelationType = "signed"
	RelationCorresponded RelationType = "corresponded"
	RelationRepresents   RelationType = "represents"
	RelationContradicts  RelationType = "contradicts"
	RelationOther        RelationType = "other"
)

func ValidRelationType(r string) bool {
	switch RelationType(r) {
	case RelationControls, RelationPaid, RelationSigned, RelationCorresponded,
		RelationRepresents, RelationContradicts, RelationOther:
		return true
	}
	return false
}

// Relationship is a typed edge between two entities. Strength is derived
// from the volume of supporting evidence, not set directly by callers.
type Relationship struct {
	ID           uuid.UUID    `json:"id"`
	SourceID     uuid.UUID    `json:"source_id"`
	TargetID     uuid.UUID    `json:"target_id"`
	RelationType RelationType `json:"relation_type"`
	Confidence   float64      `json:"confidence"`
	Evidence     []string     `json:"evidence,omitempty"`
	Strength     float64      `json:"strength"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DeriveStrength maps an evidence count onto [0,1]. Ten independent pieces
// of evidence saturate the scale.
func DeriveStrength(evidenceCount int) float64 {
	s := float64(evidenceCount) / 10.0
	if s > 1.0 {
		return 1.0
	}
	return s
}

// EntityNetwork is the result of an N-hop neighbourhood walk around an entity.
type EntityNetwork struct {
	Root     uuid.UUID      `json:"root"`
	Hops     int            `json:"hops"`
	Entities []Entity       `json:"entities"`
	Edges    []Relationship `json:"edges"`
}
