package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityAccount      EntityType = "account"
	EntityAgreement    EntityType = "agreement"
	EntityLocation     EntityType = "location"
	EntityAmount       EntityType = "amount"
	EntityOther        EntityType = "other"
)

func ValidEntityType(e string) bool {
	switch EntityType(e) {
	case EntityPerson, EntityOrganization, EntityAccount, EntityAgreement,
		EntityLocation, EntityAmount, EntityOther:
		return true
	}
	return false
}

// Entity is a party, instrument or amount surfaced by analysis of the corpus.
// Confidence never decreases: each corroborating mention can only push it up,
// clamped at 1.0.
type Entity struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	EntityType     EntityType     `json:"entity_type"`
	Subtype        string         `json:"subtype,omitempty"`
	Confidence     float64        `json:"confidence"`
	SuspicionScore float64        `json:"suspicion_score"`
	MentionCount   int            `json:"mention_count"`
	Properties     map[string]any `json:"properties,omitempty"`
	DiscoveryPhase string         `json:"discovery_phase,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
