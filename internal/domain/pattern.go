package domain

import (
	"time"

	"github.com/google/uuid"
)

type PatternType string

const (
	PatternBreach        PatternType = "breach"
	PatternConcealment   PatternType = "concealment"
	PatternNovelArgument PatternType = "novel_argument"
	PatternConduct       PatternType = "conduct"
	PatternOther         PatternType = "other"
)

// Pattern is a recurring behaviour or theory supported by some documents and
// contradicted by others. Confidence is always the evidence ratio
// supporting/(supporting+contradicting), recomputed on every update.
type Pattern struct {
	ID                   uuid.UUID          `json:"id"`
	PatternType          PatternType        `json:"pattern_type"`
	Description          string             `json:"description"`
	Confidence           float64            `json:"confidence"`
	SupportingDocs       []string           `json:"supporting_docs,omitempty"`
	ContradictingDocs    []string           `json:"contradicting_docs,omitempty"`
	EvolutionHistory     []PatternEvolution `json:"evolution_history,omitempty"`
	InvestigationSpawned bool               `json:"investigation_spawned"`
	FirstSeen            time.Time          `json:"first_seen"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// PatternEvolution is one append-only entry in a pattern's belief history.
type PatternEvolution struct {
	Confidence         float64   `json:"confidence"`
	Delta              float64   `json:"delta"`
	SupportingCount    int       `json:"supporting_count"`
	ContradictingCount int       `json:"contradicting_count"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// EvidenceRatio computes pattern confidence from the latest evidence sets.
// No evidence at all yields zero, not NaN.
func EvidenceRatio(supporting, contradicting int) float64 {
	total := supporting + contradicting
	if total == 0 {
		return 0
	}
	return float64(supporting) / float64(total)
}
