package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contradiction records two statements that cannot both be true, with the
// documents each came from. Severity runs 1 (trivial) to 10 (case-breaking).
type Contradiction struct {
	ID                    uuid.UUID `json:"id"`
	StatementA            string    `json:"statement_a"`
	StatementB            string    `json:"statement_b"`
	DocIDA                string    `json:"doc_id_a,omitempty"`
	DocIDB                string    `json:"doc_id_b,omitempty"`
	Severity              int       `json:"severity"`
	Confidence            float64   `json:"confidence"`
	Explanation           string    `json:"explanation,omitempty"`
	InvestigationPriority int       `json:"investigation_priority"`
	InvestigationSpawned  bool      `json:"investigation_spawned"`
	Resolved              bool      `json:"resolved"`
	IdentifiedAt          time.Time `json:"identified_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultSeverity is applied when a caller submits a contradiction without
// a severity; malformed input degrades rather than erroring.
const DefaultSeverity = 5

func ClampSeverity(s int) int {
	if s < 1 {
		return DefaultSeverity
	}
	if s > 10 {
		return 10
	}
	return s
}
