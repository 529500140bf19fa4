package domain

import (
	"time"

	"github.com/google/uuid"
)

// Importance ranks a discovery. Higher is more urgent.
type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceMedium
	ImportanceHigh
	ImportanceCritical
	ImportanceNuclear
)

func (i Importance) String() string {
	switch i {
	case ImportanceNuclear:
		return "NUCLEAR"
	case ImportanceCritical:
		return "CRITICAL"
	case ImportanceHigh:
		return "HIGH"
	case ImportanceMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ImportanceForSeverity maps the 1-10 severity scale onto discovery bands.
func ImportanceForSeverity(severity int) Importance {
	switch {
	case severity >= 9:
		return ImportanceNuclear
	case severity >= 8:
		return ImportanceCritical
	case severity >= 6:
		return ImportanceHigh
	case severity >= 4:
		return ImportanceMedium
	default:
		return ImportanceLow
	}
}

// Discovery is a logged, severity-ranked observation surfaced to the
// investigation scheduler.
type Discovery struct {
	ID            uuid.UUID  `json:"id"`
	DiscoveryType string     `json:"discovery_type"`
	Content       string     `json:"content"`
	Importance    Importance `json:"importance"`
	SourceID      *uuid.UUID `json:"source_id,omitempty"`
	RecordedAt    time.Time  `json:"recorded_at"`
}
