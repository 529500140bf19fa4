package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimelineEvent anchors a description to a date with its participants and
// sources. ImpossibilityFlag is set when two mutually exclusive events for
// the same entity coexist on the same date.
type TimelineEvent struct {
	ID                uuid.UUID   `json:"id"`
	Date              time.Time   `json:"date"`
	EventType         string      `json:"event_type"`
	Description       string      `json:"description"`
	Significance      int         `json:"significance"`
	Participants      []uuid.UUID `json:"participants,omitempty"`
	SourceDocs        []string    `json:"source_docs,omitempty"`
	ImpossibilityFlag bool        `json:"impossibility_flag"`
	CreatedAt         time.Time   `json:"created_at"`
}

// exclusiveEventClasses groups event types that cannot both happen for one
// entity on one date. Two signing-class events for the same agreement on the
// same day mean at least one record is wrong.
var exclusiveEventClasses = map[string]string{
	"signed":           "signing",
	"executed":         "signing",
	"agreement_signed": "signing",
	"terminated":       "termination",
	"contract_ended":   "termination",
}

// MutuallyExclusive reports whether two event types belong to the same
// exclusive class.
func MutuallyExclusive(typeA, typeB string) bool {
	ca, ok := exclusiveEventClasses[typeA]
	if !ok {
		return false
	}
	cb, ok := exclusiveEventClasses[typeB]
	return ok && ca == cb
}
