package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvestigationStatus string

const (
	InvestigationQueued   InvestigationStatus = "queued"
	InvestigationActive   InvestigationStatus = "active"
	InvestigationComplete InvestigationStatus = "complete"
)

type TriggerType string

const (
	TriggerContradiction    TriggerType = "contradiction"
	TriggerPattern          TriggerType = "pattern"
	TriggerPatternEvolution TriggerType = "pattern_evolution"
	TriggerTimeline         TriggerType = "timeline_impossibility"
	TriggerChild            TriggerType = "child_investigation"
	TriggerManual           TriggerType = "manual"
)

// Investigation is a unit of deferred follow-up work. Depth is never stored
// authoritatively; it is computed by walking the parent chain through a
// visited-id set so that an accidental cycle cannot hang a traversal.
type Investigation struct {
	ID          uuid.UUID           `json:"id"`
	Topic       string              `json:"topic"`
	TriggerType TriggerType         `json:"trigger_type"`
	TriggerData map[string]any      `json:"trigger_data,omitempty"`
	Priority    int                 `json:"priority"`
	Status      InvestigationStatus `json:"status"`
	SpawnedFrom *uuid.UUID          `json:"spawned_from,omitempty"`
	Depth       int                 `json:"depth"`
	Findings    *Findings           `json:"findings,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	AcquiredAt  *time.Time          `json:"acquired_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// Findings is what the external pass executor reports back on completion.
type Findings struct {
	Confidence    float64     `json:"confidence"`
	Conclusion    string      `json:"conclusion"`
	SpawnChildren bool        `json:"spawn_children"`
	Children      []ChildSpec `json:"children,omitempty"`
}

// ChildSpec describes a follow-up investigation requested by a completed one.
type ChildSpec struct {
	Topic    string `json:"topic"`
	Priority int    `json:"priority"`
	Reason   string `json:"reason,omitempty"`
}

func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

// QueueStatus summarises queue occupancy for monitoring.
type QueueStatus struct {
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}
