package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the escalation thresholds and budget knobs the knowledge
// graph, queue and coordinator consult. Defaults match the values the
// analysis pipeline was tuned with; a YAML file can override any of them.
type Policy struct {
	// Contradictions above this severity spawn an investigation.
	ContradictionSeverityThreshold int `yaml:"contradiction_severity_threshold"`
	// New patterns above this confidence spawn an investigation.
	PatternConfidenceThreshold float64 `yaml:"pattern_confidence_threshold"`
	// A confidence swing beyond this (either direction) spawns a
	// pattern-evolution investigation.
	PatternEvolutionDelta float64 `yaml:"pattern_evolution_delta"`
	// Priority assigned to timeline-impossibility investigations.
	TimelineImpossibilityPriority int `yaml:"timeline_impossibility_priority"`

	// Business-level recursion bound for child investigations. Distinct from
	// the queue's internal cycle-safety cap.
	MaxInvestigationDepth int `yaml:"max_investigation_depth"`
	// Actives held longer than this are requeued by the sweeper.
	InvestigationLeaseTimeout time.Duration `yaml:"investigation_lease_timeout"`

	// Query the vault when the other tiers produced fewer tokens than this.
	MinContextTokens int `yaml:"min_context_tokens"`
	// Default budget when a query does not set one.
	DefaultMaxTokens int `yaml:"default_max_tokens"`
	// Flat external-service price per million input tokens, for savings
	// accounting.
	TokenPricePerMillion float64 `yaml:"token_price_per_million"`

	// Pinned-store capacity.
	PinnedCapacity int `yaml:"pinned_capacity"`
	// Items at or above this importance are routed to the pinned tier.
	PinnedImportanceThreshold int `yaml:"pinned_importance_threshold"`

	// Result-cache time-to-live.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultPolicy returns the tuned defaults.
func DefaultPolicy() Policy {
	return Policy{
		ContradictionSeverityThreshold: 7,
		PatternConfidenceThreshold:     0.7,
		PatternEvolutionDelta:          0.3,
		TimelineImpossibilityPriority:  9,
		MaxInvestigationDepth:          3,
		InvestigationLeaseTimeout:      30 * time.Minute,
		MinContextTokens:               10_000,
		DefaultMaxTokens:               100_000,
		TokenPricePerMillion:           15.0,
		PinnedCapacity:                 100,
		PinnedImportanceThreshold:      9,
		CacheTTL:                       30 * 24 * time.Hour,
	}
}

// UnmarshalYAML applies only the keys present in the file over whatever the
// receiver already holds, and accepts durations in Go syntax ("30m", "720h").
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		ContradictionSeverityThreshold *int     `yaml:"contradiction_severity_threshold"`
		PatternConfidenceThreshold     *float64 `yaml:"pattern_confidence_threshold"`
		PatternEvolutionDelta          *float64 `yaml:"pattern_evolution_delta"`
		TimelineImpossibilityPriority  *int     `yaml:"timeline_impossibility_priority"`
		MaxInvestigationDepth          *int     `yaml:"max_investigation_depth"`
		InvestigationLeaseTimeout      *string  `yaml:"investigation_lease_timeout"`
		MinContextTokens               *int     `yaml:"min_context_tokens"`
		DefaultMaxTokens               *int     `yaml:"default_max_tokens"`
		TokenPricePerMillion           *float64 `yaml:"token_price_per_million"`
		PinnedCapacity                 *int     `yaml:"pinned_capacity"`
		PinnedImportanceThreshold      *int     `yaml:"pinned_importance_threshold"`
		CacheTTL                       *string  `yaml:"cache_ttl"`
	}

	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}

	if r.ContradictionSeverityThreshold != nil {
		p.ContradictionSeverityThreshold = *r.ContradictionSeverityThreshold
	}
	if r.PatternConfidenceThreshold != nil {
		p.PatternConfidenceThreshold = *r.PatternConfidenceThreshold
	}
	if r.PatternEvolutionDelta != nil {
		p.PatternEvolutionDelta = *r.PatternEvolutionDelta
	}
	if r.TimelineImpossibilityPriority != nil {
		p.TimelineImpossibilityPriority = *r.TimelineImpossibilityPriority
	}
	if r.MaxInvestigationDepth != nil {
		p.MaxInvestigationDepth = *r.MaxInvestigationDepth
	}
	if r.MinContextTokens != nil {
		p.MinContextTokens = *r.MinContextTokens
	}
	if r.DefaultMaxTokens != nil {
		p.DefaultMaxTokens = *r.DefaultMaxTokens
	}
	if r.TokenPricePerMillion != nil {
		p.TokenPricePerMillion = *r.TokenPricePerMillion
	}
	if r.PinnedCapacity != nil {
		p.PinnedCapacity = *r.PinnedCapacity
	}
	if r.PinnedImportanceThreshold != nil {
		p.PinnedImportanceThreshold = *r.PinnedImportanceThreshold
	}
	if r.InvestigationLeaseTimeout != nil {
		d, err := time.ParseDuration(*r.InvestigationLeaseTimeout)
		if err != nil {
			return fmt.Errorf("investigation_lease_timeout: %w", err)
		}
		p.InvestigationLeaseTimeout = d
	}
	if r.CacheTTL != nil {
		d, err := time.ParseDuration(*r.CacheTTL)
		if err != nil {
			return fmt.Errorf("cache_ttl: %w", err)
		}
		p.CacheTTL = d
	}
	return nil
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path
// returns defaults; a missing or malformed file is an error, since a policy
// file that silently fails to apply is worse than none.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}
	return p, nil
}
