package domain

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// Tier identifies one backing store in the five-level memory hierarchy.
type Tier int

const (
	TierPinned Tier = 1 // fixed-capacity pinned manifest, free to read
	TierVector Tier = 2 // semantic nearest-neighbour index
	TierGraph  Tier = 3 // relational knowledge graph
	TierVault  Tier = 4 // encrypted cold archive, on-demand only
	TierCache  Tier = 5 // TTL cache of derived results
)

func (t Tier) String() string {
	switch t {
	case TierPinned:
		return "pinned"
	case TierVector:
		return "vector"
	case TierGraph:
		return "graph"
	case TierVault:
		return "vault"
	case TierCache:
		return "cache"
	}
	return "unknown"
}

// MarshalText renders tiers by name in JSON bodies and map keys.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pinned":
		*t = TierPinned
	case "vector":
		*t = TierVector
	case "graph":
		*t = TierGraph
	case "vault":
		*t = TierVault
	case "cache":
		*t = TierCache
	default:
		return fmt.Errorf("unknown tier %q", b)
	}
	return nil
}

// MergeOrder is the fixed priority in which tier results are admitted into
// the combined context: free and cached tiers first, the expensive ones last.
var MergeOrder = []Tier{TierCache, TierPinned, TierGraph, TierVector, TierVault}

// DefaultQueryTiers is what a query fans out to when the caller does not
// choose; the vault is excluded unless asked for or context runs short.
var DefaultQueryTiers = []Tier{TierPinned, TierVector, TierGraph, TierCache}

// MemoryQuery is a context request against the tier hierarchy.
type MemoryQuery struct {
	Text          string     `json:"text"`
	MaxTokens     int        `json:"max_tokens"`
	IncludeTiers  []Tier     `json:"include_tiers,omitempty"`
	PriorityItems []string   `json:"priority_items,omitempty"`
	TimeRange     *TimeRange `json:"time_range,omitempty"`
	ItemTypes     []string   `json:"item_types,omitempty"`
}

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TierResult is one tier's scored partial answer.
type TierResult struct {
	Tier       Tier           `json:"tier"`
	Content    string         `json:"content"`
	Relevance  float64        `json:"relevance"`
	TokenCost  int            `json:"token_cost"`
	SourceDocs []string       `json:"source_docs,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RetrievalResult is the merged answer the coordinator hands back.
type RetrievalResult struct {
	Query           string              `json:"query"`
	TierResults     map[Tier]TierResult `json:"tier_results"`
	CombinedContext string              `json:"combined_context"`
	TotalTokens     int                 `json:"total_tokens"`
	CostEstimate    float64             `json:"cost_estimate"`
	RetrievalTime   time.Duration       `json:"retrieval_time"`
}

// IngestItem is content plus the metadata the routing decision needs.
// The core performs no parsing; metadata arrives pre-extracted.
type IngestItem struct {
	DocID    string       `json:"doc_id"`
	Content  []byte       `json:"content"`
	Metadata ItemMetadata `json:"metadata"`
}

type ItemMetadata struct {
	Classification string `json:"classification,omitempty"`
	Importance     int    `json:"importance"`
	HasDates       bool   `json:"has_dates"`
	HasAmounts     bool   `json:"has_amounts"`
	SourceLocation string `json:"source_location,omitempty"`
}

// TierStatus is the common health/occupancy report every tier exposes.
type TierStatus struct {
	Tier      Tier           `json:"tier"`
	Available bool           `json:"available"`
	Items     int            `json:"items"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// TierManager is the capability contract every tier implements. A tier that
// cannot be built reports a typed construction error, never a runtime check.
type TierManager interface {
	Add(ctx context.Context, item IngestItem) error
	Query(ctx context.Context, q MemoryQuery) (*TierResult, error)
	Status(ctx context.Context) TierStatus
}

// EstimateTokens is the rough cost model used across tiers: four characters
// per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// TruncateToTokens clips text to at most maxTokens under the same model,
// backing off to a rune boundary so a multi-byte character is never split.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * 4
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
