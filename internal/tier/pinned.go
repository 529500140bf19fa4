package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"caselore/internal/domain"
)

// PinnedEntry is one manifest row: content the case team always wants in
// context, regardless of what the query asks.
type PinnedEntry struct {
	DocID          string    `json:"doc_id"`
	Content        string    `json:"content"`
	Importance     int       `json:"importance"`
	ReferenceCount int       `json:"reference_count"`
	PinnedAt       time.Time `json:"pinned_at"`
}

// value ranks an entry for eviction. Importance dominates; repeated use
// protects an entry that would otherwise lose on importance alone.
func (e *PinnedEntry) value() float64 {
	return float64(e.Importance) * math.Log(float64(e.ReferenceCount)+1)
}

// PinnedStore is the fixed-capacity top tier. The manifest lives in memory
// and is mirrored to a JSON sidecar after every mutation.
type PinnedStore struct {
	path     string
	capacity int
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*PinnedEntry
}

func NewPinnedStore(dir string, capacity int, logger *zap.Logger) (*PinnedStore, error) {
	if capacity <= 0 {
		capacity = 100
	}
	s := &PinnedStore{
		path:     filepath.Join(dir, "pinned_manifest.json"),
		capacity: capacity,
		logger:   logger,
		entries:  make(map[string]*PinnedEntry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PinnedStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pinned manifest: %w", err)
	}
	var entries []PinnedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse pinned manifest: %w", err)
	}
	for i := range entries {
		e := entries[i]
		s.entries[e.DocID] = &e
	}
	return nil
}

func (s *PinnedStore) persist() error {
	entries := make([]PinnedEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocID < entries[j].DocID })
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// Pin inserts or refreshes an entry. At capacity the lowest-value entry is
// evicted to make room; re-pinning an existing id never evicts.
func (s *PinnedStore) Pin(docID, content string, importance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[docID]; ok {
		existing.Content = content
		if importance > existing.Importance {
			existing.Importance = importance
		}
		return s.persist()
	}

	if len(s.entries) >= s.capacity {
		victim := s.lowestValue()
		if victim != "" {
			s.logger.Info("evicting pinned entry",
				zap.String("doc_id", victim),
				zap.String("replaced_by", docID))
			delete(s.entries, victim)
		}
	}

	s.entries[docID] = &PinnedEntry{
		DocID:      docID,
		Content:    content,
		Importance: importance,
		PinnedAt:   time.Now().UTC(),
	}
	return s.persist()
}

// lowestValue picks the eviction victim. Never-referenced entries all score
// zero, so ties break on lower importance before falling back to id for
// determinism.
func (s *PinnedStore) lowestValue() string {
	var victim *PinnedEntry
	for _, e := range s.entries {
		if victim == nil || evictBefore(e, victim) {
			victim = e
		}
	}
	if victim == nil {
		return ""
	}
	return victim.DocID
}

func evictBefore(a, b *PinnedEntry) bool {
	av, bv := a.value(), b.value()
	if av != bv {
		return av < bv
	}
	if a.Importance != b.Importance {
		return a.Importance < b.Importance
	}
	return a.DocID < b.DocID
}

// RecordUsage bumps the reference count, making the entry harder to evict.
func (s *PinnedStore) RecordUsage(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[docID]
	if !ok {
		return fmt.Errorf("pinned entry %s: %w", docID, os.ErrNotExist)
	}
	e.ReferenceCount++
	return s.persist()
}

// Export returns the manifest ranked by (importance, reference count)
// descending, for inclusion in briefing documents.
func (s *PinnedStore) Export() []PinnedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PinnedEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		if out[i].ReferenceCount != out[j].ReferenceCount {
			return out[i].ReferenceCount > out[j].ReferenceCount
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

func (s *PinnedStore) Add(_ context.Context, item domain.IngestItem) error {
	return s.Pin(item.DocID, string(item.Content), item.Metadata.Importance)
}

// Query returns pinned content relevant to the query text, or the
// highest-value entries when nothing matches. Reads count as usage.
func (s *PinnedStore) Query(_ context.Context, q domain.MemoryQuery) (*domain.TierResult, error) {
	entries := s.Export()
	if len(entries) == 0 {
		return &domain.TierResult{Tier: domain.TierPinned}, nil
	}

	terms := queryTerms(q.Text)
	var matched []PinnedEntry
	for _, e := range entries {
		if matchesTerms(e.DocID+" "+e.Content, terms) || containsDoc(q.PriorityItems, e.DocID) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		limit := min(len(entries), 5)
		matched = entries[:limit]
	}

	var b strings.Builder
	docs := make([]string, 0, len(matched))
	for _, e := range matched {
		fmt.Fprintf(&b, "[PINNED %s] %s\n", e.DocID, e.Content)
		docs = append(docs, e.DocID)
		if err := s.RecordUsage(e.DocID); err != nil {
			s.logger.Warn("record pinned usage", zap.String("doc_id", e.DocID), zap.Error(err))
		}
	}

	content := b.String()
	return &domain.TierResult{
		Tier:       domain.TierPinned,
		Content:    content,
		Relevance:  1.0,
		TokenCost:  domain.EstimateTokens(content),
		SourceDocs: docs,
	}, nil
}

func (s *PinnedStore) Status(_ context.Context) domain.TierStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.TierStatus{
		Tier:      domain.TierPinned,
		Available: true,
		Items:     len(s.entries),
		Detail:    map[string]any{"capacity": s.capacity},
	}
}

func queryTerms(text string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func matchesTerms(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func containsDoc(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
