package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/domain"
	"caselore/internal/store"
)

// versionRecorder is the slice of the version store the graph needs.
type versionRecorder interface {
	Record(ctx context.Context, kind string, recordID uuid.UUID, change map[string]any) error
}

// KnowledgeGraphService owns the accumulated analytical findings and the
// escalation rules that turn them into scheduled investigations.
type KnowledgeGraphService struct {
	entities       domain.EntityStore
	relationships  domain.RelationshipStore
	contradictions domain.ContradictionStore
	patterns       domain.PatternStore
	timeline       domain.TimelineStore
	discoveries    domain.DiscoveryStore
	versions       versionRecorder
	queue          *InvestigationQueue
	policy         config.Policy
	logger         *zap.Logger
}

func NewKnowledgeGraphService(
	entities domain.EntityStore,
	relationships domain.RelationshipStore,
	contradictions domain.ContradictionStore,
	patterns domain.PatternStore,
	timeline domain.TimelineStore,
	discoveries domain.DiscoveryStore,
	versions versionRecorder,
	queue *InvestigationQueue,
	policy config.Policy,
	logger *zap.Logger,
) *KnowledgeGraphService {
	return &KnowledgeGraphService{
		entities:       entities,
		relationships:  relationships,
		contradictions: contradictions,
		patterns:       patterns,
		timeline:       timeline,
		discoveries:    discoveries,
		versions:       versions,
		queue:          queue,
		policy:         policy,
		logger:         logger,
	}
}

// AddEntity upserts an entity. Confidence can only rise across submissions
// for the same name/type; malformed values are clamped, not rejected.
func (s *KnowledgeGraphService) AddEntity(ctx context.Context, e *domain.Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if !domain.ValidEntityType(string(e.EntityType)) {
		e.EntityType = domain.EntityOther
	}
	e.Confidence = domain.ClampConfidence(e.Confidence)

	if err := s.entities.Upsert(ctx, e); err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	s.recordVersion(ctx, "entity", e.ID, map[string]any{
		"name":       e.Name,
		"confidence": e.Confidence,
		"suspicion":  e.SuspicionScore,
	})
	return nil
}

// AddRelationship upserts an edge. Strength always derives from the evidence
// count; a caller-supplied strength is ignored.
func (s *KnowledgeGraphService) AddRelationship(ctx context.Context, r *domain.Relationship) error {
	if r.SourceID == uuid.Nil || r.TargetID == uuid.Nil {
		return fmt.Errorf("relationship endpoints are required")
	}
	if !domain.ValidRelationType(string(r.RelationType)) {
		r.RelationType = domain.RelationOther
	}
	r.Strength = domain.DeriveStrength(len(r.Evidence))

	if err := s.relationships.Upsert(ctx, r); err != nil {
		return fmt.Errorf("upsert relationship: %w", err)
	}
	s.recordVersion(ctx, "relationship", r.ID, map[string]any{
		"type":     r.RelationType,
		"strength": r.Strength,
	})
	return nil
}

var (
	financialPattern = regexp.MustCompile(`(?i)[£$€]\s?\d|\d+(\.\d+)?\s?(million|thousand|mn|k\b)|\bpayment\b|\btransfer(red)?\b|\binvoice\b|\baccount\b`)
	timelinePattern  = regexp.MustCompile(`(?i)\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b|\b(date|dated|deadline|before|after)\b|\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
)

func mentionsFinancial(texts ...string) bool {
	for _, t := range texts {
		if financialPattern.MatchString(t) {
			return true
		}
	}
	return false
}

func mentionsTimeline(texts ...string) bool {
	for _, t := range texts {
		if timelinePattern.MatchString(t) {
			return true
		}
	}
	return false
}

// AddContradiction records two irreconcilable statements. Severity above the
// policy threshold escalates: an investigation is spawned once per
// contradiction, priority boosted when money or dates are involved, and
// severe findings land in the discovery log.
func (s *KnowledgeGraphService) AddContradiction(ctx context.Context, c *domain.Contradiction) error {
	if c.StatementA == "" || c.StatementB == "" {
		return fmt.Errorf("both statements are required")
	}
	c.Severity = domain.ClampSeverity(c.Severity)
	c.Confidence = domain.ClampConfidence(c.Confidence)

	alreadySpawned := false
	if c.ID != uuid.Nil {
		existing, err := s.contradictions.GetByID(ctx, c.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load contradiction: %w", err)
		}
		if existing != nil {
			alreadySpawned = existing.InvestigationSpawned
		}
	}

	if c.Severity > s.policy.ContradictionSeverityThreshold && !alreadySpawned {
		priority := c.Severity
		if mentionsFinancial(c.StatementA, c.StatementB) {
			priority++
		}
		if mentionsTimeline(c.StatementA, c.StatementB) {
			priority++
		}
		c.InvestigationPriority = domain.ClampPriority(priority)

		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		inv := &domain.Investigation{
			Topic:       fmt.Sprintf("contradiction: %s vs %s", firstWords(c.StatementA, 8), firstWords(c.StatementB, 8)),
			TriggerType: domain.TriggerContradiction,
			TriggerData: map[string]any{
				"contradiction_id": c.ID.String(),
				"severity":         c.Severity,
			},
			Priority: c.InvestigationPriority,
		}
		if err := s.queue.Spawn(ctx, inv); err != nil {
			return fmt.Errorf("spawn contradiction investigation: %w", err)
		}
		c.InvestigationSpawned = true

		if c.Severity >= 8 {
			id := c.ID
			d := &domain.Discovery{
				DiscoveryType: "contradiction",
				Content: fmt.Sprintf("%s contradiction (severity %d): %q vs %q",
					domain.ImportanceForSeverity(c.Severity), c.Severity, c.StatementA, c.StatementB),
				Importance: domain.ImportanceForSeverity(c.Severity),
				SourceID:   &id,
			}
			if err := s.discoveries.Append(ctx, d); err != nil {
				return fmt.Errorf("append discovery: %w", err)
			}
		}
	} else if alreadySpawned {
		c.InvestigationSpawned = true
	}

	if err := s.contradictions.Upsert(ctx, c); err != nil {
		return fmt.Errorf("upsert contradiction: %w", err)
	}
	s.recordVersion(ctx, "contradiction", c.ID, map[string]any{
		"severity": c.Severity,
		"spawned":  c.InvestigationSpawned,
	})
	return nil
}

// AddPattern creates or evolves a pattern. Confidence is always the evidence
// ratio; each call appends one evolution record. A strong new pattern spawns
// one investigation ever; a large confidence swing on an existing pattern
// spawns a pattern-evolution investigation every time it happens.
func (s *KnowledgeGraphService) AddPattern(ctx context.Context, p *domain.Pattern) error {
	if p.Description == "" {
		return fmt.Errorf("pattern description is required")
	}

	var existing *domain.Pattern
	if p.ID != uuid.Nil {
		found, err := s.patterns.GetByID(ctx, p.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load pattern: %w", err)
		}
		existing = found
	}

	if existing == nil {
		return s.createPattern(ctx, p)
	}
	return s.evolvePattern(ctx, existing, p)
}

func (s *KnowledgeGraphService) createPattern(ctx context.Context, p *domain.Pattern) error {
	if len(p.SupportingDocs)+len(p.ContradictingDocs) > 0 {
		p.Confidence = domain.EvidenceRatio(len(p.SupportingDocs), len(p.ContradictingDocs))
	} else {
		p.Confidence = domain.ClampConfidence(p.Confidence)
	}
	p.EvolutionHistory = append(p.EvolutionHistory, domain.PatternEvolution{
		Confidence:         p.Confidence,
		Delta:              0,
		SupportingCount:    len(p.SupportingDocs),
		ContradictingCount: len(p.ContradictingDocs),
		RecordedAt:         time.Now().UTC(),
	})

	if p.Confidence > s.policy.PatternConfidenceThreshold {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		inv := &domain.Investigation{
			Topic:       fmt.Sprintf("pattern: %s", firstWords(p.Description, 10)),
			TriggerType: domain.TriggerPattern,
			TriggerData: map[string]any{
				"pattern_id": p.ID.String(),
				"confidence": p.Confidence,
			},
			Priority: domain.ClampPriority(int(p.Confidence * 10)),
		}
		if err := s.queue.Spawn(ctx, inv); err != nil {
			return fmt.Errorf("spawn pattern investigation: %w", err)
		}
		p.InvestigationSpawned = true
	}

	if err := s.patterns.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	s.recordVersion(ctx, "pattern", p.ID, map[string]any{
		"confidence": p.Confidence,
		"created":    true,
	})
	return nil
}

func (s *KnowledgeGraphService) evolvePattern(ctx context.Context, existing, update *domain.Pattern) error {
	existing.SupportingDocs = unionStrings(existing.SupportingDocs, update.SupportingDocs)
	existing.ContradictingDocs = unionStrings(existing.ContradictingDocs, update.ContradictingDocs)
	if update.Description != "" {
		existing.Description = update.Description
	}

	old := existing.Confidence
	existing.Confidence = domain.EvidenceRatio(len(existing.SupportingDocs), len(existing.ContradictingDocs))
	delta := existing.Confidence - old

	existing.EvolutionHistory = append(existing.EvolutionHistory, domain.PatternEvolution{
		Confidence:         existing.Confidence,
		Delta:              delta,
		SupportingCount:    len(existing.SupportingDocs),
		ContradictingCount: len(existing.ContradictingDocs),
		RecordedAt:         time.Now().UTC(),
	})

	if math.Abs(delta) > s.policy.PatternEvolutionDelta {
		inv := &domain.Investigation{
			Topic:       fmt.Sprintf("pattern evolution: %s", firstWords(existing.Description, 10)),
			TriggerType: domain.TriggerPatternEvolution,
			TriggerData: map[string]any{
				"pattern_id": existing.ID.String(),
				"delta":      delta,
				"confidence": existing.Confidence,
			},
			Priority: domain.ClampPriority(int(math.Abs(delta)*10) + 5),
		}
		if err := s.queue.Spawn(ctx, inv); err != nil {
			return fmt.Errorf("spawn evolution investigation: %w", err)
		}
		s.logger.Info("pattern confidence swing",
			zap.String("pattern", existing.ID.String()),
			zap.Float64("delta", delta))
	}

	if err := s.patterns.Upsert(ctx, existing); err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	s.recordVersion(ctx, "pattern", existing.ID, map[string]any{
		"confidence": existing.Confidence,
		"delta":      delta,
	})

	*update = *existing
	return nil
}

// AddTimelineEvent records an event and checks each participant's same-day
// events for mutually exclusive types. A conflict flags both events and
// spawns a high-priority investigation.
func (s *KnowledgeGraphService) AddTimelineEvent(ctx context.Context, ev *domain.TimelineEvent) error {
	if ev.Description == "" {
		return fmt.Errorf("event description is required")
	}

	var conflicts []domain.TimelineEvent
	for _, participant := range ev.Participants {
		sameDay, err := s.timeline.ListByEntityAndDate(ctx, participant, ev.Date)
		if err != nil {
			return fmt.Errorf("scan same-day events: %w", err)
		}
		for _, other := range sameDay {
			if other.ID != ev.ID && domain.MutuallyExclusive(ev.EventType, other.EventType) {
				conflicts = append(conflicts, other)
			}
		}
	}

	if len(conflicts) > 0 {
		ev.ImpossibilityFlag = true
	}
	if err := s.timeline.Upsert(ctx, ev); err != nil {
		return fmt.Errorf("upsert timeline event: %w", err)
	}

	for _, other := range conflicts {
		if err := s.timeline.SetImpossibility(ctx, other.ID); err != nil {
			return fmt.Errorf("flag conflicting event: %w", err)
		}
		inv := &domain.Investigation{
			Topic:       fmt.Sprintf("timeline impossibility on %s: %s", ev.Date.Format("2006-01-02"), firstWords(ev.Description, 10)),
			TriggerType: domain.TriggerTimeline,
			TriggerData: map[string]any{
				"event_id":    ev.ID.String(),
				"conflict_id": other.ID.String(),
				"date":        ev.Date.Format("2006-01-02"),
			},
			Priority: s.policy.TimelineImpossibilityPriority,
		}
		if err := s.queue.Spawn(ctx, inv); err != nil {
			return fmt.Errorf("spawn timeline investigation: %w", err)
		}
	}
	return nil
}

// TopicContext returns entities and contradictions relevant to a topic.
func (s *KnowledgeGraphService) TopicContext(ctx context.Context, topic string, limit int) ([]domain.Entity, []domain.Contradiction, error) {
	entities, err := s.entities.SearchByTopic(ctx, topic, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("search entities: %w", err)
	}
	contradictions, err := s.contradictions.SearchBySubject(ctx, topic, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("search contradictions: %w", err)
	}
	return entities, contradictions, nil
}

// ContradictionsAbout lists contradictions touching a subject, most severe
// first.
func (s *KnowledgeGraphService) ContradictionsAbout(ctx context.Context, subject string, limit int) ([]domain.Contradiction, error) {
	return s.contradictions.SearchBySubject(ctx, subject, limit)
}

// EventsInWindow lists timeline events between two dates.
func (s *KnowledgeGraphService) EventsInWindow(ctx context.Context, from, to time.Time, limit int) ([]domain.TimelineEvent, error) {
	return s.timeline.ListByDateRange(ctx, from, to, limit)
}

// EntityNetwork walks the relationship graph breadth-first up to hops levels
// from the root. The visited set makes it safe on cyclic graphs.
func (s *KnowledgeGraphService) EntityNetwork(ctx context.Context, rootID uuid.UUID, hops int) (*domain.EntityNetwork, error) {
	if hops <= 0 {
		hops = 2
	}
	root, err := s.entities.GetByID(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("load root entity: %w", err)
	}

	network := &domain.EntityNetwork{
		Root:     rootID,
		Hops:     hops,
		Entities: []domain.Entity{*root},
	}
	visited := map[uuid.UUID]bool{rootID: true}
	seenEdges := map[uuid.UUID]bool{}
	frontier := []uuid.UUID{rootID}

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		var next []uuid.UUID
		for _, id := range frontier {
			edges, err := s.relationships.GetByEntity(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("load edges for %s: %w", id, err)
			}
			for _, edge := range edges {
				if !seenEdges[edge.ID] {
					seenEdges[edge.ID] = true
					network.Edges = append(network.Edges, edge)
				}
				for _, neighbour := range []uuid.UUID{edge.SourceID, edge.TargetID} {
					if visited[neighbour] {
						continue
					}
					visited[neighbour] = true
					e, err := s.entities.GetByID(ctx, neighbour)
					if err != nil {
						if errors.Is(err, store.ErrNotFound) {
							continue
						}
						return nil, fmt.Errorf("load neighbour %s: %w", neighbour, err)
					}
					network.Entities = append(network.Entities, *e)
					next = append(next, neighbour)
				}
			}
		}
		frontier = next
	}
	return network, nil
}

// MostSuspicious lists entities ordered by suspicion score.
func (s *KnowledgeGraphService) MostSuspicious(ctx context.Context, limit int) ([]domain.Entity, error) {
	return s.entities.ListMostSuspicious(ctx, limit)
}

// CriticalDiscoveries lists logged discoveries at or above an importance.
func (s *KnowledgeGraphService) CriticalDiscoveries(ctx context.Context, min domain.Importance, limit int) ([]domain.Discovery, error) {
	return s.discoveries.ListByImportance(ctx, min, limit)
}

// PatternHistory returns a pattern's append-only evolution history.
func (s *KnowledgeGraphService) PatternHistory(ctx context.Context, id uuid.UUID) ([]domain.PatternEvolution, error) {
	p, err := s.patterns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.EvolutionHistory, nil
}

// Stats gathers the per-table counts for the status endpoint.
func (s *KnowledgeGraphService) Stats(ctx context.Context) (*domain.GraphStats, error) {
	stats := &domain.GraphStats{}
	var err error
	if stats.Entities, err = s.entities.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Relationships, err = s.relationships.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Contradictions, err = s.contradictions.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Patterns, err = s.patterns.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TimelineEvents, err = s.timeline.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Discoveries, err = s.discoveries.Count(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *KnowledgeGraphService) recordVersion(ctx context.Context, kind string, id uuid.UUID, change map[string]any) {
	if s.versions == nil {
		return
	}
	if err := s.versions.Record(ctx, kind, id, change); err != nil {
		s.logger.Warn("record version failed",
			zap.String("kind", kind), zap.String("id", id.String()), zap.Error(err))
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return text
	}
	return strings.Join(fields[:n], " ") + "..."
}
