package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/domain"
)

type graphFixture struct {
	svc            *KnowledgeGraphService
	queue          *InvestigationQueue
	entities       *mockEntityStore
	contradictions *mockContradictionStore
	patterns       *mockPatternStore
	timeline       *mockTimelineStore
	discoveries    *mockDiscoveryStore
	invStore       *mockInvestigationStore
}

func newGraphFixture() *graphFixture {
	logger := zap.NewNop()
	policy := config.DefaultPolicy()
	invStore := newMockInvestigationStore()
	queue := NewInvestigationQueue(invStore, policy, logger)

	f := &graphFixture{
		queue:          queue,
		entities:       newMockEntityStore(),
		contradictions: newMockContradictionStore(),
		patterns:       newMockPatternStore(),
		timeline:       newMockTimelineStore(),
		discoveries:    newMockDiscoveryStore(),
		invStore:       invStore,
	}
	f.svc = NewKnowledgeGraphService(
		f.entities, newMockRelationshipStore(), f.contradictions, f.patterns,
		f.timeline, f.discoveries, &mockVersionRecorder{}, queue, policy, logger,
	)
	return f
}

func TestAddEntityConfidenceNeverDecreases(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	e := &domain.Entity{Name: "Marcus Webb", EntityType: domain.EntityPerson, Confidence: 0.8}
	if err := f.svc.AddEntity(ctx, e); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	weaker := &domain.Entity{Name: "Marcus Webb", EntityType: domain.EntityPerson, Confidence: 0.3}
	if err := f.svc.AddEntity(ctx, weaker); err != nil {
		t.Fatalf("AddEntity (weaker): %v", err)
	}
	if weaker.Confidence != 0.8 {
		t.Errorf("confidence decreased: got %v, want 0.8", weaker.Confidence)
	}
	if weaker.MentionCount != 2 {
		t.Errorf("mention count = %d, want 2", weaker.MentionCount)
	}

	stronger := &domain.Entity{Name: "Marcus Webb", EntityType: domain.EntityPerson, Confidence: 1.7}
	if err := f.svc.AddEntity(ctx, stronger); err != nil {
		t.Fatalf("AddEntity (stronger): %v", err)
	}
	if stronger.Confidence != 1.0 {
		t.Errorf("confidence not clamped: got %v, want 1.0", stronger.Confidence)
	}
}

func TestAddEntityUnknownTypeDegrades(t *testing.T) {
	f := newGraphFixture()
	e := &domain.Entity{Name: "X", EntityType: "starship"}
	if err := f.svc.AddEntity(context.Background(), e); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if e.EntityType != domain.EntityOther {
		t.Errorf("entity type = %q, want %q", e.EntityType, domain.EntityOther)
	}
}

func TestAddRelationshipDerivesStrength(t *testing.T) {
	f := newGraphFixture()
	r := &domain.Relationship{
		SourceID:     uuid.New(),
		TargetID:     uuid.New(),
		RelationType: domain.RelationPaid,
		Evidence:     []string{"d1", "d2", "d3"},
		Strength:     0.99, // caller-supplied, must be ignored
	}
	if err := f.svc.AddRelationship(context.Background(), r); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	if r.Strength != 0.3 {
		t.Errorf("strength = %v, want 0.3", r.Strength)
	}
}

func TestAddContradictionSevereSpawnsOnce(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	c := &domain.Contradiction{
		ID:         uuid.New(),
		StatementA: "The agreement was signed in London",
		StatementB: "The agreement was signed in Geneva",
		Severity:   9,
	}
	if err := f.svc.AddContradiction(ctx, c); err != nil {
		t.Fatalf("AddContradiction: %v", err)
	}
	if !c.InvestigationSpawned {
		t.Fatal("expected investigation to be spawned")
	}
	if got := f.queue.Status().Queued; got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}

	// Severity 9 lands in the discovery log as NUCLEAR.
	discoveries, err := f.svc.CriticalDiscoveries(ctx, domain.ImportanceNuclear, 10)
	if err != nil {
		t.Fatalf("CriticalDiscoveries: %v", err)
	}
	if len(discoveries) != 1 {
		t.Fatalf("discoveries = %d, want 1", len(discoveries))
	}

	// Re-submitting the same contradiction must not spawn again.
	dup := *c
	if err := f.svc.AddContradiction(ctx, &dup); err != nil {
		t.Fatalf("AddContradiction (dup): %v", err)
	}
	if got := f.queue.Status().Queued; got != 1 {
		t.Errorf("duplicate submission spawned again: queued = %d, want 1", got)
	}
}

func TestAddContradictionPriorityBoosts(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	c := &domain.Contradiction{
		StatementA: "Invoice shows £2.5 million paid on 12/03/2019",
		StatementB: "Accounts show no payment before the deadline",
		Severity:   8,
	}
	if err := f.svc.AddContradiction(ctx, c); err != nil {
		t.Fatalf("AddContradiction: %v", err)
	}
	// severity 8, +1 financial, +1 timeline, capped at 10
	if c.InvestigationPriority != 10 {
		t.Errorf("priority = %d, want 10", c.InvestigationPriority)
	}
}

func TestAddContradictionBelowThresholdNoSpawn(t *testing.T) {
	f := newGraphFixture()
	c := &domain.Contradiction{StatementA: "a", StatementB: "b", Severity: 6}
	if err := f.svc.AddContradiction(context.Background(), c); err != nil {
		t.Fatalf("AddContradiction: %v", err)
	}
	if c.InvestigationSpawned {
		t.Error("severity 6 should not spawn")
	}
	if got := f.queue.Status().Queued; got != 0 {
		t.Errorf("queued = %d, want 0", got)
	}
}

func TestAddContradictionMalformedSeverityDegrades(t *testing.T) {
	f := newGraphFixture()
	c := &domain.Contradiction{StatementA: "a", StatementB: "b", Severity: -3}
	if err := f.svc.AddContradiction(context.Background(), c); err != nil {
		t.Fatalf("AddContradiction: %v", err)
	}
	if c.Severity != domain.DefaultSeverity {
		t.Errorf("severity = %d, want default %d", c.Severity, domain.DefaultSeverity)
	}
}

func TestPatternLifecycle(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	// New pattern fully supported: confidence 1.0, one spawn.
	p := &domain.Pattern{
		PatternType:    domain.PatternConcealment,
		Description:    "systematic concealment of side letters",
		SupportingDocs: []string{"e1"},
	}
	if err := f.svc.AddPattern(ctx, p); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if p.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", p.Confidence)
	}
	if !p.InvestigationSpawned {
		t.Fatal("strong new pattern should spawn")
	}
	if got := f.queue.Status().Queued; got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}
	if len(p.EvolutionHistory) != 1 {
		t.Fatalf("history length = %d, want 1", len(p.EvolutionHistory))
	}

	// Contradicting evidence arrives: 2 supporting vs 1 contradicting.
	update := &domain.Pattern{
		ID:                p.ID,
		SupportingDocs:    []string{"e1", "e2"},
		ContradictingDocs: []string{"e3"},
	}
	if err := f.svc.AddPattern(ctx, update); err != nil {
		t.Fatalf("AddPattern (update): %v", err)
	}
	if math.Abs(update.Confidence-2.0/3.0) > 1e-9 {
		t.Errorf("confidence = %v, want 0.667", update.Confidence)
	}
	if len(update.EvolutionHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(update.EvolutionHistory))
	}
	last := update.EvolutionHistory[1]
	if math.Abs(last.Delta-(2.0/3.0-1.0)) > 1e-9 {
		t.Errorf("delta = %v, want -0.333", last.Delta)
	}

	// |Δ| > 0.3 spawned a pattern-evolution investigation.
	if got := f.queue.Status().Queued; got != 2 {
		t.Fatalf("queued = %d, want 2 after evolution spawn", got)
	}
	evolutions, err := f.invStore.ListByStatus(ctx, domain.InvestigationQueued, 0, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	var found bool
	for _, inv := range evolutions {
		if inv.TriggerType == domain.TriggerPatternEvolution {
			found = true
		}
	}
	if !found {
		t.Error("no pattern-evolution investigation recorded")
	}
}

func TestPatternWeakNoSpawn(t *testing.T) {
	f := newGraphFixture()
	p := &domain.Pattern{
		Description:       "speculative theory",
		SupportingDocs:    []string{"e1"},
		ContradictingDocs: []string{"e2"},
	}
	if err := f.svc.AddPattern(context.Background(), p); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	if p.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", p.Confidence)
	}
	if p.InvestigationSpawned {
		t.Error("weak pattern should not spawn")
	}
}

func TestPatternHistoryIsAppendOnly(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	p := &domain.Pattern{Description: "theory", SupportingDocs: []string{"a"}}
	if err := f.svc.AddPattern(ctx, p); err != nil {
		t.Fatalf("AddPattern: %v", err)
	}
	for i, doc := range []string{"b", "c", "d"} {
		update := &domain.Pattern{ID: p.ID, SupportingDocs: []string{doc}}
		if err := f.svc.AddPattern(ctx, update); err != nil {
			t.Fatalf("AddPattern update %d: %v", i, err)
		}
	}
	history, err := f.svc.PatternHistory(ctx, p.ID)
	if err != nil {
		t.Fatalf("PatternHistory: %v", err)
	}
	if len(history) != 4 {
		t.Errorf("history length = %d, want 4 (one per update)", len(history))
	}
}

func TestTimelineImpossibility(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	signer := uuid.New()
	date := time.Date(2019, 3, 12, 0, 0, 0, 0, time.UTC)

	first := &domain.TimelineEvent{
		Date:         date,
		EventType:    "signed",
		Description:  "agreement signed in London office",
		Participants: []uuid.UUID{signer},
	}
	if err := f.svc.AddTimelineEvent(ctx, first); err != nil {
		t.Fatalf("AddTimelineEvent: %v", err)
	}
	if first.ImpossibilityFlag {
		t.Fatal("single event should not be flagged")
	}

	second := &domain.TimelineEvent{
		Date:         date,
		EventType:    "executed",
		Description:  "same agreement executed in Geneva",
		Participants: []uuid.UUID{signer},
	}
	if err := f.svc.AddTimelineEvent(ctx, second); err != nil {
		t.Fatalf("AddTimelineEvent (conflict): %v", err)
	}
	if !second.ImpossibilityFlag {
		t.Error("conflicting event not flagged")
	}
	got, err := f.timeline.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.ImpossibilityFlag {
		t.Error("original event not flagged")
	}

	// A priority-9 investigation was spawned.
	queued, err := f.invStore.ListByStatus(ctx, domain.InvestigationQueued, 9, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("priority-9 queued = %d, want 1", len(queued))
	}
	if queued[0].TriggerType != domain.TriggerTimeline {
		t.Errorf("trigger = %s, want %s", queued[0].TriggerType, domain.TriggerTimeline)
	}
}

func TestTimelineDifferentClassesCoexist(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	p := uuid.New()
	date := time.Date(2019, 3, 12, 0, 0, 0, 0, time.UTC)

	signed := &domain.TimelineEvent{Date: date, EventType: "signed", Description: "signed", Participants: []uuid.UUID{p}}
	ended := &domain.TimelineEvent{Date: date, EventType: "terminated", Description: "ended", Participants: []uuid.UUID{p}}
	if err := f.svc.AddTimelineEvent(ctx, signed); err != nil {
		t.Fatalf("AddTimelineEvent: %v", err)
	}
	if err := f.svc.AddTimelineEvent(ctx, ended); err != nil {
		t.Fatalf("AddTimelineEvent: %v", err)
	}
	if ended.ImpossibilityFlag {
		t.Error("signing and termination on one day are not impossible")
	}
}

func TestEntityNetworkCycleSafe(t *testing.T) {
	f := newGraphFixture()
	ctx := context.Background()

	a := &domain.Entity{Name: "A Corp", EntityType: domain.EntityOrganization, Confidence: 1}
	b := &domain.Entity{Name: "B Ltd", EntityType: domain.EntityOrganization, Confidence: 1}
	c := &domain.Entity{Name: "C SA", EntityType: domain.EntityOrganization, Confidence: 1}
	for _, e := range []*domain.Entity{a, b, c} {
		if err := f.svc.AddEntity(ctx, e); err != nil {
			t.Fatalf("AddEntity: %v", err)
		}
	}
	edges := []*domain.Relationship{
		{SourceID: a.ID, TargetID: b.ID, RelationType: domain.RelationControls},
		{SourceID: b.ID, TargetID: c.ID, RelationType: domain.RelationControls},
		{SourceID: c.ID, TargetID: a.ID, RelationType: domain.RelationControls}, // cycle
	}
	for _, r := range edges {
		if err := f.svc.AddRelationship(ctx, r); err != nil {
			t.Fatalf("AddRelationship: %v", err)
		}
	}

	network, err := f.svc.EntityNetwork(ctx, a.ID, 5)
	if err != nil {
		t.Fatalf("EntityNetwork: %v", err)
	}
	if len(network.Entities) != 3 {
		t.Errorf("entities = %d, want 3", len(network.Entities))
	}
	if len(network.Edges) != 3 {
		t.Errorf("edges = %d, want 3", len(network.Edges))
	}
}
