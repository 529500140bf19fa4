package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"caselore/internal/domain"
	"caselore/internal/store"
)

type mockEntityStore struct {
	entities map[uuid.UUID]*domain.Entity
}

func newMockEntityStore() *mockEntityStore {
	return &mockEntityStore{entities: make(map[uuid.UUID]*domain.Entity)}
}

func (m *mockEntityStore) Upsert(_ context.Context, e *domain.Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	if existing, ok := m.findByNameType(e.Name, e.EntityType); ok {
		if e.Confidence > existing.Confidence {
			existing.Confidence = e.Confidence
		}
		if e.SuspicionScore > existing.SuspicionScore {
			existing.SuspicionScore = e.SuspicionScore
		}
		existing.MentionCount++
		existing.UpdatedAt = now
		*e = *existing
		return nil
	}
	if e.MentionCount == 0 {
		e.MentionCount = 1
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *mockEntityStore) findByNameType(name string, et domain.EntityType) (*domain.Entity, bool) {
	for _, e := range m.entities {
		if strings.EqualFold(e.Name, name) && e.EntityType == et {
			return e, true
		}
	}
	return nil, false
}

func (m *mockEntityStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Entity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockEntityStore) FindByName(_ context.Context, name string) (*domain.Entity, error) {
	for _, e := range m.entities {
		if strings.EqualFold(e.Name, name) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockEntityStore) SearchByTopic(_ context.Context, topic string, _ int) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range m.entities {
		if strings.Contains(strings.ToLower(e.Name), strings.ToLower(topic)) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEntityStore) ListMostSuspicious(_ context.Context, limit int) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range m.entities {
		if e.SuspicionScore > 0 {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockEntityStore) Count(_ context.Context) (int, error) { return len(m.entities), nil }

type mockRelationshipStore struct {
	rels map[uuid.UUID]*domain.Relationship
}

func newMockRelationshipStore() *mockRelationshipStore {
	return &mockRelationshipStore{rels: make(map[uuid.UUID]*domain.Relationship)}
}

func (m *mockRelationshipStore) Upsert(_ context.Context, r *domain.Relationship) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.rels[r.ID] = &cp
	return nil
}

func (m *mockRelationshipStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Relationship, error) {
	r, ok := m.rels[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRelationshipStore) GetByEntity(_ context.Context, entityID uuid.UUID) ([]domain.Relationship, error) {
	var out []domain.Relationship
	for _, r := range m.rels {
		if r.SourceID == entityID || r.TargetID == entityID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRelationshipStore) Count(_ context.Context) (int, error) { return len(m.rels), nil }

type mockContradictionStore struct {
	items map[uuid.UUID]*domain.Contradiction
}

func newMockContradictionStore() *mockContradictionStore {
	return &mockContradictionStore{items: make(map[uuid.UUID]*domain.Contradiction)}
}

func (m *mockContradictionStore) Upsert(_ context.Context, c *domain.Contradiction) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if existing, ok := m.items[c.ID]; ok {
		c.InvestigationSpawned = c.InvestigationSpawned || existing.InvestigationSpawned
	}
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockContradictionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Contradiction, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockContradictionStore) ListBySeverity(_ context.Context, minSeverity, _ int) ([]domain.Contradiction, error) {
	var out []domain.Contradiction
	for _, c := range m.items {
		if c.Severity >= minSeverity {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockContradictionStore) SearchBySubject(_ context.Context, subject string, _ int) ([]domain.Contradiction, error) {
	var out []domain.Contradiction
	needle := strings.ToLower(subject)
	for _, c := range m.items {
		if strings.Contains(strings.ToLower(c.StatementA), needle) ||
			strings.Contains(strings.ToLower(c.StatementB), needle) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockContradictionStore) MarkResolved(_ context.Context, id uuid.UUID) error {
	c, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Resolved = true
	return nil
}

func (m *mockContradictionStore) Count(_ context.Context) (int, error) { return len(m.items), nil }

type mockPatternStore struct {
	items map[uuid.UUID]*domain.Pattern
}

func newMockPatternStore() *mockPatternStore {
	return &mockPatternStore{items: make(map[uuid.UUID]*domain.Pattern)}
}

func (m *mockPatternStore) Upsert(_ context.Context, p *domain.Pattern) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatternStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Pattern, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatternStore) ListByConfidence(_ context.Context, min float64, _ int) ([]domain.Pattern, error) {
	var out []domain.Pattern
	for _, p := range m.items {
		if p.Confidence >= min {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPatternStore) Count(_ context.Context) (int, error) { return len(m.items), nil }

type mockTimelineStore struct {
	events map[uuid.UUID]*domain.TimelineEvent
}

func newMockTimelineStore() *mockTimelineStore {
	return &mockTimelineStore{events: make(map[uuid.UUID]*domain.TimelineEvent)}
}

func (m *mockTimelineStore) Upsert(_ context.Context, e *domain.TimelineEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *mockTimelineStore) GetByID(_ context.Context, id uuid.UUID) (*domain.TimelineEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockTimelineStore) ListByDateRange(_ context.Context, from, to time.Time, _ int) ([]domain.TimelineEvent, error) {
	var out []domain.TimelineEvent
	for _, e := range m.events {
		if !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockTimelineStore) ListByEntityAndDate(_ context.Context, entityID uuid.UUID, date time.Time) ([]domain.TimelineEvent, error) {
	var out []domain.TimelineEvent
	for _, e := range m.events {
		if !sameDay(e.Date, date) {
			continue
		}
		for _, p := range e.Participants {
			if p == entityID {
				out = append(out, *e)
				break
			}
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

func (m *mockTimelineStore) SetImpossibility(_ context.Context, id uuid.UUID) error {
	e, ok := m.events[id]
	if !ok {
		return store.ErrNotFound
	}
	e.ImpossibilityFlag = true
	return nil
}

func (m *mockTimelineStore) Count(_ context.Context) (int, error) { return len(m.events), nil }

type mockInvestigationStore struct {
	items map[uuid.UUID]*domain.Investigation
	saves int
}

func newMockInvestigationStore() *mockInvestigationStore {
	return &mockInvestigationStore{items: make(map[uuid.UUID]*domain.Investigation)}
}

func (m *mockInvestigationStore) Save(_ context.Context, inv *domain.Investigation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	m.saves++
	cp := *inv
	m.items[inv.ID] = &cp
	return nil
}

func (m *mockInvestigationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Investigation, error) {
	inv, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *mockInvestigationStore) ListByStatus(_ context.Context, status domain.InvestigationStatus, minPriority, _ int) ([]domain.Investigation, error) {
	var out []domain.Investigation
	for _, inv := range m.items {
		if inv.Status == status && inv.Priority >= minPriority {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *mockInvestigationStore) ListChildren(_ context.Context, parentID uuid.UUID) ([]domain.Investigation, error) {
	var out []domain.Investigation
	for _, inv := range m.items {
		if inv.SpawnedFrom != nil && *inv.SpawnedFrom == parentID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *mockInvestigationStore) Count(_ context.Context) (int, error) { return len(m.items), nil }

type mockDiscoveryStore struct {
	items []domain.Discovery
}

func newMockDiscoveryStore() *mockDiscoveryStore {
	return &mockDiscoveryStore{}
}

func (m *mockDiscoveryStore) Append(_ context.Context, d *domain.Discovery) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.RecordedAt = time.Now()
	m.items = append(m.items, *d)
	return nil
}

func (m *mockDiscoveryStore) ListByImportance(_ context.Context, min domain.Importance, _ int) ([]domain.Discovery, error) {
	var out []domain.Discovery
	for _, d := range m.items {
		if d.Importance >= min {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDiscoveryStore) Count(_ context.Context) (int, error) { return len(m.items), nil }

type mockVersionRecorder struct {
	records []string
}

func (m *mockVersionRecorder) Record(_ context.Context, kind string, _ uuid.UUID, _ map[string]any) error {
	m.records = append(m.records, kind)
	return nil
}
