package service

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/domain"
)

// depthSafetyCap bounds the parent-chain walk regardless of the configured
// business depth. A corrupted parent link must terminate, not hang.
const depthSafetyCap = 64

var (
	ErrMaxDepth     = errors.New("investigation exceeds max depth")
	ErrNotActive    = errors.New("investigation is not active")
	ErrUnknownInvID = errors.New("unknown investigation id")
)

// heapItem orders the queue by priority descending, then by spawn sequence
// ascending so equal priorities pop in arrival order.
type heapItem struct {
	id       uuid.UUID
	priority int
	seq      uint64
}

type invHeap []heapItem

func (h invHeap) Len() int { return len(h) }
func (h invHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h invHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *invHeap) Push(x any) { *h = append(*h, x.(heapItem)) }
func (h *invHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// InvestigationQueue schedules follow-up work for external executors. The
// in-memory heap is the scheduling authority; every state change is mirrored
// to the investigation store so a restart can rebuild the queue.
type InvestigationQueue struct {
	store  domain.InvestigationStore
	policy config.Policy
	logger *zap.Logger

	mu    sync.Mutex
	seq   uint64
	heap  invHeap
	arena map[uuid.UUID]*domain.Investigation
}

func NewInvestigationQueue(store domain.InvestigationStore, policy config.Policy, logger *zap.Logger) *InvestigationQueue {
	return &InvestigationQueue{
		store:  store,
		policy: policy,
		logger: logger,
		arena:  make(map[uuid.UUID]*domain.Investigation),
	}
}

// Restore rebuilds the heap from queued and active rows after a restart.
// Actives come back as-is; the lease sweeper decides whether to requeue them.
func (q *InvestigationQueue) Restore(ctx context.Context) error {
	queued, err := q.store.ListByStatus(ctx, domain.InvestigationQueued, 0, 0)
	if err != nil {
		return fmt.Errorf("restore queued: %w", err)
	}
	active, err := q.store.ListByStatus(ctx, domain.InvestigationActive, 0, 0)
	if err != nil {
		return fmt.Errorf("restore active: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range queued {
		inv := queued[i]
		q.arena[inv.ID] = &inv
		q.seq++
		heap.Push(&q.heap, heapItem{id: inv.ID, priority: inv.Priority, seq: q.seq})
	}
	for i := range active {
		inv := active[i]
		q.arena[inv.ID] = &inv
	}
	q.logger.Info("investigation queue restored",
		zap.Int("queued", len(queued)), zap.Int("active", len(active)))
	return nil
}

// Spawn admits a new investigation. Children deeper than the configured
// maximum are rejected with ErrMaxDepth; scheduling depth never exceeds it.
func (q *InvestigationQueue) Spawn(ctx context.Context, inv *domain.Investigation) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.Priority = domain.ClampPriority(inv.Priority)
	inv.Status = domain.InvestigationQueued

	q.mu.Lock()
	if inv.SpawnedFrom != nil {
		inv.Depth = q.depthLocked(*inv.SpawnedFrom) + 1
		if inv.Depth > q.policy.MaxInvestigationDepth {
			q.mu.Unlock()
			return fmt.Errorf("%w: depth %d > %d", ErrMaxDepth, inv.Depth, q.policy.MaxInvestigationDepth)
		}
	} else {
		inv.Depth = 0
	}
	inv.CreatedAt = time.Now().UTC()
	q.arena[inv.ID] = inv
	q.seq++
	heap.Push(&q.heap, heapItem{id: inv.ID, priority: inv.Priority, seq: q.seq})
	q.mu.Unlock()

	if err := q.store.Save(ctx, inv); err != nil {
		return fmt.Errorf("persist investigation: %w", err)
	}
	q.logger.Info("investigation spawned",
		zap.String("id", inv.ID.String()),
		zap.String("topic", inv.Topic),
		zap.String("trigger", string(inv.TriggerType)),
		zap.Int("priority", inv.Priority),
		zap.Int("depth", inv.Depth))
	return nil
}

// Pop hands the highest-priority queued investigation to an executor and
// starts its lease. Returns nil when the queue is empty.
func (q *InvestigationQueue) Pop(ctx context.Context) (*domain.Investigation, error) {
	q.mu.Lock()
	var inv *domain.Investigation
	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(heapItem)
		candidate, ok := q.arena[item.id]
		// Stale heap rows can refer to requeued or completed records; skip
		// anything no longer queued at this priority.
		if !ok || candidate.Status != domain.InvestigationQueued {
			continue
		}
		inv = candidate
		break
	}
	if inv == nil {
		q.mu.Unlock()
		return nil, nil
	}
	now := time.Now().UTC()
	inv.Status = domain.InvestigationActive
	inv.AcquiredAt = &now
	q.mu.Unlock()

	if err := q.store.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("persist pop: %w", err)
	}
	return inv, nil
}

// Complete records an executor's findings and spawns any requested children.
// Children that would exceed the depth bound are skipped with a warning, not
// an error: the parent's completion stands.
func (q *InvestigationQueue) Complete(ctx context.Context, id uuid.UUID, findings *domain.Findings) error {
	q.mu.Lock()
	inv, ok := q.arena[id]
	if !ok {
		q.mu.Unlock()
		return ErrUnknownInvID
	}
	if inv.Status != domain.InvestigationActive {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotActive, id, inv.Status)
	}
	now := time.Now().UTC()
	inv.Status = domain.InvestigationComplete
	inv.CompletedAt = &now
	inv.Findings = findings
	q.mu.Unlock()

	if err := q.store.Save(ctx, inv); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	if findings != nil && findings.SpawnChildren {
		for _, spec := range findings.Children {
			child := &domain.Investigation{
				Topic:       spec.Topic,
				TriggerType: domain.TriggerChild,
				TriggerData: map[string]any{"reason": spec.Reason},
				Priority:    spec.Priority,
				SpawnedFrom: &id,
			}
			if err := q.Spawn(ctx, child); err != nil {
				if errors.Is(err, ErrMaxDepth) {
					q.logger.Warn("child investigation rejected",
						zap.String("parent", id.String()),
						zap.String("topic", spec.Topic),
						zap.Error(err))
					continue
				}
				return err
			}
		}
	}
	return nil
}

// Depth reports how many ancestors an investigation has.
func (q *InvestigationQueue) Depth(id uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depthLocked(id)
}

// depthLocked walks the parent chain through a visited set. The walk stops
// at the safety cap or on a cycle; when the chain leaves the arena the
// stored depth of the last known record stands in for the missing ancestors.
func (q *InvestigationQueue) depthLocked(id uuid.UUID) int {
	visited := make(map[uuid.UUID]bool)
	depth := 0
	current := id
	for depth < depthSafetyCap {
		if visited[current] {
			q.logger.Warn("cycle in investigation parent chain",
				zap.String("id", current.String()))
			break
		}
		visited[current] = true
		inv, ok := q.arena[current]
		if !ok {
			break
		}
		if inv.SpawnedFrom == nil {
			return depth
		}
		if parent, ok := q.arena[*inv.SpawnedFrom]; ok {
			depth++
			current = parent.ID
			continue
		}
		// Parent fell out of the arena (e.g. only this record was restored);
		// trust the depth recorded at spawn time.
		return inv.Depth
	}
	return depth
}

// FindChildren returns direct children across active and completed records.
func (q *InvestigationQueue) FindChildren(id uuid.UUID) []domain.Investigation {
	q.mu.Lock()
	defer q.mu.Unlock()
	var children []domain.Investigation
	for _, inv := range q.arena {
		if inv.SpawnedFrom != nil && *inv.SpawnedFrom == id {
			children = append(children, *inv)
		}
	}
	return children
}

// Get returns a copy of a record by id.
func (q *InvestigationQueue) Get(id uuid.UUID) (*domain.Investigation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	inv, ok := q.arena[id]
	if !ok {
		return nil, false
	}
	cp := *inv
	return &cp, true
}

// SweepExpiredLeases requeues actives held longer than the timeout and
// returns how many were reclaimed.
func (q *InvestigationQueue) SweepExpiredLeases(ctx context.Context, timeout time.Duration) int {
	now := time.Now().UTC()

	q.mu.Lock()
	var expired []*domain.Investigation
	for _, inv := range q.arena {
		if inv.Status == domain.InvestigationActive && inv.AcquiredAt != nil &&
			now.Sub(*inv.AcquiredAt) > timeout {
			inv.Status = domain.InvestigationQueued
			inv.AcquiredAt = nil
			q.seq++
			heap.Push(&q.heap, heapItem{id: inv.ID, priority: inv.Priority, seq: q.seq})
			expired = append(expired, inv)
		}
	}
	q.mu.Unlock()

	for _, inv := range expired {
		q.logger.Warn("investigation lease expired, requeued",
			zap.String("id", inv.ID.String()),
			zap.String("topic", inv.Topic))
		if err := q.store.Save(ctx, inv); err != nil {
			q.logger.Error("persist requeue failed",
				zap.String("id", inv.ID.String()), zap.Error(err))
		}
	}
	return len(expired)
}

// Status summarises queue occupancy.
func (q *InvestigationQueue) Status() domain.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s domain.QueueStatus
	for _, inv := range q.arena {
		switch inv.Status {
		case domain.InvestigationQueued:
			s.Queued++
		case domain.InvestigationActive:
			s.Active++
		case domain.InvestigationComplete:
			s.Completed++
		}
	}
	return s
}
