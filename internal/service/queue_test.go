package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/domain"
)

func newTestQueue() (*InvestigationQueue, *mockInvestigationStore) {
	store := newMockInvestigationStore()
	return NewInvestigationQueue(store, config.DefaultPolicy(), zap.NewNop()), store
}

func spawn(t *testing.T, q *InvestigationQueue, topic string, priority int, parent *uuid.UUID) *domain.Investigation {
	t.Helper()
	inv := &domain.Investigation{
		Topic:       topic,
		TriggerType: domain.TriggerManual,
		Priority:    priority,
		SpawnedFrom: parent,
	}
	if err := q.Spawn(context.Background(), inv); err != nil {
		t.Fatalf("Spawn %s: %v", topic, err)
	}
	return inv
}

func TestQueuePopOrder(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	spawn(t, q, "low", 3, nil)
	spawn(t, q, "high", 9, nil)
	first := spawn(t, q, "mid-a", 5, nil)
	spawn(t, q, "mid-b", 5, nil)

	got, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got.Topic != "high" {
		t.Errorf("first pop = %q, want high", got.Topic)
	}

	got, err = q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("equal priorities must pop in spawn order: got %q", got.Topic)
	}
	if got.Status != domain.InvestigationActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if got.AcquiredAt == nil {
		t.Error("pop must start the lease")
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q, _ := newTestQueue()
	got, err := q.Pop(context.Background())
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil from empty queue, got %v", got)
	}
}

func TestQueueCompleteSpawnsChildren(t *testing.T) {
	q, store := newTestQueue()
	ctx := context.Background()

	parent := spawn(t, q, "root", 8, nil)
	popped, err := q.Pop(ctx)
	if err != nil || popped == nil {
		t.Fatalf("Pop: %v", err)
	}

	err = q.Complete(ctx, parent.ID, &domain.Findings{
		Confidence:    0.9,
		Conclusion:    "needs two follow-ups",
		SpawnChildren: true,
		Children: []domain.ChildSpec{
			{Topic: "child-a", Priority: 7},
			{Topic: "child-b", Priority: 6},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	children := q.FindChildren(parent.ID)
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	for _, c := range children {
		if c.Depth != 1 {
			t.Errorf("child depth = %d, want 1", c.Depth)
		}
	}

	saved, err := store.GetByID(ctx, parent.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if saved.Status != domain.InvestigationComplete || saved.Findings == nil {
		t.Error("completion not persisted")
	}
}

func TestQueueCompleteRequiresActive(t *testing.T) {
	q, _ := newTestQueue()
	inv := spawn(t, q, "still queued", 5, nil)

	err := q.Complete(context.Background(), inv.ID, nil)
	if !errors.Is(err, ErrNotActive) {
		t.Errorf("err = %v, want ErrNotActive", err)
	}
	if err := q.Complete(context.Background(), uuid.New(), nil); !errors.Is(err, ErrUnknownInvID) {
		t.Errorf("err = %v, want ErrUnknownInvID", err)
	}
}

func TestQueueDepthChain(t *testing.T) {
	q, _ := newTestQueue()

	root := spawn(t, q, "depth-0", 5, nil)
	child := spawn(t, q, "depth-1", 5, &root.ID)
	grandchild := spawn(t, q, "depth-2", 5, &child.ID)

	if d := q.Depth(root.ID); d != 0 {
		t.Errorf("root depth = %d, want 0", d)
	}
	if d := q.Depth(grandchild.ID); d != 2 {
		t.Errorf("leaf depth = %d, want 2", d)
	}
}

func TestQueueMaxDepthRejected(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	// Default business max depth is 3: depths 0..3 are fine, 4 is not.
	parent := spawn(t, q, "d0", 5, nil)
	for i := 1; i <= 3; i++ {
		parent = spawn(t, q, "deeper", 5, &parent.ID)
	}

	tooDeep := &domain.Investigation{
		Topic:       "too deep",
		TriggerType: domain.TriggerChild,
		Priority:    5,
		SpawnedFrom: &parent.ID,
	}
	if err := q.Spawn(ctx, tooDeep); !errors.Is(err, ErrMaxDepth) {
		t.Errorf("err = %v, want ErrMaxDepth", err)
	}
}

func TestQueueDepthCycleTerminates(t *testing.T) {
	q, _ := newTestQueue()

	a := spawn(t, q, "a", 5, nil)
	b := spawn(t, q, "b", 5, &a.ID)

	// Corrupt the parent link into a cycle behind the queue's back.
	q.mu.Lock()
	q.arena[a.ID].SpawnedFrom = &b.ID
	q.mu.Unlock()

	done := make(chan int, 1)
	go func() { done <- q.Depth(b.ID) }()
	select {
	case d := <-done:
		if d > depthSafetyCap {
			t.Errorf("depth = %d exceeds safety cap", d)
		}
	case <-time.After(time.Second):
		t.Fatal("Depth did not terminate on a cyclic chain")
	}
}

func TestQueueSweepExpiredLeases(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	inv := spawn(t, q, "slow", 5, nil)
	if _, err := q.Pop(ctx); err != nil {
		t.Fatalf("Pop: %v", err)
	}

	// Fresh lease: nothing to reclaim.
	if n := q.SweepExpiredLeases(ctx, 30*time.Minute); n != 0 {
		t.Fatalf("swept %d, want 0", n)
	}

	// Age the lease past the timeout.
	q.mu.Lock()
	old := time.Now().Add(-time.Hour)
	q.arena[inv.ID].AcquiredAt = &old
	q.mu.Unlock()

	if n := q.SweepExpiredLeases(ctx, 30*time.Minute); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}

	// The investigation is poppable again.
	again, err := q.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if again == nil || again.ID != inv.ID {
		t.Error("requeued investigation not poppable")
	}
}

func TestQueueRestore(t *testing.T) {
	store := newMockInvestigationStore()
	logger := zap.NewNop()
	policy := config.DefaultPolicy()

	first := NewInvestigationQueue(store, policy, logger)
	ctx := context.Background()
	inv := &domain.Investigation{Topic: "survives restart", TriggerType: domain.TriggerManual, Priority: 7}
	if err := first.Spawn(ctx, inv); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	second := NewInvestigationQueue(store, policy, logger)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := second.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if got == nil || got.ID != inv.ID {
		t.Error("restored queue did not serve the persisted investigation")
	}
}

func TestQueueStatusCounts(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	spawn(t, q, "one", 5, nil)
	two := spawn(t, q, "two", 6, nil)
	if _, err := q.Pop(ctx); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if err := q.Complete(ctx, two.ID, &domain.Findings{Conclusion: "done"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	s := q.Status()
	if s.Queued != 1 || s.Active != 0 || s.Completed != 1 {
		t.Errorf("status = %+v, want 1 queued / 0 active / 1 completed", s)
	}
}
