package service

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/domain"
)

// fakeTier is a scripted TierManager.
type fakeTier struct {
	tier     domain.Tier
	content  string
	queries  int
	added    []domain.IngestItem
	queryErr error
}

func (f *fakeTier) Add(_ context.Context, item domain.IngestItem) error {
	f.added = append(f.added, item)
	return nil
}

func (f *fakeTier) Query(_ context.Context, _ domain.MemoryQuery) (*domain.TierResult, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &domain.TierResult{
		Tier:      f.tier,
		Content:   f.content,
		Relevance: 1.0,
		TokenCost: domain.EstimateTokens(f.content),
	}, nil
}

func (f *fakeTier) Status(_ context.Context) domain.TierStatus {
	return domain.TierStatus{Tier: f.tier, Available: true}
}

func provider(m domain.TierManager) TierProvider {
	return func() (domain.TierManager, error) { return m, nil }
}

func newTestCoordinator(providers map[domain.Tier]TierProvider) *MemoryCoordinator {
	return NewMemoryCoordinator(providers, nil, config.DefaultPolicy(), zap.NewNop())
}

func TestRetrieveRespectsTokenBudget(t *testing.T) {
	pinned := &fakeTier{tier: domain.TierPinned, content: strings.Repeat("p", 4000)}
	graph := &fakeTier{tier: domain.TierGraph, content: strings.Repeat("g", 4000)}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
		domain.TierGraph:  provider(graph),
	})

	res, err := c.Retrieve(context.Background(), domain.MemoryQuery{
		Text:         "budget check",
		MaxTokens:    1500,
		IncludeTiers: []domain.Tier{domain.TierPinned, domain.TierGraph},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.TotalTokens > 1500 {
		t.Errorf("total tokens = %d, exceeds budget 1500", res.TotalTokens)
	}
	if got := domain.EstimateTokens(res.CombinedContext); got > 1500 {
		t.Errorf("combined context estimates %d tokens, exceeds budget", got)
	}
	// Pinned merges before graph; the truncation must fall on graph.
	if !strings.HasPrefix(res.CombinedContext, "p") {
		t.Error("pinned content should lead the combined context")
	}
	if !strings.Contains(res.CombinedContext, "g") {
		t.Error("remaining budget should admit truncated graph content")
	}
}

func TestRetrieveClampsMergedEstimate(t *testing.T) {
	// Each 3-char payload floor-divides to zero tokens, but concatenated
	// they exceed a 1-token budget without the final clamp.
	pinned := &fakeTier{tier: domain.TierPinned, content: "ppp"}
	graph := &fakeTier{tier: domain.TierGraph, content: "ggg"}
	vector := &fakeTier{tier: domain.TierVector, content: "vvv"}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
		domain.TierGraph:  provider(graph),
		domain.TierVector: provider(vector),
	})

	res, err := c.Retrieve(context.Background(), domain.MemoryQuery{
		Text:         "clamp check",
		MaxTokens:    1,
		IncludeTiers: []domain.Tier{domain.TierPinned, domain.TierGraph, domain.TierVector},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got := domain.EstimateTokens(res.CombinedContext); got > 1 {
		t.Errorf("combined context estimates %d tokens, exceeds budget 1", got)
	}
	if res.TotalTokens > 1 {
		t.Errorf("total tokens = %d, exceeds budget 1", res.TotalTokens)
	}
}

func TestRetrieveMergeOrder(t *testing.T) {
	pinned := &fakeTier{tier: domain.TierPinned, content: "PINNED."}
	vector := &fakeTier{tier: domain.TierVector, content: "VECTOR."}
	graph := &fakeTier{tier: domain.TierGraph, content: "GRAPH."}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
		domain.TierVector: provider(vector),
		domain.TierGraph:  provider(graph),
	})

	res, err := c.Retrieve(context.Background(), domain.MemoryQuery{Text: "q", MaxTokens: 1000})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	pi := strings.Index(res.CombinedContext, "PINNED.")
	gi := strings.Index(res.CombinedContext, "GRAPH.")
	vi := strings.Index(res.CombinedContext, "VECTOR.")
	if pi < 0 || gi < 0 || vi < 0 {
		t.Fatalf("missing tier content in %q", res.CombinedContext)
	}
	if !(pi < gi && gi < vi) {
		t.Errorf("merge order wrong: pinned@%d graph@%d vector@%d", pi, gi, vi)
	}
}

func TestRetrieveFailingTierDegrades(t *testing.T) {
	pinned := &fakeTier{tier: domain.TierPinned, content: "PINNED"}
	broken := &fakeTier{tier: domain.TierGraph, queryErr: context.DeadlineExceeded}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
		domain.TierGraph:  provider(broken),
	})

	res, err := c.Retrieve(context.Background(), domain.MemoryQuery{
		Text:         "q",
		IncludeTiers: []domain.Tier{domain.TierPinned, domain.TierGraph},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.Contains(res.CombinedContext, "PINNED") {
		t.Error("healthy tier should still serve")
	}
	if _, ok := res.TierResults[domain.TierGraph]; ok {
		t.Error("failed tier should be absent from results")
	}
}

func TestRetrieveConfigurationErrorDisablesTier(t *testing.T) {
	calls := 0
	failing := func() (domain.TierManager, error) {
		calls++
		return nil, &domain.ConfigurationError{Tier: domain.TierVector, Reason: "no provider"}
	}
	pinned := &fakeTier{tier: domain.TierPinned, content: "PINNED"}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
		domain.TierVector: failing,
	})

	for i := 0; i < 3; i++ {
		if _, err := c.Retrieve(context.Background(), domain.MemoryQuery{Text: "q"}); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1 (disabled after first failure)", calls)
	}
}

func TestVaultQueriedOnlyWhenNeeded(t *testing.T) {
	// 48k characters ≈ 12k tokens, above the 10k minimum: vault stays cold.
	rich := &fakeTier{tier: domain.TierGraph, content: strings.Repeat("x", 48_000)}
	vault := &fakeTier{tier: domain.TierVault, content: "VAULT"}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierGraph: provider(rich),
		domain.TierVault: provider(vault),
	})

	if _, err := c.Retrieve(context.Background(), domain.MemoryQuery{Text: "q", MaxTokens: 100_000}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if vault.queries != 0 {
		t.Errorf("vault queried %d times with rich context, want 0", vault.queries)
	}

	// Thin context falls below the minimum: the vault is consulted.
	rich.content = "thin"
	if _, err := c.Retrieve(context.Background(), domain.MemoryQuery{Text: "q"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if vault.queries != 1 {
		t.Errorf("vault queried %d times with thin context, want 1", vault.queries)
	}

	// Explicit inclusion always reaches the vault.
	rich.content = strings.Repeat("x", 48_000)
	_, err := c.Retrieve(context.Background(), domain.MemoryQuery{
		Text:         "q",
		MaxTokens:    100_000,
		IncludeTiers: []domain.Tier{domain.TierGraph, domain.TierVault},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if vault.queries != 2 {
		t.Errorf("vault queried %d times after explicit include, want 2", vault.queries)
	}
}

func TestMetricsAccumulate(t *testing.T) {
	pinned := &fakeTier{tier: domain.TierPinned, content: strings.Repeat("p", 400)}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
	})

	for i := 0; i < 4; i++ {
		if _, err := c.Retrieve(context.Background(), domain.MemoryQuery{Text: "q"}); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
	}

	m := c.Metrics()
	if m.TotalQueries != 4 {
		t.Errorf("total queries = %d, want 4", m.TotalQueries)
	}
	if m.TierHits["pinned"] != 4 {
		t.Errorf("pinned hits = %d, want 4", m.TierHits["pinned"])
	}
	if m.TotalSavings <= 0 {
		t.Error("pinned tokens should count as savings")
	}
	if m.EfficiencyScore <= 0 {
		t.Error("efficiency score should be positive")
	}
}

func TestIngestRouting(t *testing.T) {
	pinned := &fakeTier{tier: domain.TierPinned}
	vector := &fakeTier{tier: domain.TierVector}
	vault := &fakeTier{tier: domain.TierVault}
	c := newTestCoordinator(map[domain.Tier]TierProvider{
		domain.TierPinned: provider(pinned),
		domain.TierVector: provider(vector),
		domain.TierVault:  provider(vault),
	})
	ctx := context.Background()

	critical := domain.IngestItem{
		DocID:    "doc-critical",
		Content:  []byte("smoking gun"),
		Metadata: domain.ItemMetadata{Importance: 9},
	}
	if err := c.Ingest(ctx, critical); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(pinned.added) != 1 || len(vector.added) != 1 || len(vault.added) != 1 {
		t.Errorf("critical item routing: pinned=%d vector=%d vault=%d, want 1/1/1",
			len(pinned.added), len(vector.added), len(vault.added))
	}

	routine := domain.IngestItem{
		DocID:    "doc-routine",
		Content:  []byte("routine correspondence"),
		Metadata: domain.ItemMetadata{Importance: 4},
	}
	if err := c.Ingest(ctx, routine); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(pinned.added) != 1 {
		t.Errorf("routine item must not be pinned, pinned adds = %d", len(pinned.added))
	}
	if len(vector.added) != 2 || len(vault.added) != 2 {
		t.Errorf("routine item routing: vector=%d vault=%d, want 2/2", len(vector.added), len(vault.added))
	}

	if err := c.Ingest(ctx, domain.IngestItem{}); err == nil {
		t.Error("ingest without doc id should fail")
	}
}
