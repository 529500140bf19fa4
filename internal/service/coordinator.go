package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/domain"
	"caselore/internal/tier"
)

// TierProvider constructs a tier manager on first use. Construction failing
// with a ConfigurationError means the capability is absent, not broken.
type TierProvider func() (domain.TierManager, error)

// tierWeights score how cheaply each tier answered. Free tiers carry the
// most weight; a vault read is the most expensive way to satisfy a query.
var tierWeights = map[domain.Tier]float64{
	domain.TierPinned: 3,
	domain.TierCache:  3,
	domain.TierGraph:  2,
	domain.TierVector: 1,
	domain.TierVault:  0.5,
}

// CoordinatorMetrics is the running cost/efficiency account.
type CoordinatorMetrics struct {
	TotalQueries    int            `json:"total_queries"`
	TierHits        map[string]int `json:"tier_hits"`
	TotalSavings    float64        `json:"total_savings"`
	EfficiencyScore float64        `json:"efficiency_score"`
}

// MemoryCoordinator fans a query out across the tier hierarchy and merges
// the partial answers under the token budget.
type MemoryCoordinator struct {
	providers map[domain.Tier]TierProvider
	cache     *tier.ResultCache
	policy    config.Policy
	logger    *zap.Logger

	mu           sync.Mutex
	tiers        map[domain.Tier]domain.TierManager
	disabled     map[domain.Tier]string
	totalQueries int
	tierHits     map[domain.Tier]int
	weightedHits float64
	totalSavings float64
}

func NewMemoryCoordinator(providers map[domain.Tier]TierProvider, cache *tier.ResultCache, policy config.Policy, logger *zap.Logger) *MemoryCoordinator {
	return &MemoryCoordinator{
		providers: providers,
		cache:     cache,
		policy:    policy,
		logger:    logger,
		tiers:     make(map[domain.Tier]domain.TierManager),
		disabled:  make(map[domain.Tier]string),
		tierHits:  make(map[domain.Tier]int),
	}
}

// tierManager lazily constructs a tier. A ConfigurationError permanently
// disables the tier for this process with a logged warning.
func (c *MemoryCoordinator) tierManager(t domain.Tier) domain.TierManager {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.tiers[t]; ok {
		return m
	}
	if _, off := c.disabled[t]; off {
		return nil
	}
	provider, ok := c.providers[t]
	if !ok {
		c.disabled[t] = "no provider registered"
		return nil
	}
	m, err := provider()
	if err != nil {
		c.disabled[t] = err.Error()
		if domain.IsConfigurationError(err) {
			c.logger.Warn("tier unavailable, continuing without it",
				zap.String("tier", t.String()), zap.Error(err))
		} else {
			c.logger.Error("tier construction failed",
				zap.String("tier", t.String()), zap.Error(err))
		}
		return nil
	}
	c.tiers[t] = m
	return m
}

// Retrieve queries the selected tiers and merges their results in fixed
// order under the token budget. A failing tier degrades to absent; the
// combined context never exceeds MaxTokens.
func (c *MemoryCoordinator) Retrieve(ctx context.Context, q domain.MemoryQuery) (*domain.RetrievalResult, error) {
	start := time.Now()
	if q.MaxTokens <= 0 {
		q.MaxTokens = c.policy.DefaultMaxTokens
	}

	requested := q.IncludeTiers
	if len(requested) == 0 {
		requested = domain.DefaultQueryTiers
	}
	vaultRequested := false
	for _, t := range requested {
		if t == domain.TierVault {
			vaultRequested = true
		}
	}

	results := make(map[domain.Tier]domain.TierResult)
	preVaultTokens := 0
	for _, t := range requested {
		if t == domain.TierVault {
			continue
		}
		if res := c.queryTier(ctx, t, q); res != nil && res.Content != "" {
			results[t] = *res
			preVaultTokens += res.TokenCost
		}
	}

	// The vault is expensive and audited; only go there when asked to or
	// when everything else came back thin.
	if vaultRequested || preVaultTokens < c.policy.MinContextTokens {
		if res := c.queryTier(ctx, domain.TierVault, q); res != nil && res.Content != "" {
			results[domain.TierVault] = *res
		}
	}

	result := c.merge(q, results)
	result.RetrievalTime = time.Since(start)

	c.recordQuery(results)

	// Persist the merged context for next time, unless it came straight out
	// of the cache or there was nothing to keep.
	if _, fromCache := results[domain.TierCache]; !fromCache && c.cache != nil && result.CombinedContext != "" {
		if err := c.cache.Put(ctx, q.Text, q.PriorityItems, []byte(result.CombinedContext)); err != nil {
			c.logger.Warn("cache store failed", zap.Error(err))
		}
	}
	return result, nil
}

func (c *MemoryCoordinator) queryTier(ctx context.Context, t domain.Tier, q domain.MemoryQuery) *domain.TierResult {
	m := c.tierManager(t)
	if m == nil {
		return nil
	}
	res, err := m.Query(ctx, q)
	if err != nil {
		c.logger.Warn("tier query failed, degrading to absent",
			zap.String("tier", t.String()), zap.Error(err))
		return nil
	}
	return res
}

// merge admits tier results in the fixed order until the budget runs out,
// truncating the final admitted payload to the remainder.
func (c *MemoryCoordinator) merge(q domain.MemoryQuery, results map[domain.Tier]domain.TierResult) *domain.RetrievalResult {
	out := &domain.RetrievalResult{
		Query:       q.Text,
		TierResults: results,
	}

	remaining := q.MaxTokens
	var combined string
	var savings float64
	for _, t := range domain.MergeOrder {
		res, ok := results[t]
		if !ok || res.Content == "" || remaining <= 0 {
			continue
		}
		content := res.Content
		cost := res.TokenCost
		if cost > remaining {
			content = domain.TruncateToTokens(content, remaining)
			cost = domain.EstimateTokens(content)
		}
		combined += content
		remaining -= cost
		out.TotalTokens += cost

		// Pinned and cached content costs nothing to serve; count it as
		// savings against the external price.
		if t == domain.TierPinned || t == domain.TierCache {
			savings += float64(cost) / 1_000_000 * c.policy.TokenPricePerMillion
		}
	}
	// Per-tier costs are floor-divided, so the concatenation can estimate a
	// few tokens over the budget; clamp the final payload.
	if domain.EstimateTokens(combined) > q.MaxTokens {
		combined = domain.TruncateToTokens(combined, q.MaxTokens)
	}
	out.TotalTokens = domain.EstimateTokens(combined)
	out.CombinedContext = combined
	out.CostEstimate = float64(out.TotalTokens) / 1_000_000 * c.policy.TokenPricePerMillion

	c.mu.Lock()
	c.totalSavings += savings
	c.mu.Unlock()
	return out
}

func (c *MemoryCoordinator) recordQuery(results map[domain.Tier]domain.TierResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalQueries++
	for t := range results {
		c.tierHits[t]++
		c.weightedHits += tierWeights[t]
	}
}

// Ingest routes an item to the tiers its metadata selects: high importance
// pins it, everything lands in the semantic index and the vault.
func (c *MemoryCoordinator) Ingest(ctx context.Context, item domain.IngestItem) error {
	if item.DocID == "" {
		return fmt.Errorf("doc id is required")
	}

	if item.Metadata.Importance >= c.policy.PinnedImportanceThreshold {
		if m := c.tierManager(domain.TierPinned); m != nil {
			if err := m.Add(ctx, item); err != nil {
				return fmt.Errorf("pin %s: %w", item.DocID, err)
			}
		}
	}

	if m := c.tierManager(domain.TierVector); m != nil {
		if err := m.Add(ctx, item); err != nil {
			return fmt.Errorf("index %s: %w", item.DocID, err)
		}
	}

	if m := c.tierManager(domain.TierVault); m != nil {
		if err := m.Add(ctx, item); err != nil {
			return fmt.Errorf("archive %s: %w", item.DocID, err)
		}
	}
	return nil
}

// Metrics returns the cost/efficiency account since process start.
func (c *MemoryCoordinator) Metrics() CoordinatorMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := make(map[string]int, len(c.tierHits))
	for t, n := range c.tierHits {
		hits[t.String()] = n
	}
	score := 0.0
	if c.totalQueries > 0 {
		score = c.weightedHits / float64(c.totalQueries)
	}
	return CoordinatorMetrics{
		TotalQueries:    c.totalQueries,
		TierHits:        hits,
		TotalSavings:    c.totalSavings,
		EfficiencyScore: score,
	}
}

// TierStatuses reports each constructed tier's health; disabled tiers are
// reported unavailable with their reason.
func (c *MemoryCoordinator) TierStatuses(ctx context.Context) []domain.TierStatus {
	var statuses []domain.TierStatus
	for _, t := range domain.MergeOrder {
		m := c.tierManager(t)
		if m == nil {
			c.mu.Lock()
			reason := c.disabled[t]
			c.mu.Unlock()
			statuses = append(statuses, domain.TierStatus{
				Tier:      t,
				Available: false,
				Detail:    map[string]any{"reason": reason},
			})
			continue
		}
		statuses = append(statuses, m.Status(ctx))
	}
	return statuses
}
