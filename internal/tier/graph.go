package tier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"caselore/internal/domain"
)

// GraphTier exposes the knowledge graph as a retrieval tier: a structured
// summary of entities, contradictions and timeline events matching the query
// topic. Graph rows are written by analysis callbacks, not by ingestion, so
// Add is a no-op here.
type GraphTier struct {
	entities       domain.EntityStore
	contradictions domain.ContradictionStore
	timeline       domain.TimelineStore
	logger         *zap.Logger
}

func NewGraphTier(entities domain.EntityStore, contradictions domain.ContradictionStore, timeline domain.TimelineStore, logger *zap.Logger) *GraphTier {
	return &GraphTier{
		entities:       entities,
		contradictions: contradictions,
		timeline:       timeline,
		logger:         logger,
	}
}

func (g *GraphTier) Add(_ context.Context, _ domain.IngestItem) error {
	return nil
}

func (g *GraphTier) Query(ctx context.Context, q domain.MemoryQuery) (*domain.TierResult, error) {
	var b strings.Builder
	var docs []string

	entities, err := g.entities.SearchByTopic(ctx, q.Text, 10)
	if err != nil {
		return nil, fmt.Errorf("graph entity search: %w", err)
	}
	for _, e := range entities {
		fmt.Fprintf(&b, "[ENTITY %s/%s] confidence=%.2f suspicion=%.2f mentions=%d\n",
			e.Name, e.EntityType, e.Confidence, e.SuspicionScore, e.MentionCount)
	}

	contradictions, err := g.contradictions.SearchBySubject(ctx, q.Text, 10)
	if err != nil {
		return nil, fmt.Errorf("graph contradiction search: %w", err)
	}
	for _, c := range contradictions {
		fmt.Fprintf(&b, "[CONTRADICTION sev=%d] %q vs %q (%s / %s)\n",
			c.Severity, c.StatementA, c.StatementB, c.DocIDA, c.DocIDB)
		if c.DocIDA != "" {
			docs = append(docs, c.DocIDA)
		}
		if c.DocIDB != "" {
			docs = append(docs, c.DocIDB)
		}
	}

	if q.TimeRange != nil {
		events, err := g.timeline.ListByDateRange(ctx, q.TimeRange.From, q.TimeRange.To, 20)
		if err != nil {
			return nil, fmt.Errorf("graph timeline search: %w", err)
		}
		for _, ev := range events {
			flag := ""
			if ev.ImpossibilityFlag {
				flag = " IMPOSSIBLE"
			}
			fmt.Fprintf(&b, "[EVENT %s %s%s] %s\n",
				ev.Date.Format("2006-01-02"), ev.EventType, flag, ev.Description)
			docs = append(docs, ev.SourceDocs...)
		}
	}

	content := b.String()
	relevance := 0.0
	if content != "" {
		relevance = 0.9
	}
	return &domain.TierResult{
		Tier:       domain.TierGraph,
		Content:    content,
		Relevance:  relevance,
		TokenCost:  domain.EstimateTokens(content),
		SourceDocs: docs,
	}, nil
}

func (g *GraphTier) Status(ctx context.Context) domain.TierStatus {
	n, err := g.entities.Count(ctx)
	if err != nil {
		g.logger.Warn("graph tier count failed", zap.Error(err))
		return domain.TierStatus{Tier: domain.TierGraph, Available: false}
	}
	c, err := g.contradictions.Count(ctx)
	if err != nil {
		g.logger.Warn("graph tier contradiction count failed", zap.Error(err))
		c = 0
	}
	return domain.TierStatus{
		Tier:      domain.TierGraph,
		Available: true,
		Items:     n,
		Detail:    map[string]any{"contradictions": c},
	}
}
