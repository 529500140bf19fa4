package tier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"caselore/internal/domain"
)

const vectorTopK = 10

// VectorIndex is the semantic retrieval tier: corpus chunks embedded into
// pgvector, queried by cosine similarity.
type VectorIndex struct {
	corpus   domain.CorpusStore
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

// NewVectorIndex fails with a ConfigurationError when no embedding provider
// is configured; the coordinator treats that as "tier absent", not a crash.
func NewVectorIndex(corpus domain.CorpusStore, embedder domain.EmbeddingClient, logger *zap.Logger) (*VectorIndex, error) {
	if embedder == nil {
		return nil, &domain.ConfigurationError{
			Tier:   domain.TierVector,
			Reason: "no embedding provider configured",
		}
	}
	if corpus == nil {
		return nil, &domain.ConfigurationError{
			Tier:   domain.TierVector,
			Reason: "no corpus store configured",
		}
	}
	return &VectorIndex{corpus: corpus, embedder: embedder, logger: logger}, nil
}

func (v *VectorIndex) Add(ctx context.Context, item domain.IngestItem) error {
	content := string(item.Content)
	emb, err := v.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed %s: %w", item.DocID, err)
	}
	chunk := &domain.CorpusChunk{
		DocID:   item.DocID,
		Content: content,
		Tokens:  domain.EstimateTokens(content),
	}
	return v.corpus.Add(ctx, chunk, emb)
}

func (v *VectorIndex) Query(ctx context.Context, q domain.MemoryQuery) (*domain.TierResult, error) {
	emb, err := v.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := v.corpus.Search(ctx, emb, vectorTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(chunks) == 0 {
		return &domain.TierResult{Tier: domain.TierVector}, nil
	}

	var b strings.Builder
	docs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		fmt.Fprintf(&b, "[%s sim=%.2f] %s\n", c.DocID, c.Similarity, c.Content)
		docs = append(docs, c.DocID)
	}

	content := b.String()
	return &domain.TierResult{
		Tier:       domain.TierVector,
		Content:    content,
		Relevance:  chunks[0].Similarity,
		TokenCost:  domain.EstimateTokens(content),
		SourceDocs: docs,
	}, nil
}

func (v *VectorIndex) Status(ctx context.Context) domain.TierStatus {
	n, err := v.corpus.Count(ctx)
	if err != nil {
		v.logger.Warn("vector tier count failed", zap.Error(err))
		return domain.TierStatus{Tier: domain.TierVector, Available: false}
	}
	return domain.TierStatus{Tier: domain.TierVector, Available: true, Items: n}
}
