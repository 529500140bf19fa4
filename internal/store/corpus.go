package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"caselore/internal/domain"
)

// CorpusStore holds ingested document chunks with their embeddings for the
// semantic retrieval tier.
type CorpusStore struct {
	db *pgxpool.Pool
}

func NewCorpusStore(db *pgxpool.Pool) *CorpusStore {
	return &CorpusStore{db: db}
}

func (s *CorpusStore) Add(ctx context.Context, chunk *domain.CorpusChunk, embedding []float32) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO corpus_chunks (id, doc_id, content, tokens, embedding)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     tokens = EXCLUDED.tokens,
		     embedding = EXCLUDED.embedding
		 RETURNING id, created_at`,
		chunk.ID, chunk.DocID, chunk.Content, chunk.Tokens, vec,
	).Scan(&chunk.ID, &chunk.CreatedAt)
}

func (s *CorpusStore) Search(ctx context.Context, embedding []float32, topK int) ([]domain.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT id, doc_id, content, tokens, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM corpus_chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.ScoredChunk
	for rows.Next() {
		var c domain.ScoredChunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.Content, &c.Tokens, &c.CreatedAt, &c.Similarity); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *CorpusStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM corpus_chunks`).Scan(&n)
	return n, err
}
