package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// Migrate creates the schema if it does not exist. The design assumes a
// single writer process; concurrent readers are fine under Postgres MVCC.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS entities (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			subtype TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			suspicion_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			mention_count INTEGER NOT NULL DEFAULT 0,
			properties JSONB NOT NULL DEFAULT '{}',
			discovery_phase TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_suspicion ON entities(suspicion_score DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_name_type ON entities(LOWER(name), entity_type)`,

		`CREATE TABLE IF NOT EXISTS relationships (
			id UUID PRIMARY KEY,
			source_id UUID NOT NULL REFERENCES entities(id),
			target_id UUID NOT NULL REFERENCES entities(id),
			relation_type TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			evidence JSONB NOT NULL DEFAULT '[]',
			strength DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_edge ON relationships(source_id, target_id, relation_type)`,

		`CREATE TABLE IF NOT EXISTS contradictions (
			id UUID PRIMARY KEY,
			statement_a TEXT NOT NULL,
			statement_b TEXT NOT NULL,
			doc_id_a TEXT NOT NULL DEFAULT '',
			doc_id_b TEXT NOT NULL DEFAULT '',
			severity INTEGER NOT NULL DEFAULT 5,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			explanation TEXT NOT NULL DEFAULT '',
			investigation_priority INTEGER NOT NULL DEFAULT 0,
			investigation_spawned BOOLEAN NOT NULL DEFAULT FALSE,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			identified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contradictions_severity ON contradictions(severity DESC)`,

		`CREATE TABLE IF NOT EXISTS patterns (
			id UUID PRIMARY KEY,
			pattern_type TEXT NOT NULL,
			description TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			supporting_docs JSONB NOT NULL DEFAULT '[]',
			contradicting_docs JSONB NOT NULL DEFAULT '[]',
			evolution_history JSONB NOT NULL DEFAULT '[]',
			investigation_spawned BOOLEAN NOT NULL DEFAULT FALSE,
			first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_confidence ON patterns(confidence DESC)`,

		`CREATE TABLE IF NOT EXISTS timeline_events (
			id UUID PRIMARY KEY,
			event_date DATE NOT NULL,
			event_type TEXT NOT NULL DEFAULT 'general',
			description TEXT NOT NULL,
			significance INTEGER NOT NULL DEFAULT 5,
			participants JSONB NOT NULL DEFAULT '[]',
			source_docs JSONB NOT NULL DEFAULT '[]',
			impossibility_flag BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_date ON timeline_events(event_date)`,

		`CREATE TABLE IF NOT EXISTS investigations (
			id UUID PRIMARY KEY,
			topic TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_data JSONB NOT NULL DEFAULT '{}',
			priority INTEGER NOT NULL DEFAULT 5,
			status TEXT NOT NULL DEFAULT 'queued',
			spawned_from UUID,
			depth INTEGER NOT NULL DEFAULT 0,
			findings JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			acquired_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_investigations_status ON investigations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_investigations_priority ON investigations(priority DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_investigations_parent ON investigations(spawned_from)`,

		`CREATE TABLE IF NOT EXISTS discovery_log (
			id UUID PRIMARY KEY,
			discovery_type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance INTEGER NOT NULL,
			source_id UUID,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discovery_importance ON discovery_log(importance DESC)`,

		`CREATE TABLE IF NOT EXISTS version_history (
			id BIGSERIAL PRIMARY KEY,
			record_kind TEXT NOT NULL,
			record_id UUID NOT NULL,
			change JSONB NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_version_record ON version_history(record_kind, record_id)`,

		`CREATE TABLE IF NOT EXISTS corpus_chunks (
			id UUID PRIMARY KEY,
			doc_id TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			embedding vector(1536),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_corpus_doc ON corpus_chunks(doc_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
