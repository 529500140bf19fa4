package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caselore/internal/domain"
)

type TimelineStore struct {
	db *pgxpool.Pool
}

func NewTimelineStore(db *pgxpool.Pool) *TimelineStore {
	return &TimelineStore{db: db}
}

func (s *TimelineStore) Upsert(ctx context.Context, e *domain.TimelineEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.EventType == "" {
		e.EventType = "general"
	}
	if e.Participants == nil {
		e.Participants = []uuid.UUID{}
	}
	if e.SourceDocs == nil {
		e.SourceDocs = []string{}
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO timeline_events (id, event_date, event_type, description, significance,
		                              participants, source_docs, impossibility_flag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET description = EXCLUDED.description,
		     significance = EXCLUDED.significance,
		     participants = EXCLUDED.participants,
		     source_docs = EXCLUDED.source_docs,
		     impossibility_flag = timeline_events.impossibility_flag OR EXCLUDED.impossibility_flag
		 RETURNING id, impossibility_flag, created_at`,
		e.ID, e.Date, e.EventType, e.Description, e.Significance,
		e.Participants, e.SourceDocs, e.ImpossibilityFlag,
	).Scan(&e.ID, &e.ImpossibilityFlag, &e.CreatedAt)
}

func (s *TimelineStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.TimelineEvent, error) {
	e := &domain.TimelineEvent{}
	err := s.db.QueryRow(ctx,
		`SELECT id, event_date, event_type, description, significance, participants, source_docs,
		        impossibility_flag, created_at
		 FROM timeline_events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Date, &e.EventType, &e.Description, &e.Significance, &e.Participants,
		&e.SourceDocs, &e.ImpossibilityFlag, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *TimelineStore) ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, event_date, event_type, description, significance, participants, source_docs,
		        impossibility_flag, created_at
		 FROM timeline_events
		 WHERE event_date >= $1 AND event_date <= $2
		 ORDER BY event_date ASC
		 LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineEvents(rows)
}

// ListByEntityAndDate returns the events mentioning an entity on a calendar
// day, for the impossibility check at insert time.
func (s *TimelineStore) ListByEntityAndDate(ctx context.Context, entityID uuid.UUID, date time.Time) ([]domain.TimelineEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, event_date, event_type, description, significance, participants, source_docs,
		        impossibility_flag, created_at
		 FROM timeline_events
		 WHERE event_date = $2::date AND participants @> $1::jsonb`,
		[]uuid.UUID{entityID}, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineEvents(rows)
}

func (s *TimelineStore) SetImpossibility(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE timeline_events SET impossibility_flag = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TimelineStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM timeline_events`).Scan(&n)
	return n, err
}

func scanTimelineEvents(rows pgx.Rows) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.ID, &e.Date, &e.EventType, &e.Description, &e.Significance,
			&e.Participants, &e.SourceDocs, &e.ImpossibilityFlag, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
