package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"caselore/internal/domain"
	"caselore/internal/service"
	"caselore/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type GraphHandler struct {
	svc *service.KnowledgeGraphService
}

func NewGraphHandler(svc *service.KnowledgeGraphService) *GraphHandler {
	return &GraphHandler{svc: svc}
}

func (h *GraphHandler) AddEntity(w http.ResponseWriter, r *http.Request) {
	var e domain.Entity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if e.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.svc.AddEntity(r.Context(), &e); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add entity")
		return
	}

	writeJSON(w, http.StatusCreated, e)
}

func (h *GraphHandler) AddRelationship(w http.ResponseWriter, r *http.Request) {
	var rel domain.Relationship
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rel.SourceID == uuid.Nil || rel.TargetID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "source_id and target_id are required")
		return
	}

	if err := h.svc.AddRelationship(r.Context(), &rel); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add relationship")
		return
	}

	writeJSON(w, http.StatusCreated, rel)
}

func (h *GraphHandler) AddContradiction(w http.ResponseWriter, r *http.Request) {
	var c domain.Contradiction
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if c.StatementA == "" || c.StatementB == "" {
		writeError(w, http.StatusBadRequest, "statement_a and statement_b are required")
		return
	}

	if err := h.svc.AddContradiction(r.Context(), &c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add contradiction")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *GraphHandler) AddPattern(w http.ResponseWriter, r *http.Request) {
	var p domain.Pattern
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	if err := h.svc.AddPattern(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add pattern")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *GraphHandler) AddTimelineEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.TimelineEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if ev.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	if err := h.svc.AddTimelineEvent(r.Context(), &ev); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add timeline event")
		return
	}

	writeJSON(w, http.StatusCreated, ev)
}

type topicContextResponse struct {
	Topic          string                 `json:"topic"`
	Entities       []domain.Entity        `json:"entities"`
	Contradictions []domain.Contradiction `json:"contradictions"`
}

func (h *GraphHandler) TopicContext(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic parameter is required")
		return
	}
	limit := parseLimit(r, 20)

	entities, contradictions, err := h.svc.TopicContext(r.Context(), topic, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load topic context")
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}
	if contradictions == nil {
		contradictions = []domain.Contradiction{}
	}

	writeJSON(w, http.StatusOK, topicContextResponse{
		Topic:          topic,
		Entities:       entities,
		Contradictions: contradictions,
	})
}

type contradictionListResponse struct {
	Contradictions []domain.Contradiction `json:"contradictions"`
	Count          int                    `json:"count"`
}

func (h *GraphHandler) Contradictions(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeError(w, http.StatusBadRequest, "subject parameter is required")
		return
	}
	limit := parseLimit(r, 20)

	contradictions, err := h.svc.ContradictionsAbout(r.Context(), subject, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search contradictions")
		return
	}
	if contradictions == nil {
		contradictions = []domain.Contradiction{}
	}

	writeJSON(w, http.StatusOK, contradictionListResponse{
		Contradictions: contradictions,
		Count:          len(contradictions),
	})
}

type timelineResponse struct {
	Events []domain.TimelineEvent `json:"events"`
	Count  int                    `json:"count"`
}

func (h *GraphHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter")
		return
	}
	if to.IsZero() {
		to = time.Now()
	}
	limit := parseLimit(r, 100)

	events, err := h.svc.EventsInWindow(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load timeline")
		return
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}

	writeJSON(w, http.StatusOK, timelineResponse{Events: events, Count: len(events)})
}

func (h *GraphHandler) Network(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	hops := 2
	if hopsStr := r.URL.Query().Get("hops"); hopsStr != "" {
		if n, err := strconv.Atoi(hopsStr); err == nil && n > 0 && n <= 5 {
			hops = n
		}
	}

	network, err := h.svc.EntityNetwork(r.Context(), id, hops)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to walk entity network")
		return
	}

	writeJSON(w, http.StatusOK, network)
}

type suspiciousResponse struct {
	Entities []domain.Entity `json:"entities"`
	Count    int             `json:"count"`
}

func (h *GraphHandler) Suspicious(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)

	entities, err := h.svc.MostSuspicious(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list suspicious entities")
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}

	writeJSON(w, http.StatusOK, suspiciousResponse{Entities: entities, Count: len(entities)})
}

type discoveriesResponse struct {
	Discoveries []domain.Discovery `json:"discoveries"`
	Count       int                `json:"count"`
}

func (h *GraphHandler) Discoveries(w http.ResponseWriter, r *http.Request) {
	min := domain.ImportanceCritical
	if minStr := r.URL.Query().Get("min_importance"); minStr != "" {
		n, err := strconv.Atoi(minStr)
		if err != nil || n < int(domain.ImportanceLow) || n > int(domain.ImportanceNuclear) {
			writeError(w, http.StatusBadRequest, "invalid min_importance parameter")
			return
		}
		min = domain.Importance(n)
	}
	limit := parseLimit(r, 50)

	discoveries, err := h.svc.CriticalDiscoveries(r.Context(), min, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list discoveries")
		return
	}
	if discoveries == nil {
		discoveries = []domain.Discovery{}
	}

	writeJSON(w, http.StatusOK, discoveriesResponse{Discoveries: discoveries, Count: len(discoveries)})
}

type patternHistoryResponse struct {
	PatternID uuid.UUID                 `json:"pattern_id"`
	History   []domain.PatternEvolution `json:"history"`
}

func (h *GraphHandler) PatternHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern id")
		return
	}

	history, err := h.svc.PatternHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "pattern not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load pattern history")
		return
	}
	if history == nil {
		history = []domain.PatternEvolution{}
	}

	writeJSON(w, http.StatusOK, patternHistoryResponse{PatternID: id, History: history})
}

func parseLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

// parseDate accepts RFC 3339 timestamps or bare dates. An empty string
// yields the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
