package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"caselore/internal/domain"
	"caselore/internal/service"
	"caselore/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type InvestigationHandler struct {
	queue *service.InvestigationQueue
	invs  domain.InvestigationStore
}

func NewInvestigationHandler(queue *service.InvestigationQueue, invs domain.InvestigationStore) *InvestigationHandler {
	return &InvestigationHandler{queue: queue, invs: invs}
}

type spawnRequest struct {
	Topic       string         `json:"topic"`
	Priority    int            `json:"priority"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	SpawnedFrom string         `json:"spawned_from,omitempty"`
}

func (h *InvestigationHandler) Spawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	inv := &domain.Investigation{
		Topic:       req.Topic,
		TriggerType: domain.TriggerManual,
		TriggerData: req.TriggerData,
		Priority:    req.Priority,
	}
	if req.SpawnedFrom != "" {
		parent, err := uuid.Parse(req.SpawnedFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid spawned_from")
			return
		}
		inv.SpawnedFrom = &parent
	}

	if err := h.queue.Spawn(r.Context(), inv); err != nil {
		if errors.Is(err, service.ErrMaxDepth) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to spawn investigation")
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvestigationHandler) Pop(w http.ResponseWriter, r *http.Request) {
	inv, err := h.queue.Pop(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to pop investigation")
		return
	}
	if inv == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (h *InvestigationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid investigation id")
		return
	}

	var findings domain.Findings
	if err := json.NewDecoder(r.Body).Decode(&findings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.queue.Complete(r.Context(), id, &findings); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownInvID):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrNotActive):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to complete investigation")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *InvestigationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid investigation id")
		return
	}

	inv, err := h.invs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "investigation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get investigation")
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

type investigationListResponse struct {
	Investigations []domain.Investigation `json:"investigations"`
	Count          int                    `json:"count"`
}

func (h *InvestigationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.InvestigationStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.InvestigationQueued
	}
	switch status {
	case domain.InvestigationQueued, domain.InvestigationActive, domain.InvestigationComplete:
	default:
		writeError(w, http.StatusBadRequest, "invalid status parameter")
		return
	}

	minPriority := 0
	if s := r.URL.Query().Get("min_priority"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_priority parameter")
			return
		}
		minPriority = n
	}
	limit := parseLimit(r, 50)

	invs, err := h.invs.ListByStatus(r.Context(), status, minPriority, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list investigations")
		return
	}
	if invs == nil {
		invs = []domain.Investigation{}
	}

	writeJSON(w, http.StatusOK, investigationListResponse{Investigations: invs, Count: len(invs)})
}

func (h *InvestigationHandler) Children(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid investigation id")
		return
	}

	children, err := h.invs.ListChildren(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list children")
		return
	}
	if children == nil {
		children = []domain.Investigation{}
	}

	writeJSON(w, http.StatusOK, investigationListResponse{Investigations: children, Count: len(children)})
}

func (h *InvestigationHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Status())
}
