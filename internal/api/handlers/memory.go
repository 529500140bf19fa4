package handlers

import (
	"encoding/json"
	"net/http"

	"caselore/internal/domain"
	"caselore/internal/service"
)

type MemoryHandler struct {
	coordinator *service.MemoryCoordinator
}

func NewMemoryHandler(coordinator *service.MemoryCoordinator) *MemoryHandler {
	return &MemoryHandler{coordinator: coordinator}
}

type ingestRequest struct {
	DocID    string              `json:"doc_id"`
	Content  string              `json:"content"`
	Metadata domain.ItemMetadata `json:"metadata"`
}

type ingestResponse struct {
	DocID  string `json:"doc_id"`
	Tokens int    `json:"tokens"`
}

func (h *MemoryHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocID == "" {
		writeError(w, http.StatusBadRequest, "doc_id is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	item := domain.IngestItem{
		DocID:    req.DocID,
		Content:  []byte(req.Content),
		Metadata: req.Metadata,
	}
	if err := h.coordinator.Ingest(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		DocID:  req.DocID,
		Tokens: domain.EstimateTokens(req.Content),
	})
}

func (h *MemoryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var q domain.MemoryQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if q.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := h.coordinator.Retrieve(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retrieve context")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *MemoryHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Metrics())
}

type tierStatusResponse struct {
	Tiers []domain.TierStatus `json:"tiers"`
}

func (h *MemoryHandler) TierStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tierStatusResponse{
		Tiers: h.coordinator.TierStatuses(r.Context()),
	})
}
