package handlers

import (
	"net/http"

	"caselore/internal/domain"
	"caselore/internal/service"
)

type StatusHandler struct {
	graph       *service.KnowledgeGraphService
	queue       *service.InvestigationQueue
	coordinator *service.MemoryCoordinator
	invs        domain.InvestigationStore
}

func NewStatusHandler(graph *service.KnowledgeGraphService, queue *service.InvestigationQueue, coordinator *service.MemoryCoordinator, invs domain.InvestigationStore) *StatusHandler {
	return &StatusHandler{graph: graph, queue: queue, coordinator: coordinator, invs: invs}
}

type statusResponse struct {
	Graph  *domain.GraphStats         `json:"graph"`
	Queue  domain.QueueStatus         `json:"queue"`
	Tiers  []domain.TierStatus        `json:"tiers"`
	Memory service.CoordinatorMetrics `json:"memory"`
}

// Status reports the combined health of the knowledge graph, the
// investigation queue and the tier hierarchy.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.graph.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to gather graph stats")
		return
	}
	if stats.Investigations, err = h.invs.Count(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count investigations")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Graph:  stats,
		Queue:  h.queue.Status(),
		Tiers:  h.coordinator.TierStatuses(r.Context()),
		Memory: h.coordinator.Metrics(),
	})
}
