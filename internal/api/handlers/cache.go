package handlers

import (
	"net/http"
	"time"

	"caselore/internal/tier"
)

type CacheHandler struct {
	cache *tier.ResultCache
}

func NewCacheHandler(cache *tier.ResultCache) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Stats returns the daily hit/miss/savings account. Defaults to today.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date parameter")
		return
	}

	stats, err := h.cache.Stats(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load cache stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type purgeResponse struct {
	Purged int `json:"purged"`
}

// Purge drops expired cache entries immediately instead of waiting for the
// background sweep.
func (h *CacheHandler) Purge(w http.ResponseWriter, r *http.Request) {
	purged, err := h.cache.Purge(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to purge cache")
		return
	}

	writeJSON(w, http.StatusOK, purgeResponse{Purged: purged})
}
