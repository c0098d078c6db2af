package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/homequest/homequest-notify/internal/api/respond"
	"github.com/homequest/homequest-notify/internal/cache"
)

// GetStats returns delivery statistics, optionally bounded by a creation
// date range (RFC 3339 `from`/`to` query params). Responses are cached
// briefly with ETag support for dashboard polling.
// @Summary Delivery statistics
// @Tags stats
// @Produce json
// @Param from query string false "Range start (RFC 3339)"
// @Param to query string false "Range end (RFC 3339)"
// @Success 200 {object} notify.Stats
// @Failure 400 {object} respond.ErrorResponse
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "BAD_RANGE", "from must be RFC 3339")
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "BAD_RANGE", "to must be RFC 3339")
			return
		}
		to = &t
	}

	key := "stats:" + r.URL.RawQuery
	if data, etag, ok := h.cache.Get(key); ok {
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		respond.WriteCached(w, data, etag, true)
		return
	}

	stats, err := h.svc.StatsBetween(r.Context(), from, to)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STATS_ERROR", "Failed to compute statistics")
		return
	}

	data, err := json.Marshal(stats)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STATS_ERROR", "Failed to encode statistics")
		return
	}
	etag := h.cache.Set(key, data, cache.TTLStats)
	respond.WriteCached(w, data, etag, false)
}
