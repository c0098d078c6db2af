package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homequest/homequest-notify/internal/api/respond"
	"github.com/homequest/homequest-notify/internal/cache"
	"github.com/homequest/homequest-notify/internal/notify"
)

func prefCacheKey(ownerID string) string { return "preferences:" + ownerID }

// ListPreferences returns every preference row for an owner. The settings
// screen re-reads this on every open, so responses are cached per owner
// and invalidated on writes.
// @Summary List notification preferences
// @Tags preferences
// @Produce json
// @Param ownerID path string true "Owner ID"
// @Success 200 {array} notify.Preference
// @Router /preferences/{ownerID} [get]
func (h *Handler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	key := prefCacheKey(ownerID)
	if data, etag, ok := h.cache.Get(key); ok {
		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		respond.WriteCached(w, data, etag, true)
		return
	}

	prefs, err := h.prefs.ListPreferences(r.Context(), ownerID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load preferences")
		return
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to encode preferences")
		return
	}
	etag := h.cache.Set(key, data, cache.TTLPreferences)
	respond.WriteCached(w, data, etag, false)
}

// PutPreference creates or replaces one (owner, type) preference row.
// Malformed preferences are rejected with the full problem list.
// @Summary Update a notification preference
// @Tags preferences
// @Accept json
// @Produce json
// @Param ownerID path string true "Owner ID"
// @Success 200 {object} notify.Preference
// @Failure 400 {object} respond.ErrorResponse
// @Router /preferences/{ownerID} [put]
func (h *Handler) PutPreference(w http.ResponseWriter, r *http.Request) {
	var p notify.Preference
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Malformed request body")
		return
	}
	p.OwnerID = chi.URLParam(r, "ownerID")
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()

	if err := h.prefs.PutPreference(r.Context(), p); err != nil {
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_PREFERENCE", "Preference validation failed", verr.Problems)
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to save preference")
		return
	}
	h.cache.Invalidate(prefCacheKey(p.OwnerID))
	respond.WriteJSONObject(w, http.StatusOK, p)
}

type provisionRequest struct {
	FamilyID string `json:"family_id"`
}

// ProvisionOwner creates any missing preference rows for an owner from the
// injected default table. Existing rows are untouched.
// @Summary Provision default preferences for an owner
// @Tags preferences
// @Accept json
// @Produce json
// @Param ownerID path string true "Owner ID"
// @Success 200 {object} map[string]interface{}
// @Router /preferences/{ownerID}/provision [post]
func (h *Handler) ProvisionOwner(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	var req provisionRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.provision.EnsureDefaults(r.Context(), ownerID, req.FamilyID, h.defaults, time.Now().UTC()); err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to provision defaults")
		return
	}
	h.cache.Invalidate(prefCacheKey(ownerID))
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"success": true})
}
