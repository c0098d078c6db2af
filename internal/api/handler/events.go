package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/homequest/homequest-notify/internal/api/respond"
	"github.com/homequest/homequest-notify/internal/notify"
)

// eventEnvelope is the wire shape for incoming domain events: a kind tag
// plus the variant payload.
type eventEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// IngestEvent accepts one domain event and turns it into zero or more
// pending notifications. Suppression is not an error: the response reports
// how many notifications were created.
// @Summary Ingest a domain event
// @Tags events
// @Accept json
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /events [post]
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var env eventEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Malformed request body")
		return
	}
	event, err := notify.DecodeEvent(env.Kind, env.Payload)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_EVENT", err.Error())
		return
	}

	created, err := h.svc.ProcessEvents(r.Context(), event)
	if err != nil {
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_EVENT", "Event validation failed", verr.Problems)
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "INGEST_ERROR", "Failed to process event")
		return
	}
	respond.WriteJSONObject(w, http.StatusAccepted, map[string]interface{}{
		"created": created,
	})
}

// SendCustom is the manual/admin entry point. Requires an authenticated
// caller (admin bearer token).
// @Summary Send a custom notification
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Router /notifications/send [post]
func (h *Handler) SendCustom(w http.ResponseWriter, r *http.Request) {
	var cs notify.CustomSend
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_JSON", "Malformed request body")
		return
	}

	_, err := h.svc.SendCustom(r.Context(), h.caller(r), cs)
	switch {
	case errors.Is(err, notify.ErrUnauthenticated):
		respond.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Admin token required")
		return
	case errors.Is(err, notify.ErrInvalidTarget):
		respond.WriteError(w, http.StatusBadRequest, "INVALID_TARGET", err.Error())
		return
	case err != nil:
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", verr.Problems)
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "SEND_ERROR", "Failed to send notification")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"success": true})
}
