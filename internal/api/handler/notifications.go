package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/homequest/homequest-notify/internal/api/respond"
	"github.com/homequest/homequest-notify/internal/notify"
)

// ListNotifications returns a user's notification history, newest first.
// @Summary List notifications for a user
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID"
// @Param limit query int false "Max records (default 50)"
// @Success 200 {array} notify.Notification
// @Router /notifications/user/{userID} [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	notifications, err := h.notifs.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load notifications")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, notifications)
}

// MarkDelivered records a delivery receipt from the client app.
// @Summary Mark a notification delivered
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /notifications/{id}/delivered [post]
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.MarkDelivered)
}

// MarkRead records a read receipt from the client app.
// @Summary Mark a notification read
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /notifications/{id}/read [post]
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.MarkRead)
}

// CancelNotification cancels a pending notification. Advisory: once
// dispatch has started the cancel is refused.
// @Summary Cancel a pending notification
// @Tags notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Router /notifications/{id}/cancel [post]
func (h *Handler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.CancelNotification)
}

// lifecycle applies one status-advancing service call and maps its errors.
func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	err := fn(r.Context(), id)
	switch {
	case errors.Is(err, notify.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No such notification")
	case errors.Is(err, notify.ErrInvalidTransition), errors.Is(err, notify.ErrExpired):
		respond.WriteError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case err != nil:
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to update notification")
	default:
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}
