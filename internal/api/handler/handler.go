// Package handler provides HTTP handlers for the notification API.
// Handlers call the notify service and stores directly — no extra service
// layer between HTTP and the core.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/homequest/homequest-notify/internal/api/respond"
	"github.com/homequest/homequest-notify/internal/cache"
	"github.com/homequest/homequest-notify/internal/config"
	"github.com/homequest/homequest-notify/internal/notify"
)

// Pinger checks durable-store connectivity. Satisfied by db.Pool; nil when
// running on the in-memory store.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Provisioner creates missing preference rows from the injected default
// table. Both the postgres and memory stores satisfy it.
type Provisioner interface {
	EnsureDefaults(ctx context.Context, ownerID, familyID string, defaults []notify.DefaultSpec, now time.Time) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	svc       *notify.Service
	prefs     notify.PreferenceStore
	notifs    notify.NotificationStore
	provision Provisioner
	pinger    Pinger
	cache     *cache.Cache
	cfg       *config.Config
	defaults  []notify.DefaultSpec
}

// New creates a Handler with shared dependencies.
func New(svc *notify.Service, prefs notify.PreferenceStore, notifs notify.NotificationStore, provision Provisioner, pinger Pinger, c *cache.Cache, cfg *config.Config, defaults []notify.DefaultSpec) *Handler {
	return &Handler{
		svc:       svc,
		prefs:     prefs,
		notifs:    notifs,
		provision: provision,
		pinger:    pinger,
		cache:     c,
		cfg:       cfg,
		defaults:  defaults,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "HomeQuest Notification API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies durable-store connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "memory",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	if err := h.pinger.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// caller resolves the authenticated admin caller from the bearer token.
// Empty string means unauthenticated.
func (h *Handler) caller(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return ""
	}
	token := auth[len(prefix):]
	for _, t := range h.cfg.AdminTokens {
		if t == token {
			return token
		}
	}
	return ""
}
