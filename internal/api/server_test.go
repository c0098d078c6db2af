package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/homequest/homequest-notify/internal/api"
	"github.com/homequest/homequest-notify/internal/api/handler"
	"github.com/homequest/homequest-notify/internal/cache"
	"github.com/homequest/homequest-notify/internal/config"
	"github.com/homequest/homequest-notify/internal/notify"
	"github.com/homequest/homequest-notify/internal/push"
	"github.com/homequest/homequest-notify/internal/store/memory"
)

func newAPI(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	cfg := &config.Config{
		CORSAllowOrigins: []string{"*"},
		AdminTokens:      []string{"secret"},
		CacheEnabled:     true,
	}
	st := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := notify.NewService(st, st, st, st, &push.Recorder{}, logger)
	h := handler.New(svc, st, st, st, nil, cache.New(true), cfg, notify.DefaultTable())
	return api.NewRouter(h, cfg), st
}

func do(t *testing.T, router http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newAPI(t)

	for _, path := range []string{"/", "/health", "/health/db", "/health/cache"} {
		if w := do(t, router, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestProvisionAndListPreferences(t *testing.T) {
	router, _ := newAPI(t)

	w := do(t, router, http.MethodPost, "/api/v1/preferences/u1/provision", `{"family_id":"fam-1"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("provision = %d: %s", w.Code, w.Body)
	}

	w = do(t, router, http.MethodGet, "/api/v1/preferences/u1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var prefs []notify.Preference
	if err := json.Unmarshal(w.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(prefs) != len(notify.DefaultTable()) {
		t.Errorf("provisioned %d rows, want %d", len(prefs), len(notify.DefaultTable()))
	}
}

func TestPutPreferenceValidation(t *testing.T) {
	router, _ := newAPI(t)

	w := do(t, router, http.MethodPut, "/api/v1/preferences/u1",
		`{"type":"mystery","frequency":"sometimes","priority":"low","channels":["push"],"enabled":true}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid put = %d, want 400", w.Code)
	}
	var resp struct {
		Error struct {
			Code   string   `json:"code"`
			Detail []string `json:"detail"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "INVALID_PREFERENCE" || len(resp.Error.Detail) == 0 {
		t.Errorf("error body = %+v, want problem detail", resp)
	}

	w = do(t, router, http.MethodPut, "/api/v1/preferences/u1",
		`{"type":"quest_completed","frequency":"daily","priority":"high","channels":["push"],"enabled":true}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("valid put = %d: %s", w.Code, w.Body)
	}
}

func TestPreferenceCacheInvalidation(t *testing.T) {
	router, _ := newAPI(t)
	do(t, router, http.MethodPost, "/api/v1/preferences/u1/provision", `{"family_id":"fam-1"}`, nil)

	w := do(t, router, http.MethodGet, "/api/v1/preferences/u1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag on preference list")
	}

	w = do(t, router, http.MethodGet, "/api/v1/preferences/u1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d, want 304", w.Code)
	}

	// A write must invalidate the cached list.
	w = do(t, router, http.MethodPut, "/api/v1/preferences/u1",
		`{"type":"quest_completed","frequency":"daily","priority":"high","channels":["push"],"enabled":false}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", w.Code, w.Body)
	}

	w = do(t, router, http.MethodGet, "/api/v1/preferences/u1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("list after write = %d, want a fresh 200", w.Code)
	}
	var prefs []notify.Preference
	if err := json.Unmarshal(w.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, p := range prefs {
		if p.Type == notify.TypeQuestCompleted {
			found = true
			if p.Enabled {
				t.Error("stale preference list served after a write")
			}
		}
	}
	if !found {
		t.Error("updated row missing from the list")
	}
}

func TestIngestEvent(t *testing.T) {
	router, _ := newAPI(t)
	do(t, router, http.MethodPost, "/api/v1/preferences/mom/provision", `{"family_id":"fam-1"}`, nil)

	body := `{"kind":"quest_completed","payload":{
		"user_id":"alex","family_id":"fam-1","quest_id":"q1",
		"quest_title":"Dishes","child_name":"Alex","xp_earned":10,"prev_xp_total":10}}`
	w := do(t, router, http.MethodPost, "/api/v1/events", body, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Created int `json:"created"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Created != 1 {
		t.Errorf("created = %d, want 1 (announcement to mom)", resp.Created)
	}

	w = do(t, router, http.MethodPost, "/api/v1/events", `{"kind":"birthday","payload":{}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/api/v1/events", `{"kind":"penalty","payload":{}}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid event = %d, want 400", w.Code)
	}
}

func TestSendCustomAuth(t *testing.T) {
	router, _ := newAPI(t)
	do(t, router, http.MethodPost, "/api/v1/preferences/u1/provision", `{"family_id":"fam-1"}`, nil)

	body := `{"target_type":"child","target_id":"u1","title":"Chore time","body":"Feed the cat"}`

	w := do(t, router, http.MethodPost, "/api/v1/notifications/send", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	w = do(t, router, http.MethodPost, "/api/v1/notifications/send", body,
		map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}

	w = do(t, router, http.MethodPost, "/api/v1/notifications/send", body,
		map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusOK {
		t.Errorf("admin token = %d, want 200: %s", w.Code, w.Body)
	}

	w = do(t, router, http.MethodPost, "/api/v1/notifications/send",
		`{"target_type":"pet","target_id":"rex","title":"t","body":"b"}`,
		map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad target = %d, want 400", w.Code)
	}
}

func TestNotificationLifecycleEndpoints(t *testing.T) {
	router, st := newAPI(t)

	now := time.Now().UTC()
	if err := st.InsertNotification(context.Background(), &notify.Notification{
		ID: "n1", UserID: "u1", Type: notify.TypeCustom, Title: "t", Message: "m",
		Channels: []notify.Channel{notify.ChannelPush}, Priority: notify.PriorityMedium,
		Status: notify.StatusPending, CreatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	if w := do(t, router, http.MethodPost, "/api/v1/notifications/n1/delivered", "", nil); w.Code != http.StatusConflict {
		t.Errorf("delivered on pending = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/notifications/missing/read", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/notifications/n1/cancel", "", nil); w.Code != http.StatusOK {
		t.Errorf("cancel pending = %d, want 200", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/notifications/n1/cancel", "", nil); w.Code != http.StatusConflict {
		t.Errorf("second cancel = %d, want 409", w.Code)
	}

	w := do(t, router, http.MethodGet, "/api/v1/notifications/user/u1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var ns []notify.Notification
	if err := json.Unmarshal(w.Body.Bytes(), &ns); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ns) != 1 || ns[0].Status != notify.StatusCancelled {
		t.Errorf("listed = %+v", ns)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newAPI(t)

	w := do(t, router, http.MethodGet, "/api/v1/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = do(t, router, http.MethodGet, "/api/v1/stats", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional stats = %d, want 304", w.Code)
	}

	if w := do(t, router, http.MethodGet, "/api/v1/stats?from=yesterday", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad range = %d, want 400", w.Code)
	}
}
