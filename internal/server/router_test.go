package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"supportdesk/internal/auth"
	"supportdesk/internal/middleware"
	"supportdesk/internal/model"
	"supportdesk/internal/store/sqlite"
)

const adminPassword = "s3cret-pass"

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := sqlite.Open(":memory:", sqlite.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := auth.Bootstrap(context.Background(), st, "admin", adminPassword); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	svc := auth.NewService(st, auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"})
	return NewRouter(Deps{Store: st, Auth: svc, LoginLimiter: limiter})
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": adminPassword})
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Token string         `json:"token"`
		User  model.Identity `json:"user"`
	}](t, w)
	if resp.Token == "" || resp.User.Username != "admin" || resp.User.AccountID != auth.BootstrapAccountID {
		t.Fatalf("unexpected login response: %s", w.Body.String())
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, nil)
	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	expectStatus(t, w, http.StatusOK)
	if ok := decode[map[string]bool](t, w)["ok"]; !ok {
		t.Fatalf("expected ok=true, got %s", w.Body.String())
	}
}

func TestJordanScenario(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(t, r, http.MethodPost, "/api/tickets", "", map[string]string{"clientName": "Jordan"})
	expectStatus(t, w, http.StatusOK)
	created := decode[map[string]string](t, w)
	id := created["ticketId"]
	if id == "" || created["clientName"] != "Jordan" {
		t.Fatalf("unexpected create response: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/tickets/"+id, "", nil)
	expectStatus(t, w, http.StatusOK)
	conv := decode[model.Conversation](t, w)
	if conv.Status != model.StatusActive || len(conv.Messages) != 0 {
		t.Fatalf("unexpected new ticket: %+v", conv)
	}

	w = doJSON(t, r, http.MethodPost, "/api/tickets/"+id+"/messages", "", map[string]string{"content": "Hello"})
	expectStatus(t, w, http.StatusOK)
	if msg := decode[model.Message](t, w); msg.Sender != model.SenderUser || msg.Content != "Hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	token := login(t, r)

	w = doJSON(t, r, http.MethodGet, "/api/auth/verify", token, nil)
	expectStatus(t, w, http.StatusOK)
	verified := decode[struct {
		Valid bool           `json:"valid"`
		User  model.Identity `json:"user"`
	}](t, w)
	if !verified.Valid || verified.User.Username != "admin" {
		t.Fatalf("unexpected verify response: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/tickets", token, nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[[]model.Conversation](t, w)
	if len(list) != 1 || list[0].ID != id || len(list[0].Messages) != 1 {
		t.Fatalf("unexpected list: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/tickets/"+id+"/reply", token, map[string]string{"content": "Hi, how can I help?"})
	expectStatus(t, w, http.StatusOK)
	if msg := decode[model.Message](t, w); msg.Sender != model.SenderSupport {
		t.Fatalf("expected support sender, got %+v", msg)
	}

	w = doJSON(t, r, http.MethodPatch, "/api/tickets/"+id, token, map[string]string{"status": "resolved"})
	expectStatus(t, w, http.StatusOK)
	if ok := decode[map[string]bool](t, w)["success"]; !ok {
		t.Fatalf("expected success, got %s", w.Body.String())
	}
	resolved := decode[model.Conversation](t, doJSON(t, r, http.MethodGet, "/api/tickets/"+id, "", nil))
	if resolved.Status != model.StatusResolved {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}

	w = doJSON(t, r, http.MethodPatch, "/api/tickets/"+id, token, map[string]string{"status": "active"})
	expectStatus(t, w, http.StatusOK)
	final := decode[model.Conversation](t, doJSON(t, r, http.MethodGet, "/api/tickets/"+id, "", nil))
	if final.Status != model.StatusActive {
		t.Fatalf("expected active, got %s", final.Status)
	}
	if !final.UpdatedAt.After(resolved.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", resolved.UpdatedAt, final.UpdatedAt)
	}
	if len(final.Messages) != 2 ||
		final.Messages[0].Sender != model.SenderUser || final.Messages[0].Content != "Hello" ||
		final.Messages[1].Sender != model.SenderSupport {
		t.Fatalf("unexpected final conversation: %+v", final.Messages)
	}
}

func TestStaffRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, nil)
	created := decode[map[string]string](t, doJSON(t, r, http.MethodPost, "/api/tickets", "", map[string]string{"clientName": "Jordan"}))
	id := created["ticketId"]

	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/auth/verify", nil},
		{http.MethodGet, "/api/tickets", nil},
		{http.MethodPatch, "/api/tickets/" + id, map[string]string{"status": "resolved"}},
		{http.MethodPost, "/api/tickets/" + id + "/reply", map[string]string{"content": "hi"}},
		{http.MethodPost, "/api/tickets/" + id + "/messages", map[string]string{"content": "hi", "sender": "support"}},
	}
	for _, rt := range routes {
		w := doJSON(t, r, rt.method, rt.path, "", rt.body)
		expectStatus(t, w, http.StatusUnauthorized)
		if msg := decode[map[string]string](t, w)["error"]; msg != "Access denied" {
			t.Fatalf("%s %s: unexpected error %q", rt.method, rt.path, msg)
		}

		w = doJSON(t, r, rt.method, rt.path, "not-a-jwt", rt.body)
		expectStatus(t, w, http.StatusForbidden)
		if msg := decode[map[string]string](t, w)["error"]; msg != "Invalid token" {
			t.Fatalf("%s %s: unexpected error %q", rt.method, rt.path, msg)
		}
	}

	conv := decode[model.Conversation](t, doJSON(t, r, http.MethodGet, "/api/tickets/"+id, "", nil))
	if conv.Status != model.StatusActive || len(conv.Messages) != 0 {
		t.Fatalf("rejected requests must not change the ticket: %+v", conv)
	}
}

func TestPublicSupportMessageWithToken(t *testing.T) {
	r := newTestRouter(t, nil)
	token := login(t, r)
	id := decode[map[string]string](t, doJSON(t, r, http.MethodPost, "/api/tickets", "", map[string]string{"clientName": "Jordan"}))["ticketId"]

	w := doJSON(t, r, http.MethodPost, "/api/tickets/"+id+"/messages", token, map[string]string{"content": "On it", "sender": "support"})
	expectStatus(t, w, http.StatusOK)
	if msg := decode[model.Message](t, w); msg.Sender != model.SenderSupport {
		t.Fatalf("expected support sender, got %+v", msg)
	}
}

func TestLoginFailures(t *testing.T) {
	r := newTestRouter(t, nil)

	for _, creds := range []map[string]string{
		{"username": "admin", "password": "wrong"},
		{"username": "nobody", "password": adminPassword},
		{"username": "Admin", "password": adminPassword},
	} {
		w := doJSON(t, r, http.MethodPost, "/api/auth/login", "", creds)
		expectStatus(t, w, http.StatusUnauthorized)
		if msg := decode[map[string]string](t, w)["error"]; msg != "Invalid credentials" {
			t.Fatalf("unexpected error %q", msg)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestLoginRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(limiter.Stop)
	r := newTestRouter(t, limiter)

	creds := map[string]string{"username": "admin", "password": "wrong"}
	for i := 0; i < 2; i++ {
		expectStatus(t, doJSON(t, r, http.MethodPost, "/api/auth/login", "", creds), http.StatusUnauthorized)
	}
	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/auth/login", "", creds), http.StatusTooManyRequests)
}

func TestTicketErrors(t *testing.T) {
	r := newTestRouter(t, nil)
	token := login(t, r)

	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/tickets", "", map[string]string{"clientName": "   "}), http.StatusBadRequest)
	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/tickets", "", nil), http.StatusBadRequest)

	w := doJSON(t, r, http.MethodGet, "/api/tickets/NOPE0000", "", nil)
	expectStatus(t, w, http.StatusNotFound)
	if msg := decode[map[string]string](t, w)["error"]; msg != "Ticket not found" {
		t.Fatalf("unexpected error %q", msg)
	}
	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/tickets/NOPE0000/messages", "", map[string]string{"content": "hi"}), http.StatusNotFound)
	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/tickets/NOPE0000/reply", token, map[string]string{"content": "hi"}), http.StatusNotFound)
	expectStatus(t, doJSON(t, r, http.MethodPatch, "/api/tickets/NOPE0000", token, map[string]string{"status": "resolved"}), http.StatusNotFound)

	id := decode[map[string]string](t, doJSON(t, r, http.MethodPost, "/api/tickets", "", map[string]string{"clientName": "Jordan"}))["ticketId"]
	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/tickets/"+id+"/messages", "", map[string]string{"content": "  "}), http.StatusBadRequest)
	expectStatus(t, doJSON(t, r, http.MethodPost, "/api/tickets/"+id+"/messages", "", map[string]string{"content": "hi", "sender": "robot"}), http.StatusBadRequest)
	expectStatus(t, doJSON(t, r, http.MethodPatch, "/api/tickets/"+id, token, map[string]string{"status": "closed"}), http.StatusBadRequest)

	conv := decode[model.Conversation](t, doJSON(t, r, http.MethodGet, "/api/tickets/"+id, "", nil))
	if len(conv.Messages) != 0 || conv.Status != model.StatusActive {
		t.Fatalf("failed writes must leave the ticket untouched: %+v", conv)
	}
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/tickets/ABC", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Fatalf("Authorization not allowed: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
