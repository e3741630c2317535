package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/seanotes/seanotes/internal/app"
	"github.com/seanotes/seanotes/internal/app/domain/note"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/ai"
	"github.com/seanotes/seanotes/internal/app/services/auth"
	"github.com/seanotes/seanotes/internal/app/services/noteintel"
	"github.com/seanotes/seanotes/internal/app/storage/memory"
	"github.com/seanotes/seanotes/internal/config"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/middleware"
)

const testSecret = "handler-test-secret-0123456789abcdef"

type testAPI struct {
	app     *app.Application
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithStores(t, app.Stores{})
}

func newTestAPIWithStores(t *testing.T, stores app.Stores) *testAPI {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.Secret = testSecret
	cfg.Auth.AdminEmails = "admin@example.com"
	cfg.Server.AllowedOrigins = "https://app.example.com"
	cfg.Server.BaseURL = "https://app.example.com"

	application, err := app.New(cfg, stores, app.Dependencies{AI: ai.NewLocalProvider()}, logging.NewDiscard())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return &testAPI{app: application, handler: NewHandler(application)}
}

// signUp creates a verified user and returns a bearer token for it.
func (a *testAPI) signUp(t *testing.T, email string) (user.User, string) {
	t.Helper()
	u, err := a.app.Auth.SignUp(context.Background(), auth.SignUpInput{Name: "Test", Email: email, Password: "Password123!"})
	require.NoError(t, err)
	token, _, err := middleware.SignToken([]byte(testSecret), middleware.Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
	}, time.Hour)
	require.NoError(t, err)
	return u, token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSignUpLoginAndMe(t *testing.T) {
	api := newTestAPI(t)
	creds := map[string]string{"name": "Ada", "email": "Ada@Example.com", "password": "Password123!"}

	rec := api.do(t, http.MethodPost, "/auth/signup", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		User user.User `json:"user"`
	}](t, rec)
	assert.Equal(t, "ada@example.com", created.User.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.do(t, http.MethodPost, "/auth/signup", "", creds)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Password123!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode[auth.Session](t, rec)
	require.NotEmpty(t, session.Token)

	rec = api.do(t, http.MethodGet, "/me", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[user.User](t, rec)
	assert.Equal(t, created.User.ID, me.ID)
}

func TestRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@b.c", "password": "x", "extra": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/notes", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/notes", "not-a-jwt", nil).Code)
}

func TestNotesCRUD(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signUp(t, "writer@example.com")

	rec := api.do(t, http.MethodPost, "/notes", token, map[string]string{"title": "Groceries", "content": "milk\neggs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]interface{}](t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = api.do(t, http.MethodPost, "/notes", token, map[string]string{"title": "Empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/notes?page=1&pageSize=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Notes []map[string]interface{} `json:"notes"`
		Total int                      `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Notes, 1)

	rec = api.do(t, http.MethodPut, "/notes/"+id, token, map[string]string{"title": "Shopping"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Shopping", decode[map[string]interface{}](t, rec)["title"])

	rec = api.do(t, http.MethodGet, "/notes/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "Shopping", got["title"])
	assert.Equal(t, "milk\neggs", got["content"])

	rec = api.do(t, http.MethodDelete, "/notes/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/notes/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteOwnership(t *testing.T) {
	api := newTestAPI(t)
	_, owner := api.signUp(t, "owner@example.com")
	_, other := api.signUp(t, "other@example.com")

	rec := api.do(t, http.MethodPost, "/notes", owner, map[string]string{"title": "Private", "content": "secret"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]interface{}](t, rec)["id"].(string)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/notes/"+id, other, nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodDelete, "/notes/"+id, other, nil).Code)

	rec = api.do(t, http.MethodGet, "/notes", other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, rec)["total"])
}

func TestSearchRejectsBadDates(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signUp(t, "search@example.com")

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/notes/search?from=yesterday", token, nil).Code)

	rec := api.do(t, http.MethodGet, "/notes/search?q=milk&from=2024-01-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, rec)["total"])
}

func TestParseDate(t *testing.T) {
	from, ok := parseDate("2024-03-02", false)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), from)

	to, ok := parseDate("2024-03-02", true)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 2, 23, 59, 59, 999999999, time.UTC), to)

	exact, ok := parseDate("2024-03-02T10:00:00Z", true)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), exact)

	_, ok = parseDate("03/02/2024", false)
	assert.False(t, ok)
}

func TestSearchDateRangeIncludesWholeEndDay(t *testing.T) {
	mem := memory.New()
	api := newTestAPIWithStores(t, app.Stores{Notes: mem})
	_, err := mem.CreateNote(context.Background(), note.Note{
		UserID:    "user-1",
		Title:     "Standup",
		Content:   "ship the release",
		CreatedAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	token, _, err := middleware.SignToken([]byte(testSecret), middleware.Claims{UserID: "user-1", Role: string(user.RoleUser)}, time.Hour)
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/notes/search?q=release&from=2024-03-02&to=2024-03-02", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decode[map[string]interface{}](t, rec)["total"])

	rec = api.do(t, http.MethodGet, "/notes/search?q=release&to=2024-03-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, rec)["total"])
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	_, userToken := api.signUp(t, "member@example.com")
	admin, adminToken := api.signUp(t, "admin@example.com")
	require.Equal(t, user.RoleAdmin, admin.Role)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/users", userToken, nil).Code)

	rec := api.do(t, http.MethodGet, "/users?page=1&pageSize=10", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode[map[string]interface{}](t, rec)["total"])
}

func TestStrictRateLimit(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]string{"email": "nobody@example.com", "password": "wrong-password"}

	for i := 0; i < 10; i++ {
		rec := api.do(t, http.MethodPost, "/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code, fmt.Sprintf("attempt %d", i+1))
	}
	rec := api.do(t, http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestSystemStatus(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/system-status?refresh=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	report := decode[struct {
		Services []struct {
			Name      string `json:"name"`
			Connected bool   `json:"connected"`
			Required  bool   `json:"required"`
		} `json:"services"`
		Status string `json:"status"`
	}](t, rec)
	assert.Equal(t, "ok", report.Status)
	assert.Len(t, report.Services, 7)
	for _, s := range report.Services {
		if s.Required {
			assert.True(t, s.Connected, s.Name)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/notes", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/notes", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSummarizeContent(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signUp(t, "summary@example.com")

	rec := api.do(t, http.MethodPost, "/ai/summary", token, map[string]string{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/ai/summary", token, map[string]string{"content": "Quarterly planning notes\nShip search"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string]string](t, rec)
	assert.NotEmpty(t, out["summary"])
	assert.NotEmpty(t, out["title"])
}

func TestQuickAnswerWithoutNotes(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signUp(t, "qa@example.com")

	rec := api.do(t, http.MethodPost, "/notes/qa", token, map[string]string{"question": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/notes/qa", token, map[string]string{"question": "What did I buy?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, noteintel.NoQuickNotesAnswer, decode[map[string]string](t, rec)["answer"])
}

func TestBillingDefaults(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signUp(t, "payer@example.com")

	rec := api.do(t, http.MethodGet, "/billing/subscription", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"FREE"`)

	rec = api.do(t, http.MethodGet, "/billing/plans", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plans")

	rec = api.do(t, http.MethodGet, "/billing/invoices/INV-missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[map[string]interface{}](t, rec)["code"])
}
