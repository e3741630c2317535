// Package httpapi exposes the SeaNotes REST API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/seanotes/seanotes/internal/app"
	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/events"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/httputil"
	"github.com/seanotes/seanotes/internal/logging"
	"github.com/seanotes/seanotes/internal/middleware"
	"github.com/seanotes/seanotes/internal/ratelimit"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app    *app.Application
	events *events.Handler
	log    *logging.Logger
}

// NewHandler returns the router exposing the REST API, wrapped in recovery,
// request logging and CORS.
func NewHandler(application *app.Application) http.Handler {
	log := application.Logger().Named("http")
	cfg := application.Config
	h := &handler{
		app:    application,
		events: events.NewHandler(application.Hub, events.DefaultPingInterval, cfg.Server.Origins()),
		log:    log,
	}

	authMW := middleware.NewAuthMiddleware([]byte(cfg.Auth.Secret), log, nil).
		AllowQueryToken("/events", "/events/ws")
	limit := func(p ratelimit.Policy) func(http.Handler) http.Handler {
		return middleware.NewRateLimiter(application.Limiter, p, log, application.Metrics).Handler
	}
	strict := limit(ratelimit.Strict)
	reset := limit(ratelimit.PasswordReset)
	general := limit(ratelimit.General)
	admin := middleware.RequireRole(string(user.RoleAdmin))

	// public wraps a handler without authentication.
	public := func(fn http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
		return chain(fn, mws...)
	}
	// authed runs auth before any other middleware so limits key on the user.
	authed := func(fn http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
		return authMW.Handler(chain(fn, mws...))
	}

	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware(application.Metrics))

	r.Handle("/health", public(h.health)).Methods(http.MethodGet)
	r.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/system-status", public(h.systemStatus)).Methods(http.MethodGet)

	r.Handle("/auth/signup", public(h.signUp, strict)).Methods(http.MethodPost)
	r.Handle("/auth/login", public(h.login, strict)).Methods(http.MethodPost)
	r.Handle("/auth/magic-link", public(h.requestMagicLink, reset)).Methods(http.MethodPost)
	r.Handle("/auth/magic-link/verify", public(h.verifyMagicLink, strict)).Methods(http.MethodPost)
	r.Handle("/auth/verify-email", public(h.verifyEmail, strict)).Methods(http.MethodPost)
	r.Handle("/auth/forgot-password", public(h.forgotPassword, reset)).Methods(http.MethodPost)
	r.Handle("/auth/reset-password", public(h.resetPassword, reset)).Methods(http.MethodPost)

	r.Handle("/me", authed(h.me)).Methods(http.MethodGet)
	r.Handle("/me", authed(h.updateMe)).Methods(http.MethodPatch)
	r.Handle("/me/preferences", authed(h.preferences)).Methods(http.MethodGet)
	r.Handle("/me/preferences", authed(h.updatePreferences)).Methods(http.MethodPut)

	r.Handle("/users", authed(h.listUsers, admin)).Methods(http.MethodGet)
	r.Handle("/users/{id}", authed(h.updateUser, admin)).Methods(http.MethodPatch)

	// fixed note paths are registered before /notes/{id}
	r.Handle("/notes/search", authed(h.searchNotes)).Methods(http.MethodGet)
	r.Handle("/notes/query", authed(h.queryNotes, general)).Methods(http.MethodPost)
	r.Handle("/notes/qa", authed(h.quickAnswer, general)).Methods(http.MethodPost)
	r.Handle("/notes", authed(h.listNotes)).Methods(http.MethodGet)
	r.Handle("/notes", authed(h.createNote)).Methods(http.MethodPost)
	r.Handle("/notes/{id}", authed(h.getNote)).Methods(http.MethodGet)
	r.Handle("/notes/{id}", authed(h.updateNote)).Methods(http.MethodPut)
	r.Handle("/notes/{id}", authed(h.deleteNote)).Methods(http.MethodDelete)
	r.Handle("/notes/{id}/summary", authed(h.summarizeNote, general)).Methods(http.MethodPost)
	r.Handle("/notes/{id}/summary", authed(h.clearSummary, general)).Methods(http.MethodDelete)

	r.Handle("/ai/summary", authed(h.summarizeContent, general)).Methods(http.MethodPost)

	r.Handle("/environments", authed(h.listEnvironments)).Methods(http.MethodGet)
	r.Handle("/environments", authed(h.createEnvironment)).Methods(http.MethodPost)
	r.Handle("/environments/{id}", authed(h.getEnvironment)).Methods(http.MethodGet)
	r.Handle("/environments/{id}", authed(h.deleteEnvironment)).Methods(http.MethodDelete)

	r.Handle("/events", authed(h.eventStream)).Methods(http.MethodGet)
	r.Handle("/events/ws", authed(h.eventSocket)).Methods(http.MethodGet)

	r.Handle("/billing/subscription", authed(h.subscription)).Methods(http.MethodGet)
	r.Handle("/billing/plans", authed(h.plans)).Methods(http.MethodGet)
	r.Handle("/billing/generate-invoice", authed(h.generateInvoice, general)).Methods(http.MethodPost)
	r.Handle("/billing/invoices", authed(h.listInvoices)).Methods(http.MethodGet)
	r.Handle("/billing/invoices/{number}", authed(h.invoiceURL)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// CORS sits outside the router so preflight requests never reach method matching.
	var out http.Handler = r
	out = middleware.NewCORSMiddleware(cfg.Server.Origins()).Handler(out)
	out = middleware.LoggingMiddleware(log)(out)
	out = middleware.RecoveryMiddleware(log)(out)
	return out
}

func chain(fn http.HandlerFunc, mws ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = fn
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	report := h.app.Status.Report(r.Context(), httputil.QueryBool(r, "refresh"))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) eventStream(w http.ResponseWriter, r *http.Request) {
	h.events.ServeSSE(w, r, middleware.GetUserID(r.Context()))
}

func (h *handler) eventSocket(w http.ResponseWriter, r *http.Request) {
	h.events.ServeWebSocket(w, r, middleware.GetUserID(r.Context()))
}

const dateLayout = "2006-01-02"

// success is the body of endpoints with nothing else to report.
var success = map[string]bool{"success": true}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := httputil.DecodeJSON(w, r, dst); err != nil {
		httputil.WriteServiceError(w, r, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

// writeError logs unexpected failures and writes the client-safe error body.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("Request failed")
	}
	httputil.WriteServiceError(w, r, err)
}

func userID(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain date used as
// an upper bound covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, true
}
