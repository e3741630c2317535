package httpapi

import (
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/seanotes/seanotes/internal/app/services/notes"
	"github.com/seanotes/seanotes/internal/app/services/search"
	"github.com/seanotes/seanotes/internal/errors"
	"github.com/seanotes/seanotes/internal/httputil"
)

type noteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type questionInput struct {
	Question string `json:"question"`
}

func (h *handler) listNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.app.Notes.List(r.Context(), userID(r), notes.ListQuery{
		Page:     httputil.QueryInt(r, "page", 1),
		PageSize: httputil.QueryInt(r, "pageSize", notes.DefaultPageSize),
		Search:   q.Get("search"),
		SortBy:   q.Get("sortBy"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) createNote(w http.ResponseWriter, r *http.Request) {
	var payload noteInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	n, err := h.app.Notes.Create(r.Context(), userID(r), payload.Title, payload.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *handler) getNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notes.Get(r.Context(), userID(r), pathVar(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) updateNote(w http.ResponseWriter, r *http.Request) {
	var payload notes.UpdateInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	n, err := h.app.Notes.Update(r.Context(), userID(r), pathVar(r, "id"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Notes.Delete(r.Context(), userID(r), pathVar(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) summarizeNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notes.GenerateSummary(r.Context(), userID(r), pathVar(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) clearSummary(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notes.ClearSummary(r.Context(), userID(r), pathVar(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) searchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, ok := parseDate(q.Get("from"), false)
	if !ok {
		h.writeError(w, r, errors.BadRequest("Invalid from date"))
		return
	}
	to, ok := parseDate(q.Get("to"), true)
	if !ok {
		h.writeError(w, r, errors.BadRequest("Invalid to date"))
		return
	}
	results, err := h.app.Search.Search(r.Context(), search.Query{
		UserID:    userID(r),
		Terms:     q.Get("q"),
		From:      from,
		To:        to,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Limit:     httputil.QueryInt(r, "limit", search.MaxResults),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results, "total": len(results)})
}

func (h *handler) queryNotes(w http.ResponseWriter, r *http.Request) {
	var payload questionInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	answer, err := h.app.Intel.Answer(r.Context(), userID(r), payload.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *handler) quickAnswer(w http.ResponseWriter, r *http.Request) {
	var payload questionInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	answer, err := h.app.Intel.QuickAnswer(r.Context(), userID(r), payload.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// summarizeContent summarises unsaved content and proposes a title for it.
func (h *handler) summarizeContent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		h.writeError(w, r, errors.BadRequest("Content is required"))
		return
	}
	if !h.app.AI.Configured() {
		h.writeError(w, r, errors.Unavailable("AI is not configured"))
		return
	}

	var summary, title string
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		summary, err = h.app.AI.GenerateSummary(ctx, payload.Content)
		return err
	})
	g.Go(func() error {
		title = h.app.AI.GenerateTitleWithFallback(ctx, payload.Content)
		return nil
	})
	if err := g.Wait(); err != nil {
		h.writeError(w, r, errors.Internal("AI generation failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary, "title": title})
}

func (h *handler) listEnvironments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	envs, err := h.app.Environments.List(r.Context(), userID(r), q.Get("search"), q.Get("sortBy"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"environments": envs})
}

func (h *handler) createEnvironment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	env, err := h.app.Environments.Create(r.Context(), userID(r), payload.Name, payload.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (h *handler) getEnvironment(w http.ResponseWriter, r *http.Request) {
	env, err := h.app.Environments.Get(r.Context(), userID(r), pathVar(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *handler) deleteEnvironment(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Environments.Delete(r.Context(), userID(r), pathVar(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
