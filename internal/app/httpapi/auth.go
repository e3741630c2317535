package httpapi

import (
	"net/http"

	"github.com/seanotes/seanotes/internal/app/domain/user"
	"github.com/seanotes/seanotes/internal/app/services/auth"
	"github.com/seanotes/seanotes/internal/app/services/users"
	"github.com/seanotes/seanotes/internal/httputil"
)

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var payload auth.SignUpInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	u, err := h.app.Auth.SignUp(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": u})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	session, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *handler) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.Auth.RequestMagicLink(r.Context(), payload.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handler) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	session, err := h.app.Auth.VerifyMagicLink(r.Context(), payload.Email, payload.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.Auth.VerifyEmail(r.Context(), payload.Token); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.Auth.ForgotPassword(r.Context(), payload.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.app.Auth.ResetPassword(r.Context(), payload.Token, payload.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var payload users.ProfileInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	u, err := h.app.Users.UpdateProfile(r.Context(), userID(r), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) preferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.app.Users.Preferences(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var payload user.Preferences
	if !decodeJSON(w, r, &payload) {
		return
	}
	prefs, err := h.app.Users.UpdatePreferences(r.Context(), userID(r), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.app.Users.List(r.Context(), users.AdminQuery{
		Page:         httputil.QueryInt(r, "page", 1),
		PageSize:     httputil.QueryInt(r, "pageSize", users.DefaultPageSize),
		SearchName:   q.Get("searchName"),
		FilterPlan:   q.Get("filterPlan"),
		FilterStatus: q.Get("filterStatus"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var payload users.AdminUpdate
	if !decodeJSON(w, r, &payload) {
		return
	}
	updated, err := h.app.Users.Update(r.Context(), pathVar(r, "id"), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
