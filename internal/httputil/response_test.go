package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seanotes/seanotes/internal/errors"
)

func TestWriteServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notes/1", nil)

	WriteServiceError(rec, req, fmt.Errorf("wrapped: %w", errors.NotFound("Note")))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Note not found" || body.Code != "NOT_FOUND" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestWriteServiceErrorHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal cause leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(`{"title":"a","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &dst)
	if errors.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(""))
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notes?page=3&pageSize=-1&bad=x", nil)
	if got := QueryInt(req, "page", 1); got != 3 {
		t.Errorf("page = %d, want 3", got)
	}
	if got := QueryInt(req, "pageSize", 10); got != 10 {
		t.Errorf("pageSize = %d, want 10", got)
	}
	if got := QueryInt(req, "bad", 7); got != 7 {
		t.Errorf("bad = %d, want 7", got)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	if err != nil || !truncated || string(data) != "abcd" {
		t.Fatalf("got %q truncated=%v err=%v", data, truncated, err)
	}
	if _, err := ReadAllStrict(strings.NewReader("abcdef"), 4); err == nil {
		t.Fatal("expected strict read to fail")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Errorf("ClientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q", got)
	}
}
