package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "allowed origin",
			allowed:    []string{"http://localhost:3000"},
			origin:     "http://localhost:3000",
			method:     "GET",
			wantOrigin: "http://localhost:3000",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown origin",
			allowed:    []string{"http://localhost:3000"},
			origin:     "http://evil.example",
			method:     "GET",
			wantOrigin: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "subdomain wildcard",
			allowed:    []string{".seanotes.app"},
			origin:     "https://www.seanotes.app",
			method:     "GET",
			wantOrigin: "https://www.seanotes.app",
			wantStatus: http.StatusOK,
		},
		{
			name:       "allow all",
			allowed:    []string{"*"},
			origin:     "https://anything.example",
			method:     "GET",
			wantOrigin: "https://anything.example",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight",
			allowed:    []string{"http://localhost:3000"},
			origin:     "http://localhost:3000",
			method:     "OPTIONS",
			wantOrigin: "http://localhost:3000",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCORSMiddleware(tt.allowed).Handler(okHandler())

			req := httptest.NewRequest(tt.method, "/notes", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}
