package ui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	h, err := Handler()
	require.NoError(t, err)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		contains string
		cache    string
	}{
		{"index", http.MethodGet, "/", http.StatusOK, "<title>pmdash</title>", "no-cache"},
		{"asset", http.MethodGet, "/app.js", http.StatusOK, "EventSource", "public, max-age=300"},
		{"client route", http.MethodGet, "/projects/P1", http.StatusOK, "<title>pmdash</title>", "no-cache"},
		{"board route", http.MethodGet, "/board", http.StatusOK, "<title>pmdash</title>", "no-cache"},
		{"missing asset", http.MethodGet, "/missing.png", http.StatusNotFound, "", ""},
		{"unknown api route", http.MethodGet, "/api/v1/nope", http.StatusNotFound, "", ""},
		{"missing file", http.MethodGet, "/files/u/x.png", http.StatusNotFound, "", ""},
		{"post", http.MethodPost, "/", http.StatusMethodNotAllowed, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
			if tt.cache != "" {
				assert.Equal(t, tt.cache, rec.Header().Get("Cache-Control"))
			}
		})
	}
}
