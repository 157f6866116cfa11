package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/vectorizer/infrastructure/api"
)

func TestAPIServer_ReadEndpointsOpen_WriteEndpointsProtected(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), []string{"test-secret-key"}, "1.0.0").Handler()

	tests := []struct {
		name   string
		method string
		target string
		key    string
		want   int
	}{
		{"docs open", http.MethodGet, "/docs/", "", http.StatusOK},
		{"list open", http.MethodGet, "/api/v1/vectorizers", "", http.StatusOK},
		{"get open", http.MethodGet, "/api/v1/vectorizers/1", "", http.StatusNotFound},
		{"create without key", http.MethodPost, "/api/v1/vectorizers", "", http.StatusUnauthorized},
		{"create with wrong key", http.MethodPost, "/api/v1/vectorizers", "nope", http.StatusUnauthorized},
		{"drop without key", http.MethodDelete, "/api/v1/vectorizers/1", "", http.StatusUnauthorized},
		{"drop with key", http.MethodDelete, "/api/v1/vectorizers/1", "test-secret-key", http.StatusNotFound},
		{"execute without key", http.MethodPost, "/api/v1/vectorizers/1/execute", "", http.StatusUnauthorized},
		{"run with key", http.MethodPost, "/api/v1/vectorizers/1/run", "test-secret-key", http.StatusNotFound},
		{"enable without key", http.MethodPost, "/api/v1/vectorizers/1/schedule/enable", "", http.StatusUnauthorized},
		{"mcp without key", http.MethodPost, "/mcp", "", http.StatusUnauthorized},
		{"mcp get without key", http.MethodGet, "/mcp", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.key != "" {
				req.Header.Set("X-API-KEY", tt.key)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAPIServer_CreateWithKeyPassesAuth(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), []string{"test-secret-key"}, "1.0.0").Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vectorizers", strings.NewReader(`{"config":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", "test-secret-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestAPIServer_Health(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), nil, "1.0.0").Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "health-check")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "health-check", w.Header().Get("X-Correlation-ID"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestAPIServer_OpenAPISpec(t *testing.T) {
	handler := api.NewAPIServer(newTestClient(t), nil, "1.0.0").Handler()

	req := httptest.NewRequest(http.MethodGet, "/docs/openapi.json", nil)
	req.Host = "vectors.example.com"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var spec struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spec))
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://vectors.example.com/api/v1", spec.Servers[0].URL)
	assert.Contains(t, spec.Paths, "/vectorizers/{id}/pending")
}
