// Package testutil provides shared test fixtures: a mock Helix server with
// canned responses for the endpoints the bot exercises.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockHelixServer is a test server that mocks Helix API responses. Handlers
// are keyed by URL path; unhandled paths return 404.
type MockHelixServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockHelixServer creates a new mock Helix API server. It is closed
// automatically when the test finishes.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUsers adds a handler for the /users endpoint returning the given rows.
func (m *MockHelixServer) MockUsers(rows ...map[string]string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"data": rows})
	}
}

// MockModerators adds a handler for the /moderation/moderators endpoint.
func (m *MockHelixServer) MockModerators(rows ...map[string]string) {
	m.Handlers["/moderation/moderators"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"data": rows})
	}
}

// MockValidate adds a handler for the /validate token-introspection endpoint.
func (m *MockHelixServer) MockValidate(login, userID string) {
	m.Handlers["/validate"] = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"client_id": "testclient",
			"login":     login,
			"user_id":   userID,
			"scopes":    []string{"chat:read", "chat:edit"},
		})
	}
}

// MockStatus makes a path answer with a bare status code.
func (m *MockHelixServer) MockStatus(path string, status int) {
	m.Handlers[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
