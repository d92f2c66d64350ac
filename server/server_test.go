package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/srpbotz/srpbotz/bot"
	"github.com/srpbotz/srpbotz/config"
)

func newTestMux(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{TwitchClientID: "cid", TwitchToken: "tok"}
	return NewMux(bot.New(cfg, nil))
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestMux(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyzBeforeJoin(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestMux(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before the first join", rr.Code)
	}
}

func TestStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestMux(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var st bot.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Ready {
		t.Error("ready = true before any join")
	}
	if st.Chat != "disconnected" || st.EventSub != "disconnected" {
		t.Errorf("states = %q/%q", st.Chat, st.EventSub)
	}
}

func TestMetricsExposed(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestMux(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	mux := newTestMux(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	mux.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("echoed correlation id = %q", got)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rr.Header().Get("X-Correlation-ID"); got == "" {
		t.Error("no correlation id generated")
	}
}
