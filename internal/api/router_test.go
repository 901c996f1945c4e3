package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/tokrelay/internal/api/handler"
	"github.com/iconidentify/tokrelay/internal/config"
	"github.com/iconidentify/tokrelay/internal/domain"
	"github.com/iconidentify/tokrelay/internal/relay"
	"github.com/iconidentify/tokrelay/internal/service"
)

type stubExtractor struct {
	info *domain.Info
}

func (s stubExtractor) Extract(ctx context.Context, url string) (*domain.Info, error) {
	return s.info, nil
}

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("video bytes"))
	}))
	t.Cleanup(cdn.Close)

	ex := stubExtractor{info: &domain.Info{Formats: []domain.Format{
		{Container: "mp4", VideoCodec: "h264", Height: 720, AssetURL: cdn.URL},
	}}}

	relayCfg := config.RelayConfig{Timeout: 2 * time.Second, ChunkSize: 8192, OpenAttempts: 1}
	rl := relay.New(relayCfg, logger)
	svc := service.NewStreamService(ex, rl, config.ExtractorConfig{UserAgent: "test"}, relayCfg, logger)

	return NewRouter(handler.NewStreamHandler(svc, logger), handler.NewHealthHandler(rl), apiKey, logger)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, "")

	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "//health", "", http.StatusOK},
		{http.MethodGet, "/stats", "", http.StatusOK},
		{http.MethodPost, "/tiktok/stream", `{"url":"https://www.tiktok.com/@u/video/1"}`, http.StatusOK},
		{http.MethodPost, "/tiktok/stream", `{}`, http.StatusBadRequest},
		{http.MethodGet, "/tiktok/stream", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
		{http.MethodOptions, "/tiktok/stream", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestRouter_StreamBody(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/tiktok/stream", strings.NewReader(`{"url":"https://vm.tiktok.com/x/"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Body.String() != "video bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
	if w.Header().Get("X-Watermark") != "false" {
		t.Errorf("X-Watermark = %q", w.Header().Get("X-Watermark"))
	}
	if !w.Flushed {
		t.Error("flush should pass through the middleware chain")
	}
}

func TestRouter_APIKey(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/tiktok/stream", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/tiktok/stream", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("with key: status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	// Health endpoints stay open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_StatsReflectStreams(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/tiktok/stream", strings.NewReader(`{"url":"https://www.tiktok.com/@u/video/1"}`))
	router.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var stats handler.SystemStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Streams.Opened != 1 || stats.Streams.Active != 0 || stats.Streams.Released != 1 {
		t.Errorf("streams = %+v", stats.Streams)
	}
}
