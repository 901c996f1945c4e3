package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iconidentify/tokrelay/internal/config"
	"github.com/iconidentify/tokrelay/internal/domain"
	"github.com/iconidentify/tokrelay/internal/relay"
	"github.com/iconidentify/tokrelay/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockExtractor is a test implementation of extractor.Extractor.
type mockExtractor struct {
	mu    sync.Mutex
	info  *domain.Info
	err   error
	calls int
}

func (m *mockExtractor) Extract(ctx context.Context, url string) (*domain.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.info, m.err
}

func playableInfo(watermark bool) *domain.Info {
	return &domain.Info{Formats: []domain.Format{
		{ID: "play", Container: "mp4", VideoCodec: "h264", HasWatermark: watermark, Height: 720, AssetURL: "https://cdn.example/v.mp4"},
	}}
}

// trackedBody is a CDN response body that counts Close calls.
type trackedBody struct {
	r      io.Reader
	closes atomic.Int32
}

func (b *trackedBody) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *trackedBody) Close() error {
	b.closes.Add(1)
	return nil
}

type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// mockCDN answers every upstream request with a fresh tracked body.
type mockCDN struct {
	status      int
	contentType string
	newBody     func(r *http.Request) io.Reader

	mu     sync.Mutex
	bodies []*trackedBody
}

func (c *mockCDN) RoundTrip(r *http.Request) (*http.Response, error) {
	body := &trackedBody{r: c.newBody(r)}
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()

	h := http.Header{}
	h.Set("Content-Type", c.contentType)
	return &http.Response{
		StatusCode:    c.status,
		Header:        h,
		Body:          body,
		ContentLength: -1,
		Request:       r,
	}, nil
}

func (c *mockCDN) closeCounts() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make([]int32, len(c.bodies))
	for i, b := range c.bodies {
		counts[i] = b.closes.Load()
	}
	return counts
}

func newMockCDN(status int, contentType, payload string) *mockCDN {
	return &mockCDN{
		status:      status,
		contentType: contentType,
		newBody:     func(*http.Request) io.Reader { return strings.NewReader(payload) },
	}
}

// errReader fails every read.
type errReader struct{ err error }

func (r errReader) Read(p []byte) (int, error) { return 0, r.err }

// stallReader blocks until the upstream request is canceled.
type stallReader struct{ ctx context.Context }

func (r stallReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Timeout:      2 * time.Second,
		ChunkSize:    8192,
		Referer:      "https://www.tiktok.com/",
		OpenAttempts: 1,
	}
}

// newTestStreamHandler wires a real service and relay around the mocks.
func newTestStreamHandler(ex *mockExtractor, cdn *mockCDN) (*StreamHandler, *relay.Relay) {
	return newTestStreamHandlerWithConfig(ex, cdn, testRelayConfig())
}

func newTestStreamHandlerWithConfig(ex *mockExtractor, cdn *mockCDN, relayCfg config.RelayConfig) (*StreamHandler, *relay.Relay) {
	rl := relay.New(relayCfg, testLogger(), relay.WithHTTPClient(&http.Client{Transport: cdn}))
	svc := service.NewStreamService(ex, rl, config.ExtractorConfig{UserAgent: "test-agent"}, relayCfg, testLogger())
	return NewStreamHandler(svc, testLogger()), rl
}
