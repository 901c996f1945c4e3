// Package relay fetches a media asset from the CDN and re-streams it to a client.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/iconidentify/tokrelay/internal/config"
	"github.com/iconidentify/tokrelay/internal/domain"
)

const opOpen = "relay open"

// Stats is a snapshot of the relay's stream counters.
type Stats struct {
	Opened   int64 `json:"opened"`
	Active   int64 `json:"active"`
	Released int64 `json:"released"`
	Rejected int64 `json:"rejected"`
}

// Relay opens upstream CDN streams. Each Stream owns its own connection;
// keep-alives are disabled so nothing is shared between requests.
type Relay struct {
	client *http.Client
	cfg    config.RelayConfig
	logger *slog.Logger

	opened   atomic.Int64
	active   atomic.Int64
	released atomic.Int64
	rejected atomic.Int64
}

// Option configures a Relay.
type Option func(*Relay)

// WithHTTPClient replaces the upstream HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) {
		r.client = c
	}
}

// New creates a relay bounded by cfg.Timeout for connect, response
// headers and the gap between body reads.
func New(cfg config.RelayConfig, logger *slog.Logger, opts ...Option) *Relay {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	if cfg.OpenAttempts == 0 {
		cfg.OpenAttempts = 1
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		DisableKeepAlives:     true,
		DisableCompression:    true,
	}

	maxRedirects := cfg.MaxRedirects
	r := &Relay{
		client: &http.Client{
			Transport: transport,
			// No overall Timeout: bodies are long lived, reads are bounded per chunk.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		cfg:    cfg,
		logger: logger,
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open issues the upstream GET and validates the response. The returned
// Stream must be consumed with CopyTo or released with Close.
//
// A response that is not a 200 with a video content type yields a
// KindUpstreamRejected error; the connection is released before returning.
func (r *Relay) Open(ctx context.Context, assetURL string, headers map[string]string) (*Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := retry.DoWithData(
		func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, assetURL, nil)
			if err != nil {
				return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			resp, err := r.client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("send request: %w", err)
			}
			return resp, nil
		},
		retry.Context(streamCtx),
		retry.Attempts(r.cfg.OpenAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Request build errors are unrecoverable; a client that left is not retried.
			return retry.IsRecoverable(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("upstream open failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		cancel()
		return nil, domain.NewError(domain.KindInternal, opOpen, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.Contains(contentType, "video") {
		resp.Body.Close()
		cancel()
		r.rejected.Add(1)
		r.logger.Warn("upstream rejected",
			"status_code", resp.StatusCode,
			"content_type", contentType,
		)
		return nil, domain.NewUpstreamRejected(opOpen, resp.StatusCode, contentType)
	}

	s := newStream(ctx, r, cancel, resp)
	r.opened.Add(1)
	r.active.Add(1)

	r.logger.Info("upstream stream opened",
		"stream_id", s.ID,
		"content_type", contentType,
		"content_length", resp.ContentLength,
	)
	return s, nil
}

// Stats returns the current counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Opened:   r.opened.Load(),
		Active:   r.active.Load(),
		Released: r.released.Load(),
		Rejected: r.rejected.Load(),
	}
}

func (r *Relay) streamReleased() {
	r.active.Add(-1)
	r.released.Add(1)
}

func newStreamID() string {
	return uuid.NewString()
}

// IsClientGone reports whether err came from the client side of a copy.
func IsClientGone(err error) bool {
	return errors.Is(err, errClientGone)
}
