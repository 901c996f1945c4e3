package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var errClientGone = errors.New("client went away")

// ErrIdleTimeout is returned when the upstream sends nothing for the relay timeout.
var ErrIdleTimeout = errors.New("upstream idle timeout")

// Reason describes why a copy ended.
type Reason string

const (
	ReasonComplete      Reason = "complete"
	ReasonClientGone    Reason = "client_gone"
	ReasonUpstreamError Reason = "upstream_error"
	ReasonIdleTimeout   Reason = "idle_timeout"
)

// CopyResult summarizes a finished copy.
type CopyResult struct {
	Bytes    int64
	Chunks   int
	Duration time.Duration
	Reason   Reason
}

// Stream is a validated upstream response owned by a single client request.
type Stream struct {
	ID            string
	ContentType   string
	ContentLength int64

	relay  *Relay
	ctx    context.Context // client request context
	cancel context.CancelFunc
	body   io.ReadCloser

	chunkSize int
	idle      time.Duration
	idleTimer *time.Timer
	idleFired atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

func newStream(ctx context.Context, r *Relay, cancel context.CancelFunc, resp *http.Response) *Stream {
	s := &Stream{
		ID:            newStreamID(),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		relay:         r,
		ctx:           ctx,
		cancel:        cancel,
		body:          resp.Body,
		chunkSize:     r.cfg.ChunkSize,
		idle:          r.cfg.Timeout,
	}
	s.idleTimer = time.AfterFunc(time.Hour, func() {
		s.idleFired.Store(true)
		s.cancel()
	})
	s.idleTimer.Stop()
	return s
}

// Close releases the upstream connection. It is safe to call more than once;
// only the first call has an effect.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.idleTimer.Stop()
		s.cancel()
		s.closeErr = s.body.Close()
		s.relay.streamReleased()
	})
	return s.closeErr
}

// readChunk reads once from upstream with the idle timer armed.
func (s *Stream) readChunk(buf []byte) (int, error) {
	if s.idle > 0 {
		s.idleTimer.Reset(s.idle)
		defer s.idleTimer.Stop()
	}
	return s.body.Read(buf)
}

// CopyTo forwards the upstream body to w in fixed-size chunks, flushing
// after every chunk when w supports it. The stream is closed on return
// regardless of outcome.
//
// Once bytes have been written the caller can no longer change the
// response status; a failed copy only truncates the body.
func (s *Stream) CopyTo(w io.Writer) (res CopyResult, err error) {
	start := time.Now()
	defer func() {
		s.Close()
		res.Duration = time.Since(start)
		s.logFinished(res, err)
	}()

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, s.chunkSize)

	for {
		if s.ctx.Err() != nil {
			res.Reason = ReasonClientGone
			return res, fmt.Errorf("%w: %v", errClientGone, s.ctx.Err())
		}

		n, rerr := s.readChunk(buf)
		if n > 0 {
			if res.Chunks == 0 {
				s.sniff(buf[:n])
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				res.Reason = ReasonClientGone
				return res, fmt.Errorf("%w: %v", errClientGone, werr)
			}
			res.Bytes += int64(n)
			res.Chunks++
			if flusher != nil {
				flusher.Flush()
			}
		}

		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			res.Reason = ReasonComplete
			return res, nil
		}

		switch {
		case s.idleFired.Load():
			res.Reason = ReasonIdleTimeout
			return res, fmt.Errorf("%w after %v", ErrIdleTimeout, s.idle)
		case s.ctx.Err() != nil:
			res.Reason = ReasonClientGone
			return res, fmt.Errorf("%w: %v", errClientGone, s.ctx.Err())
		default:
			res.Reason = ReasonUpstreamError
			return res, fmt.Errorf("read upstream: %w", rerr)
		}
	}
}

// sniff logs the detected type of the first chunk so mislabeled CDN
// responses show up in the logs.
func (s *Stream) sniff(chunk []byte) {
	detected := mimetype.Detect(chunk)
	if !detected.Is("video/mp4") {
		s.relay.logger.Debug("first chunk is not mp4",
			"stream_id", s.ID,
			"declared", s.ContentType,
			"detected", detected.String(),
		)
	}
}

func (s *Stream) logFinished(res CopyResult, err error) {
	attrs := []any{
		"stream_id", s.ID,
		"bytes", res.Bytes,
		"chunks", res.Chunks,
		"duration", res.Duration,
		"reason", string(res.Reason),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}

	if res.Reason == ReasonComplete || res.Reason == ReasonClientGone {
		s.relay.logger.Info("stream finished", attrs...)
		return
	}
	s.relay.logger.Warn("stream finished", attrs...)
}
