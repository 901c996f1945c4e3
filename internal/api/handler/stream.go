package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/tokrelay/internal/domain"
	"github.com/iconidentify/tokrelay/internal/relay"
	"github.com/iconidentify/tokrelay/internal/service"
)

// StreamHandler relays TikTok videos to the caller.
type StreamHandler struct {
	streamSvc *service.StreamService
	logger    *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(streamSvc *service.StreamService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		streamSvc: streamSvc,
		logger:    logger,
	}
}

// StreamRequest is the JSON request body for POST /tiktok/stream.
type StreamRequest struct {
	URL *string `json:"url"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error       string  `json:"error"`
	Details     string  `json:"details,omitempty"`
	StatusCode  *int    `json:"status_code,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
}

// Stream handles POST /tiktok/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == nil {
		h.writeDomainError(w, domain.NewError(domain.KindInputInvalid, "decode request", domain.ErrMissingURL))
		return
	}

	prepared, err := h.streamSvc.Prepare(r.Context(), *req.URL)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	stream := prepared.Stream

	// Range requests are not honored; the full asset is always sent.
	header := w.Header()
	header.Set("Content-Type", "video/mp4")
	header.Set("Content-Disposition", "attachment; filename=tiktok.mp4")
	header.Set("Accept-Ranges", "bytes")
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Watermark", strconv.FormatBool(prepared.Watermarked))
	w.WriteHeader(http.StatusOK)

	// Status and headers are committed; a failure from here on can only
	// abort the connection so the client sees a truncated transfer.
	res, err := stream.CopyTo(w)
	if err != nil {
		if !relay.IsClientGone(err) {
			h.logger.Warn("stream aborted mid-flight",
				"stream_id", stream.ID,
				"bytes", res.Bytes,
				"reason", string(res.Reason),
				"error", err,
			)
		}
		panic(http.ErrAbortHandler)
	}
}

func (h *StreamHandler) writeDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.NewError(domain.KindInternal, "stream", err)
	}

	switch de.Kind {
	case domain.KindInputInvalid:
		msg := "Invalid TikTok URL"
		if errors.Is(de, domain.ErrMissingURL) {
			msg = "Missing url"
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})

	case domain.KindResolutionFailed:
		msg := "No playable video"
		if errors.Is(de, domain.ErrNoFormats) {
			msg = "No formats found"
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: msg})

	case domain.KindUpstreamRejected:
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:       "TikTok CDN blocked this server/IP",
			StatusCode:  &de.StatusCode,
			ContentType: &de.ContentType,
		})

	case domain.KindExtractorFailed:
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:   "TikTok blocked or video unavailable",
			Details: detailsOf(de),
		})

	default:
		h.logger.Error("stream request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal server error",
			Details: detailsOf(de),
		})
	}
}

func detailsOf(de *domain.Error) string {
	if de.Details != "" {
		return de.Details
	}
	return de.Err.Error()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
