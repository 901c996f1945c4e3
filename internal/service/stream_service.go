package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"

	"github.com/iconidentify/tokrelay/internal/config"
	"github.com/iconidentify/tokrelay/internal/domain"
	"github.com/iconidentify/tokrelay/internal/extractor"
	"github.com/iconidentify/tokrelay/internal/relay"
	"github.com/iconidentify/tokrelay/internal/selector"
)

var tiktokURLPattern = regexp.MustCompile(`(vm\.tiktok\.com|tiktok\.com)`)

// Opener opens validated upstream streams.
type Opener interface {
	Open(ctx context.Context, assetURL string, headers map[string]string) (*relay.Stream, error)
}

// StreamService resolves a source URL and opens the chosen asset for relaying.
type StreamService struct {
	extractor extractor.Extractor
	opener    Opener
	userAgent string
	referer   string
	logger    *slog.Logger
}

// NewStreamService creates a new stream service.
func NewStreamService(
	ex extractor.Extractor,
	opener Opener,
	extractorCfg config.ExtractorConfig,
	relayCfg config.RelayConfig,
	logger *slog.Logger,
) *StreamService {
	ua := extractorCfg.UserAgent
	if ua == "" {
		ua = config.MobileUserAgent
	}
	return &StreamService{
		extractor: ex,
		opener:    opener,
		userAgent: ua,
		referer:   relayCfg.Referer,
		logger:    logger,
	}
}

// Prepared is an open upstream stream plus the decision that produced it.
type Prepared struct {
	Stream      *relay.Stream
	Format      domain.Format
	Watermarked bool
}

// ValidateURL checks that sourceURL points at TikTok.
func ValidateURL(sourceURL string) error {
	if !tiktokURLPattern.MatchString(sourceURL) {
		return domain.NewError(domain.KindInputInvalid, "validate url", domain.ErrInvalidURL)
	}
	return nil
}

// Prepare runs validation, extraction, selection and the upstream open in
// order. On success the caller owns the returned stream.
func (s *StreamService) Prepare(ctx context.Context, sourceURL string) (*Prepared, error) {
	if err := ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	info, err := s.extractor.Extract(ctx, sourceURL)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.NewError(domain.KindInternal, "extract", err)
		}
		return nil, err
	}

	if info == nil || len(info.Formats) == 0 {
		return nil, domain.NewError(domain.KindResolutionFailed, "select format", domain.ErrNoFormats)
	}

	sel, ok := selector.Choose(info.Formats)
	if !ok || !sel.Format.Usable() {
		return nil, domain.NewError(domain.KindResolutionFailed, "select format", domain.ErrNoPlayableFormat)
	}

	s.logger.Info("format selected",
		"source_url", sourceURL,
		"format_id", sel.Format.ID,
		"height", sel.Format.Height,
		"watermark", sel.Watermarked,
	)

	stream, err := s.opener.Open(ctx, sel.Format.AssetURL, s.upstreamHeaders())
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Stream:      stream,
		Format:      sel.Format,
		Watermarked: sel.Watermarked,
	}, nil
}

// upstreamHeaders returns the browser-like headers the CDN requires.
func (s *StreamService) upstreamHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      s.userAgent,
		"Referer":         s.referer,
		"Accept":          "*/*",
		"Accept-Encoding": "identity",
	}
}
