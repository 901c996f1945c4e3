// Package extractor resolves a short-video page URL into candidate media formats.
package extractor

import (
	"context"

	"github.com/iconidentify/tokrelay/internal/domain"
)

// Extractor resolves a source URL into format descriptors.
type Extractor interface {
	// Extract returns the formats available for url. A *domain.Error of
	// KindExtractorFailed means the source refused or the video is gone;
	// any other error is an internal failure.
	Extract(ctx context.Context, url string) (*domain.Info, error)
}
