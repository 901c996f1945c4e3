// Package selector picks the format the relay streams.
package selector

import "github.com/iconidentify/tokrelay/internal/domain"

// Selection is the outcome of the two-pass policy.
type Selection struct {
	Format domain.Format

	// Watermarked is true when the fallback pass produced the format.
	Watermarked bool
}

// SelectBest returns the tallest mp4 format with a video track.
// Unless watermarkRequired is set, only formats explicitly marked
// watermark-free are considered. Among equal heights the first seen wins.
func SelectBest(formats []domain.Format, watermarkRequired bool) (domain.Format, bool) {
	var (
		best  domain.Format
		found bool
	)

	for _, f := range formats {
		if f.Container != domain.ContainerMP4 {
			continue
		}
		if !f.HasVideo() {
			continue
		}
		if !watermarkRequired && f.HasWatermark {
			continue
		}

		// Strictly greater keeps the earliest candidate on ties.
		if !found || f.Height > best.Height {
			best = f
			found = true
		}
	}

	return best, found
}

// Choose runs the clean pass first and falls back to any playable format.
func Choose(formats []domain.Format) (Selection, bool) {
	if f, ok := SelectBest(formats, false); ok {
		return Selection{Format: f}, true
	}
	if f, ok := SelectBest(formats, true); ok {
		return Selection{Format: f, Watermarked: true}, true
	}
	return Selection{}, false
}
