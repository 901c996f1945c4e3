package domain

import (
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// Error Tests
// =============================================================================

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"plain", NewError(KindInputInvalid, "validate url", ErrInvalidURL), "validate url: invalid TikTok URL"},
		{
			"with details",
			&Error{Kind: KindExtractorFailed, Op: "extract", Err: ErrExtractionFailed, Details: "ERROR: private video"},
			"extract: extraction failed (ERROR: private video)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := fmt.Errorf("prepare: %w", NewError(KindResolutionFailed, "select", ErrNoPlayableFormat))

	if !errors.Is(err, ErrNoPlayableFormat) {
		t.Error("errors.Is should find the sentinel through the wrap chain")
	}
	if errors.Is(err, ErrNoFormats) {
		t.Error("errors.Is matched the wrong sentinel")
	}

	var de *Error
	if !errors.As(err, &de) {
		t.Fatal("errors.As should find *Error")
	}
	if de.Op != "select" {
		t.Errorf("Op = %q, want %q", de.Op, "select")
	}
}

func TestNewUpstreamRejected(t *testing.T) {
	err := NewUpstreamRejected("open upstream", 403, "text/html")

	if err.Kind != KindUpstreamRejected {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUpstreamRejected)
	}
	if err.StatusCode != 403 || err.ContentType != "text/html" {
		t.Errorf("got status %d, content type %q", err.StatusCode, err.ContentType)
	}
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Error("should wrap ErrUpstreamRejected")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"plain error", errors.New("boom"), KindInternal},
		{"domain error", NewError(KindInputInvalid, "op", ErrMissingURL), KindInputInvalid},
		{"wrapped", fmt.Errorf("outer: %w", NewError(KindExtractorFailed, "op", ErrExtractionFailed)), KindExtractorFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInternal, "internal"},
		{KindInputInvalid, "input_invalid"},
		{KindResolutionFailed, "resolution_failed"},
		{KindUpstreamRejected, "upstream_rejected"},
		{KindExtractorFailed, "extractor_failed"},
		{Kind(99), "internal"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

// =============================================================================
// Format Tests
// =============================================================================

func TestFormat_HasVideo(t *testing.T) {
	tests := []struct {
		codec string
		want  bool
	}{
		{"h264", true},
		{"", true},
		{NoVideoCodec, false},
	}

	for _, tt := range tests {
		f := Format{VideoCodec: tt.codec}
		if got := f.HasVideo(); got != tt.want {
			t.Errorf("HasVideo(%q) = %v, want %v", tt.codec, got, tt.want)
		}
	}
}

func TestFormat_Usable(t *testing.T) {
	if (Format{}).Usable() {
		t.Error("format without asset URL should not be usable")
	}
	if !(Format{AssetURL: "https://cdn.example/v.mp4"}).Usable() {
		t.Error("format with asset URL should be usable")
	}
}
