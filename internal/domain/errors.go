package domain

import "errors"

// Domain errors.
var (
	// ErrMissingURL is returned when the request carries no source URL.
	ErrMissingURL = errors.New("missing url")

	// ErrInvalidURL is returned when the source URL is not a TikTok URL.
	ErrInvalidURL = errors.New("invalid TikTok URL")

	// ErrNoFormats is returned when the extractor reports no formats at all.
	ErrNoFormats = errors.New("no formats found")

	// ErrNoPlayableFormat is returned when neither selection pass finds a usable format.
	ErrNoPlayableFormat = errors.New("no playable video")

	// ErrUpstreamRejected is returned when the CDN answers with a non-video response.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrExtractionFailed is returned when the extractor itself reports a download error.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrExtractorTimeout is returned when the extractor does not finish in time.
	ErrExtractorTimeout = errors.New("extractor timed out")
)

// Kind classifies an Error so the HTTP layer can choose a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindInputInvalid
	KindResolutionFailed
	KindUpstreamRejected
	KindExtractorFailed
)

// String returns the lowercase name of the kind, used in logs.
func (k Kind) String() string {
	switch k {
	case KindInputInvalid:
		return "input_invalid"
	case KindResolutionFailed:
		return "resolution_failed"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindExtractorFailed:
		return "extractor_failed"
	default:
		return "internal"
	}
}

// Error is a classified failure carrying diagnostic detail.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Details is a human readable diagnostic, e.g. the extractor message.
	Details string

	// StatusCode and ContentType are set for KindUpstreamRejected.
	StatusCode  int
	ContentType string
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// NewUpstreamRejected creates a KindUpstreamRejected error with the observed response shape.
func NewUpstreamRejected(op string, statusCode int, contentType string) *Error {
	return &Error{
		Kind:        KindUpstreamRejected,
		Op:          op,
		Err:         ErrUpstreamRejected,
		StatusCode:  statusCode,
		ContentType: contentType,
	}
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
