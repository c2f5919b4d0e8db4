package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Sentinel errors for the non-retryable stages of the pipeline.
var (
	// ErrInvalidValue means normalization found no numeric token in the raw
	// value. The measurement is skipped, never persisted.
	ErrInvalidValue = errors.New("invalid value: no numeric token")

	// ErrConversionNotFound means no conversion rule exists for the
	// (asset, source unit, target unit) triple. Normalization fails closed;
	// the raw value is never passed through with an invented factor.
	ErrConversionNotFound = errors.New("conversion rule not found")

	// ErrInsufficientData means a derived metric lacks the history it needs.
	// Expected during cold starts; metrics soft-skip on it.
	ErrInsufficientData = errors.New("insufficient data")
)

// AcquisitionError wraps a network, browser or timeout failure while
// acquiring a source. Retryable.
type AcquisitionError struct {
	Source string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return "acquire " + e.Source + ": " + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NewAcquisitionError wraps err as a retryable acquisition failure.
func NewAcquisitionError(source string, err error) *AcquisitionError {
	return &AcquisitionError{Source: source, Err: err}
}

// ExtractionError means a payload was acquired but no usable content could be
// pulled out of it. Not retryable within the same document.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return "extract " + e.URL + ": " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError wraps err as a non-retryable extraction failure.
func NewExtractionError(url string, err error) *ExtractionError {
	return &ExtractionError{URL: url, Err: err}
}

// IsRetryable reports whether the error is worth another acquisition attempt:
// explicit AcquisitionErrors, network timeouts, and connection-level failures.
// Normalization and extraction errors are terminal for the measurement.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return true
	}

	var ee *ExtractionError
	if errors.As(err, &ee) {
		return false
	}
	if errors.Is(err, ErrInvalidValue) || errors.Is(err, ErrConversionNotFound) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryableHTTPStatus reports whether the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
