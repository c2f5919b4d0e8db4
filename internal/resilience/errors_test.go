package resilience

import (
	"errors"
	"testing"
)

func TestIsRetryable_AcquisitionError(t *testing.T) {
	err := NewAcquisitionError("cepea", errors.New("connection refused"))
	if !IsRetryable(err) {
		t.Error("acquisition errors must be retryable")
	}
}

func TestIsRetryable_ExtractionError(t *testing.T) {
	err := NewExtractionError("https://example.com/news/1", errors.New("no container"))
	if IsRetryable(err) {
		t.Error("extraction errors must not be retryable")
	}
}

func TestIsRetryable_NormalizationSentinels(t *testing.T) {
	if IsRetryable(ErrInvalidValue) {
		t.Error("invalid value must not be retryable")
	}
	if IsRetryable(ErrConversionNotFound) {
		t.Error("conversion not found must not be retryable")
	}
}

func TestIsRetryable_NetworkPatterns(t *testing.T) {
	if !IsRetryable(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset should be retryable")
	}
	if !IsRetryable(errors.New("dial tcp: i/o timeout")) {
		t.Error("i/o timeout should be retryable")
	}
	if IsRetryable(errors.New("unexpected layout")) {
		t.Error("generic errors should not be retryable")
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 301, 400, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestAcquisitionError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewAcquisitionError("imea", inner)
	if !errors.Is(err, inner) {
		t.Error("expected unwrap to reach inner error")
	}
}
