package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrValidation marks a file rejected before it ever becomes a job.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks a network or 5xx failure worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks a 4xx, auth, or protocol failure that must not be retried.
	ErrPermanent = errors.New("permanent failure")
	// ErrConversion marks a normalization failure with no remaining fallback.
	ErrConversion = errors.New("conversion error")
	// ErrConfiguration marks a misconfigured backend or client.
	ErrConfiguration = errors.New("configuration error")
	// ErrCancelled marks a cooperative abort. Never retried, and not reported
	// as a failure when user initiated.
	ErrCancelled = errors.New("cancelled")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// HTTPStatusError carries a non-2xx response for classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// RetryableStatus reports whether an HTTP status is worth retrying.
// 4xx responses (other than 408 and 429) are permanent.
func RetryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// IsRetryable classifies an error for retry policy decisions. Cancellation
// and permanent failures stop immediately; transient markers, retryable HTTP
// statuses, and network timeouts retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCancelled) {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrConversion) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return RetryableStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}

// Message extracts a human-readable message suitable for surfacing on a job.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrValidation, ErrTransient, ErrPermanent, ErrConversion, ErrConfiguration, ErrCancelled} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
