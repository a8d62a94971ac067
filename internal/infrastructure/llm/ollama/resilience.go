package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/avdeenko/docqa/internal/core/domain"
	"github.com/avdeenko/docqa/internal/infrastructure/resilience"
)

// retryableStatuses are the codes worth another attempt: throttling,
// timeouts and transient upstream failures.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
	}
	return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
}

// Retryable reports whether the status code alone justifies another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e != nil && retryableStatuses[e.StatusCode]
}

// ClassifyError feeds the resilience executor. Cancellation neither retries
// nor counts against the breaker, connection problems and retryable statuses
// do both, and a definitive status fails fast without a breaker penalty.
func ClassifyError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error

	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.As(err, &statusErr):
		if statusErr.Retryable() {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// WrapTemporaryIfNeeded tags transient failures with the temporary kind so
// callers can tell an outage from a hard error. Already tagged errors pass
// through untouched.
func WrapTemporaryIfNeeded(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case ClassifyError(err).Retryable, resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return err
	}
}
