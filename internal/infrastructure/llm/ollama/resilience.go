package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
)

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
	if e.Body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func kindForStatus(statusCode int) domain.ProviderErrorKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return domain.ProviderQuota
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return domain.ProviderTimeout
	case statusCode >= 500:
		return domain.ProviderUnavailable
	default:
		return domain.ProviderRejected
	}
}

func classifyTransportError(ctx context.Context, operation string, err error) error {
	kind := domain.ProviderUnavailable
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		kind = domain.ProviderCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.ProviderTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = domain.ProviderTimeout
		}
	}
	return &domain.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Kind:      kind,
		Err:       fmt.Errorf("ollama %s request: %w", operation, err),
	}
}

// asProviderError tags errors that did not come from the transport, such as
// an open circuit breaker.
func asProviderError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return err
	}
	kind := domain.ProviderUnavailable
	switch {
	case errors.Is(err, context.Canceled):
		kind = domain.ProviderCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.ProviderTimeout
	case resilience.IsCircuitOpen(err):
		err = fmt.Errorf("circuit open: %w", err)
	}
	return &domain.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Kind:      kind,
		Err:       err,
	}
}
