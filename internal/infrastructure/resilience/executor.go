package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var errNilOperation = errors.New("resilience: operation callback is nil")

// Executor runs dependency calls with bounded retries behind one circuit
// breaker per operation name.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errNilOperation
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if e.cfg.Breaker.Disabled {
		return e.retry(ctx, operation, fn, classifier)
	}
	_, err := e.breaker(operation, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, operation, fn, classifier)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	policy := e.cfg.Retry
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = e.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= policy.MaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := policy.backoff(attempt)
		slog.Warn("dependency_retry",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.cfg.Observer != nil {
			e.cfg.Observer.ObserveRetry(operation, attempt)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func (e *Executor) attempt(ctx context.Context, fn func(context.Context) error) error {
	if e.cfg.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}

	policy := e.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.cfg.Observer != nil {
				e.cfg.Observer.ObserveBreakerState(name, to.String())
			}
		},
	})
	e.breakers[operation] = cb
	if e.cfg.Observer != nil {
		e.cfg.Observer.ObserveBreakerState(operation, gobreaker.StateClosed.String())
	}
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ClassifyProviderError retries the transient provider kinds and keeps
// caller cancellation out of breaker statistics.
func ClassifyProviderError(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{}
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		switch providerErr.Kind {
		case domain.ProviderCanceled, domain.ProviderRejected:
			return ErrorClassification{}
		default:
			return ErrorClassification{Retryable: providerErr.Retryable(), RecordFailure: true}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return defaultClassifier(err)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
