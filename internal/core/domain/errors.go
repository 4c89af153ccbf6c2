package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound        = errors.New("document not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidTenantContext    = errors.New("invalid tenant context")
	ErrTemporary               = errors.New("temporary failure")
	ErrVectorIndexUnavailable  = errors.New("vector index unavailable")
	ErrLexicalIndexUnavailable = errors.New("lexical index unavailable")
	ErrRetrievalUnavailable    = errors.New("retrieval unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type ChunkingReason string

const (
	ChunkingEmptyInput         ChunkingReason = "empty_input"
	ChunkingBelowMinimumLength ChunkingReason = "below_minimum_length"
	ChunkingInvalidParameters  ChunkingReason = "invalid_parameters"
)

type ChunkingError struct {
	Reason  ChunkingReason
	Detail  string
	Length  int
	Minimum int
}

func (e *ChunkingError) Error() string {
	switch e.Reason {
	case ChunkingBelowMinimumLength:
		return fmt.Sprintf("chunking: %s: content has %d characters, minimum is %d", e.Reason, e.Length, e.Minimum)
	case ChunkingInvalidParameters:
		return fmt.Sprintf("chunking: %s: %s", e.Reason, e.Detail)
	default:
		return fmt.Sprintf("chunking: %s", e.Reason)
	}
}

// Is lets every chunking failure match ErrInvalidInput.
func (e *ChunkingError) Is(target error) bool {
	return target == ErrInvalidInput
}

func ChunkingReasonOf(err error) (ChunkingReason, bool) {
	var chunkErr *ChunkingError
	if !errors.As(err, &chunkErr) {
		return "", false
	}
	return chunkErr.Reason, true
}

type EmbeddingReason string

const (
	EmbeddingEmptyInput       EmbeddingReason = "empty_input"
	EmbeddingModelUnavailable EmbeddingReason = "model_unavailable"
	EmbeddingBatchFailure     EmbeddingReason = "batch_failure"
)

// EmbeddingError reports a rejected input or a failed model call. Index is
// the offending position in the batch, or -1 when the whole call failed.
type EmbeddingError struct {
	Reason EmbeddingReason
	Index  int
	Err    error
}

func (e *EmbeddingError) Error() string {
	msg := "embedding: " + string(e.Reason)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s at index %d", msg, e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

func (e *EmbeddingError) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Reason == EmbeddingEmptyInput
	case ErrTemporary:
		return e.Reason != EmbeddingEmptyInput && e.Retryable()
	default:
		return false
	}
}

func (e *EmbeddingError) Retryable() bool {
	if e.Reason == EmbeddingEmptyInput {
		return false
	}
	var providerErr *ProviderError
	if errors.As(e.Err, &providerErr) {
		return providerErr.Retryable()
	}
	return e.Reason == EmbeddingModelUnavailable
}

type ProviderErrorKind string

const (
	ProviderQuota       ProviderErrorKind = "quota"
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderUnavailable ProviderErrorKind = "unavailable"
	ProviderBadResponse ProviderErrorKind = "bad_response"
	ProviderRejected    ProviderErrorKind = "rejected"
	ProviderCanceled    ProviderErrorKind = "canceled"
)

// ProviderError tags a failed call to an external backend so callers can
// branch on Kind instead of inspecting messages.
type ProviderError struct {
	Provider   string
	Operation  string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, e.Kind)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderQuota, ProviderTimeout, ProviderUnavailable:
		return true
	default:
		return false
	}
}

func ProviderErrorKindOf(err error) (ProviderErrorKind, bool) {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return "", false
	}
	return providerErr.Kind, true
}
