package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidTenantContext):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrVectorIndexUnavailable),
		domain.IsKind(err, domain.ErrLexicalIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorReason exposes the typed reason of chunking and embedding failures so
// clients can tell "no extractable text" from a transient failure.
func errorReason(err error) string {
	var chunkErr *domain.ChunkingError
	if errors.As(err, &chunkErr) {
		return string(chunkErr.Reason)
	}
	var embedErr *domain.EmbeddingError
	if errors.As(err, &embedErr) {
		return string(embedErr.Reason)
	}
	if domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		return "retrieval_unavailable"
	}
	return ""
}
