package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
)

func TestRequestIDMiddlewarePropagatesHeaderToContext(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, " abc-123 ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seen, rec.Header().Get(requestIDHeader))
	}
}

func TestRequestIDMiddlewareGeneratesMissingID(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if seen == "" || seen != rec.Header().Get(requestIDHeader) {
		t.Fatalf("generated id mismatch: ctx=%q header=%q", seen, rec.Header().Get(requestIDHeader))
	}
}
