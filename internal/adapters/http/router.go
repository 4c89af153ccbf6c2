package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/config"
	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/core/ports"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
	"github.com/kirillkom/hybrid-retrieval/internal/observability/metrics"
)

const serviceName = "api"

// DocumentService is what the document endpoints need from the write path.
type DocumentService interface {
	ports.DocumentIngestor
	ports.DocumentEnqueuer
}

type Router struct {
	documents DocumentService
	retriever ports.Retriever
	metrics   *metrics.HTTPServerMetrics

	apiKey           string
	chunkSize        int
	chunkOverlap     int
	topK             int
	maxRequestBytes  int64
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(
	cfg config.Config,
	documents DocumentService,
	retriever ports.Retriever,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	maxRequestBytes := cfg.MaxRequestBytes
	if maxRequestBytes <= 0 {
		maxRequestBytes = 8 << 20
	}
	return &Router{
		documents:        documents,
		retriever:        retriever,
		metrics:          httpMetrics,
		apiKey:           cfg.APIKey,
		chunkSize:        cfg.ChunkSize,
		chunkOverlap:     cfg.ChunkOverlap,
		topK:             cfg.RAGTopK,
		maxRequestBytes:  maxRequestBytes,
		maxInFlight:      cfg.MaxInFlight,
		backpressureWait: cfg.BackpressureWait,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.ingestDocument)
	mux.HandleFunc("/v1/documents/", rt.deleteDocument)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var onReject func()
	if rt.metrics != nil {
		onReject = func() { rt.metrics.RecordRejected(serviceName, "backpressure") }
	}

	var handler http.Handler = mux
	handler = rt.authMiddleware(handler)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	ChunkSize  *int   `json:"chunk_size,omitempty"`
	Overlap    *int   `json:"overlap,omitempty"`
	Async      bool   `json:"async,omitempty"`
}

type ingestResponse struct {
	TenantID      string    `json:"tenant_id"`
	DocumentID    string    `json:"document_id"`
	Status        string    `json:"status"`
	ChunkCount    int       `json:"chunk_count,omitempty"`
	EmbeddedCount int       `json:"embedded_count,omitempty"`
	IngestedAt    time.Time `json:"ingested_at,omitzero"`
}

func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req ingestRequest
	if err := rt.decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}

	tenantID := tenantFromContext(r.Context())
	event := domain.DocumentEvent{
		Type:       domain.DocumentEventUpsert,
		TenantID:   tenantID,
		DocumentID: req.DocumentID,
		Text:       req.Text,
		ChunkSize:  req.ChunkSize,
		Overlap:    req.Overlap,
	}

	if req.Async {
		if err := rt.documents.Enqueue(r.Context(), event); err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ingestResponse{
			TenantID:   strings.TrimSpace(tenantID),
			DocumentID: strings.TrimSpace(req.DocumentID),
			Status:     "queued",
		})
		return
	}

	result, err := rt.documents.Ingest(r.Context(), event.IngestRequest(rt.chunkSize, rt.chunkOverlap))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{
		TenantID:      result.TenantID,
		DocumentID:    result.DocumentID,
		Status:        "indexed",
		ChunkCount:    len(result.Chunks),
		EmbeddedCount: result.EmbeddedCount,
		IngestedAt:    result.IngestedAt,
	})
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document id is required"})
		return
	}

	if err := rt.documents.DeleteDocument(r.Context(), tenantFromContext(r.Context()), id); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := rt.decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rt.topK
	}

	result, err := rt.retriever.Retrieve(r.Context(), tenantFromContext(r.Context()), req.Query, topK)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, rt.maxRequestBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("request body too large"))
		}
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("request body is required"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	requestID := logging.RequestID(r.Context())
	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request_failed",
			"tenant_id", tenantFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: message, Reason: errorReason(err), RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
