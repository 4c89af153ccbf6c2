package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
	"golang.org/x/time/rate"
)

const providerName = "ollama"

type Client struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type Options struct {
	Timeout    time.Duration
	Resilience resilience.Config
	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

func New(baseURL, embedModel string) *Client {
	return NewWithOptions(baseURL, embedModel, Options{})
}

func NewWithOptions(baseURL, embedModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   resilience.NewExecutor(opts.Resilience),
		limiter:    limiter,
	}
}

// wait blocks until the pacing limiter admits one call.
func (c *Client) wait(ctx context.Context, operation string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		kind := domain.ProviderTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			kind = domain.ProviderCanceled
		}
		return &domain.ProviderError{
			Provider:  providerName,
			Operation: operation,
			Kind:      kind,
			Err:       fmt.Errorf("ollama %s pacing: %w", operation, err),
		}
	}
	return nil
}

// EmbeddingModel serves /api/embed. Dimension, when positive, is enforced on
// every returned vector.
type EmbeddingModel struct {
	client    *Client
	dimension int
}

func NewEmbeddingModel(client *Client, dimension int) *EmbeddingModel {
	return &EmbeddingModel{client: client, dimension: dimension}
}

func (m *EmbeddingModel) ModelID() string {
	return providerName + "/" + m.client.embedModel
}

func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": m.client.embedModel,
		"input": texts,
	}

	if err := m.client.wait(ctx, "embed"); err != nil {
		return nil, err
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := m.client.executor.Execute(ctx, "ollama.embed", func(callCtx context.Context) error {
		return m.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	}, resilience.ClassifyProviderError)
	if err != nil {
		return nil, asProviderError("embed", err)
	}

	if len(response.Embeddings) != len(texts) {
		return nil, &domain.ProviderError{
			Provider:  providerName,
			Operation: "embed",
			Kind:      domain.ProviderBadResponse,
			Err:       fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)),
		}
	}
	for i, vector := range response.Embeddings {
		if len(vector) == 0 || (m.dimension > 0 && len(vector) != m.dimension) {
			return nil, &domain.ProviderError{
				Provider:  providerName,
				Operation: "embed",
				Kind:      domain.ProviderBadResponse,
				Err:       fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vector), m.dimension),
			}
		}
	}
	return response.Embeddings, nil
}
