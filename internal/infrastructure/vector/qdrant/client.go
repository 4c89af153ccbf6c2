package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
)

const providerName = "qdrant"

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

type Options struct {
	Timeout    time.Duration
	Resilience resilience.Config
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   resilience.NewExecutor(opts.Resilience),
	}
}

// do sends one JSON request through the resilience executor. A status listed
// in okStatuses is treated as success without decoding the body.
func (c *Client) do(ctx context.Context, operation, method, path string, payload, out any, okStatuses ...int) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
	}

	return c.executor.Execute(ctx, "qdrant."+operation, func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(callCtx, operation, err)
		}
		defer resp.Body.Close()

		for _, status := range okStatuses {
			if resp.StatusCode == status {
				return nil
			}
		}
		if resp.StatusCode >= 300 {
			return statusError(operation, resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.ProviderError{
				Provider:  providerName,
				Operation: operation,
				Kind:      domain.ProviderBadResponse,
				Err:       fmt.Errorf("decode %s response: %w", operation, err),
			}
		}
		return nil
	}, resilience.ClassifyProviderError)
}

func statusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err := fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		err = fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}

	kind := domain.ProviderRejected
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = domain.ProviderQuota
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		kind = domain.ProviderTimeout
	case resp.StatusCode >= 500:
		kind = domain.ProviderUnavailable
	}
	return &domain.ProviderError{
		Provider:   providerName,
		Operation:  operation,
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Err:        err,
	}
}

func transportError(ctx context.Context, operation string, err error) error {
	kind := domain.ProviderUnavailable
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		kind = domain.ProviderCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.ProviderTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = domain.ProviderTimeout
	}
	return &domain.ProviderError{
		Provider:  providerName,
		Operation: operation,
		Kind:      kind,
		Err:       fmt.Errorf("qdrant %s request: %w", operation, err),
	}
}

func isStatus(err error, status int) bool {
	var providerErr *domain.ProviderError
	return errors.As(err, &providerErr) && providerErr.StatusCode == status
}

func unavailable(operation string, err error) error {
	return domain.WrapError(domain.ErrVectorIndexUnavailable, "qdrant "+operation, err)
}
