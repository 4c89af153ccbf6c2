package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"
)

func TestEncodeDecodeEventDefaultsToUpsert(t *testing.T) {
	size := 500
	payload, err := encodeEvent(domain.DocumentEvent{TenantID: "acme", DocumentID: "doc", Text: "hello", ChunkSize: &size})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	event, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Type != domain.DocumentEventUpsert || event.ChunkSize == nil || *event.ChunkSize != 500 || event.Overlap != nil {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDecodeEventRejectsBadPayloads(t *testing.T) {
	for _, raw := range []string{`not json`, `{"document_id":"d"}`, `{"tenant_id":"t"}`} {
		if _, err := decodeEvent([]byte(raw)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", raw, err)
		}
	}
}

func TestDispatchSkipsUndecodableMessages(t *testing.T) {
	q := &Queue{subject: "documents"}
	calls := 0
	handler := func(context.Context, domain.DocumentEvent) error {
		calls++
		return nil
	}

	q.dispatch(context.Background(), []byte(`{broken`), handler)
	if calls != 0 {
		t.Fatal("handler must not run for an undecodable message")
	}

	q.dispatch(context.Background(), []byte(`{"type":"delete","tenant_id":"t","document_id":"d"}`), handler)
	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}

func TestDispatchAppliesHandlerTimeout(t *testing.T) {
	q := &Queue{subject: "documents", handlerTimeout: 10 * time.Millisecond}
	var deadlineSet bool
	q.dispatch(context.Background(), []byte(`{"tenant_id":"t","document_id":"d"}`), func(ctx context.Context, _ domain.DocumentEvent) error {
		_, deadlineSet = ctx.Deadline()
		return errors.New("boom")
	})
	if !deadlineSet {
		t.Fatal("handler context should carry a deadline")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("canceled should not be retried or recorded: %+v", c)
	}
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable {
		t.Fatalf("closed connection should be retryable: %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable || !c.RecordFailure {
		t.Fatalf("bad subject should be permanent: %+v", c)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("publish: %w", nats.ErrTimeout))
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(gobreaker.ErrOpenState); !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("open circuit should be temporary, got %v", err)
	}
	permanent := errors.New("permission denied")
	if err := wrapTemporaryIfNeeded(permanent); errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("permanent error wrapped as temporary: %v", err)
	}
}
