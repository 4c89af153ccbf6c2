package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
	"github.com/kirillkom/hybrid-retrieval/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const defaultQueueGroup = "retrieval-workers"

type Queue struct {
	conn           *nats.Conn
	subject        string
	group          string
	handlerTimeout time.Duration
	executor       *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	// HandlerTimeout bounds one event handler run. Zero means no bound.
	HandlerTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("hybrid-retrieval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		group:          group,
		handlerTimeout: options.HandlerTimeout,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeDocumentEvents consumes events in the queue group until ctx is
// done, then drains the subscription.
func (q *Queue) SubscribeDocumentEvents(ctx context.Context, handler func(context.Context, domain.DocumentEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// dispatch decodes one message and runs the handler. Undecodable messages
// are logged and dropped.
func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.DocumentEvent) error) {
	event, err := decodeEvent(data)
	if err != nil {
		slog.Error("document_event_rejected", "subject", q.subject, "error", err)
		return
	}

	var (
		handlerCtx context.Context
		cancel     context.CancelFunc
	)
	if q.handlerTimeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, q.handlerTimeout)
	} else {
		handlerCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := handler(handlerCtx, event); err != nil {
		slog.Error("document_event_failed",
			"type", event.Type,
			"tenant_id", event.TenantID,
			"document_id", event.DocumentID,
			"retryable", domain.IsKind(err, domain.ErrTemporary),
			"error", err,
		)
	}
}

func encodeEvent(event domain.DocumentEvent) ([]byte, error) {
	if event.Type == "" {
		event.Type = domain.DocumentEventUpsert
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode document event", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.DocumentEvent, error) {
	var event domain.DocumentEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.DocumentEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode document event", err)
	}
	if event.Type == "" {
		event.Type = domain.DocumentEventUpsert
	}
	if event.TenantID == "" || event.DocumentID == "" {
		return domain.DocumentEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode document event", errors.New("tenant_id and document_id are required"))
	}
	return event, nil
}
