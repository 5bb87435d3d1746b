package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/resilience"
)

const (
	DefaultSubject    = "search.reindex"
	DefaultQueueGroup = "ingest-workers"

	requestedAtHeader = "Reindex-Requested-At"
)

// LagFunc receives the delay between publishing a job and a worker picking
// it up.
type LagFunc func(source string, lag time.Duration)

// Queue carries reindex jobs. The message payload is the source name.
type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	onLag      LagFunc
	now        func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	OnLag                LagFunc
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
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
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("search-orchestrator"),
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
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		executor:   options.ResilienceExecutor,
		onLag:      options.OnLag,
		now:        time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishReindex(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return domain.WrapError(domain.ErrInvalidInput, "publish reindex", errors.New("source is required"))
	}
	msg := reindexMsg(q.subject, source, q.now())

	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrTemporary) && (isConnectionError(err) || resilience.IsCircuitOpen(err)) {
		return domain.WrapError(domain.ErrTemporary, "publish reindex", err)
	}
	return err
}

// isConnectionError matches failures a reconnecting client can outlive.
func isConnectionError(err error) bool {
	for _, target := range []error{
		nats.ErrNoServers,
		nats.ErrTimeout,
		nats.ErrConnectionClosed,
		nats.ErrDisconnected,
		nats.ErrConnectionReconnecting,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyPublishError retries connection errors only. Every failure but a
// cancelled caller counts against the publish breaker.
func classifyPublishError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{
		Retryable:     isConnectionError(err),
		RecordFailure: true,
	}
}

// SubscribeReindex handles jobs until ctx is done, then drains the
// subscription. Handler errors are logged; the job is not redelivered.
func (q *Queue) SubscribeReindex(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		source, lag, ok := parseReindexMsg(msg, q.now())
		if !ok {
			slog.Warn("reindex_job_ignored", "reason", "empty payload")
			return
		}
		if lag >= 0 {
			slog.Info("reindex_job_received", "source", source, "lag_ms", float64(lag.Microseconds())/1000.0)
			if q.onLag != nil {
				q.onLag(source, lag)
			}
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, source); err != nil {
			slog.Error("reindex_job_failed", "source", source, "error", err)
		}
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

func reindexMsg(subject, source string, now time.Time) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = []byte(source)
	msg.Header.Set(requestedAtHeader, now.UTC().Format(time.RFC3339Nano))
	return msg
}

// parseReindexMsg returns the source and the queue lag. The lag is negative
// when the publisher did not stamp the message.
func parseReindexMsg(msg *nats.Msg, now time.Time) (string, time.Duration, bool) {
	source := strings.TrimSpace(string(msg.Data))
	if source == "" {
		return "", 0, false
	}
	lag := time.Duration(-1)
	if raw := msg.Header.Get(requestedAtHeader); raw != "" {
		if requestedAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			lag = now.Sub(requestedAt)
			if lag < 0 {
				lag = 0
			}
		}
	}
	return source, lag, true
}
