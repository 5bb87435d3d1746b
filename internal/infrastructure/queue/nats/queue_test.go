package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func TestReindexMsgRoundTripsLag(t *testing.T) {
	published := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	msg := reindexMsg(DefaultSubject, "techdocs", published)

	source, lag, ok := parseReindexMsg(msg, published.Add(1500*time.Millisecond))
	if !ok {
		t.Fatalf("expected message to parse")
	}
	if source != "techdocs" {
		t.Fatalf("expected techdocs, got %q", source)
	}
	if lag != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s lag, got %s", lag)
	}
}

func TestParseReindexMsgWithoutHeader(t *testing.T) {
	msg := &nats.Msg{Subject: DefaultSubject, Data: []byte(" catalog\n")}

	source, lag, ok := parseReindexMsg(msg, time.Now())
	if !ok || source != "catalog" {
		t.Fatalf("expected catalog, got %q ok=%v", source, ok)
	}
	if lag >= 0 {
		t.Fatalf("expected unknown lag, got %s", lag)
	}
}

func TestParseReindexMsgRejectsEmptyPayload(t *testing.T) {
	if _, _, ok := parseReindexMsg(&nats.Msg{Data: []byte("   ")}, time.Now()); ok {
		t.Fatalf("expected empty payload to be rejected")
	}
}

func TestParseReindexMsgClampsClockSkew(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	msg := reindexMsg(DefaultSubject, "apis", now.Add(time.Second))

	_, lag, ok := parseReindexMsg(msg, now)
	if !ok || lag != 0 {
		t.Fatalf("expected lag clamped to 0, got %s", lag)
	}
}

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"no servers", fmt.Errorf("nats publish: %w", nats.ErrNoServers), true, true},
		{"disconnected", nats.ErrDisconnected, true, true},
		{"reconnecting", nats.ErrConnectionReconnecting, true, true},
		{"timeout", nats.ErrTimeout, true, true},
		{"cancelled", context.Canceled, false, false},
		{"bad subject", nats.ErrBadSubject, false, true},
	}
	for _, tc := range cases {
		class := classifyPublishError(tc.err)
		if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
			t.Fatalf("%s: unexpected classification %+v", tc.name, class)
		}
	}
}

func TestPublishReindexRejectsEmptySourceBeforeConnecting(t *testing.T) {
	q := &Queue{subject: DefaultSubject, now: time.Now}
	if err := q.PublishReindex(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIsConnectionError(t *testing.T) {
	if !isConnectionError(fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed)) {
		t.Fatalf("expected wrapped closed connection to match")
	}
	open := domain.WrapError(domain.ErrCircuitOpen, "nats.publish", errors.New("open"))
	if isConnectionError(open) || isConnectionError(nats.ErrBadSubject) {
		t.Fatalf("expected only connection errors to match")
	}
}
