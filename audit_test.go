package ironauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAuditDispatcherDeliversAndStamps(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "user_login", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "user_login" || !event.Success {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.EventID == "" {
			t.Fatal("event ID not stamped")
		}
		if event.Timestamp.IsZero() {
			t.Fatal("timestamp not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestAuditDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled config must not start a dispatcher")
	}
	// Nil dispatcher methods are safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(ctx context.Context, event AuditEvent) {
	<-s.release
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event occupies the worker, one fills the buffer; the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(sink.release)
	d.Close()
}

func TestAuditCloseDrains(t *testing.T) {
	sink := NewChannelSink(64)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink)

	const n = 16
	for i := 0; i < n; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login"})
	}
	d.Close()

	for i := 0; i < n; i++ {
		select {
		case <-sink.Events():
		default:
			t.Fatalf("only %d of %d events drained on close", i, n)
		}
	}
	// Close is idempotent.
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventID:   "e1",
		EventType: "user_login",
		UserID:    "3",
		Success:   true,
	})

	line := strings.TrimSpace(buf.String())
	var decoded AuditEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output not json: %v", err)
	}
	if decoded.EventType != "user_login" || decoded.UserID != "3" || !decoded.Success {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}

func TestEngineEmitsAuditEvents(t *testing.T) {
	h := newTestEngine(t)
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	h.engine.Register(ctx, publicToken(), RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "long-enough-pass",
	})

	select {
	case event := <-h.audit.Events():
		if event.EventType != "user_registered" || !event.Success {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.IP != "203.0.113.9" {
			t.Fatalf("client IP not recorded: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event emitted")
	}
}
