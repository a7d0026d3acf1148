package ironauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// MailKind selects the template an outbound message should use.
type MailKind string

const (
	// MailEmailVerification carries an email confirmation key.
	MailEmailVerification MailKind = "email_verification"
	// MailPasswordReset carries a password reset key.
	MailPasswordReset MailKind = "password_reset"
)

// MailMessage is an outbound message the engine wants delivered. Key is the
// one-time key the recipient must present back.
type MailMessage struct {
	To       string
	Username string
	Kind     MailKind
	Key      string
}

// MailSink delivers enqueued messages. The engine never waits on delivery;
// it only enqueues.
type MailSink interface {
	Send(ctx context.Context, msg MailMessage)
}

// NoOpMailSink discards every message.
type NoOpMailSink struct{}

func (NoOpMailSink) Send(context.Context, MailMessage) {}

// ChannelMailSink forwards messages onto a channel for test and pipeline
// consumers.
type ChannelMailSink struct {
	messages chan MailMessage
}

func NewChannelMailSink(buffer int) *ChannelMailSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelMailSink{
		messages: make(chan MailMessage, buffer),
	}
}

func (s *ChannelMailSink) Send(ctx context.Context, msg MailMessage) {
	select {
	case s.messages <- msg:
	case <-ctx.Done():
	}
}

func (s *ChannelMailSink) Messages() <-chan MailMessage {
	return s.messages
}

type mailDispatcher struct {
	cfg       MailConfig
	sink      MailSink
	ch        chan MailMessage
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newMailDispatcher(cfg MailConfig, sink MailSink) *mailDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpMailSink{}
	}

	d := &mailDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan MailMessage, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *mailDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.sink.Send(context.Background(), msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.sink.Send(context.Background(), msg)
				default:
					return
				}
			}
		}
	}
}

func (d *mailDispatcher) Enqueue(ctx context.Context, msg MailMessage) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- msg:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- msg:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close drains queued messages into the sink and stops the worker.
func (d *mailDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *mailDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
