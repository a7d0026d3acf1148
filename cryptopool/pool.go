package cryptopool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrRequestFailed is returned when the offload peer answers with a
// non-success status or the connection faults mid-request.
var ErrRequestFailed = errors.New("crypto request failed")

// ErrPoolExhausted is returned when no connection becomes idle within the
// acquire timeout.
var ErrPoolExhausted = errors.New("crypto pool exhausted")

// ErrPoolClosed is returned for requests made after Close.
var ErrPoolClosed = errors.New("crypto pool closed")

const (
	defaultConnsPerEndpoint = 20
	defaultDialTimeout      = 5 * time.Second
	defaultAcquireTimeout   = 3 * time.Second
	defaultRequestTimeout   = 10 * time.Second
)

// Config controls pool sizing and deadlines.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	// Endpoints lists the offload peers, host:port. At least one is required.
	Endpoints []string

	// ConnsPerEndpoint is the number of long-lived connections dialed per
	// endpoint at startup. Defaults to 20.
	ConnsPerEndpoint int

	// DialTimeout bounds the initial and replacement dials. Defaults to 5s.
	DialTimeout time.Duration

	// AcquireTimeout bounds the wait for an idle connection. Defaults to 3s.
	AcquireTimeout time.Duration

	// RequestTimeout bounds a single request round trip on the wire.
	// Defaults to 10s.
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnsPerEndpoint <= 0 {
		c.ConnsPerEndpoint = defaultConnsPerEndpoint
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

type poolConn struct {
	net.Conn
	endpoint string
}

// Pool is a fixed-size client pool for the crypto offload service.
//
// All methods are safe for concurrent use. The pool owns its connections
// for the lifetime of the process unless Close is called.
type Pool struct {
	config    Config
	idle      chan *poolConn
	done      chan struct{}
	closeOnce sync.Once
}

// New dials ConnsPerEndpoint connections to every configured endpoint and
// returns the ready pool. Any dial failure tears down the partial pool and
// returns the error.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("cryptopool: no endpoints configured")
	}

	p := &Pool{
		config: cfg,
		idle:   make(chan *poolConn, len(cfg.Endpoints)*cfg.ConnsPerEndpoint),
		done:   make(chan struct{}),
	}

	for _, endpoint := range cfg.Endpoints {
		for i := 0; i < cfg.ConnsPerEndpoint; i++ {
			conn, err := p.dial(ctx, endpoint)
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("cryptopool: dial %s: %w", endpoint, err)
			}
			p.idle <- conn
		}
	}

	return p, nil
}

func (p *Pool) dial(ctx context.Context, endpoint string) (*poolConn, error) {
	dialer := net.Dialer{Timeout: p.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	return &poolConn{Conn: conn, endpoint: endpoint}, nil
}

// Encrypt sends payload to the offload peer for encryption and returns the
// ciphertext. An empty payload returns empty output without touching the
// network.
func (p *Pool) Encrypt(ctx context.Context, payload []byte) ([]byte, error) {
	return p.roundTrip(ctx, opEncrypt, payload)
}

// Decrypt sends ciphertext to the offload peer for decryption and returns
// the plaintext. An empty payload returns empty output without touching the
// network.
func (p *Pool) Decrypt(ctx context.Context, payload []byte) ([]byte, error) {
	return p.roundTrip(ctx, opDecrypt, payload)
}

func (p *Pool) roundTrip(ctx context.Context, opcode byte, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return []byte{}, nil
	}

	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	response, wireFault, err := p.request(conn, opcode, payload)
	if wireFault {
		// The connection state is unknown after a wire fault; replace it
		// rather than returning it to the idle set.
		conn.Close()
		p.replace(conn.endpoint)
		return nil, err
	}

	p.release(conn)
	return response, err
}

func (p *Pool) request(conn *poolConn, opcode byte, payload []byte) (response []byte, wireFault bool, err error) {
	deadline := time.Now().Add(p.config.RequestTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	if err := writeFrame(conn, opcode, payload); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	status, response, err := readFrame(conn)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if status != statusOK {
		// A non-success status is a clean protocol response; the connection
		// stays usable.
		return nil, false, fmt.Errorf("%w: peer status %d", ErrRequestFailed, status)
	}
	if response == nil {
		response = []byte{}
	}
	return response, false, nil
}

func (p *Pool) acquire(ctx context.Context) (*poolConn, error) {
	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn := <-p.idle:
		if conn == nil {
			return nil, ErrPoolClosed
		}
		return conn, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrPoolExhausted
	}
}

func (p *Pool) release(conn *poolConn) {
	// Check done before offering the connection back: idle is buffered, so
	// both cases are ready after Close and a plain select would sometimes
	// return the connection to a pool that has already drained, leaking it.
	select {
	case <-p.done:
		conn.Close()
		return
	default:
	}
	select {
	case p.idle <- conn:
	case <-p.done:
		conn.Close()
	}
}

// replace dials a fresh connection for endpoint and adds it to the idle set.
// Dial failure shrinks the pool by one; the next fault on the endpoint will
// try again.
func (p *Pool) replace(endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.DialTimeout)
	defer cancel()

	conn, err := p.dial(ctx, endpoint)
	if err != nil {
		return
	}

	select {
	case p.idle <- conn:
	case <-p.done:
		conn.Close()
	}
}

// Close releases every pooled connection. In-flight requests finish; their
// connections are closed on release. Close is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)

		for {
			select {
			case conn := <-p.idle:
				if conn != nil {
					conn.Close()
				}
			default:
				return
			}
		}
	})
}
