// Package wire owns the raw byte stream of a connection: dialing, TLS, the
// single reader goroutine and the serialized writer.
package wire

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

const (
	defaultPollTimeout = time.Second
	joinTimeout        = 5 * time.Second
)

// ErrorSink collects errors raised off the caller's goroutine.
type ErrorSink interface {
	Append(err error)
}

// Consumer is handed the accumulated inbound bytes and returns the part it
// could not decode yet.
type Consumer func(buf []byte) []byte

// Config describes how to reach the broker.
type Config struct {
	Addr        string
	TLS         *tls.Config
	DialTimeout time.Duration
	PollTimeout time.Duration
	ReadSize    int
}

// Transport is a duplex byte stream with one background reader.
type Transport struct {
	cfg     Config
	sink    ErrorSink
	consume Consumer
	log     zerolog.Logger

	mu       sync.Mutex
	conn     net.Conn
	done     chan struct{}
	writeMu  sync.Mutex
	running  atomic.Bool
	readSize atomic.Int64
}

// New creates a closed transport.
func New(cfg Config, sink ErrorSink, consume Consumer, log zerolog.Logger) *Transport {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = protocol.DefaultFrameMax
	}
	t := &Transport{
		cfg:     cfg,
		sink:    sink,
		consume: consume,
		log:     log.With().Str("addr", cfg.Addr).Logger(),
	}
	t.readSize.Store(int64(cfg.ReadSize))
	return t
}

// Open connects to the broker and starts the reader goroutine.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return amqperr.Connection("transport is already open")
	}

	dialer := &net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr)
	if err != nil {
		return &amqperr.ConnectionError{Reason: "could not connect: " + err.Error()}
	}

	if t.cfg.TLS != nil {
		tlsConn := tls.Client(conn, t.cfg.TLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return &amqperr.ConnectionError{Reason: "tls handshake: " + err.Error()}
		}
		conn = tlsConn
	}

	t.conn = conn
	t.done = make(chan struct{})
	t.running.Store(true)
	go t.readLoop(conn, t.done)

	t.log.Debug().Bool("tls", t.cfg.TLS != nil).Msg("transport open")
	return nil
}

// SetReadSize changes the size of a single socket read, normally to the
// negotiated frame size.
func (t *Transport) SetReadSize(n int) {
	if n > 0 {
		t.readSize.Store(int64(n))
	}
}

// IsOpen reports whether the reader is running.
func (t *Transport) IsOpen() bool {
	return t.running.Load()
}

// Write sends p in full. Writes from concurrent callers never interleave.
func (t *Transport) Write(p []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil || !t.running.Load() {
		return amqperr.Connection("connection was closed")
	}

	for len(p) > 0 {
		n, err := conn.Write(p)
		p = p[n:]
		if err == nil {
			continue
		}
		if isTimeout(err) && t.running.Load() {
			continue
		}
		cerr := &amqperr.ConnectionError{Reason: err.Error()}
		if t.running.Load() {
			t.sink.Append(cerr)
		}
		return cerr
	}
	return nil
}

// Close stops the reader and closes the socket. It is safe to call more
// than once and from any goroutine.
func (t *Transport) Close() {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return
	}

	t.running.Store(false)
	if err := conn.Close(); err != nil {
		t.log.Debug().Err(err).Msg("close socket")
	}

	select {
	case <-done:
	case <-time.After(joinTimeout):
		t.log.Warn().Msg("reader did not stop in time")
	}
	t.log.Debug().Msg("transport closed")
}

func (t *Transport) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	var buf []byte
	chunk := make([]byte, t.readSize.Load())
	for t.running.Load() {
		if size := int(t.readSize.Load()); size != len(chunk) {
			chunk = make([]byte, size)
		}

		if err := conn.SetReadDeadline(time.Now().Add(t.cfg.PollTimeout)); err != nil && t.running.Load() {
			t.fail(err)
			return
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = t.consume(append(buf, chunk[:n]...))
		}
		if err == nil || isTimeout(err) {
			continue
		}
		if t.running.Load() {
			t.fail(err)
		}
		return
	}
}

func (t *Transport) fail(err error) {
	t.log.Warn().Err(err).Msg("socket error")
	t.running.Store(false)
	t.sink.Append(&amqperr.ConnectionError{Reason: err.Error()})
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
