package wire

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/util"
)

type collector struct {
	mu  sync.Mutex
	buf []byte
}

func (c *collector) consume(buf []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, buf...)
	return nil
}

func (c *collector) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf...)
}

func listen(t *testing.T) (net.Listener, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	return ln, accepted
}

func newTransport(addr string, sink ErrorSink, c *collector) *Transport {
	return New(Config{
		Addr:        addr,
		DialTimeout: time.Second,
		PollTimeout: 20 * time.Millisecond,
		ReadSize:    16,
	}, sink, c.consume, zerolog.Nop())
}

func TestTransportReadWrite(t *testing.T) {
	ln, accepted := listen(t)
	errs := &util.ErrorList{}
	c := &collector{}
	tr := newTransport(ln.Addr().String(), errs, c)

	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()
	assert.True(t, tr.IsOpen())

	server := <-accepted
	defer server.Close()

	payload := []byte("a payload larger than one sixteen byte read")
	_, err := server.Write(payload)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return string(c.bytes()) == string(payload) }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Write([]byte("hello")))
	got := make([]byte, 5)
	_, err = server.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, 0, errs.Len(), "poll timeouts are not errors")
}

func TestTransportRemainderIsKept(t *testing.T) {
	ln, accepted := listen(t)
	var mu sync.Mutex
	var seen []string
	consume := func(buf []byte) []byte {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(buf))
		// consume whole 4 byte records only
		n := len(buf) / 4 * 4
		return buf[n:]
	}
	tr := New(Config{Addr: ln.Addr().String(), PollTimeout: 20 * time.Millisecond, ReadSize: 3}, &util.ErrorList{}, consume, zerolog.Nop())
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	server := <-accepted
	defer server.Close()
	_, err := server.Write([]byte("abcdefgh"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "efgh"
	}, time.Second, 5*time.Millisecond)
}

func TestTransportPeerClose(t *testing.T) {
	ln, accepted := listen(t)
	errs := &util.ErrorList{}
	tr := newTransport(ln.Addr().String(), errs, &collector{})
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	server := <-accepted
	server.Close()

	assert.Eventually(t, func() bool { return errs.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, amqperr.IsConnection(errs.First()))
	assert.False(t, tr.IsOpen())

	err := tr.Write([]byte("x"))
	assert.True(t, amqperr.IsConnection(err))
}

func TestTransportCloseIsIdempotent(t *testing.T) {
	ln, accepted := listen(t)
	errs := &util.ErrorList{}
	tr := newTransport(ln.Addr().String(), errs, &collector{})
	require.NoError(t, tr.Open(context.Background()))
	server := <-accepted
	defer server.Close()

	tr.Close()
	tr.Close()
	assert.False(t, tr.IsOpen())
	assert.Equal(t, 0, errs.Len(), "a local close records no error")
}

func TestTransportOpenTwice(t *testing.T) {
	ln, accepted := listen(t)
	tr := newTransport(ln.Addr().String(), &util.ErrorList{}, &collector{})
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()
	server := <-accepted
	defer server.Close()

	err := tr.Open(context.Background())
	assert.True(t, amqperr.IsConnection(err))
}

func TestTransportDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	tr := newTransport(addr, &util.ErrorList{}, &collector{})
	err = tr.Open(context.Background())
	require.Error(t, err)
	assert.True(t, amqperr.IsConnection(err))
	assert.Contains(t, err.Error(), "could not connect")
}
