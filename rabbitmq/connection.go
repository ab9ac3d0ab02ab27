package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/heartbeat"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
	"github.com/israelio/rabbit-blocking-client/internal/util"
	"github.com/israelio/rabbit-blocking-client/internal/wire"
)

// ConnectionState represents the current state of a connection
type ConnectionState int32

const (
	StateClosed ConnectionState = iota
	StateOpening
	StateOpen
	StateClosing
)

// String returns a string representation of the connection state
func (cs ConnectionState) String() string {
	switch cs {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Connection is an AMQP connection. Every blocking call runs on the
// caller's goroutine; a single reader goroutine decodes inbound frames and
// routes them to channel 0 or to the owning Channel.
type Connection struct {
	factory *ConnectionFactory
	log     zerolog.Logger
	metrics MetricsCollector

	transport *wire.Transport
	heartbeat atomic.Pointer[heartbeat.Monitor]

	// errors raised off the caller's goroutine: reader, heartbeat, channel 0
	errors util.ErrorList

	state      atomic.Int32
	handshake  atomic.Int32
	blocked    atomic.Bool
	readFailed atomic.Bool

	// negotiated in Connection.Tune
	channelMax   atomic.Uint32
	frameMax     atomic.Uint32
	heartbeatSec atomic.Uint32

	propsMux         sync.RWMutex
	serverProperties Table

	// openMux serializes channel creation; channelMux only guards the map
	// so the reader can route frames while a channel is opening.
	openMux    sync.Mutex
	channelMux sync.RWMutex
	channels   map[uint16]*Channel
	ids        *util.IntAllocator

	closeMux sync.Mutex
	opened   atomic.Bool
	torndown atomic.Bool
}

func newConnection(cf *ConnectionFactory) *Connection {
	c := &Connection{
		factory:  cf,
		log:      cf.Logger.With().Str("component", "connection").Str("addr", cf.Addr()).Logger(),
		metrics:  cf.metrics(),
		channels: make(map[uint16]*Channel),
	}
	c.transport = wire.New(wire.Config{
		Addr:        cf.Addr(),
		TLS:         cf.tlsConfig(),
		DialTimeout: cf.ConnectionTimeout,
		ReadSize:    int(cf.FrameMax),
	}, &c.errors, c.consume, cf.Logger)
	c.state.Store(int32(StateClosed))
	return c
}

// open connects the transport and drives the handshake until channel 0
// reports the connection open.
func (c *Connection) open(ctx context.Context) error {
	c.log.Debug().Msg("connection opening")
	c.errors.Reset()
	c.handshake.Store(int32(expectStart))
	c.readFailed.Store(false)
	c.frameMax.Store(0)
	c.setState(StateOpening)

	if err := c.transport.Open(ctx); err != nil {
		c.setState(StateClosed)
		return err
	}
	if err := c.writeUnchecked(0, frame.NewProtocolHeader()); err != nil {
		c.teardown()
		return err
	}
	if err := c.waitForState(ctx, StateOpen, c.factory.HandshakeTimeout); err != nil {
		c.teardown()
		return err
	}

	c.channelMux.Lock()
	c.ids = util.NewIntAllocator(1, c.MaxChannels())
	c.channelMux.Unlock()

	hb := heartbeat.New(c.Heartbeat(), c.sendHeartbeat, c.factory.Clock, c.log)
	c.heartbeat.Store(hb)
	hb.Start(&c.errors)

	c.opened.Store(true)
	c.metrics.ConnectionOpened()
	c.log.Debug().
		Uint32("frame_max", c.MaxFrameSize()).
		Int("channel_max", c.MaxChannels()).
		Dur("heartbeat", c.Heartbeat()).
		Msg("connection open")
	return nil
}

// waitForState polls until the connection reaches want, an error is
// recorded or the timeout elapses.
func (c *Connection) waitForState(ctx context.Context, want ConnectionState, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for c.State() != want {
		if err := c.checkForErrors(); err != nil {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return amqperr.Connection("connection timed out after %v waiting for state %s", timeout, want)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(protocol.IdleWait):
		}
	}
	return nil
}

// NewChannel opens a channel with the factory's RPC timeout.
func (c *Connection) NewChannel() (*Channel, error) {
	return c.NewChannelWithContext(context.Background())
}

// NewChannelWithTimeout opens a channel whose RPCs use rpcTimeout.
func (c *Connection) NewChannelWithTimeout(rpcTimeout time.Duration) (*Channel, error) {
	return c.newChannel(context.Background(), rpcTimeout)
}

// NewChannelWithContext opens a channel; ctx bounds Channel.Open.
func (c *Connection) NewChannelWithContext(ctx context.Context) (*Channel, error) {
	return c.newChannel(ctx, c.factory.RPCTimeout)
}

// newChannel allocates the lowest free id, reclaiming the ids of closed
// channels first, and opens the channel.
func (c *Connection) newChannel(ctx context.Context, rpcTimeout time.Duration) (*Channel, error) {
	if err := c.checkForErrors(); err != nil {
		return nil, err
	}
	if c.State() != StateOpen {
		return nil, ErrClosed
	}

	c.openMux.Lock()
	defer c.openMux.Unlock()

	c.channelMux.Lock()
	for id, ch := range c.channels {
		if ch.IsClosed() {
			delete(c.channels, id)
			c.ids.Free(int(id))
		}
	}
	id, ok := c.ids.Allocate()
	if !ok {
		c.channelMux.Unlock()
		return nil, amqperr.Connection("reached the maximum number of channels %d", c.MaxChannels())
	}
	ch := newChannel(uint16(id), c, rpcTimeout)
	c.channels[ch.id] = ch
	c.channelMux.Unlock()

	if err := ch.open(ctx); err != nil {
		ch.setState(ChannelClosed)
		c.metrics.ChannelError(err)
		return nil, err
	}
	return ch, nil
}

// Close sends Connection.Close, waits up to CloseTimeout for CloseOk and
// tears the connection down. Closing a closed connection is a no-op.
func (c *Connection) Close() error {
	c.closeMux.Lock()
	defer c.closeMux.Unlock()

	if c.torndown.Load() {
		return nil
	}
	c.log.Debug().Msg("connection closing")
	if !c.IsClosed() {
		c.setState(StateClosing)
	}
	if hb := c.heartbeat.Load(); hb != nil {
		hb.Stop()
	}

	if !c.IsClosed() && c.transport.IsOpen() {
		msg := &frame.ConnectionClose{ReplyCode: protocol.ReplySuccess, ReplyText: "Normal shutdown"}
		if err := c.writeUnchecked(0, msg); err == nil {
			if err := c.waitForCloseOk(); err != nil {
				c.log.Debug().Err(err).Msg("close handshake")
			}
		}
	}

	c.teardown()
	c.log.Debug().Msg("connection closed")
	return nil
}

// waitForCloseOk is waitForState without the error guard: a connection
// error during close ends the wait instead of being raised.
func (c *Connection) waitForCloseOk() error {
	deadline := time.Now().Add(c.factory.CloseTimeout)
	for !c.IsClosed() {
		if c.errors.Len() > 0 {
			return c.errors.First()
		}
		if time.Now().After(deadline) {
			return amqperr.Connection("connection timed out after %v waiting for Connection.CloseOk", c.factory.CloseTimeout)
		}
		time.Sleep(protocol.IdleWait)
	}
	return nil
}

// teardown force-closes every channel and the transport. It must not run
// on the reader goroutine.
func (c *Connection) teardown() {
	if hb := c.heartbeat.Load(); hb != nil {
		hb.Stop()
	}

	c.channelMux.RLock()
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channelMux.RUnlock()
	for _, ch := range channels {
		ch.forceClose()
	}

	c.transport.Close()
	c.setState(StateClosed)

	if c.torndown.CompareAndSwap(false, true) && c.opened.Load() {
		c.metrics.ConnectionClosed()
	}
}

// checkForErrors raises the first recorded connection error, or ErrClosed
// once the connection is closed. Either tears the connection down.
func (c *Connection) checkForErrors() error {
	err := c.errors.First()
	if err == nil {
		if !c.IsClosed() {
			return nil
		}
		err = ErrClosed
	}
	if !c.torndown.Load() {
		c.metrics.ConnectionError(err)
		c.teardown()
	}
	return err
}

// consume is the transport's frame consumer. It runs on the reader
// goroutine and returns the bytes that do not yet hold a whole frame.
func (c *Connection) consume(buf []byte) []byte {
	if c.readFailed.Load() {
		return nil
	}
	for len(buf) > 0 {
		if size, ok := frame.PeekSize(buf); ok {
			if limit := c.inboundFrameMax(); size > limit {
				c.failRead(fmt.Sprintf("frame payload of %d bytes exceeds frame_max %d", size, limit))
				return nil
			}
		}
		n, channel, f, err := frame.Unmarshal(buf)
		if errors.Is(err, frame.ErrIncomplete) {
			return buf
		}
		if err != nil {
			c.failRead(err.Error())
			return nil
		}
		buf = buf[n:]

		if hb := c.heartbeat.Load(); hb != nil {
			hb.RegisterRead()
		}
		if channel == 0 {
			c.onChannel0(f)
			continue
		}

		c.channelMux.RLock()
		ch := c.channels[channel]
		c.channelMux.RUnlock()
		if ch == nil {
			c.log.Warn().Uint16("channel", channel).Str("frame", f.Name()).Msg("frame for unknown channel")
			continue
		}
		ch.onFrame(f)
	}
	return buf
}

// failRead records a frame error. Nothing read after it is decoded.
func (c *Connection) failRead(reason string) {
	c.readFailed.Store(true)
	c.fail(&ConnectionError{Code: protocol.ReplyFrameError, Reason: reason})
}

// inboundFrameMax bounds inbound payloads: the negotiated frame_max, or
// the default until Connection.Tune arrives.
func (c *Connection) inboundFrameMax() int {
	if limit := c.frameMax.Load(); limit > 0 {
		return int(limit)
	}
	return protocol.DefaultFrameMax
}

// writeFrame writes one frame after checking for connection errors.
func (c *Connection) writeFrame(channel uint16, f frame.Frame) error {
	return c.writeFrames(channel, f)
}

// writeFrames writes frames as one batch after checking for connection
// errors.
func (c *Connection) writeFrames(channel uint16, frames ...frame.Frame) error {
	if err := c.checkForErrors(); err != nil {
		return err
	}
	return c.writeUnchecked(channel, frames...)
}

// writeUnchecked marshals frames into one buffer and writes it. Replies
// sent from the reader goroutine use it directly.
func (c *Connection) writeUnchecked(channel uint16, frames ...frame.Frame) error {
	var buf []byte
	for _, f := range frames {
		data, err := frame.Marshal(f, channel)
		if err != nil {
			return &InvalidArgumentError{Reason: err.Error()}
		}
		buf = append(buf, data...)
	}
	if hb := c.heartbeat.Load(); hb != nil {
		hb.RegisterWrite()
	}
	return c.transport.Write(buf)
}

func (c *Connection) sendHeartbeat() error {
	data, err := frame.Marshal(frame.Heartbeat{}, 0)
	if err != nil {
		return err
	}
	return c.transport.Write(data)
}

func (c *Connection) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsOpen reports whether the handshake completed and the connection has
// not been closed.
func (c *Connection) IsOpen() bool {
	return c.State() == StateOpen
}

// IsClosed reports whether the connection is closed.
func (c *Connection) IsClosed() bool {
	return c.State() == StateClosed
}

// IsBlocked reports whether the broker has blocked publishing.
func (c *Connection) IsBlocked() bool {
	return c.blocked.Load()
}

// MaxFrameSize returns the negotiated frame size limit.
func (c *Connection) MaxFrameSize() uint32 {
	return c.frameMax.Load()
}

// MaxChannels returns the negotiated channel limit.
func (c *Connection) MaxChannels() int {
	return int(c.channelMax.Load())
}

// Heartbeat returns the negotiated heartbeat interval; 0 means disabled.
func (c *Connection) Heartbeat() time.Duration {
	return time.Duration(c.heartbeatSec.Load()) * time.Second
}

// ServerProperties returns the properties the broker sent in
// Connection.Start.
func (c *Connection) ServerProperties() Table {
	c.propsMux.RLock()
	defer c.propsMux.RUnlock()
	return c.serverProperties
}

// ChannelCount returns the number of channels that are not closed.
func (c *Connection) ChannelCount() int {
	c.channelMux.RLock()
	defer c.channelMux.RUnlock()
	n := 0
	for _, ch := range c.channels {
		if !ch.IsClosed() {
			n++
		}
	}
	return n
}
