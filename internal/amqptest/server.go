// Package amqptest provides an in-process AMQP 0-9-1 broker for tests.
//
// The broker listens on a loopback port, performs the server side of the
// handshake and answers every synchronous method with its *Ok reply. Tests
// can override any reply with a Handler, push server-initiated frames with
// Conn.Send and inspect every frame the client wrote.
package amqptest

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// Handler sees every method before the default responder. Returning true
// suppresses the default reply.
type Handler func(c *Conn, channel uint16, m frame.Method) bool

// PublishHandler runs once a published message is complete. The default
// acknowledges it when the channel is in confirm mode.
type PublishHandler func(c *Conn, channel uint16, p Published)

// Received is a frame the client wrote.
type Received struct {
	Channel uint16
	Frame   frame.Frame
}

// Published is a fully reassembled Basic.Publish.
type Published struct {
	Exchange    string
	RoutingKey  string
	Mandatory   bool
	Immediate   bool
	Properties  frame.Properties
	Body        []byte
	BodyFrames  int
	DeliveryTag uint64

	size uint64
}

// Message is queued for Basic.Get.
type Message struct {
	Properties frame.Properties
	Body       []byte
}

// Option configures a Server.
type Option func(*Server)

// WithTune sets the values the server proposes in Connection.Tune.
func WithTune(channelMax uint16, frameMax uint32, heartbeat uint16) Option {
	return func(s *Server) {
		s.tune = frame.ConnectionTune{ChannelMax: channelMax, FrameMax: frameMax, Heartbeat: heartbeat}
	}
}

// WithHandler installs a method hook.
func WithHandler(h Handler) Option {
	return func(s *Server) { s.handler = h }
}

// WithPublishHandler replaces the default publish behaviour.
func WithPublishHandler(h PublishHandler) Option {
	return func(s *Server) { s.onPublish = h }
}

// WithoutHandshake makes the server accept connections and never answer.
func WithoutHandshake() Option {
	return func(s *Server) { s.silent = true }
}

// Server is a scriptable broker bound to a loopback port.
type Server struct {
	t         testing.TB
	ln        net.Listener
	tune      frame.ConnectionTune
	props     protocol.Table
	handler   Handler
	onPublish PublishHandler
	silent    bool

	conns chan *Conn

	mu        sync.Mutex
	queues    map[string][]Message
	published []Published
	all       []*Conn
}

// NewServer starts a broker that is shut down when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("amqptest: listen: %v", err)
	}

	s := &Server{
		t:    t,
		ln:   ln,
		tune: frame.ConnectionTune{ChannelMax: protocol.DefaultChannelMax, FrameMax: protocol.DefaultFrameMax},
		props: protocol.Table{
			"product": "amqptest",
			"version": "0.9.1",
			"capabilities": protocol.Table{
				"publisher_confirms":         true,
				"basic.nack":                 true,
				"consumer_cancel_notify":     true,
				"connection.blocked":         true,
				"exchange_exchange_bindings": true,
			},
		},
		conns:  make(chan *Conn, 16),
		queues: make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port of the listener.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Host returns the listener host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops the listener and drops every connection.
func (s *Server) Close() {
	s.ln.Close()
	s.mu.Lock()
	conns := s.all
	s.mu.Unlock()
	for _, c := range conns {
		c.Drop()
	}
}

// Enqueue makes a message available to Basic.Get on queue.
func (s *Server) Enqueue(queue string, body []byte, props frame.Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = append(s.queues[queue], Message{Properties: props, Body: body})
}

// Published returns every message published so far.
func (s *Server) Published() []Published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Published(nil), s.published...)
}

// Conn waits for the next accepted connection.
func (s *Server) Conn(timeout time.Duration) *Conn {
	s.t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(timeout):
		s.t.Fatalf("amqptest: no connection within %v", timeout)
		return nil
	}
}

func (s *Server) accept() {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &Conn{
			server:   s,
			nc:       nc,
			tune:     s.tune,
			confirms: make(map[uint16]uint64),
			pending:  make(map[uint16]*Published),
			closed:   make(chan struct{}),
		}
		s.mu.Lock()
		s.all = append(s.all, c)
		s.mu.Unlock()
		s.conns <- c
		go c.serve()
	}
}

// Conn is the server side of one client connection.
type Conn struct {
	server *Server
	nc     net.Conn
	tune   frame.ConnectionTune

	writeMu sync.Mutex
	buf     []byte

	mu        sync.Mutex
	received  []Received
	startOk   *frame.ConnectionStartOk
	tuneOk    *frame.ConnectionTuneOk
	vhost     string
	confirms  map[uint16]uint64
	pending   map[uint16]*Published
	consumers int

	closeOnce sync.Once
	closed    chan struct{}
}

// Send writes frames to the client as one batch.
func (c *Conn) Send(channel uint16, frames ...frame.Frame) error {
	var out []byte
	for _, f := range frames {
		data, err := frame.Marshal(f, channel)
		if err != nil {
			return err
		}
		out = append(out, data...)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(out)
	return err
}

// SendRaw writes bytes to the client unchanged.
func (c *Conn) SendRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(p)
	return err
}

// Deliver pushes a Basic.Deliver with its content, split by the tuned frame
// size.
func (c *Conn) Deliver(channel uint16, consumerTag string, deliveryTag uint64, props frame.Properties, body []byte) error {
	frames := []frame.Frame{
		&frame.BasicDeliver{ConsumerTag: consumerTag, DeliveryTag: deliveryTag, RoutingKey: "rk"},
	}
	return c.Send(channel, append(frames, c.content(props, body)...)...)
}

// Return pushes a Basic.Return with its content.
func (c *Conn) Return(channel uint16, code uint16, text, exchange, routingKey string, body []byte) error {
	frames := []frame.Frame{
		&frame.BasicReturn{ReplyCode: code, ReplyText: text, Exchange: exchange, RoutingKey: routingKey},
	}
	return c.Send(channel, append(frames, c.content(frame.Properties{}, body)...)...)
}

func (c *Conn) content(props frame.Properties, body []byte) []frame.Frame {
	frames := []frame.Frame{
		&frame.ContentHeader{ClassID: protocol.ClassBasic, BodySize: uint64(len(body)), Properties: props},
	}
	c.mu.Lock()
	frameMax := int(c.tune.FrameMax)
	c.mu.Unlock()
	for _, chunk := range frame.SplitBody(body, frameMax) {
		frames = append(frames, &frame.ContentBody{Payload: chunk})
	}
	return frames
}

// Drop closes the socket without a Connection.Close.
func (c *Conn) Drop() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.nc.Close()
	})
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Received returns every frame the client wrote after the protocol header.
func (c *Conn) Received() []Received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Received(nil), c.received...)
}

// Count returns how many frames named name the client wrote.
func (c *Conn) Count(name string) int {
	n := 0
	for _, r := range c.Received() {
		if r.Frame.Name() == name {
			n++
		}
	}
	return n
}

// Last returns the most recent frame named name, or nil.
func (c *Conn) Last(name string) frame.Frame {
	received := c.Received()
	for i := len(received) - 1; i >= 0; i-- {
		if received[i].Frame.Name() == name {
			return received[i].Frame
		}
	}
	return nil
}

// StartOk returns the client's Connection.StartOk.
func (c *Conn) StartOk() *frame.ConnectionStartOk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startOk
}

// TuneOk returns the client's Connection.TuneOk.
func (c *Conn) TuneOk() *frame.ConnectionTuneOk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tuneOk
}

// VHost returns the virtual host the client opened.
func (c *Conn) VHost() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vhost
}

func (c *Conn) read() (uint16, frame.Frame, error) {
	chunk := make([]byte, 4096)
	for {
		if len(c.buf) > 0 {
			n, channel, f, err := frame.Unmarshal(c.buf)
			if err == nil {
				c.buf = c.buf[n:]
				return channel, f, nil
			}
			if !errors.Is(err, frame.ErrIncomplete) {
				return 0, nil, err
			}
		}
		n, err := c.nc.Read(chunk)
		if err != nil {
			return 0, nil, err
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

func (c *Conn) serve() {
	defer c.Drop()

	if c.server.silent {
		<-c.closed
		return
	}

	if _, f, err := c.read(); err != nil || f.Name() != frame.NameProtocolHeader {
		return
	}
	start := &frame.ConnectionStart{
		VersionMajor:     protocol.ProtocolVersionMajor,
		VersionMinor:     protocol.ProtocolVersionMinor,
		ServerProperties: c.server.props,
		Mechanisms:       "PLAIN AMQPLAIN",
		Locales:          "en_US",
	}
	if c.Send(0, start) != nil {
		return
	}

	for {
		channel, f, err := c.read()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.received = append(c.received, Received{Channel: channel, Frame: f})
		c.mu.Unlock()

		m, ok := f.(frame.Method)
		if !ok {
			c.onContent(channel, f)
			continue
		}
		if h := c.server.handler; h != nil && h(c, channel, m) {
			continue
		}
		if !c.respond(channel, m) {
			return
		}
	}
}

func (c *Conn) onContent(channel uint16, f frame.Frame) {
	c.mu.Lock()
	p := c.pending[channel]
	if p == nil {
		c.mu.Unlock()
		return
	}
	switch v := f.(type) {
	case *frame.ContentHeader:
		p.Properties = v.Properties
		p.BodyFrames = 0
		if v.BodySize == 0 {
			delete(c.pending, channel)
			c.mu.Unlock()
			c.published(channel, *p)
			return
		}
		p.size = v.BodySize
	case *frame.ContentBody:
		p.Body = append(p.Body, v.Payload...)
		p.BodyFrames++
		if uint64(len(p.Body)) >= p.size {
			delete(c.pending, channel)
			c.mu.Unlock()
			c.published(channel, *p)
			return
		}
	}
	c.mu.Unlock()
}

func (c *Conn) published(channel uint16, p Published) {
	c.mu.Lock()
	seq, confirming := c.confirms[channel]
	if confirming {
		seq++
		c.confirms[channel] = seq
	}
	c.mu.Unlock()
	p.DeliveryTag = seq

	c.server.mu.Lock()
	c.server.published = append(c.server.published, p)
	c.server.mu.Unlock()

	if h := c.server.onPublish; h != nil {
		h(c, channel, p)
		return
	}
	if confirming {
		c.Send(channel, &frame.BasicAck{DeliveryTag: seq})
	}
}

// IsConfirming reports whether Confirm.Select was received on channel.
func (c *Conn) IsConfirming(channel uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.confirms[channel]
	return ok
}

func (c *Conn) respond(channel uint16, m frame.Method) bool {
	var reply frame.Method

	switch v := m.(type) {
	case *frame.ConnectionStartOk:
		c.mu.Lock()
		c.startOk = v
		tune := c.tune
		c.mu.Unlock()
		reply = &tune
	case *frame.ConnectionTuneOk:
		c.mu.Lock()
		c.tuneOk = v
		if v.FrameMax > 0 && v.FrameMax < c.tune.FrameMax {
			c.tune.FrameMax = v.FrameMax
		}
		c.mu.Unlock()
	case *frame.ConnectionOpen:
		c.mu.Lock()
		c.vhost = v.VirtualHost
		c.mu.Unlock()
		reply = &frame.ConnectionOpenOk{}
	case *frame.ConnectionClose:
		c.Send(0, &frame.ConnectionCloseOk{})
		return false
	case *frame.ConnectionCloseOk:
		return false
	case *frame.ChannelOpen:
		reply = &frame.ChannelOpenOk{}
	case *frame.ChannelClose:
		c.mu.Lock()
		delete(c.confirms, channel)
		c.mu.Unlock()
		reply = &frame.ChannelCloseOk{}
	case *frame.ConfirmSelect:
		c.mu.Lock()
		c.confirms[channel] = 0
		c.mu.Unlock()
		if !v.NoWait {
			reply = &frame.ConfirmSelectOk{}
		}
	case *frame.BasicQos:
		reply = &frame.BasicQosOk{}
	case *frame.BasicConsume:
		tag := v.ConsumerTag
		if tag == "" {
			c.mu.Lock()
			c.consumers++
			tag = fmt.Sprintf("amq.ctag-%d", c.consumers)
			c.mu.Unlock()
		}
		if !v.NoWait {
			reply = &frame.BasicConsumeOk{ConsumerTag: tag}
		}
	case *frame.BasicCancel:
		if !v.NoWait {
			reply = &frame.BasicCancelOk{ConsumerTag: v.ConsumerTag}
		}
	case *frame.BasicRecover:
		reply = &frame.BasicRecoverOk{}
	case *frame.BasicGet:
		c.server.mu.Lock()
		queue := c.server.queues[v.Queue]
		var msg *Message
		if len(queue) > 0 {
			msg = &queue[0]
			c.server.queues[v.Queue] = queue[1:]
		}
		remaining := len(c.server.queues[v.Queue])
		c.server.mu.Unlock()
		if msg == nil {
			reply = &frame.BasicGetEmpty{}
			break
		}
		frames := []frame.Frame{&frame.BasicGetOk{DeliveryTag: 1, RoutingKey: v.Queue, MessageCount: uint32(remaining)}}
		c.Send(channel, append(frames, c.content(msg.Properties, msg.Body)...)...)
	case *frame.BasicPublish:
		c.mu.Lock()
		c.pending[channel] = &Published{
			Exchange:   v.Exchange,
			RoutingKey: v.RoutingKey,
			Mandatory:  v.Mandatory,
			Immediate:  v.Immediate,
		}
		c.mu.Unlock()
	case *frame.ExchangeDeclare:
		if !v.NoWait {
			reply = &frame.ExchangeDeclareOk{}
		}
	case *frame.ExchangeDelete:
		if !v.NoWait {
			reply = &frame.ExchangeDeleteOk{}
		}
	case *frame.ExchangeBind:
		if !v.NoWait {
			reply = &frame.ExchangeBindOk{}
		}
	case *frame.ExchangeUnbind:
		if !v.NoWait {
			reply = &frame.ExchangeUnbindOk{}
		}
	case *frame.QueueDeclare:
		name := v.Queue
		if name == "" {
			name = "amq.gen-" + strconv.Itoa(int(channel))
		}
		c.server.mu.Lock()
		count := len(c.server.queues[name])
		c.server.mu.Unlock()
		if !v.NoWait {
			reply = &frame.QueueDeclareOk{Queue: name, MessageCount: uint32(count)}
		}
	case *frame.QueueBind:
		if !v.NoWait {
			reply = &frame.QueueBindOk{}
		}
	case *frame.QueueUnbind:
		reply = &frame.QueueUnbindOk{}
	case *frame.QueuePurge:
		c.server.mu.Lock()
		count := len(c.server.queues[v.Queue])
		delete(c.server.queues, v.Queue)
		c.server.mu.Unlock()
		if !v.NoWait {
			reply = &frame.QueuePurgeOk{MessageCount: uint32(count)}
		}
	case *frame.QueueDelete:
		c.server.mu.Lock()
		count := len(c.server.queues[v.Queue])
		delete(c.server.queues, v.Queue)
		c.server.mu.Unlock()
		if !v.NoWait {
			reply = &frame.QueueDeleteOk{MessageCount: uint32(count)}
		}
	case *frame.TxSelect:
		reply = &frame.TxSelectOk{}
	case *frame.TxCommit:
		reply = &frame.TxCommitOk{}
	case *frame.TxRollback:
		reply = &frame.TxRollbackOk{}
	}

	if reply != nil {
		if err := c.Send(channel, reply); err != nil {
			return false
		}
	}
	return true
}
