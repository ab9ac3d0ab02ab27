package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
	"github.com/israelio/rabbit-blocking-client/internal/rpc"
	"github.com/israelio/rabbit-blocking-client/internal/util"
)

// ChannelState represents the state of a channel
type ChannelState int32

const (
	ChannelClosed ChannelState = iota
	ChannelOpening
	ChannelOpen
	ChannelClosing
)

// String returns a string representation of the channel state
func (s ChannelState) String() string {
	switch s {
	case ChannelClosed:
		return "closed"
	case ChannelOpening:
		return "opening"
	case ChannelOpen:
		return "open"
	case ChannelClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// contentRoute selects the buffer that receives content frames following a
// Deliver, GetOk or Return.
type contentRoute int

const (
	routeConsumer contentRoute = iota
	routeGet
	routeDiscard
)

// maxPrealloc caps the body buffer allocated up front from a declared size.
const maxPrealloc = 1 << 20

// MessageHandler receives consumed messages. A non-nil error stops
// ProcessDataEvents and StartConsuming and is returned by them.
type MessageHandler func(msg *Message) error

// Channel is an AMQP channel. Its RPCs block the calling goroutine and are
// serialized by rpcMux; inbound frames arrive through onFrame on the
// connection's reader goroutine.
type Channel struct {
	id         uint16
	conn       *Connection
	log        zerolog.Logger
	rpcTimeout time.Duration

	state  atomic.Int32
	rpc    *rpc.Correlator
	rpcMux sync.Mutex
	errors util.ErrorList

	// route is only used by the reader goroutine
	route   contentRoute
	inbound frameBuffer
	getBuf  frameBuffer

	consumerMux sync.RWMutex
	consumers   map[string]MessageHandler

	buildMux   sync.Mutex
	confirming atomic.Bool
	txActive   atomic.Bool
	flowActive atomic.Bool
}

func newChannel(id uint16, conn *Connection, rpcTimeout time.Duration) *Channel {
	return &Channel{
		id:         id,
		conn:       conn,
		log:        conn.log.With().Str("component", "channel").Uint16("channel", id).Logger(),
		rpcTimeout: rpcTimeout,
		rpc:        rpc.New(),
		consumers:  make(map[string]MessageHandler),
	}
}

// open sends Channel.Open and waits for OpenOk.
func (ch *Channel) open(ctx context.Context) error {
	ch.inbound.reset()
	ch.getBuf.reset()
	ch.errors.Reset()
	ch.confirming.Store(false)
	ch.txActive.Store(false)
	ch.setState(ChannelOpening)

	req := &frame.ChannelOpen{}
	resp, err := ch.rpcRequest(ctx, req)
	if _, err := expect[*frame.ChannelOpenOk](req, resp, err); err != nil {
		return fmt.Errorf("channel %d open: %w", ch.id, err)
	}
	ch.flowActive.Store(true)
	ch.setState(ChannelOpen)
	ch.log.Debug().Msg("channel open")
	return nil
}

// Close closes the channel with reply code 200.
func (ch *Channel) Close() error {
	return ch.CloseWithCode(protocol.ReplySuccess, "")
}

// CloseWithCode cancels every consumer, sends Channel.Close and waits for
// CloseOk. A channel that is not open, or whose connection is closed, is
// closed locally without touching the network.
func (ch *Channel) CloseWithCode(code int, text string) error {
	if code < 0 || code > 65535 {
		return amqperr.InvalidArgument("reply_code should be between 0 and 65535, got %d", code)
	}
	if err := validateShortString("reply_text", text); err != nil {
		return err
	}

	defer func() {
		ch.inbound.reset()
		ch.getBuf.reset()
		ch.setState(ChannelClosed)
	}()

	if ch.conn.IsClosed() || !ch.IsOpen() {
		ch.clearConsumers()
		ch.log.Debug().Msg("channel forcefully closed")
		return nil
	}

	// CLOSING aborts any RPC another goroutine is waiting on, which
	// releases rpcMux for the close handshake below.
	ch.setState(ChannelClosing)
	ch.log.Debug().Msg("channel closing")

	ch.rpcMux.Lock()
	defer ch.rpcMux.Unlock()
	for _, tag := range ch.ConsumerTags() {
		req := &frame.BasicCancel{ConsumerTag: tag}
		resp, err := ch.closeCall(req)
		if _, err := expect[*frame.BasicCancelOk](req, resp, err); err != nil {
			ch.log.Debug().Err(err).Str("consumer_tag", tag).Msg("cancel consumer")
			break
		}
	}
	ch.clearConsumers()

	req := &frame.ChannelClose{ReplyCode: uint16(code), ReplyText: text}
	resp, err := ch.closeCall(req)
	_, err = expect[*frame.ChannelCloseOk](req, resp, err)
	ch.log.Debug().Msg("channel closed")
	return err
}

// closeCall is call for the close handshake. Only connection errors abort
// its wait.
func (ch *Channel) closeCall(m frame.Method) (frame.Frame, error) {
	id := ch.rpc.Register(frame.ValidResponses(m))
	if err := ch.conn.writeFrames(ch.id, m); err != nil {
		ch.rpc.Remove(id)
		return nil, err
	}
	return ch.rpc.Wait(context.Background(), id, ch.waitOptions(ch.conn.checkForErrors))
}

// forceClose marks the channel closed without a close handshake. The
// connection calls it while tearing down.
func (ch *Channel) forceClose() {
	ch.clearConsumers()
	ch.inbound.reset()
	ch.getBuf.reset()
	ch.setState(ChannelClosed)
}

// rpcRequest writes m and, if m is synchronous, waits for its response.
func (ch *Channel) rpcRequest(ctx context.Context, m frame.Method) (frame.Frame, error) {
	ch.rpcMux.Lock()
	defer ch.rpcMux.Unlock()
	return ch.call(ctx, m, ch.checkForErrors)
}

// call is rpcRequest for callers that already hold rpcMux. The request is
// registered before the write so a fast reply cannot be missed.
func (ch *Channel) call(ctx context.Context, m frame.Method, check func() error) (frame.Frame, error) {
	names := frame.ValidResponses(m)
	if len(names) == 0 {
		return nil, ch.writeFrames(m)
	}

	id := ch.rpc.Register(names)
	if err := ch.writeFrames(m); err != nil {
		ch.rpc.Remove(id)
		return nil, err
	}
	return ch.rpc.Wait(ctx, id, ch.waitOptions(check))
}

func (ch *Channel) waitOptions(check func() error) rpc.WaitOptions {
	return rpc.WaitOptions{Timeout: ch.rpcTimeout, Check: check}
}

// expect asserts the type of an RPC response.
func expect[T frame.Frame](req frame.Method, resp frame.Frame, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	v, ok := resp.(T)
	if !ok {
		name := "nothing"
		if resp != nil {
			name = resp.Name()
		}
		return zero, amqperr.Channel("unexpected %s in response to %s", name, req.Name())
	}
	return v, nil
}

// writeFrames checks for channel errors and writes frames as one batch.
func (ch *Channel) writeFrames(frames ...frame.Frame) error {
	if err := ch.checkForErrors(); err != nil {
		return err
	}
	return ch.conn.writeFrames(ch.id, frames...)
}

// checkForErrors raises connection errors first, marking the channel
// closed, then the first channel error. The error is consumed only while
// the channel is open, so a closed channel keeps reporting why it closed.
// A closing channel fails every check.
func (ch *Channel) checkForErrors() error {
	if err := ch.conn.checkForErrors(); err != nil {
		ch.setState(ChannelClosed)
		return err
	}
	if ch.IsOpen() {
		if err := ch.errors.Pop(); err != nil {
			return err
		}
	} else if err := ch.errors.First(); err != nil {
		return err
	}
	if s := ch.State(); s == ChannelClosing || s == ChannelClosed {
		return ErrChannelClosed
	}
	return nil
}

// checkClosed is checkForErrors for a channel that stays usable: it
// leaves pending message errors in place.
func (ch *Channel) checkClosed() error {
	if err := ch.conn.checkForErrors(); err != nil {
		ch.setState(ChannelClosed)
		return err
	}
	if ch.IsOpen() {
		return nil
	}
	if err := ch.errors.First(); err != nil {
		return err
	}
	return ErrChannelClosed
}

// onFrame handles one inbound frame on the reader goroutine.
func (ch *Channel) onFrame(f frame.Frame) {
	switch f.(type) {
	case *frame.BasicDeliver:
		ch.route = routeConsumer
	case *frame.BasicGetOk:
		ch.route = routeGet
	case *frame.BasicReturn:
		ch.route = routeDiscard
	}

	if ch.rpc.OnFrame(f) {
		return
	}

	switch m := f.(type) {
	case *frame.BasicDeliver:
		ch.inbound.push(m)
	case *frame.ContentHeader, *frame.ContentBody:
		ch.routeContent(f)
	case *frame.BasicConsumeOk:
		ch.addConsumer(m.ConsumerTag, nil)
	case *frame.BasicCancelOk:
		ch.removeConsumer(m.ConsumerTag)
	case *frame.BasicCancel:
		ch.log.Warn().Str("consumer_tag", m.ConsumerTag).Msg("consumer cancelled by broker")
		ch.removeConsumer(m.ConsumerTag)
	case *frame.BasicReturn:
		err := &MessageError{
			Code: int(m.ReplyCode),
			Reason: fmt.Sprintf("Message not delivered: %s (%d) to queue '%s' from exchange '%s'",
				m.ReplyText, m.ReplyCode, m.RoutingKey, m.Exchange),
		}
		ch.log.Warn().Err(err).Msg("message returned")
		ch.conn.metrics.MessageReturned()
		ch.errors.Append(err)
	case *frame.ChannelClose:
		ch.onRemoteClose(m)
	case *frame.ChannelFlow:
		ch.flowActive.Store(m.Active)
		if err := ch.conn.writeUnchecked(ch.id, &frame.ChannelFlowOk{Active: m.Active}); err != nil {
			ch.log.Debug().Err(err).Msg("send Channel.FlowOk")
		}
	case *frame.BasicAck, *frame.BasicNack:
		ch.log.Debug().Str("frame", f.Name()).Msg("confirm without a waiting publisher")
	default:
		ch.log.Error().Str("frame", f.Name()).Msg("unhandled frame")
	}
}

func (ch *Channel) routeContent(f frame.Frame) {
	switch ch.route {
	case routeConsumer:
		ch.inbound.push(f)
	case routeGet:
		ch.getBuf.push(f)
	case routeDiscard:
	}
}

func (ch *Channel) onRemoteClose(m *frame.ChannelClose) {
	err := &ChannelError{
		Code:   int(m.ReplyCode),
		Reason: fmt.Sprintf("Channel %d was closed by remote server: %s", ch.id, m.ReplyText),
	}
	ch.errors.Append(err)
	ch.setState(ChannelClosing)
	ch.log.Warn().Err(err).Msg("channel closed by broker")
	ch.conn.metrics.ChannelError(err)

	if !ch.conn.IsClosed() {
		if err := ch.conn.writeUnchecked(ch.id, &frame.ChannelCloseOk{}); err != nil {
			ch.log.Debug().Err(err).Msg("send Channel.CloseOk")
		}
	}
	ch.clearConsumers()
	ch.inbound.reset()
	ch.getBuf.reset()
	ch.setState(ChannelClosed)
}

// BuildInboundMessages reassembles consumed messages and passes each to
// fn. With breakOnEmpty it returns once the inbound buffer is drained;
// otherwise it runs until the channel closes, fn fails or ctx ends.
func (ch *Channel) BuildInboundMessages(ctx context.Context, breakOnEmpty bool, fn func(*Message) error) error {
	ch.buildMux.Lock()
	defer ch.buildMux.Unlock()

	if err := ch.checkForErrors(); err != nil {
		return err
	}
	for !ch.IsClosed() {
		msg, err := ch.buildMessage(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			if err := ch.checkForErrors(); err != nil {
				return err
			}
			if breakOnEmpty && ch.inbound.len() == 0 {
				return nil
			}
			if err := idle(ctx); err != nil {
				return err
			}
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return ch.errors.First()
}

// buildMessage pops one Deliver and its content header once both are
// buffered, then collects the body. It returns nil when no message is
// ready or the head of the buffer is out of order.
func (ch *Channel) buildMessage(ctx context.Context) (*Message, error) {
	if ch.inbound.len() < 2 {
		return nil, nil
	}
	first, _ := ch.inbound.pop()
	deliver, ok := first.(*frame.BasicDeliver)
	if !ok {
		ch.log.Warn().Str("frame", first.Name()).Msg("out-of-order frame, expected Basic.Deliver")
		return nil, nil
	}
	second, ok := ch.inbound.pop()
	if !ok {
		return nil, nil
	}
	header, ok := second.(*frame.ContentHeader)
	if !ok {
		ch.log.Warn().Str("frame", second.Name()).Msg("out-of-order frame, expected ContentHeader")
		return nil, nil
	}

	body, err := ch.readBody(ctx, &ch.inbound, header.BodySize)
	if err != nil {
		return nil, err
	}
	ch.conn.metrics.MessageConsumed()
	return &Message{
		ConsumerTag: deliver.ConsumerTag,
		DeliveryTag: deliver.DeliveryTag,
		Redelivered: deliver.Redelivered,
		Exchange:    deliver.Exchange,
		RoutingKey:  deliver.RoutingKey,
		Properties:  header.Properties,
		Body:        body,
		channel:     ch,
	}, nil
}

// readHeader waits for the content header that follows a GetOk.
func (ch *Channel) readHeader(ctx context.Context, buf *frameBuffer) (*frame.ContentHeader, error) {
	for {
		if f, ok := buf.pop(); ok {
			header, isHeader := f.(*frame.ContentHeader)
			if !isHeader {
				return nil, amqperr.Channel("unexpected %s, expected ContentHeader", f.Name())
			}
			return header, nil
		}
		if err := ch.checkForErrors(); err != nil {
			return nil, err
		}
		if err := idle(ctx); err != nil {
			return nil, err
		}
	}
}

// readBody concatenates body frames until size bytes arrived. An empty
// body frame means the stream was cut short and ends the body early.
func (ch *Channel) readBody(ctx context.Context, buf *frameBuffer, size uint64) ([]byte, error) {
	body := make([]byte, 0, min(size, maxPrealloc))
	for uint64(len(body)) < size {
		f, ok := buf.pop()
		if !ok {
			if err := ch.checkForErrors(); err != nil {
				return nil, err
			}
			if err := idle(ctx); err != nil {
				return nil, err
			}
			continue
		}
		piece, isBody := f.(*frame.ContentBody)
		if !isBody {
			return nil, amqperr.Channel("unexpected %s while reading a %d byte body", f.Name(), size)
		}
		if len(piece.Payload) == 0 {
			ch.log.Warn().Uint64("declared", size).Int("received", len(body)).Msg("message body truncated")
			break
		}
		body = append(body, piece.Payload...)
	}
	return body, nil
}

// ProcessDataEvents hands every buffered message to its consumer's
// handler and returns once the buffer is empty.
func (ch *Channel) ProcessDataEvents() error {
	return ch.processDataEvents(context.Background())
}

func (ch *Channel) processDataEvents(ctx context.Context) error {
	if len(ch.ConsumerTags()) == 0 {
		return errNoConsumers
	}
	return ch.BuildInboundMessages(ctx, true, ch.dispatch)
}

func (ch *Channel) dispatch(msg *Message) error {
	ch.consumerMux.RLock()
	handler := ch.consumers[msg.ConsumerTag]
	ch.consumerMux.RUnlock()
	if handler == nil {
		ch.log.Warn().Str("consumer_tag", msg.ConsumerTag).Msg("no handler for delivery")
		return nil
	}
	return handler(msg)
}

// StartConsuming dispatches deliveries until every consumer is cancelled,
// the channel closes or ctx ends.
func (ch *Channel) StartConsuming(ctx context.Context) error {
	for !ch.IsClosed() {
		if len(ch.ConsumerTags()) == 0 {
			if ch.IsOpen() {
				return nil
			}
			return ch.errors.First()
		}
		if err := ch.processDataEvents(ctx); err != nil {
			if errors.Is(err, errNoConsumers) {
				continue
			}
			return err
		}
		if err := idle(ctx); err != nil {
			return err
		}
	}
	return ch.errors.First()
}

// StopConsuming cancels every consumer on the channel.
func (ch *Channel) StopConsuming() error {
	tags := ch.ConsumerTags()
	if len(tags) == 0 {
		return nil
	}
	if !ch.IsClosed() {
		for _, tag := range tags {
			if err := ch.Cancel(tag); err != nil {
				return err
			}
		}
	}
	ch.clearConsumers()
	return nil
}

// ConfirmDeliveries puts the channel in publisher confirm mode. Publish
// then blocks until the broker acks or nacks each message.
func (ch *Channel) ConfirmDeliveries() error {
	req := &frame.ConfirmSelect{}
	resp, err := ch.rpcRequest(context.Background(), req)
	if _, err := expect[*frame.ConfirmSelectOk](req, resp, err); err != nil {
		return err
	}
	ch.confirming.Store(true)
	return nil
}

func (ch *Channel) addConsumer(tag string, handler MessageHandler) {
	ch.consumerMux.Lock()
	defer ch.consumerMux.Unlock()
	if existing, ok := ch.consumers[tag]; ok && handler == nil {
		handler = existing
	}
	ch.consumers[tag] = handler
}

func (ch *Channel) removeConsumer(tag string) {
	ch.consumerMux.Lock()
	defer ch.consumerMux.Unlock()
	delete(ch.consumers, tag)
}

func (ch *Channel) clearConsumers() {
	ch.consumerMux.Lock()
	defer ch.consumerMux.Unlock()
	ch.consumers = make(map[string]MessageHandler)
}

func (ch *Channel) setState(s ChannelState) {
	old := ChannelState(ch.state.Swap(int32(s)))
	if old == s {
		return
	}
	switch {
	case s == ChannelOpen:
		ch.conn.metrics.ChannelOpened()
	case s == ChannelClosed && (old == ChannelOpen || old == ChannelClosing):
		ch.conn.metrics.ChannelClosed()
	}
}

// ID returns the channel number.
func (ch *Channel) ID() uint16 {
	return ch.id
}

// State returns the current channel state.
func (ch *Channel) State() ChannelState {
	return ChannelState(ch.state.Load())
}

// IsOpen reports whether the channel is open.
func (ch *Channel) IsOpen() bool {
	return ch.State() == ChannelOpen
}

// IsClosed reports whether the channel is closed.
func (ch *Channel) IsClosed() bool {
	return ch.State() == ChannelClosed
}

// IsConfirming reports whether publisher confirms are enabled.
func (ch *Channel) IsConfirming() bool {
	return ch.confirming.Load()
}

// FlowActive reports the last Channel.Flow state requested by the broker.
func (ch *Channel) FlowActive() bool {
	return ch.flowActive.Load()
}

// ConsumerTags returns the active consumer tags in sorted order.
func (ch *Channel) ConsumerTags() []string {
	ch.consumerMux.RLock()
	defer ch.consumerMux.RUnlock()
	tags := make([]string, 0, len(ch.consumers))
	for tag := range ch.consumers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func idle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(protocol.IdleWait):
		return nil
	}
}

// frameBuffer is a mutex-guarded FIFO shared by the reader goroutine and
// the goroutine reassembling messages.
type frameBuffer struct {
	mu     sync.Mutex
	frames []frame.Frame
}

func (b *frameBuffer) push(f frame.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, f)
}

func (b *frameBuffer) pop() (frame.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil, false
	}
	f := b.frames[0]
	b.frames[0] = nil
	b.frames = b.frames[1:]
	return f, true
}

func (b *frameBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func (b *frameBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}
