package rabbitmq

import (
	"context"
	"fmt"
	"math"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// ConsumeOptions configures Basic.Consume
type ConsumeOptions struct {
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Args      Table
}

// Qos sets the prefetch window of the channel, or of every channel on the
// connection when global is set.
func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	if prefetchCount < 0 || prefetchCount > math.MaxUint16 {
		return amqperr.InvalidArgument("prefetch_count should be between 0 and %d, got %d", math.MaxUint16, prefetchCount)
	}
	if prefetchSize < 0 || int64(prefetchSize) > math.MaxUint32 {
		return amqperr.InvalidArgument("prefetch_size should be between 0 and %d, got %d", uint32(math.MaxUint32), prefetchSize)
	}

	req := &frame.BasicQos{
		PrefetchCount: uint16(prefetchCount),
		PrefetchSize:  uint32(prefetchSize),
		Global:        global,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.BasicQosOk](req, resp, err)
	return err
}

// Get fetches a single message from queue. It returns nil and no error
// when the queue is empty.
func (ch *Channel) Get(queue string, noAck bool) (*Message, error) {
	return ch.GetWithContext(context.Background(), queue, noAck)
}

// GetWithContext is Get bounded by ctx as well as the RPC timeout.
func (ch *Channel) GetWithContext(ctx context.Context, queue string, noAck bool) (*Message, error) {
	if err := validateShortString("queue", queue); err != nil {
		return nil, err
	}
	if len(ch.ConsumerTags()) > 0 {
		return nil, errConsuming
	}

	ch.rpcMux.Lock()
	defer ch.rpcMux.Unlock()

	ch.getBuf.reset()
	req := &frame.BasicGet{Queue: queue, NoAck: noAck}
	resp, err := ch.call(ctx, req, ch.checkForErrors)
	if err != nil {
		return nil, err
	}

	switch m := resp.(type) {
	case *frame.BasicGetEmpty:
		return nil, nil
	case *frame.BasicGetOk:
		if ch.rpcTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, ch.rpcTimeout)
			defer cancel()
		}
		header, err := ch.readHeader(ctx, &ch.getBuf)
		if err != nil {
			return nil, fmt.Errorf("read Basic.GetOk content: %w", err)
		}
		body, err := ch.readBody(ctx, &ch.getBuf, header.BodySize)
		if err != nil {
			return nil, fmt.Errorf("read Basic.GetOk content: %w", err)
		}
		ch.conn.metrics.MessageConsumed()
		return &Message{
			DeliveryTag:  m.DeliveryTag,
			Redelivered:  m.Redelivered,
			Exchange:     m.Exchange,
			RoutingKey:   m.RoutingKey,
			MessageCount: int(m.MessageCount),
			Properties:   header.Properties,
			Body:         body,
			channel:      ch,
		}, nil
	default:
		return nil, amqperr.Channel("unexpected %s in response to %s", resp.Name(), req.Name())
	}
}

// Recover asks the broker to redeliver unacknowledged messages.
func (ch *Channel) Recover(requeue bool) error {
	req := &frame.BasicRecover{Requeue: requeue}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.BasicRecoverOk](req, resp, err)
	return err
}

// Consume starts a consumer on queue and registers handler for its
// deliveries. Deliveries are dispatched by ProcessDataEvents or
// StartConsuming. An empty consumerTag lets the broker pick one; the tag in
// use is returned.
func (ch *Channel) Consume(queue, consumerTag string, opts ConsumeOptions, handler MessageHandler) (string, error) {
	return ch.ConsumeWithContext(context.Background(), queue, consumerTag, opts, handler)
}

// ConsumeWithContext is Consume bounded by ctx.
func (ch *Channel) ConsumeWithContext(ctx context.Context, queue, consumerTag string, opts ConsumeOptions, handler MessageHandler) (string, error) {
	if err := validateShortStrings("queue", queue, "consumer_tag", consumerTag); err != nil {
		return "", err
	}
	if opts.NoWait && consumerTag == "" {
		return "", amqperr.InvalidArgument("consumer_tag is required when no_wait is set")
	}

	req := &frame.BasicConsume{
		Queue:       queue,
		ConsumerTag: consumerTag,
		NoLocal:     opts.NoLocal,
		NoAck:       opts.AutoAck,
		Exclusive:   opts.Exclusive,
		NoWait:      opts.NoWait,
		Arguments:   opts.Args,
	}
	resp, err := ch.rpcRequest(ctx, req)
	if opts.NoWait {
		if err != nil {
			return "", err
		}
		ch.addConsumer(consumerTag, handler)
		return consumerTag, nil
	}

	ok, err := expect[*frame.BasicConsumeOk](req, resp, err)
	if err != nil {
		return "", err
	}
	ch.addConsumer(ok.ConsumerTag, handler)
	ch.log.Debug().Str("queue", queue).Str("consumer_tag", ok.ConsumerTag).Msg("consumer started")
	return ok.ConsumerTag, nil
}

// Cancel stops the consumer identified by consumerTag.
func (ch *Channel) Cancel(consumerTag string) error {
	if err := validateShortString("consumer_tag", consumerTag); err != nil {
		return err
	}
	req := &frame.BasicCancel{ConsumerTag: consumerTag}
	resp, err := ch.rpcRequest(context.Background(), req)
	if _, err := expect[*frame.BasicCancelOk](req, resp, err); err != nil {
		return err
	}
	ch.removeConsumer(consumerTag)
	return nil
}

// Publish sends msg to exchange. Without publisher confirms it returns true
// once the frames are written. With confirms it blocks for the broker's
// verdict: an ack returns true, a nack returns false and a MessageError.
func (ch *Channel) Publish(exchange, routingKey string, mandatory, immediate bool, msg Publishing) (bool, error) {
	return ch.PublishWithContext(context.Background(), exchange, routingKey, mandatory, immediate, msg)
}

// PublishWithContext is Publish bounded by ctx while waiting for a confirm.
func (ch *Channel) PublishWithContext(ctx context.Context, exchange, routingKey string, mandatory, immediate bool, msg Publishing) (bool, error) {
	if err := validateShortStrings("exchange", exchange, "routing_key", routingKey); err != nil {
		return false, err
	}
	if err := validateProperties(msg.Properties); err != nil {
		return false, err
	}

	frames := ch.publishFrames(exchange, routingKey, mandatory, immediate, msg)
	if !ch.confirming.Load() {
		if err := ch.writeFrames(frames...); err != nil {
			return false, err
		}
		ch.conn.metrics.MessagePublished(len(msg.Body))
		return true, nil
	}

	ch.rpcMux.Lock()
	defer ch.rpcMux.Unlock()

	id := ch.rpc.Register([]string{"Basic.Ack", "Basic.Nack"})
	if err := ch.writeFrames(frames...); err != nil {
		ch.rpc.Remove(id)
		return false, err
	}
	ch.conn.metrics.MessagePublished(len(msg.Body))

	// the broker sends Basic.Return ahead of the confirm, so the wait
	// must not stop on it
	resp, err := ch.rpc.Wait(ctx, id, ch.waitOptions(ch.checkClosed))
	if err != nil {
		return false, err
	}
	if mandatory {
		if err := ch.checkForErrors(); err != nil {
			return false, err
		}
	}

	switch m := resp.(type) {
	case *frame.BasicAck:
		ch.conn.metrics.ConfirmReceived(true)
		return true, nil
	case *frame.BasicNack:
		ch.conn.metrics.ConfirmReceived(false)
		return false, &MessageError{Reason: fmt.Sprintf("Message was nacked by the broker (delivery tag %d)", m.DeliveryTag)}
	default:
		return false, amqperr.Channel("unexpected %s in response to Basic.Publish", resp.Name())
	}
}

// publishFrames builds Basic.Publish, its content header and the body
// split by the negotiated frame size.
func (ch *Channel) publishFrames(exchange, routingKey string, mandatory, immediate bool, msg Publishing) []frame.Frame {
	chunks := frame.SplitBody(msg.Body, int(ch.conn.MaxFrameSize()))
	frames := make([]frame.Frame, 0, 2+len(chunks))
	frames = append(frames,
		&frame.BasicPublish{
			Exchange:   exchange,
			RoutingKey: routingKey,
			Mandatory:  mandatory,
			Immediate:  immediate,
		},
		&frame.ContentHeader{
			ClassID:    protocol.ClassBasic,
			BodySize:   uint64(len(msg.Body)),
			Properties: msg.Properties,
		},
	)
	for _, chunk := range chunks {
		frames = append(frames, &frame.ContentBody{Payload: chunk})
	}
	return frames
}

// Ack acknowledges deliveryTag, and every earlier tag when multiple is set.
func (ch *Channel) Ack(deliveryTag uint64, multiple bool) error {
	if err := ch.writeFrames(&frame.BasicAck{DeliveryTag: deliveryTag, Multiple: multiple}); err != nil {
		return err
	}
	ch.conn.metrics.MessageAcked()
	return nil
}

// Nack negatively acknowledges deliveryTag.
func (ch *Channel) Nack(deliveryTag uint64, multiple, requeue bool) error {
	m := &frame.BasicNack{DeliveryTag: deliveryTag, Multiple: multiple, Requeue: requeue}
	if err := ch.writeFrames(m); err != nil {
		return err
	}
	ch.conn.metrics.MessageNacked()
	return nil
}

// Reject rejects a single delivery.
func (ch *Channel) Reject(deliveryTag uint64, requeue bool) error {
	if err := ch.writeFrames(&frame.BasicReject{DeliveryTag: deliveryTag, Requeue: requeue}); err != nil {
		return err
	}
	ch.conn.metrics.MessageRejected()
	return nil
}
