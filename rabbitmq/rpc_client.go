package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// RpcClient implements request/reply over a private reply queue. Call
// blocks the caller, pumping the channel's deliveries until the reply
// carrying its correlation id arrives.
type RpcClient struct {
	channel     *Channel
	replyQueue  string
	consumerTag string

	mu      sync.Mutex
	pending map[string]*Message
	closed  atomic.Bool
}

// NewRpcClient declares an exclusive reply queue on ch and consumes it.
// The channel should not be used for other consumers.
func NewRpcClient(ch *Channel) (*RpcClient, error) {
	q, err := ch.QueueDeclare("", QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}

	c := &RpcClient{
		channel:    ch,
		replyQueue: q.Name,
		pending:    make(map[string]*Message),
	}
	tag, err := ch.Consume(q.Name, "", ConsumeOptions{AutoAck: true, Exclusive: true}, c.onReply)
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}
	c.consumerTag = tag
	return c, nil
}

// ReplyQueue returns the name of the reply queue.
func (c *RpcClient) ReplyQueue() string {
	return c.replyQueue
}

// Call publishes msg with ReplyTo and CorrelationId set and waits for the
// reply until ctx ends.
func (c *RpcClient) Call(ctx context.Context, exchange, routingKey string, msg Publishing) (*Message, error) {
	if c.closed.Load() {
		return nil, &MessageError{Reason: "rpc client is closed"}
	}

	correlationID := uuid.NewString()
	msg.Properties.ReplyTo = c.replyQueue
	msg.Properties.CorrelationId = correlationID

	c.mu.Lock()
	c.pending[correlationID] = nil
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	if _, err := c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return nil, fmt.Errorf("publish rpc request: %w", err)
	}

	for {
		if err := c.channel.processDataEvents(ctx); err != nil {
			return nil, err
		}
		if reply := c.reply(correlationID); reply != nil {
			return reply, nil
		}
		if err := idle(ctx); err != nil {
			return nil, err
		}
	}
}

func (c *RpcClient) onReply(msg *Message) error {
	id := msg.Properties.CorrelationId
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		c.channel.log.Debug().Str("correlation_id", id).Msg("dropping unexpected rpc reply")
		return nil
	}
	// the reply queue is auto-ack
	msg.channel = nil
	c.pending[id] = msg
	return nil
}

func (c *RpcClient) reply(correlationID string) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[correlationID]
}

// Close cancels the reply consumer. The reply queue is deleted by the
// broker once unused.
func (c *RpcClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.channel.IsClosed() {
		return nil
	}
	return c.channel.Cancel(c.consumerTag)
}
