package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a message received through Get or a consumer, or built with
// NewMessage for publishing.
type Message struct {
	ConsumerTag  string
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount int

	Properties Properties
	Body       []byte

	// set for messages that arrived from the broker
	channel *Channel
}

// NewMessage builds an outgoing message. A missing CorrelationId or
// MessageId is filled with a random UUID and a zero Timestamp with the
// current time.
func NewMessage(body []byte, props Properties) *Message {
	if props.CorrelationId == "" {
		props.CorrelationId = uuid.NewString()
	}
	if props.MessageId == "" {
		props.MessageId = uuid.NewString()
	}
	if props.Timestamp.IsZero() {
		props.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	return &Message{Properties: props, Body: body}
}

// Ack acknowledges the message.
func (m *Message) Ack() error {
	if m.channel == nil {
		return &MessageError{Reason: "Message.Ack only available on incoming messages"}
	}
	return m.channel.Ack(m.DeliveryTag, false)
}

// Nack negatively acknowledges the message.
func (m *Message) Nack(requeue bool) error {
	if m.channel == nil {
		return &MessageError{Reason: "Message.Nack only available on incoming messages"}
	}
	return m.channel.Nack(m.DeliveryTag, false, requeue)
}

// Reject rejects the message.
func (m *Message) Reject(requeue bool) error {
	if m.channel == nil {
		return &MessageError{Reason: "Message.Reject only available on incoming messages"}
	}
	return m.channel.Reject(m.DeliveryTag, requeue)
}

// Publish sends the message on ch.
func (m *Message) Publish(ch *Channel, exchange, routingKey string, mandatory, immediate bool) (bool, error) {
	return ch.Publish(exchange, routingKey, mandatory, immediate, Publishing{
		Properties: m.Properties,
		Body:       m.Body,
	})
}

// JSON decodes the body into v.
func (m *Message) JSON(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode message body: %w", err)
	}
	return nil
}

// Channel returns the channel the message arrived on, or nil.
func (m *Message) Channel() *Channel {
	return m.channel
}
