package integration

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/israelio/rabbit-blocking-client/rabbitmq"
)

// TestBasicPublishConsume tests basic publish and consume
func TestBasicPublishConsume(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}

	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{
		Properties: rabbitmq.TextPlain,
		Body:       []byte("Hello, RabbitMQ!"),
	})

	msgs := ConsumeN(t, ch, queueName, 1, rabbitmq.ConsumeOptions{AutoAck: true}, 5*time.Second)
	if got := string(msgs[0].Body); got != "Hello, RabbitMQ!" {
		t.Errorf("Body: got %q, want %q", got, "Hello, RabbitMQ!")
	}
	if msgs[0].Properties.ContentType != "text/plain" {
		t.Errorf("ContentType: got %q, want text/plain", msgs[0].Properties.ContentType)
	}
	if msgs[0].RoutingKey != queueName {
		t.Errorf("RoutingKey: got %q, want %q", msgs[0].RoutingKey, queueName)
	}
}

// TestBasicGet tests synchronous message retrieval
func TestBasicGet(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}

	msg, err := ch.Get(queueName, true)
	if err != nil {
		t.Fatalf("Get on empty queue failed: %v", err)
	}
	if msg != nil {
		t.Fatalf("Get on empty queue: got %q, want nothing", msg.Body)
	}

	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("first")})
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("second")})

	msg = GetWithin(t, ch, queueName, false, 2*time.Second)
	if msg == nil {
		t.Fatal("Get returned no message")
	}
	if string(msg.Body) != "first" {
		t.Errorf("Body: got %q, want first", msg.Body)
	}
	if msg.MessageCount != 1 {
		t.Errorf("MessageCount: got %d, want 1", msg.MessageCount)
	}
	if err := msg.Ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
}

// TestLargeMessage publishes a body spanning many frames.
func TestLargeMessage(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}

	body := bytes.Repeat([]byte("0123456789"), 100_000)
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: body})

	msg := GetWithin(t, ch, queueName, true, 5*time.Second)
	if msg == nil {
		t.Fatal("Large message not received")
	}
	if !bytes.Equal(msg.Body, body) {
		t.Errorf("Body mismatch: got %d bytes, want %d", len(msg.Body), len(body))
	}
}

// TestEmptyMessage publishes a message without a body.
func TestEmptyMessage(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Properties: rabbitmq.Properties{Type: "ping"}})

	msg := GetWithin(t, ch, queueName, true, 2*time.Second)
	if msg == nil {
		t.Fatal("Empty message not received")
	}
	if len(msg.Body) != 0 {
		t.Errorf("Body: got %d bytes, want 0", len(msg.Body))
	}
	if msg.Properties.Type != "ping" {
		t.Errorf("Type: got %q, want ping", msg.Properties.Type)
	}
}

// TestMessageProperties round-trips every basic property through the broker.
func TestMessageProperties(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}

	props := rabbitmq.Properties{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		Headers: rabbitmq.Table{
			"x-retry-count": int32(3),
			"x-source":      "service-a",
		},
		DeliveryMode:  rabbitmq.Persistent,
		Priority:      5,
		CorrelationId: "correlation-123",
		ReplyTo:       "reply-queue",
		Expiration:    "60000",
		MessageId:     "msg-456",
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		Type:          "user.created",
		AppId:         "integration",
	}
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Properties: props, Body: []byte(`{}`)})

	msg := GetWithin(t, ch, queueName, true, 2*time.Second)
	if msg == nil {
		t.Fatal("Message not received")
	}
	got := msg.Properties
	if got.ContentType != props.ContentType || got.ContentEncoding != props.ContentEncoding {
		t.Errorf("Content fields: got %q/%q", got.ContentType, got.ContentEncoding)
	}
	if got.DeliveryMode != props.DeliveryMode || got.Priority != props.Priority {
		t.Errorf("DeliveryMode/Priority: got %d/%d", got.DeliveryMode, got.Priority)
	}
	if got.CorrelationId != props.CorrelationId || got.ReplyTo != props.ReplyTo || got.MessageId != props.MessageId {
		t.Errorf("Identifiers: got %q %q %q", got.CorrelationId, got.ReplyTo, got.MessageId)
	}
	if !got.Timestamp.Equal(props.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", got.Timestamp, props.Timestamp)
	}
	if got.Headers["x-source"] != "service-a" {
		t.Errorf("Header x-source: got %v", got.Headers["x-source"])
	}
	if got.Headers["x-retry-count"] != int32(3) {
		t.Errorf("Header x-retry-count: got %T %v", got.Headers["x-retry-count"], got.Headers["x-retry-count"])
	}
}

// TestManualAcknowledgment acks one delivery and rejects another with
// requeue, which comes back redelivered.
func TestManualAcknowledgment(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("ack me")})
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("requeue me")})

	msgs := ConsumeN(t, ch, queueName, 2, rabbitmq.ConsumeOptions{}, 5*time.Second)
	if err := msgs[0].Ack(); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if err := msgs[1].Nack(true); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	msg := GetWithin(t, ch, queueName, true, 2*time.Second)
	if msg == nil {
		t.Fatal("Requeued message not received")
	}
	if string(msg.Body) != "requeue me" || !msg.Redelivered {
		t.Errorf("Requeued message: got %q redelivered=%v", msg.Body, msg.Redelivered)
	}
}

// TestRequeueOnChannelClose leaves a delivery unacknowledged and closes
// the channel; the broker requeues it.
func TestRequeueOnChannelClose(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("unacked")})

	if msg := GetWithin(t, ch, queueName, false, 2*time.Second); msg == nil {
		t.Fatal("Message not received")
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	other, err := conn.NewChannel()
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}
	msg := GetWithin(t, other, queueName, true, 2*time.Second)
	if msg == nil || !msg.Redelivered {
		t.Fatalf("Expected a redelivered message, got %+v", msg)
	}
}

// TestQoS limits unacknowledged deliveries to the prefetch count.
func TestQoS(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.Qos(2, 0, false); err != nil {
		t.Fatalf("Qos failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte(fmt.Sprintf("m%d", i))})
	}

	var received int
	if _, err := ch.Consume(queueName, "", rabbitmq.ConsumeOptions{}, func(*rabbitmq.Message) error {
		received++
		return nil
	}); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = ch.StartConsuming(ctx)

	if received != 2 {
		t.Errorf("Unacked deliveries: got %d, want prefetch 2", received)
	}
}

// TestMessageOrdering checks that a single publisher's messages arrive in
// order.
func TestMessageOrdering(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	const n = 100
	for i := 0; i < n; i++ {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte(fmt.Sprint(i))})
	}

	msgs := ConsumeN(t, ch, queueName, n, rabbitmq.ConsumeOptions{AutoAck: true}, 5*time.Second)
	for i, m := range msgs {
		if string(m.Body) != fmt.Sprint(i) {
			t.Fatalf("Message %d: got %s", i, m.Body)
		}
	}
}

// TestGetWhileConsuming is refused locally.
func TestGetWhileConsuming(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if _, err := ch.Consume(queueName, "", rabbitmq.ConsumeOptions{}, func(*rabbitmq.Message) error { return nil }); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if _, err := ch.Get(queueName, true); !rabbitmq.IsChannelError(err) {
		t.Errorf("Get while consuming: got %v, want a channel error", err)
	}
	if err := ch.StopConsuming(); err != nil {
		t.Fatalf("StopConsuming failed: %v", err)
	}
	if _, err := ch.Get(queueName, true); err != nil {
		t.Errorf("Get after StopConsuming failed: %v", err)
	}
}
