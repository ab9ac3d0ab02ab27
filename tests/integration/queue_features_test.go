package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/israelio/rabbit-blocking-client/rabbitmq"
)

// declareDeadLetterTarget declares a fanout exchange and a queue bound to
// it, returning both names.
func declareDeadLetterTarget(t *testing.T, conn *rabbitmq.Connection, ch *rabbitmq.Channel) (string, string) {
	t.Helper()

	exchange := GenerateExchangeName(t) + ".dlx"
	queue := GenerateQueueName(t) + ".dlq"
	CleanupExchange(t, conn, exchange)
	CleanupQueue(t, conn, queue)

	if err := ch.ExchangeDeclare(exchange, rabbitmq.ExchangeFanout, rabbitmq.ExchangeOptions{}); err != nil {
		t.Fatalf("DLX ExchangeDeclare failed: %v", err)
	}
	if _, err := ch.QueueDeclare(queue, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("DLX QueueDeclare failed: %v", err)
	}
	if err := ch.QueueBind(queue, exchange, "", nil); err != nil {
		t.Fatalf("DLX QueueBind failed: %v", err)
	}
	return exchange, queue
}

// TestDeadLetterOnReject rejects a message without requeue and finds it in
// the dead letter queue with an x-death header.
func TestDeadLetterOnReject(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	dlx, dlq := declareDeadLetterTarget(t, conn, ch)

	mainQueue := GenerateQueueName(t)
	CleanupQueue(t, conn, mainQueue)
	if _, err := ch.QueueDeclare(mainQueue, rabbitmq.QueueOptions{
		Args: rabbitmq.Table{"x-dead-letter-exchange": dlx},
	}); err != nil {
		t.Fatalf("Main QueueDeclare failed: %v", err)
	}

	MustPublish(t, ch, "", mainQueue, rabbitmq.Publishing{Body: []byte("test message")})

	msg := GetWithin(t, ch, mainQueue, false, 2*time.Second)
	if msg == nil {
		t.Fatal("Message not received")
	}
	if err := msg.Reject(false); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	dead := GetWithin(t, ch, dlq, true, 2*time.Second)
	if dead == nil {
		t.Fatal("Message should be in the dead letter queue")
	}
	if string(dead.Body) != "test message" {
		t.Errorf("Body: got %q, want %q", dead.Body, "test message")
	}
	if _, ok := dead.Properties.Headers["x-death"]; !ok {
		t.Errorf("Headers should carry x-death, got %v", dead.Properties.Headers)
	}
}

// TestPerMessageTTL expires a message with a short expiration into the
// dead letter queue.
func TestPerMessageTTL(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	dlx, dlq := declareDeadLetterTarget(t, conn, ch)

	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)
	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{
		Args: rabbitmq.Table{"x-dead-letter-exchange": dlx},
	}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}

	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{
		Properties: rabbitmq.Properties{Expiration: "100"},
		Body:       []byte("short-lived"),
	})

	dead := GetWithin(t, ch, dlq, true, 3*time.Second)
	if dead == nil {
		t.Fatal("Expired message was not dead-lettered")
	}
	if msg, _ := ch.Get(queueName, true); msg != nil {
		t.Errorf("Expired message still in queue: %q", msg.Body)
	}
}

// TestPerQueueTTL applies x-message-ttl to every message in the queue.
func TestPerQueueTTL(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{
		Args: rabbitmq.Table{"x-message-ttl": int32(100)},
	}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("expires")})

	time.Sleep(300 * time.Millisecond)
	q, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{Passive: true})
	if err != nil {
		t.Fatalf("Passive QueueDeclare failed: %v", err)
	}
	if q.Messages != 0 {
		t.Errorf("Messages after TTL: got %d, want 0", q.Messages)
	}
}

// TestPriorityQueue delivers higher priorities first.
func TestPriorityQueue(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{
		Args: rabbitmq.Table{"x-max-priority": int32(10)},
	}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.ConfirmDeliveries(); err != nil {
		t.Fatalf("ConfirmDeliveries failed: %v", err)
	}

	for _, p := range []uint8{1, 9, 5} {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{
			Properties: rabbitmq.Properties{Priority: p},
			Body:       []byte(fmt.Sprint(p)),
		})
	}

	for _, want := range []string{"9", "5", "1"} {
		msg := GetWithin(t, ch, queueName, true, 2*time.Second)
		if msg == nil {
			t.Fatalf("Expected priority %s, queue empty", want)
		}
		if string(msg.Body) != want {
			t.Errorf("Priority order: got %s, want %s", msg.Body, want)
		}
	}
}

// TestQueueOverflowRejectPublish nacks publishes beyond x-max-length.
func TestQueueOverflowRejectPublish(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{
		Args: rabbitmq.Table{"x-max-length": int32(2), "x-overflow": "reject-publish"},
	}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.ConfirmDeliveries(); err != nil {
		t.Fatalf("ConfirmDeliveries failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("fits")})
	}
	ok, err := ch.Publish("", queueName, false, false, rabbitmq.Publishing{Body: []byte("overflow")})
	if ok {
		t.Error("Publish beyond max length should be nacked")
	}
	if !rabbitmq.IsMessageError(err) {
		t.Errorf("Nacked publish: got %v, want a message error", err)
	}
	if !ch.IsOpen() {
		t.Error("A nack must not close the channel")
	}
}

// TestQueueOverflowDropHead drops the oldest message beyond x-max-length.
func TestQueueOverflowDropHead(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{
		Args: rabbitmq.Table{"x-max-length": int32(2)},
	}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.ConfirmDeliveries(); err != nil {
		t.Fatalf("ConfirmDeliveries failed: %v", err)
	}
	for _, body := range []string{"a", "b", "c"} {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte(body)})
	}

	msg := GetWithin(t, ch, queueName, true, 2*time.Second)
	if msg == nil || string(msg.Body) != "b" {
		t.Fatalf("Expected the head to be dropped, got %+v", msg)
	}
}

// TestExclusiveQueue is invisible to other connections.
func TestExclusiveQueue(t *testing.T) {
	RequireRabbitMQ(t)

	_, ch := NewTestChannel(t)
	q, err := ch.QueueDeclare(GenerateQueueName(t), rabbitmq.QueueOptions{Exclusive: true})
	if err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}

	_, other := NewTestChannel(t)
	_, err = other.QueueDeclare(q.Name, rabbitmq.QueueOptions{Passive: true})
	if code := rabbitmq.ErrorCode(err); code != 405 {
		t.Errorf("Exclusive queue from another connection: got %v (code %d), want 405", err, code)
	}
}
