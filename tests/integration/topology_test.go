package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/israelio/rabbit-blocking-client/rabbitmq"
)

// TestQueueDeclare tests queue declaration
func TestQueueDeclare(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	queue, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{Durable: true})
	if err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if queue.Name != queueName {
		t.Errorf("Queue name: got %s, want %s", queue.Name, queueName)
	}
	if queue.Messages != 0 || queue.Consumers != 0 {
		t.Errorf("Fresh queue: got %d messages, %d consumers", queue.Messages, queue.Consumers)
	}

	// redeclaring with the same options is idempotent
	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{Durable: true}); err != nil {
		t.Errorf("Redeclare failed: %v", err)
	}
}

// TestQueueDeclareServerNamed lets the broker pick the queue name.
func TestQueueDeclareServerNamed(t *testing.T) {
	RequireRabbitMQ(t)

	_, ch := NewTestChannel(t)

	queue, err := ch.QueueDeclare("", rabbitmq.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if !strings.HasPrefix(queue.Name, "amq.gen-") {
		t.Errorf("Server-named queue: got %s", queue.Name)
	}
}

// TestQueueDeclareInequivalent redeclares a queue with different options,
// which the broker answers with PRECONDITION_FAILED.
func TestQueueDeclareInequivalent(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{Durable: true}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	_, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{Durable: false})
	if code := rabbitmq.ErrorCode(err); code != 406 {
		t.Errorf("Inequivalent redeclare: got %v (code %d), want 406", err, code)
	}
}

// TestQueuePurgeAndDelete counts purged and deleted messages.
func TestQueuePurgeAndDelete(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.ConfirmDeliveries(); err != nil {
		t.Fatalf("ConfirmDeliveries failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("x")})
	}

	purged, err := ch.QueuePurge(queueName)
	if err != nil {
		t.Fatalf("QueuePurge failed: %v", err)
	}
	if purged != 5 {
		t.Errorf("Purged: got %d, want 5", purged)
	}

	for i := 0; i < 3; i++ {
		MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("y")})
	}
	deleted, err := ch.QueueDelete(queueName, false, false)
	if err != nil {
		t.Fatalf("QueueDelete failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Deleted: got %d, want 3", deleted)
	}

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{Passive: true}); rabbitmq.ErrorCode(err) != 404 {
		t.Errorf("Deleted queue still exists: %v", err)
	}
}

// TestQueueDeleteIfEmpty refuses to delete a queue holding messages.
func TestQueueDeleteIfEmpty(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	queueName := GenerateQueueName(t)
	CleanupQueue(t, conn, queueName)

	if _, err := ch.QueueDeclare(queueName, rabbitmq.QueueOptions{}); err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.ConfirmDeliveries(); err != nil {
		t.Fatalf("ConfirmDeliveries failed: %v", err)
	}
	MustPublish(t, ch, "", queueName, rabbitmq.Publishing{Body: []byte("keep")})

	_, err := ch.QueueDelete(queueName, false, true)
	if code := rabbitmq.ErrorCode(err); code != 406 {
		t.Errorf("QueueDelete if-empty: got %v (code %d), want 406", err, code)
	}
}

// TestExchangeDeclareAndDelete tests exchange declaration
func TestExchangeDeclareAndDelete(t *testing.T) {
	RequireRabbitMQ(t)

	_, ch := NewTestChannel(t)
	exchangeName := GenerateExchangeName(t)

	for _, kind := range []string{rabbitmq.ExchangeDirect, rabbitmq.ExchangeFanout, rabbitmq.ExchangeTopic, rabbitmq.ExchangeHeaders} {
		name := exchangeName + "." + kind
		if err := ch.ExchangeDeclare(name, kind, rabbitmq.ExchangeOptions{AutoDelete: true}); err != nil {
			t.Fatalf("ExchangeDeclare %s failed: %v", kind, err)
		}
		if err := ch.ExchangeDeclare(name, kind, rabbitmq.ExchangeOptions{Passive: true}); err != nil {
			t.Errorf("Passive ExchangeDeclare %s failed: %v", kind, err)
		}
		if err := ch.ExchangeDelete(name, false); err != nil {
			t.Errorf("ExchangeDelete %s failed: %v", kind, err)
		}
	}

	err := ch.ExchangeDeclare(exchangeName, rabbitmq.ExchangeDirect, rabbitmq.ExchangeOptions{Passive: true})
	if code := rabbitmq.ErrorCode(err); code != 404 {
		t.Errorf("Passive declare of missing exchange: got %v (code %d), want 404", err, code)
	}
}

// TestTopicExchangeRouting routes by topic pattern.
func TestTopicExchangeRouting(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	exchangeName := GenerateExchangeName(t)
	CleanupExchange(t, conn, exchangeName)

	if err := ch.ExchangeDeclare(exchangeName, rabbitmq.ExchangeTopic, rabbitmq.ExchangeOptions{}); err != nil {
		t.Fatalf("ExchangeDeclare failed: %v", err)
	}

	bindings := map[string]string{
		"orders":  "order.*",
		"all":     "#",
		"created": "*.created",
	}
	queues := make(map[string]string)
	for name, pattern := range bindings {
		q, err := ch.QueueDeclare("", rabbitmq.QueueOptions{Exclusive: true, AutoDelete: true})
		if err != nil {
			t.Fatalf("QueueDeclare failed: %v", err)
		}
		if err := ch.QueueBind(q.Name, exchangeName, pattern, nil); err != nil {
			t.Fatalf("QueueBind %s failed: %v", pattern, err)
		}
		queues[name] = q.Name
	}

	if err := ch.ConfirmDeliveries(); err != nil {
		t.Fatalf("ConfirmDeliveries failed: %v", err)
	}
	MustPublish(t, ch, exchangeName, "order.created", rabbitmq.Publishing{Body: []byte("1")})
	MustPublish(t, ch, exchangeName, "user.created", rabbitmq.Publishing{Body: []byte("2")})
	MustPublish(t, ch, exchangeName, "order.shipped", rabbitmq.Publishing{Body: []byte("3")})

	want := map[string]int{"orders": 2, "all": 3, "created": 2}
	for name, count := range want {
		q, err := ch.QueueDeclare(queues[name], rabbitmq.QueueOptions{Passive: true})
		if err != nil {
			t.Fatalf("Passive declare failed: %v", err)
		}
		if q.Messages != count {
			t.Errorf("Queue %s: got %d messages, want %d", name, q.Messages, count)
		}
	}

	if err := ch.QueueUnbind(queues["all"], exchangeName, "#", nil); err != nil {
		t.Fatalf("QueueUnbind failed: %v", err)
	}
	MustPublish(t, ch, exchangeName, "order.created", rabbitmq.Publishing{Body: []byte("4")})
	q, _ := ch.QueueDeclare(queues["all"], rabbitmq.QueueOptions{Passive: true})
	if q.Messages != 3 {
		t.Errorf("Unbound queue received a message: %d", q.Messages)
	}
}

// TestExchangeToExchangeBinding forwards messages between exchanges.
func TestExchangeToExchangeBinding(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	source := GenerateExchangeName(t) + ".src"
	destination := GenerateExchangeName(t) + ".dst"
	CleanupExchange(t, conn, source)
	CleanupExchange(t, conn, destination)

	if err := ch.ExchangeDeclare(source, rabbitmq.ExchangeFanout, rabbitmq.ExchangeOptions{}); err != nil {
		t.Fatalf("ExchangeDeclare source failed: %v", err)
	}
	if err := ch.ExchangeDeclare(destination, rabbitmq.ExchangeFanout, rabbitmq.ExchangeOptions{}); err != nil {
		t.Fatalf("ExchangeDeclare destination failed: %v", err)
	}
	if err := ch.ExchangeBind(destination, source, "", nil); err != nil {
		t.Fatalf("ExchangeBind failed: %v", err)
	}

	q, err := ch.QueueDeclare("", rabbitmq.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	if err := ch.QueueBind(q.Name, destination, "", nil); err != nil {
		t.Fatalf("QueueBind failed: %v", err)
	}

	MustPublish(t, ch, source, "", rabbitmq.Publishing{Body: []byte("forwarded")})
	msg := GetWithin(t, ch, q.Name, true, 2*time.Second)
	if msg == nil || string(msg.Body) != "forwarded" {
		t.Fatalf("Expected the forwarded message, got %+v", msg)
	}
	if msg.Exchange != source {
		t.Errorf("Exchange: got %s, want %s", msg.Exchange, source)
	}

	if err := ch.ExchangeUnbind(destination, source, "", nil); err != nil {
		t.Fatalf("ExchangeUnbind failed: %v", err)
	}
}

// TestHeadersExchange matches on message headers.
func TestHeadersExchange(t *testing.T) {
	RequireRabbitMQ(t)

	conn, ch := NewTestChannel(t)
	exchangeName := GenerateExchangeName(t)
	CleanupExchange(t, conn, exchangeName)

	if err := ch.ExchangeDeclare(exchangeName, rabbitmq.ExchangeHeaders, rabbitmq.ExchangeOptions{}); err != nil {
		t.Fatalf("ExchangeDeclare failed: %v", err)
	}
	q, err := ch.QueueDeclare("", rabbitmq.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		t.Fatalf("QueueDeclare failed: %v", err)
	}
	args := rabbitmq.Table{"x-match": "all", "format": "pdf", "type": "report"}
	if err := ch.QueueBind(q.Name, exchangeName, "", args); err != nil {
		t.Fatalf("QueueBind failed: %v", err)
	}

	MustPublish(t, ch, exchangeName, "", rabbitmq.Publishing{
		Properties: rabbitmq.Properties{Headers: rabbitmq.Table{"format": "pdf", "type": "log"}},
		Body:       []byte("skip"),
	})
	MustPublish(t, ch, exchangeName, "", rabbitmq.Publishing{
		Properties: rabbitmq.Properties{Headers: rabbitmq.Table{"format": "pdf", "type": "report"}},
		Body:       []byte("match"),
	})

	msg := GetWithin(t, ch, q.Name, true, 2*time.Second)
	if msg == nil || string(msg.Body) != "match" {
		t.Fatalf("Expected the matching message, got %+v", msg)
	}
}
