package rabbitmq

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/israelio/rabbit-blocking-client/internal/amqptest"
	"github.com/israelio/rabbit-blocking-client/internal/frame"
)

// echoServer replies to every publish on routing key "rpc" through the
// client's reply consumer, which the mock names amq.ctag-1.
func echoServer() amqptest.Option {
	var tag atomic.Uint64
	return amqptest.WithPublishHandler(func(c *amqptest.Conn, channel uint16, p amqptest.Published) {
		if p.RoutingKey != "rpc" {
			return
		}
		props := frame.Properties{CorrelationId: p.Properties.CorrelationId}
		c.Deliver(channel, "amq.ctag-1", tag.Add(1), props, append([]byte("Echo: "), p.Body...))
	})
}

func TestRpcClientCall(t *testing.T) {
	ch, _, s, _ := openMock(t, echoServer())

	client, err := NewRpcClient(ch)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "amq.gen-1", client.ReplyQueue())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := client.Call(ctx, "", "rpc", Publishing{Body: []byte("Hello, RPC!")})
	require.NoError(t, err)
	assert.Equal(t, "Echo: Hello, RPC!", string(reply.Body))
	assert.Nil(t, reply.Channel(), "replies are auto-acked")

	request := s.Published()[0]
	assert.Equal(t, "amq.gen-1", request.Properties.ReplyTo)
	assert.Equal(t, reply.Properties.CorrelationId, request.Properties.CorrelationId)
}

func TestRpcClientTimeout(t *testing.T) {
	ch, _, _, _ := openMock(t)

	client, err := NewRpcClient(ch)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "", "nobody-listens", Publishing{Body: []byte("This will timeout")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRpcClientConcurrentCalls(t *testing.T) {
	ch, _, _, _ := openMock(t, echoServer())

	client, err := NewRpcClient(ch)
	require.NoError(t, err)
	defer client.Close()

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			reply, err := client.Call(callCtx, "", "rpc", Publishing{Body: []byte(fmt.Sprintf("Req-%d", i))})
			if err != nil {
				return fmt.Errorf("call %d failed: %w", i, err)
			}
			if want := fmt.Sprintf("Echo: Req-%d", i); string(reply.Body) != want {
				return fmt.Errorf("call %d: got %s, want %s", i, reply.Body, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestRpcClientClosed(t *testing.T) {
	ch, _, _, sc := openMock(t)

	client, err := NewRpcClient(ch)
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, 1, sc.Count("Basic.Cancel"))

	_, err = client.Call(context.Background(), "", "rpc", Publishing{})
	assert.True(t, IsMessageError(err))
}

// TestRpcClientServer runs the request/reply pattern against a broker.
func TestRpcClientServer(t *testing.T) {
	factory := requireRabbitMQ(t)
	conn := mustConnect(t, factory)

	serverCh := mustCreateChannel(t, conn)
	clientCh := mustCreateChannel(t, conn)

	rpcQueue := fmt.Sprintf("rpc-queue-%d", time.Now().UnixNano())
	if _, err := serverCh.QueueDeclare(rpcQueue, QueueOptions{AutoDelete: true}); err != nil {
		t.Fatalf("Failed to declare RPC queue: %v", err)
	}

	_, err := serverCh.Consume(rpcQueue, "", ConsumeOptions{}, func(m *Message) error {
		response := Publishing{
			Properties: Properties{CorrelationId: m.Properties.CorrelationId},
			Body:       append([]byte("Echo: "), m.Body...),
		}
		if _, err := serverCh.Publish("", m.Properties.ReplyTo, false, false, response); err != nil {
			return err
		}
		return m.Ack()
	})
	if err != nil {
		t.Fatalf("Failed to start server consumer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go serverCh.StartConsuming(ctx)

	client, err := NewRpcClient(clientCh)
	if err != nil {
		t.Fatalf("Failed to create RPC client: %v", err)
	}
	defer client.Close()

	reply, err := client.Call(ctx, "", rpcQueue, Publishing{Body: []byte("Hello, RPC!")})
	if err != nil {
		t.Fatalf("RPC call failed: %v", err)
	}
	if got, want := string(reply.Body), "Echo: Hello, RPC!"; got != want {
		t.Errorf("Reply body: got %s, want %s", got, want)
	}
}
