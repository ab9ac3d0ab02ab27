package rabbitmq

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/israelio/rabbit-blocking-client/internal/amqptest"
)

// requireRabbitMQ skips the test if RabbitMQ is not reachable. The address
// defaults to localhost:5672 and can be overridden with RABBITMQ_URI.
func requireRabbitMQ(t *testing.T) *ConnectionFactory {
	t.Helper()

	factory := NewConnectionFactory(WithConnectionTimeout(10 * time.Second))
	if uri := os.Getenv("RABBITMQ_URI"); uri != "" {
		if err := factory.SetURI(uri); err != nil {
			t.Fatalf("RABBITMQ_URI: %v", err)
		}
	}

	conn, err := net.DialTimeout("tcp", factory.Addr(), 2*time.Second)
	if err != nil {
		t.Skipf("RabbitMQ not available on %s: %v", factory.Addr(), err)
		return nil
	}
	conn.Close()
	return factory
}

// mustConnect creates a connection or fails the test
func mustConnect(t *testing.T, factory *ConnectionFactory) *Connection {
	t.Helper()

	conn, err := factory.NewConnection()
	if err != nil {
		t.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// mustCreateChannel creates a channel or fails the test
func mustCreateChannel(t *testing.T, conn *Connection) *Channel {
	t.Helper()

	ch, err := conn.NewChannel()
	if err != nil {
		t.Fatalf("Failed to create channel: %v", err)
	}
	return ch
}

// mockFactory returns a factory pointed at s with short timeouts.
func mockFactory(s *amqptest.Server, opts ...FactoryOption) *ConnectionFactory {
	base := []FactoryOption{
		WithHost(s.Host()),
		WithPort(s.Port()),
		WithConnectionTimeout(2 * time.Second),
		WithHandshakeTimeout(2 * time.Second),
		WithCloseTimeout(time.Second),
		WithRPCTimeout(2 * time.Second),
	}
	return NewConnectionFactory(append(base, opts...)...)
}

// dialMock starts a mock broker, connects to it and returns both ends.
func dialMock(t *testing.T, serverOpts []amqptest.Option, opts ...FactoryOption) (*Connection, *amqptest.Server, *amqptest.Conn) {
	t.Helper()

	s := amqptest.NewServer(t, serverOpts...)
	conn, err := mockFactory(s, opts...).NewConnection()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, s, s.Conn(time.Second)
}

// openMock is dialMock plus one open channel.
func openMock(t *testing.T, serverOpts ...amqptest.Option) (*Channel, *Connection, *amqptest.Server, *amqptest.Conn) {
	t.Helper()

	conn, s, sc := dialMock(t, serverOpts)
	ch, err := conn.NewChannel()
	require.NoError(t, err)
	return ch, conn, s, sc
}
