package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// Version is reported to the broker in the client properties.
const Version = "1.0.0"

// ConnectionFactory creates and configures AMQP connections
type ConnectionFactory struct {
	// Connection settings
	Host     string
	Port     int
	VHost    string
	Username string
	Password string

	// TLS configuration; nil means plain TCP
	TLS *tls.Config

	// Timeouts
	ConnectionTimeout time.Duration
	HandshakeTimeout  time.Duration
	CloseTimeout      time.Duration
	RPCTimeout        time.Duration

	// Proposed connection parameters. The broker may lower them; 0 leaves
	// the choice to the broker, except for Heartbeat where 0 disables it.
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  time.Duration

	// Client properties sent to server
	ClientProperties Table

	BlockedHandler BlockedHandler
	Logger         zerolog.Logger
	Metrics        MetricsCollector

	// Clock drives the heartbeat timer.
	Clock clock.Clock

	optionErr error
}

// BlockedHandler receives connection blocked/unblocked events. It runs on
// the reader goroutine and must not block.
type BlockedHandler interface {
	OnBlocked(conn *Connection, reason string)
	OnUnblocked(conn *Connection)
}

// NewConnectionFactory creates a new ConnectionFactory with sensible defaults
func NewConnectionFactory(opts ...FactoryOption) *ConnectionFactory {
	cf := &ConnectionFactory{
		Host:              "localhost",
		Port:              protocol.DefaultPort,
		VHost:             protocol.DefaultVHost,
		Username:          "guest",
		Password:          "guest",
		ConnectionTimeout: protocol.DefaultConnectionTimeout,
		HandshakeTimeout:  10 * time.Second,
		CloseTimeout:      10 * time.Second,
		RPCTimeout:        protocol.DefaultRPCTimeout,
		Heartbeat:         protocol.DefaultHeartbeat,
		ChannelMax:        protocol.DefaultChannelMax,
		FrameMax:          protocol.DefaultFrameMax,
		ClientProperties:  defaultClientProperties(),
		Logger:            zerolog.Nop(),
		Metrics:           NoOpMetricsCollector{},
		Clock:             clock.NewClock(),
	}

	for _, opt := range opts {
		opt(cf)
	}
	return cf
}

// Dial opens a connection configured by opts.
func Dial(opts ...FactoryOption) (*Connection, error) {
	return NewConnectionFactory(opts...).NewConnection()
}

// DialURI opens a connection to an amqp:// or amqps:// URI. Options are
// applied after the URI.
func DialURI(uri string, opts ...FactoryOption) (*Connection, error) {
	cf, err := NewConnectionFactoryFromURI(uri)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(cf)
	}
	return cf.NewConnection()
}

// NewConnection creates a new connection using the factory settings
func (cf *ConnectionFactory) NewConnection() (*Connection, error) {
	return cf.NewConnectionWithContext(context.Background())
}

// NewConnectionWithContext opens a connection. ctx bounds the dial and the
// handshake together with ConnectionTimeout and HandshakeTimeout.
func (cf *ConnectionFactory) NewConnectionWithContext(ctx context.Context) (*Connection, error) {
	if err := cf.Validate(); err != nil {
		return nil, &InvalidArgumentError{Reason: err.Error()}
	}

	conn := newConnection(cf)
	if err := conn.open(ctx); err != nil {
		cf.metrics().ConnectionError(err)
		return nil, err
	}
	return conn, nil
}

// Addr returns host:port.
func (cf *ConnectionFactory) Addr() string {
	return net.JoinHostPort(cf.Host, strconv.Itoa(cf.Port))
}

// Validate validates the ConnectionFactory configuration
func (cf *ConnectionFactory) Validate() error {
	if cf.optionErr != nil {
		return cf.optionErr
	}
	if cf.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if cf.Port <= 0 || cf.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cf.Port)
	}
	if cf.VHost == "" {
		return fmt.Errorf("vhost cannot be empty")
	}
	if cf.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(cf.VHost) > protocol.ShortStrMaxLen {
		return fmt.Errorf("vhost should be at most %d bytes, got %d", protocol.ShortStrMaxLen, len(cf.VHost))
	}

	for name, d := range map[string]time.Duration{
		"connection timeout": cf.ConnectionTimeout,
		"handshake timeout":  cf.HandshakeTimeout,
		"close timeout":      cf.CloseTimeout,
		"rpc timeout":        cf.RPCTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %v", name, d)
		}
	}

	// 0 disables heartbeats; the wire carries whole seconds
	if cf.Heartbeat < 0 {
		return fmt.Errorf("heartbeat cannot be negative, got %v", cf.Heartbeat)
	}
	if cf.Heartbeat > 0 && cf.Heartbeat < time.Second {
		return fmt.Errorf("heartbeat must be 0 or at least 1s, got %v", cf.Heartbeat)
	}
	if cf.Heartbeat/time.Second > 65535 {
		return fmt.Errorf("heartbeat must fit in 65535 seconds, got %v", cf.Heartbeat)
	}

	if cf.FrameMax != 0 && cf.FrameMax < protocol.FrameMinSize {
		return fmt.Errorf("frame max must be 0 or >= %d, got %d", protocol.FrameMinSize, cf.FrameMax)
	}
	return nil
}

// tlsConfig returns a copy of TLS whose ServerName defaults to Host.
func (cf *ConnectionFactory) tlsConfig() *tls.Config {
	if cf.TLS == nil {
		return nil
	}
	config := cf.TLS.Clone()
	if config.ServerName == "" {
		config.ServerName = cf.Host
	}
	return config
}

func (cf *ConnectionFactory) metrics() MetricsCollector {
	if cf.Metrics == nil {
		return NoOpMetricsCollector{}
	}
	return cf.Metrics
}

// clientProperties merges the configured properties over the defaults and
// always advertises the capabilities this client implements.
func (cf *ConnectionFactory) clientProperties() Table {
	props := defaultClientProperties()
	for k, v := range cf.ClientProperties {
		props[k] = v
	}
	if _, ok := props["capabilities"].(Table); !ok {
		props["capabilities"] = defaultCapabilities()
	}
	return props
}

func defaultCapabilities() Table {
	return Table{
		"publisher_confirms":           true,
		"exchange_exchange_bindings":   true,
		"basic.nack":                   true,
		"consumer_cancel_notify":       true,
		"connection.blocked":           true,
		"authentication_failure_close": true,
	}
}

func defaultClientProperties() Table {
	return Table{
		"product":      "rabbit-blocking-client",
		"version":      Version,
		"platform":     "Go " + runtime.Version(),
		"information":  "https://github.com/israelio/rabbit-blocking-client",
		"capabilities": defaultCapabilities(),
	}
}
