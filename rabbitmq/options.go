package rabbitmq

import (
	"crypto/tls"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-connections/tlsconfig"
	"github.com/rs/zerolog"
)

// FactoryOption is a functional option for ConnectionFactory
type FactoryOption func(*ConnectionFactory)

// WithHost sets the host to connect to
func WithHost(host string) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Host = host
	}
}

// WithPort sets the port to connect to
func WithPort(port int) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Port = port
	}
}

// WithCredentials sets the username and password
func WithCredentials(username, password string) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Username = username
		cf.Password = password
	}
}

// WithVHost sets the virtual host
func WithVHost(vhost string) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.VHost = vhost
	}
}

// WithTLS enables TLS with the given configuration
func WithTLS(config *tls.Config) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.TLS = config
	}
}

// WithTLSFiles enables TLS from PEM files. caFile verifies the broker;
// certFile and keyFile, when both set, authenticate the client. A file that
// cannot be loaded fails Validate.
func WithTLSFiles(caFile, certFile, keyFile string) FactoryOption {
	return func(cf *ConnectionFactory) {
		config, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   caFile,
			CertFile: certFile,
			KeyFile:  keyFile,
		})
		if err != nil {
			cf.optionErr = fmt.Errorf("load tls files: %w", err)
			return
		}
		cf.TLS = config
	}
}

// WithConnectionTimeout sets the connection timeout
func WithConnectionTimeout(timeout time.Duration) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.ConnectionTimeout = timeout
	}
}

// WithHandshakeTimeout sets the handshake timeout
func WithHandshakeTimeout(timeout time.Duration) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.HandshakeTimeout = timeout
	}
}

// WithCloseTimeout bounds the wait for Connection.CloseOk.
func WithCloseTimeout(timeout time.Duration) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.CloseTimeout = timeout
	}
}

// WithRPCTimeout sets the default timeout of every channel RPC.
func WithRPCTimeout(timeout time.Duration) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.RPCTimeout = timeout
	}
}

// WithHeartbeat sets the heartbeat interval
func WithHeartbeat(interval time.Duration) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Heartbeat = interval
	}
}

// WithChannelMax sets the maximum number of channels
func WithChannelMax(max uint16) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.ChannelMax = max
	}
}

// WithFrameMax sets the maximum frame size
func WithFrameMax(max uint32) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.FrameMax = max
	}
}

// WithClientProperties sets custom client properties
func WithClientProperties(properties Table) FactoryOption {
	return func(cf *ConnectionFactory) {
		if cf.ClientProperties == nil {
			cf.ClientProperties = make(Table)
		}
		for k, v := range properties {
			cf.ClientProperties[k] = v
		}
	}
}

// WithClientProperty sets a single client property
func WithClientProperty(key string, value interface{}) FactoryOption {
	return func(cf *ConnectionFactory) {
		if cf.ClientProperties == nil {
			cf.ClientProperties = make(Table)
		}
		cf.ClientProperties[key] = value
	}
}

// WithBlockedHandler sets a custom blocked connection handler
func WithBlockedHandler(handler BlockedHandler) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.BlockedHandler = handler
	}
}

// WithLogger sets the logger every connection derives its loggers from.
func WithLogger(logger zerolog.Logger) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector MetricsCollector) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Metrics = collector
	}
}

// WithClock replaces the clock that drives heartbeats.
func WithClock(clk clock.Clock) FactoryOption {
	return func(cf *ConnectionFactory) {
		cf.Clock = clk
	}
}
