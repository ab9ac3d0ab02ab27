package rabbitmq

import (
	"errors"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// Error types raised by the client. Code carries the AMQP reply code when
// the broker supplied one.
type (
	InvalidArgumentError = amqperr.InvalidArgumentError
	ConnectionError      = amqperr.ConnectionError
	ChannelError         = amqperr.ChannelError
	MessageError         = amqperr.MessageError
)

// Predefined errors for operations on closed resources.
var (
	ErrClosed = &ConnectionError{
		Reason: "connection closed",
	}

	ErrChannelClosed = &ChannelError{
		Reason: "channel was closed",
	}

	errConsuming = &ChannelError{
		Code:   protocol.ReplyCommandInvalid,
		Reason: "Cannot call 'get' when channel is set to consume",
	}

	errNoConsumers = &ChannelError{
		Reason: "no consumer callback defined",
	}
)

// IsConnectionError reports whether err is fatal to the whole connection.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsChannelError reports whether err is fatal to a single channel.
func IsChannelError(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce)
}

// IsMessageError reports whether err describes an undeliverable or rejected
// message.
func IsMessageError(err error) bool {
	var me *MessageError
	return errors.As(err, &me)
}

// IsInvalidArgument reports whether err was raised by local argument
// validation.
func IsInvalidArgument(err error) bool {
	var ie *InvalidArgumentError
	return errors.As(err, &ie)
}

// ErrorCode returns the AMQP reply code carried by err, or 0.
func ErrorCode(err error) int {
	var (
		conn *ConnectionError
		ch   *ChannelError
		msg  *MessageError
	)
	switch {
	case errors.As(err, &conn):
		return conn.Code
	case errors.As(err, &ch):
		return ch.Code
	case errors.As(err, &msg):
		return msg.Code
	}
	return 0
}

func validateShortString(field, value string) error {
	if len(value) > protocol.ShortStrMaxLen {
		return amqperr.InvalidArgument("%s should be at most %d bytes, got %d", field, protocol.ShortStrMaxLen, len(value))
	}
	return nil
}

func validateShortStrings(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if err := validateShortString(fields[i], fields[i+1]); err != nil {
			return err
		}
	}
	return nil
}
