// Package amqperr defines the error taxonomy shared by the client layers.
//
// ConnectionError is fatal to a connection and every channel on it,
// ChannelError only to one channel. MessageError reports a publish the
// broker returned or nacked, and InvalidArgumentError never leaves the
// client.
package amqperr

import (
	"errors"
	"fmt"
)

// InvalidArgumentError is raised by local parameter validation.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// ConnectionError represents a failure of the whole connection.
type ConnectionError struct {
	Code   int
	Reason string
}

func (e *ConnectionError) Error() string {
	return render("connection error", e.Code, e.Reason)
}

// ChannelError represents a failure of a single channel.
type ChannelError struct {
	Code   int
	Reason string
}

func (e *ChannelError) Error() string {
	return render("channel error", e.Code, e.Reason)
}

// MessageError reports a message the broker did not accept.
type MessageError struct {
	Code   int
	Reason string
}

func (e *MessageError) Error() string {
	return render("message error", e.Code, e.Reason)
}

func render(kind string, code int, reason string) string {
	if code == 0 {
		return fmt.Sprintf("%s: %s", kind, reason)
	}
	return fmt.Sprintf("%s (%d): %s", kind, code, reason)
}

// InvalidArgument builds an InvalidArgumentError from a format string.
func InvalidArgument(format string, args ...interface{}) error {
	return &InvalidArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// Connection builds a ConnectionError without a reply code.
func Connection(format string, args ...interface{}) error {
	return &ConnectionError{Reason: fmt.Sprintf(format, args...)}
}

// Channel builds a ChannelError without a reply code.
func Channel(format string, args ...interface{}) error {
	return &ChannelError{Reason: fmt.Sprintf(format, args...)}
}

// Message builds a MessageError without a reply code.
func Message(format string, args ...interface{}) error {
	return &MessageError{Reason: fmt.Sprintf(format, args...)}
}

// IsConnection reports whether err is or wraps a ConnectionError.
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsChannel reports whether err is or wraps a ChannelError.
func IsChannel(err error) bool {
	var target *ChannelError
	return errors.As(err, &target)
}

// IsMessage reports whether err is or wraps a MessageError.
func IsMessage(err error) bool {
	var target *MessageError
	return errors.As(err, &target)
}

// IsInvalidArgument reports whether err is or wraps an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}
