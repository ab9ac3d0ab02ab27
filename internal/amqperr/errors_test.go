package amqperr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid argument", InvalidArgument("queue should be a string"), "invalid argument: queue should be a string"},
		{"connection without code", Connection("connection closed"), "connection error: connection closed"},
		{"connection with code", &ConnectionError{Code: 320, Reason: "CONNECTION_FORCED"}, "connection error (320): CONNECTION_FORCED"},
		{"channel with code", &ChannelError{Code: 404, Reason: "NOT_FOUND"}, "channel error (404): NOT_FOUND"},
		{"message", Message("Message not delivered"), "message error: Message not delivered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestClassification(t *testing.T) {
	wrapped := fmt.Errorf("open channel: %w", Connection("socket closed"))

	assert.True(t, IsConnection(wrapped))
	assert.False(t, IsChannel(wrapped))
	assert.True(t, IsChannel(Channel("channel was closed")))
	assert.True(t, IsMessage(Message("nacked")))
	assert.True(t, IsInvalidArgument(InvalidArgument("bad")))
	assert.False(t, IsConnection(nil))
}
