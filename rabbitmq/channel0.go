package rabbitmq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

const maxChannelID = 65535

// handshakeStep is the channel-0 method the handshake expects next.
type handshakeStep int32

const (
	expectStart handshakeStep = iota
	expectTune
	expectOpenOk
	handshakeDone
)

func (s handshakeStep) String() string {
	switch s {
	case expectStart:
		return "Connection.Start"
	case expectTune:
		return "Connection.Tune"
	case expectOpenOk:
		return "Connection.OpenOk"
	}
	return "none"
}

// onChannel0 handles connection-level frames on the reader goroutine. It
// only writes with writeUnchecked and reports failures through c.errors.
func (c *Connection) onChannel0(f frame.Frame) {
	if !c.inSequence(f) {
		return
	}

	switch m := f.(type) {
	case frame.Heartbeat:
	case *frame.ConnectionStart:
		if c.onStart(m) {
			c.handshake.Store(int32(expectTune))
		}
	case *frame.ConnectionTune:
		if c.onTune(m) {
			c.handshake.Store(int32(expectOpenOk))
		}
	case *frame.ConnectionOpenOk:
		c.handshake.Store(int32(handshakeDone))
		c.setState(StateOpen)
	case *frame.ConnectionClose:
		c.onRemoteClose(m)
	case *frame.ConnectionCloseOk:
		c.setState(StateClosed)
	case *frame.ConnectionBlocked:
		c.log.Warn().Str("reason", m.Reason).Msg("connection blocked")
		c.blocked.Store(true)
		if h := c.factory.BlockedHandler; h != nil {
			h.OnBlocked(c, m.Reason)
		}
	case *frame.ConnectionUnblocked:
		c.log.Info().Msg("connection unblocked")
		c.blocked.Store(false)
		if h := c.factory.BlockedHandler; h != nil {
			h.OnUnblocked(c)
		}
	case frame.ProtocolHeader:
		c.fail(amqperr.Connection("broker requires protocol %d-%d-%d", m.Major, m.Minor, m.Revision))
	case *frame.ConnectionSecure:
		c.fail(amqperr.Connection("Connection.Secure challenges are not supported"))
	default:
		c.log.Error().Str("frame", f.Name()).Msg("unhandled frame on channel 0")
	}
}

// inSequence enforces the handshake order Start, Tune, OpenOk. While
// opening only the expected method, a heartbeat or a close may arrive;
// once open the handshake methods are never valid again. A frame
// out of sequence fails the connection with 505 and marks it closed.
func (c *Connection) inSequence(f frame.Frame) bool {
	switch f.(type) {
	case frame.Heartbeat, *frame.ConnectionClose, *frame.ConnectionCloseOk, frame.ProtocolHeader, *frame.ConnectionSecure:
		return true
	}

	want := handshakeStep(c.handshake.Load())
	var got handshakeStep
	switch f.(type) {
	case *frame.ConnectionStart:
		got = expectStart
	case *frame.ConnectionTune:
		got = expectTune
	case *frame.ConnectionOpenOk:
		got = expectOpenOk
	default:
		got = handshakeDone
	}

	if want == handshakeDone && got == handshakeDone {
		return true
	}
	if want != handshakeDone && got == want && c.State() == StateOpening {
		return true
	}

	c.fail(&ConnectionError{
		Code:   protocol.ReplyUnexpectedFrame,
		Reason: fmt.Sprintf("unexpected frame %s on channel 0, expected %s", f.Name(), want),
	})
	c.setState(StateClosed)
	return false
}

func (c *Connection) onStart(m *frame.ConnectionStart) bool {
	c.log.Debug().Msg("received Connection.Start")
	if m.VersionMajor != protocol.ProtocolVersionMajor || m.VersionMinor != protocol.ProtocolVersionMinor {
		c.fail(amqperr.Connection("unsupported protocol version %d.%d", m.VersionMajor, m.VersionMinor))
		return false
	}

	c.propsMux.Lock()
	c.serverProperties = m.ServerProperties
	c.propsMux.Unlock()

	auth := &amqp.PlainAuth{Username: c.factory.Username, Password: c.factory.Password}
	if !hasMechanism(m.Mechanisms, auth.Mechanism()) {
		c.fail(amqperr.Connection("unsupported security mechanism(s): %s", m.Mechanisms))
		return false
	}

	startOk := &frame.ConnectionStartOk{
		ClientProperties: c.factory.clientProperties(),
		Mechanism:        auth.Mechanism(),
		Response:         auth.Response(),
		Locale:           "en_US",
	}
	if err := c.writeUnchecked(0, startOk); err != nil {
		c.fail(err)
		return false
	}
	return true
}

func (c *Connection) onTune(m *frame.ConnectionTune) bool {
	channelMax := negotiate(uint32(c.factory.ChannelMax), uint32(m.ChannelMax))
	if channelMax == 0 {
		channelMax = maxChannelID
	}
	frameMax := negotiate(c.factory.FrameMax, m.FrameMax)
	if frameMax == 0 {
		frameMax = protocol.DefaultFrameMax
	}
	heartbeat := negotiateHeartbeat(uint32(c.factory.Heartbeat.Seconds()), uint32(m.Heartbeat))

	c.channelMax.Store(channelMax)
	c.frameMax.Store(frameMax)
	c.heartbeatSec.Store(heartbeat)
	c.transport.SetReadSize(int(frameMax))

	c.log.Debug().
		Uint32("channel_max", channelMax).
		Uint32("frame_max", frameMax).
		Uint32("heartbeat", heartbeat).
		Msg("received Connection.Tune")

	tuneOk := &frame.ConnectionTuneOk{
		ChannelMax: uint16(channelMax),
		FrameMax:   frameMax,
		Heartbeat:  uint16(heartbeat),
	}
	open := &frame.ConnectionOpen{VirtualHost: c.factory.VHost}
	if err := c.writeUnchecked(0, tuneOk, open); err != nil {
		c.fail(err)
		return false
	}
	return true
}

func (c *Connection) onRemoteClose(m *frame.ConnectionClose) {
	c.log.Warn().Uint16("code", m.ReplyCode).Str("reason", m.ReplyText).Msg("connection closed by broker")
	if err := c.writeUnchecked(0, &frame.ConnectionCloseOk{}); err != nil {
		c.log.Debug().Err(err).Msg("send Connection.CloseOk")
	}
	c.errors.Append(&ConnectionError{
		Code:   int(m.ReplyCode),
		Reason: "Connection was closed by remote server: " + m.ReplyText,
	})
	c.setState(StateClosed)
}

func (c *Connection) fail(err error) {
	c.log.Error().Err(err).Msg("connection failed")
	c.errors.Append(err)
}

// negotiate picks the lower of two limits where 0 means unlimited.
func negotiate(client, server uint32) uint32 {
	switch {
	case client == 0:
		return server
	case server == 0:
		return client
	case client < server:
		return client
	}
	return server
}

// negotiateHeartbeat disables heartbeats when either side asks for 0.
func negotiateHeartbeat(client, server uint32) uint32 {
	if client == 0 || server == 0 {
		return 0
	}
	if client < server {
		return client
	}
	return server
}

func hasMechanism(offered, want string) bool {
	for _, m := range strings.Fields(offered) {
		if m == want {
			return true
		}
	}
	return false
}
