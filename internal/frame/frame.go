// Package frame implements the AMQP 0-9-1 frame codec.
//
// A Frame is one of ProtocolHeader, Heartbeat, ContentHeader, ContentBody or
// one of the typed Method variants declared in methods.go. Marshal and
// Unmarshal convert between frames and their wire representation and hold
// no state.
package frame

import "github.com/israelio/rabbit-blocking-client/internal/protocol"

// Frame names used for content and control frames.
const (
	NameProtocolHeader = "ProtocolHeader"
	NameHeartbeat      = "Heartbeat"
	NameContentHeader  = "ContentHeader"
	NameContentBody    = "ContentBody"
)

// Frame is a single unit on the wire.
type Frame interface {
	Name() string
}

// ProtocolHeader is the fixed preamble that opens every connection.
type ProtocolHeader struct {
	Major    uint8
	Minor    uint8
	Revision uint8
}

// NewProtocolHeader returns the AMQP 0-9-1 preamble.
func NewProtocolHeader() ProtocolHeader {
	return ProtocolHeader{
		Major:    protocol.ProtocolVersionMajor,
		Minor:    protocol.ProtocolVersionMinor,
		Revision: protocol.ProtocolVersionRevision,
	}
}

func (ProtocolHeader) Name() string { return NameProtocolHeader }

// Heartbeat is the empty keep-alive frame, always on channel 0.
type Heartbeat struct{}

func (Heartbeat) Name() string { return NameHeartbeat }

// ContentHeader announces the size and properties of the content that follows
// a Basic.Publish, Basic.Deliver, Basic.GetOk or Basic.Return.
type ContentHeader struct {
	ClassID    uint16
	Weight     uint16
	BodySize   uint64
	Properties Properties
}

func (*ContentHeader) Name() string { return NameContentHeader }

// ContentBody carries one chunk of message content.
type ContentBody struct {
	Payload []byte
}

func (*ContentBody) Name() string { return NameContentBody }

// SplitBody cuts body into chunks of at most max bytes. An empty body yields
// no chunks.
func SplitBody(body []byte, max int) [][]byte {
	if len(body) == 0 {
		return nil
	}
	if max <= 0 {
		return [][]byte{body}
	}

	chunks := make([][]byte, 0, (len(body)+max-1)/max)
	for offset := 0; offset < len(body); offset += max {
		end := offset + max
		if end > len(body) {
			end = len(body)
		}
		chunks = append(chunks, body[offset:end])
	}
	return chunks
}
