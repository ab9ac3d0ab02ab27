package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// ErrIncomplete is returned by Unmarshal when data does not yet hold a whole
// frame. The caller keeps the bytes and retries once more arrive.
var ErrIncomplete = errors.New("frame: not enough data")

// DecodeError reports bytes that can never form a valid frame.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "frame: " + e.Reason
}

func decodeErrorf(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

var registry = map[uint32]func() Method{}

func register(fns ...func() Method) {
	for _, fn := range fns {
		registry[Index(fn())] = fn
	}
}

func init() {
	register(
		func() Method { return &ConnectionStart{} },
		func() Method { return &ConnectionStartOk{} },
		func() Method { return &ConnectionSecure{} },
		func() Method { return &ConnectionSecureOk{} },
		func() Method { return &ConnectionTune{} },
		func() Method { return &ConnectionTuneOk{} },
		func() Method { return &ConnectionOpen{} },
		func() Method { return &ConnectionOpenOk{} },
		func() Method { return &ConnectionClose{} },
		func() Method { return &ConnectionCloseOk{} },
		func() Method { return &ConnectionBlocked{} },
		func() Method { return &ConnectionUnblocked{} },
		func() Method { return &ChannelOpen{} },
		func() Method { return &ChannelOpenOk{} },
		func() Method { return &ChannelFlow{} },
		func() Method { return &ChannelFlowOk{} },
		func() Method { return &ChannelClose{} },
		func() Method { return &ChannelCloseOk{} },
		func() Method { return &ExchangeDeclare{} },
		func() Method { return &ExchangeDeclareOk{} },
		func() Method { return &ExchangeDelete{} },
		func() Method { return &ExchangeDeleteOk{} },
		func() Method { return &ExchangeBind{} },
		func() Method { return &ExchangeBindOk{} },
		func() Method { return &ExchangeUnbind{} },
		func() Method { return &ExchangeUnbindOk{} },
		func() Method { return &QueueDeclare{} },
		func() Method { return &QueueDeclareOk{} },
		func() Method { return &QueueBind{} },
		func() Method { return &QueueBindOk{} },
		func() Method { return &QueuePurge{} },
		func() Method { return &QueuePurgeOk{} },
		func() Method { return &QueueDelete{} },
		func() Method { return &QueueDeleteOk{} },
		func() Method { return &QueueUnbind{} },
		func() Method { return &QueueUnbindOk{} },
		func() Method { return &BasicQos{} },
		func() Method { return &BasicQosOk{} },
		func() Method { return &BasicConsume{} },
		func() Method { return &BasicConsumeOk{} },
		func() Method { return &BasicCancel{} },
		func() Method { return &BasicCancelOk{} },
		func() Method { return &BasicPublish{} },
		func() Method { return &BasicReturn{} },
		func() Method { return &BasicDeliver{} },
		func() Method { return &BasicGet{} },
		func() Method { return &BasicGetOk{} },
		func() Method { return &BasicGetEmpty{} },
		func() Method { return &BasicAck{} },
		func() Method { return &BasicReject{} },
		func() Method { return &BasicRecoverAsync{} },
		func() Method { return &BasicRecover{} },
		func() Method { return &BasicRecoverOk{} },
		func() Method { return &BasicNack{} },
		func() Method { return &ConfirmSelect{} },
		func() Method { return &ConfirmSelectOk{} },
		func() Method { return &TxSelect{} },
		func() Method { return &TxSelectOk{} },
		func() Method { return &TxCommit{} },
		func() Method { return &TxCommitOk{} },
		func() Method { return &TxRollback{} },
		func() Method { return &TxRollbackOk{} },
	)
}

// NewMethod returns an empty method for the given index, or nil when the
// index is unknown.
func NewMethod(index uint32) Method {
	fn, ok := registry[index]
	if !ok {
		return nil
	}
	return fn()
}

// Marshal encodes f for the given channel.
func Marshal(f Frame, channel uint16) ([]byte, error) {
	var (
		frameType uint8
		payload   []byte
	)

	switch v := f.(type) {
	case ProtocolHeader:
		return []byte{'A', 'M', 'Q', 'P', 0, v.Major, v.Minor, v.Revision}, nil
	case *ProtocolHeader:
		return Marshal(*v, channel)
	case Heartbeat, *Heartbeat:
		frameType = protocol.FrameHeartbeat
	case *ContentHeader:
		frameType = protocol.FrameHeader
		w := &writer{e: protocol.NewEncoder(64)}
		w.short(v.ClassID)
		w.short(v.Weight)
		w.longlong(v.BodySize)
		v.Properties.write(w)
		if w.err != nil {
			return nil, fmt.Errorf("marshal %s: %w", v.Name(), w.err)
		}
		payload = w.e.Bytes()
	case *ContentBody:
		frameType = protocol.FrameBody
		payload = v.Payload
	case Method:
		frameType = protocol.FrameMethod
		w := &writer{e: protocol.NewEncoder(64)}
		w.long(Index(v))
		v.write(w)
		if w.err != nil {
			return nil, fmt.Errorf("marshal %s: %w", v.Name(), w.err)
		}
		payload = w.e.Bytes()
	default:
		return nil, fmt.Errorf("marshal: unsupported frame %T", f)
	}

	out := make([]byte, protocol.FrameHeaderSize, protocol.FrameHeaderSize+len(payload)+protocol.FrameEndSize)
	out[0] = frameType
	binary.BigEndian.PutUint16(out[1:3], channel)
	binary.BigEndian.PutUint32(out[3:7], uint32(len(payload)))
	out = append(out, payload...)
	out = append(out, protocol.FrameEnd)
	return out, nil
}

// PeekSize returns the payload size declared by the frame header at the
// start of data. ok is false while the header is incomplete and for the
// protocol header.
func PeekSize(data []byte) (size int, ok bool) {
	if len(data) < protocol.FrameHeaderSize || data[0] == 'A' {
		return 0, false
	}
	return int(binary.BigEndian.Uint32(data[3:7])), true
}

// Unmarshal decodes the first frame in data. It returns ErrIncomplete when
// more bytes are needed and a *DecodeError when data is corrupt.
func Unmarshal(data []byte) (consumed int, channel uint16, f Frame, err error) {
	if len(data) >= 4 && string(data[:4]) == "AMQP" {
		if len(data) < len(protocol.ProtocolHeader) {
			return 0, 0, nil, ErrIncomplete
		}
		return len(protocol.ProtocolHeader), 0, ProtocolHeader{Major: data[5], Minor: data[6], Revision: data[7]}, nil
	}
	if len(data) < protocol.FrameHeaderSize {
		return 0, 0, nil, ErrIncomplete
	}

	frameType := data[0]
	channel = binary.BigEndian.Uint16(data[1:3])
	size := int(binary.BigEndian.Uint32(data[3:7]))
	end := protocol.FrameHeaderSize + size
	if len(data) < end+protocol.FrameEndSize {
		return 0, 0, nil, ErrIncomplete
	}
	if data[end] != protocol.FrameEnd {
		return 0, 0, nil, decodeErrorf("last byte error")
	}
	consumed = end + protocol.FrameEndSize
	payload := data[protocol.FrameHeaderSize:end]

	switch frameType {
	case protocol.FrameHeartbeat:
		if size != 0 {
			return 0, 0, nil, decodeErrorf("heartbeat with %d byte payload", size)
		}
		return consumed, channel, Heartbeat{}, nil
	case protocol.FrameMethod:
		m, err := decodeMethod(payload)
		if err != nil {
			return 0, 0, nil, err
		}
		return consumed, channel, m, nil
	case protocol.FrameHeader:
		h, err := decodeHeader(payload)
		if err != nil {
			return 0, 0, nil, err
		}
		return consumed, channel, h, nil
	case protocol.FrameBody:
		body := make([]byte, size)
		copy(body, payload)
		return consumed, channel, &ContentBody{Payload: body}, nil
	default:
		return 0, 0, nil, decodeErrorf("unknown frame type %d", frameType)
	}
}

func decodeMethod(payload []byte) (Method, error) {
	if len(payload) < 4 {
		return nil, decodeErrorf("method frame with %d byte payload", len(payload))
	}
	index := binary.BigEndian.Uint32(payload[:4])
	m := NewMethod(index)
	if m == nil {
		return nil, decodeErrorf("unknown method index 0x%08x", index)
	}

	r := &reader{d: protocol.NewDecoder(payload[4:])}
	m.read(r)
	if r.err != nil {
		return nil, decodeErrorf("malformed %s: %v", m.Name(), r.err)
	}
	return m, nil
}

func decodeHeader(payload []byte) (*ContentHeader, error) {
	if len(payload) == 0 {
		return nil, decodeErrorf("content header with empty payload")
	}

	r := &reader{d: protocol.NewDecoder(payload)}
	h := &ContentHeader{
		ClassID:  r.short(),
		Weight:   r.short(),
		BodySize: r.longlong(),
	}
	h.Properties.read(r)
	if r.err != nil {
		return nil, decodeErrorf("malformed content header: %v", r.err)
	}
	return h, nil
}
