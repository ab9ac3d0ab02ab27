package frame

import (
	"time"

	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// Properties are the Basic class content properties carried by a
// ContentHeader.
type Properties struct {
	ContentType     string
	ContentEncoding string
	Headers         protocol.Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationId   string
	ReplyTo         string
	Expiration      string
	MessageId       string
	Timestamp       time.Time
	Type            string
	UserId          string
	AppId           string
}

// Property flags for encoding/decoding
const (
	flagContentType     = 0x8000
	flagContentEncoding = 0x4000
	flagHeaders         = 0x2000
	flagDeliveryMode    = 0x1000
	flagPriority        = 0x0800
	flagCorrelationId   = 0x0400
	flagReplyTo         = 0x0200
	flagExpiration      = 0x0100
	flagMessageId       = 0x0080
	flagTimestamp       = 0x0040
	flagType            = 0x0020
	flagUserId          = 0x0010
	flagAppId           = 0x0008
	flagClusterId       = 0x0004
)

func (p *Properties) flags() uint16 {
	var flags uint16
	set := func(ok bool, flag uint16) {
		if ok {
			flags |= flag
		}
	}
	set(p.ContentType != "", flagContentType)
	set(p.ContentEncoding != "", flagContentEncoding)
	set(len(p.Headers) > 0, flagHeaders)
	set(p.DeliveryMode != 0, flagDeliveryMode)
	set(p.Priority != 0, flagPriority)
	set(p.CorrelationId != "", flagCorrelationId)
	set(p.ReplyTo != "", flagReplyTo)
	set(p.Expiration != "", flagExpiration)
	set(p.MessageId != "", flagMessageId)
	set(!p.Timestamp.IsZero(), flagTimestamp)
	set(p.Type != "", flagType)
	set(p.UserId != "", flagUserId)
	set(p.AppId != "", flagAppId)
	return flags
}

func (p *Properties) write(w *writer) {
	flags := p.flags()
	w.short(flags)

	if flags&flagContentType != 0 {
		w.shortstr(p.ContentType)
	}
	if flags&flagContentEncoding != 0 {
		w.shortstr(p.ContentEncoding)
	}
	if flags&flagHeaders != 0 {
		w.table(p.Headers)
	}
	if flags&flagDeliveryMode != 0 {
		w.octet(p.DeliveryMode)
	}
	if flags&flagPriority != 0 {
		w.octet(p.Priority)
	}
	if flags&flagCorrelationId != 0 {
		w.shortstr(p.CorrelationId)
	}
	if flags&flagReplyTo != 0 {
		w.shortstr(p.ReplyTo)
	}
	if flags&flagExpiration != 0 {
		w.shortstr(p.Expiration)
	}
	if flags&flagMessageId != 0 {
		w.shortstr(p.MessageId)
	}
	if flags&flagTimestamp != 0 {
		w.longlong(uint64(p.Timestamp.Unix()))
	}
	if flags&flagType != 0 {
		w.shortstr(p.Type)
	}
	if flags&flagUserId != 0 {
		w.shortstr(p.UserId)
	}
	if flags&flagAppId != 0 {
		w.shortstr(p.AppId)
	}
}

func (p *Properties) read(r *reader) {
	flags := r.short()

	if flags&flagContentType != 0 {
		p.ContentType = r.shortstr()
	}
	if flags&flagContentEncoding != 0 {
		p.ContentEncoding = r.shortstr()
	}
	if flags&flagHeaders != 0 {
		p.Headers = r.table()
	}
	if flags&flagDeliveryMode != 0 {
		p.DeliveryMode = r.octet()
	}
	if flags&flagPriority != 0 {
		p.Priority = r.octet()
	}
	if flags&flagCorrelationId != 0 {
		p.CorrelationId = r.shortstr()
	}
	if flags&flagReplyTo != 0 {
		p.ReplyTo = r.shortstr()
	}
	if flags&flagExpiration != 0 {
		p.Expiration = r.shortstr()
	}
	if flags&flagMessageId != 0 {
		p.MessageId = r.shortstr()
	}
	if flags&flagTimestamp != 0 {
		p.Timestamp = time.Unix(int64(r.longlong()), 0)
	}
	if flags&flagType != 0 {
		p.Type = r.shortstr()
	}
	if flags&flagUserId != 0 {
		p.UserId = r.shortstr()
	}
	if flags&flagAppId != 0 {
		p.AppId = r.shortstr()
	}
	// cluster-id is deprecated; read and drop it
	if flags&flagClusterId != 0 {
		r.shortstr()
	}
}
