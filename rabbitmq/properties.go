package rabbitmq

import (
	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// Table is an AMQP field table.
type Table = protocol.Table

// Properties are the basic content properties carried by a content header.
type Properties = frame.Properties

// Delivery modes.
const (
	Transient  = protocol.DeliveryModeNonPersistent
	Persistent = protocol.DeliveryModePersistent
)

// Exchange kinds.
const (
	ExchangeDirect  = protocol.ExchangeTypeDirect
	ExchangeFanout  = protocol.ExchangeTypeFanout
	ExchangeTopic   = protocol.ExchangeTypeTopic
	ExchangeHeaders = protocol.ExchangeTypeHeaders
)

// Publishing is a message to publish.
type Publishing struct {
	Properties
	Body []byte
}

// Common property sets.
var (
	// MinimalBasic is an empty set of properties
	MinimalBasic = Properties{}

	// MinimalPersistentBasic has only persistent delivery mode
	MinimalPersistentBasic = Properties{
		DeliveryMode: Persistent,
	}

	// Basic is basic properties with default content type
	Basic = Properties{
		ContentType:  "application/octet-stream",
		DeliveryMode: Transient,
	}

	// PersistentBasic is basic properties with persistent delivery
	PersistentBasic = Properties{
		ContentType:  "application/octet-stream",
		DeliveryMode: Persistent,
	}

	// TextPlain is properties for text messages
	TextPlain = Properties{
		ContentType:  "text/plain",
		DeliveryMode: Transient,
	}

	// PersistentTextPlain is properties for persistent text messages
	PersistentTextPlain = Properties{
		ContentType:  "text/plain",
		DeliveryMode: Persistent,
	}
)

func validateProperties(p Properties) error {
	return validateShortStrings(
		"content_type", p.ContentType,
		"content_encoding", p.ContentEncoding,
		"correlation_id", p.CorrelationId,
		"reply_to", p.ReplyTo,
		"expiration", p.Expiration,
		"message_id", p.MessageId,
		"message_type", p.Type,
		"user_id", p.UserId,
		"app_id", p.AppId,
	)
}
