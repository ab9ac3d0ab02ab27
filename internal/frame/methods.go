package frame

import "github.com/israelio/rabbit-blocking-client/internal/protocol"

// Method is a typed AMQP method. The set of implementations is closed: every
// variant lives in this file and is listed in the registry.
type Method interface {
	Frame
	id() (classID, methodID uint16)
	responses() []string
	write(w *writer)
	read(r *reader)
}

// Index returns the 32-bit class+method index of m.
func Index(m Method) uint32 {
	classID, methodID := m.id()
	return IndexOf(classID, methodID)
}

// IndexOf combines a class and method id into a registry index.
func IndexOf(classID, methodID uint16) uint32 {
	return uint32(classID)<<16 | uint32(methodID)
}

// ClassID returns the class of m.
func ClassID(m Method) uint16 {
	classID, _ := m.id()
	return classID
}

// ValidResponses returns the names of the frames that can answer m, or nil
// when m expects no reply.
func ValidResponses(m Method) []string {
	return m.responses()
}

// IsContent reports whether m is followed by a content header and body.
func IsContent(m Method) bool {
	switch m.(type) {
	case *BasicPublish, *BasicReturn, *BasicDeliver, *BasicGetOk:
		return true
	}
	return false
}

type async struct{}

func (async) responses() []string { return nil }

type noFields struct{}

func (noFields) write(*writer) {}
func (noFields) read(*reader)  {}

func reply(names ...string) []string { return names }

// Connection class

type ConnectionStart struct {
	VersionMajor     uint8
	VersionMinor     uint8
	ServerProperties protocol.Table
	Mechanisms       string
	Locales          string
}

func (*ConnectionStart) Name() string         { return "Connection.Start" }
func (*ConnectionStart) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionStart }
func (*ConnectionStart) responses() []string  { return reply("Connection.StartOk") }
func (m *ConnectionStart) write(w *writer) {
	w.octet(m.VersionMajor)
	w.octet(m.VersionMinor)
	w.table(m.ServerProperties)
	w.longstr(m.Mechanisms)
	w.longstr(m.Locales)
}
func (m *ConnectionStart) read(r *reader) {
	m.VersionMajor = r.octet()
	m.VersionMinor = r.octet()
	m.ServerProperties = r.table()
	m.Mechanisms = r.longstr()
	m.Locales = r.longstr()
}

type ConnectionStartOk struct {
	async
	ClientProperties protocol.Table
	Mechanism        string
	Response         string
	Locale           string
}

func (*ConnectionStartOk) Name() string         { return "Connection.StartOk" }
func (*ConnectionStartOk) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionStartOk }
func (m *ConnectionStartOk) write(w *writer) {
	w.table(m.ClientProperties)
	w.shortstr(m.Mechanism)
	w.longstr(m.Response)
	w.shortstr(m.Locale)
}
func (m *ConnectionStartOk) read(r *reader) {
	m.ClientProperties = r.table()
	m.Mechanism = r.shortstr()
	m.Response = r.longstr()
	m.Locale = r.shortstr()
}

type ConnectionSecure struct {
	Challenge string
}

func (*ConnectionSecure) Name() string         { return "Connection.Secure" }
func (*ConnectionSecure) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionSecure }
func (*ConnectionSecure) responses() []string  { return reply("Connection.SecureOk") }
func (m *ConnectionSecure) write(w *writer)    { w.longstr(m.Challenge) }
func (m *ConnectionSecure) read(r *reader)     { m.Challenge = r.longstr() }

type ConnectionSecureOk struct {
	async
	Response string
}

func (*ConnectionSecureOk) Name() string         { return "Connection.SecureOk" }
func (*ConnectionSecureOk) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionSecureOk }
func (m *ConnectionSecureOk) write(w *writer)    { w.longstr(m.Response) }
func (m *ConnectionSecureOk) read(r *reader)     { m.Response = r.longstr() }

type ConnectionTune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (*ConnectionTune) Name() string         { return "Connection.Tune" }
func (*ConnectionTune) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionTune }
func (*ConnectionTune) responses() []string  { return reply("Connection.TuneOk") }
func (m *ConnectionTune) write(w *writer) {
	w.short(m.ChannelMax)
	w.long(m.FrameMax)
	w.short(m.Heartbeat)
}
func (m *ConnectionTune) read(r *reader) {
	m.ChannelMax = r.short()
	m.FrameMax = r.long()
	m.Heartbeat = r.short()
}

type ConnectionTuneOk struct {
	async
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (*ConnectionTuneOk) Name() string         { return "Connection.TuneOk" }
func (*ConnectionTuneOk) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionTuneOk }
func (m *ConnectionTuneOk) write(w *writer) {
	w.short(m.ChannelMax)
	w.long(m.FrameMax)
	w.short(m.Heartbeat)
}
func (m *ConnectionTuneOk) read(r *reader) {
	m.ChannelMax = r.short()
	m.FrameMax = r.long()
	m.Heartbeat = r.short()
}

type ConnectionOpen struct {
	VirtualHost string
}

func (*ConnectionOpen) Name() string         { return "Connection.Open" }
func (*ConnectionOpen) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionOpen }
func (*ConnectionOpen) responses() []string  { return reply("Connection.OpenOk") }
func (m *ConnectionOpen) write(w *writer) {
	w.shortstr(m.VirtualHost)
	w.shortstr("") // capabilities
	w.bits(false)  // insist
}
func (m *ConnectionOpen) read(r *reader) {
	m.VirtualHost = r.shortstr()
	r.shortstr()
	r.bits(1)
}

type ConnectionOpenOk struct{ async }

func (*ConnectionOpenOk) Name() string         { return "Connection.OpenOk" }
func (*ConnectionOpenOk) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionOpenOk }
func (*ConnectionOpenOk) write(w *writer)      { w.shortstr("") }
func (*ConnectionOpenOk) read(r *reader)       { r.shortstr() }

type ConnectionClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (*ConnectionClose) Name() string         { return "Connection.Close" }
func (*ConnectionClose) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionClose }
func (*ConnectionClose) responses() []string  { return reply("Connection.CloseOk") }
func (m *ConnectionClose) write(w *writer) {
	w.short(m.ReplyCode)
	w.shortstr(m.ReplyText)
	w.short(m.ClassID)
	w.short(m.MethodID)
}
func (m *ConnectionClose) read(r *reader) {
	m.ReplyCode = r.short()
	m.ReplyText = r.shortstr()
	m.ClassID = r.short()
	m.MethodID = r.short()
}

type ConnectionCloseOk struct {
	async
	noFields
}

func (*ConnectionCloseOk) Name() string         { return "Connection.CloseOk" }
func (*ConnectionCloseOk) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionCloseOk }

type ConnectionBlocked struct {
	async
	Reason string
}

func (*ConnectionBlocked) Name() string         { return "Connection.Blocked" }
func (*ConnectionBlocked) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionBlocked }
func (m *ConnectionBlocked) write(w *writer)    { w.shortstr(m.Reason) }
func (m *ConnectionBlocked) read(r *reader)     { m.Reason = r.shortstr() }

type ConnectionUnblocked struct {
	async
	noFields
}

func (*ConnectionUnblocked) Name() string         { return "Connection.Unblocked" }
func (*ConnectionUnblocked) id() (uint16, uint16) { return protocol.ClassConnection, protocol.MethodConnectionUnblocked }

// Channel class

type ChannelOpen struct{}

func (*ChannelOpen) Name() string         { return "Channel.Open" }
func (*ChannelOpen) id() (uint16, uint16) { return protocol.ClassChannel, protocol.MethodChannelOpen }
func (*ChannelOpen) responses() []string  { return reply("Channel.OpenOk") }
func (*ChannelOpen) write(w *writer)      { w.shortstr("") }
func (*ChannelOpen) read(r *reader)       { r.shortstr() }

type ChannelOpenOk struct{ async }

func (*ChannelOpenOk) Name() string         { return "Channel.OpenOk" }
func (*ChannelOpenOk) id() (uint16, uint16) { return protocol.ClassChannel, protocol.MethodChannelOpenOk }
func (*ChannelOpenOk) write(w *writer)      { w.longstr("") }
func (*ChannelOpenOk) read(r *reader)       { r.longstr() }

type ChannelFlow struct {
	Active bool
}

func (*ChannelFlow) Name() string         { return "Channel.Flow" }
func (*ChannelFlow) id() (uint16, uint16) { return protocol.ClassChannel, protocol.MethodChannelFlow }
func (*ChannelFlow) responses() []string  { return reply("Channel.FlowOk") }
func (m *ChannelFlow) write(w *writer)    { w.bits(m.Active) }
func (m *ChannelFlow) read(r *reader)     { m.Active = r.bits(1)[0] }

type ChannelFlowOk struct {
	async
	Active bool
}

func (*ChannelFlowOk) Name() string         { return "Channel.FlowOk" }
func (*ChannelFlowOk) id() (uint16, uint16) { return protocol.ClassChannel, protocol.MethodChannelFlowOk }
func (m *ChannelFlowOk) write(w *writer)    { w.bits(m.Active) }
func (m *ChannelFlowOk) read(r *reader)     { m.Active = r.bits(1)[0] }

type ChannelClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (*ChannelClose) Name() string         { return "Channel.Close" }
func (*ChannelClose) id() (uint16, uint16) { return protocol.ClassChannel, protocol.MethodChannelClose }
func (*ChannelClose) responses() []string  { return reply("Channel.CloseOk") }
func (m *ChannelClose) write(w *writer) {
	w.short(m.ReplyCode)
	w.shortstr(m.ReplyText)
	w.short(m.ClassID)
	w.short(m.MethodID)
}
func (m *ChannelClose) read(r *reader) {
	m.ReplyCode = r.short()
	m.ReplyText = r.shortstr()
	m.ClassID = r.short()
	m.MethodID = r.short()
}

type ChannelCloseOk struct {
	async
	noFields
}

func (*ChannelCloseOk) Name() string         { return "Channel.CloseOk" }
func (*ChannelCloseOk) id() (uint16, uint16) { return protocol.ClassChannel, protocol.MethodChannelCloseOk }

// Exchange class

type ExchangeDeclare struct {
	Exchange   string
	Type       string
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  protocol.Table
}

func (*ExchangeDeclare) Name() string         { return "Exchange.Declare" }
func (*ExchangeDeclare) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeDeclare }
func (m *ExchangeDeclare) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Exchange.DeclareOk")
}
func (m *ExchangeDeclare) write(w *writer) {
	w.short(0)
	w.shortstr(m.Exchange)
	w.shortstr(m.Type)
	w.bits(m.Passive, m.Durable, m.AutoDelete, m.Internal, m.NoWait)
	w.table(m.Arguments)
}
func (m *ExchangeDeclare) read(r *reader) {
	r.short()
	m.Exchange = r.shortstr()
	m.Type = r.shortstr()
	b := r.bits(5)
	m.Passive, m.Durable, m.AutoDelete, m.Internal, m.NoWait = b[0], b[1], b[2], b[3], b[4]
	m.Arguments = r.table()
}

type ExchangeDeclareOk struct {
	async
	noFields
}

func (*ExchangeDeclareOk) Name() string         { return "Exchange.DeclareOk" }
func (*ExchangeDeclareOk) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeDeclareOk }

type ExchangeDelete struct {
	Exchange string
	IfUnused bool
	NoWait   bool
}

func (*ExchangeDelete) Name() string         { return "Exchange.Delete" }
func (*ExchangeDelete) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeDelete }
func (m *ExchangeDelete) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Exchange.DeleteOk")
}
func (m *ExchangeDelete) write(w *writer) {
	w.short(0)
	w.shortstr(m.Exchange)
	w.bits(m.IfUnused, m.NoWait)
}
func (m *ExchangeDelete) read(r *reader) {
	r.short()
	m.Exchange = r.shortstr()
	b := r.bits(2)
	m.IfUnused, m.NoWait = b[0], b[1]
}

type ExchangeDeleteOk struct {
	async
	noFields
}

func (*ExchangeDeleteOk) Name() string         { return "Exchange.DeleteOk" }
func (*ExchangeDeleteOk) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeDeleteOk }

type ExchangeBind struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   protocol.Table
}

func (*ExchangeBind) Name() string         { return "Exchange.Bind" }
func (*ExchangeBind) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeBind }
func (m *ExchangeBind) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Exchange.BindOk")
}
func (m *ExchangeBind) write(w *writer) {
	w.short(0)
	w.shortstr(m.Destination)
	w.shortstr(m.Source)
	w.shortstr(m.RoutingKey)
	w.bits(m.NoWait)
	w.table(m.Arguments)
}
func (m *ExchangeBind) read(r *reader) {
	r.short()
	m.Destination = r.shortstr()
	m.Source = r.shortstr()
	m.RoutingKey = r.shortstr()
	m.NoWait = r.bits(1)[0]
	m.Arguments = r.table()
}

type ExchangeBindOk struct {
	async
	noFields
}

func (*ExchangeBindOk) Name() string         { return "Exchange.BindOk" }
func (*ExchangeBindOk) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeBindOk }

type ExchangeUnbind struct {
	Destination string
	Source      string
	RoutingKey  string
	NoWait      bool
	Arguments   protocol.Table
}

func (*ExchangeUnbind) Name() string         { return "Exchange.Unbind" }
func (*ExchangeUnbind) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeUnbind }
func (m *ExchangeUnbind) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Exchange.UnbindOk")
}
func (m *ExchangeUnbind) write(w *writer) {
	w.short(0)
	w.shortstr(m.Destination)
	w.shortstr(m.Source)
	w.shortstr(m.RoutingKey)
	w.bits(m.NoWait)
	w.table(m.Arguments)
}
func (m *ExchangeUnbind) read(r *reader) {
	r.short()
	m.Destination = r.shortstr()
	m.Source = r.shortstr()
	m.RoutingKey = r.shortstr()
	m.NoWait = r.bits(1)[0]
	m.Arguments = r.table()
}

type ExchangeUnbindOk struct {
	async
	noFields
}

func (*ExchangeUnbindOk) Name() string         { return "Exchange.UnbindOk" }
func (*ExchangeUnbindOk) id() (uint16, uint16) { return protocol.ClassExchange, protocol.MethodExchangeUnbindOk }

// Queue class

type QueueDeclare struct {
	Queue      string
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Arguments  protocol.Table
}

func (*QueueDeclare) Name() string         { return "Queue.Declare" }
func (*QueueDeclare) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueDeclare }
func (m *QueueDeclare) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Queue.DeclareOk")
}
func (m *QueueDeclare) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.bits(m.Passive, m.Durable, m.Exclusive, m.AutoDelete, m.NoWait)
	w.table(m.Arguments)
}
func (m *QueueDeclare) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	b := r.bits(5)
	m.Passive, m.Durable, m.Exclusive, m.AutoDelete, m.NoWait = b[0], b[1], b[2], b[3], b[4]
	m.Arguments = r.table()
}

type QueueDeclareOk struct {
	async
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

func (*QueueDeclareOk) Name() string         { return "Queue.DeclareOk" }
func (*QueueDeclareOk) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueDeclareOk }
func (m *QueueDeclareOk) write(w *writer) {
	w.shortstr(m.Queue)
	w.long(m.MessageCount)
	w.long(m.ConsumerCount)
}
func (m *QueueDeclareOk) read(r *reader) {
	m.Queue = r.shortstr()
	m.MessageCount = r.long()
	m.ConsumerCount = r.long()
}

type QueueBind struct {
	Queue      string
	Exchange   string
	RoutingKey string
	NoWait     bool
	Arguments  protocol.Table
}

func (*QueueBind) Name() string         { return "Queue.Bind" }
func (*QueueBind) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueBind }
func (m *QueueBind) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Queue.BindOk")
}
func (m *QueueBind) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.shortstr(m.Exchange)
	w.shortstr(m.RoutingKey)
	w.bits(m.NoWait)
	w.table(m.Arguments)
}
func (m *QueueBind) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	m.Exchange = r.shortstr()
	m.RoutingKey = r.shortstr()
	m.NoWait = r.bits(1)[0]
	m.Arguments = r.table()
}

type QueueBindOk struct {
	async
	noFields
}

func (*QueueBindOk) Name() string         { return "Queue.BindOk" }
func (*QueueBindOk) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueBindOk }

type QueuePurge struct {
	Queue  string
	NoWait bool
}

func (*QueuePurge) Name() string         { return "Queue.Purge" }
func (*QueuePurge) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueuePurge }
func (m *QueuePurge) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Queue.PurgeOk")
}
func (m *QueuePurge) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.bits(m.NoWait)
}
func (m *QueuePurge) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	m.NoWait = r.bits(1)[0]
}

type QueuePurgeOk struct {
	async
	MessageCount uint32
}

func (*QueuePurgeOk) Name() string         { return "Queue.PurgeOk" }
func (*QueuePurgeOk) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueuePurgeOk }
func (m *QueuePurgeOk) write(w *writer)    { w.long(m.MessageCount) }
func (m *QueuePurgeOk) read(r *reader)     { m.MessageCount = r.long() }

type QueueDelete struct {
	Queue    string
	IfUnused bool
	IfEmpty  bool
	NoWait   bool
}

func (*QueueDelete) Name() string         { return "Queue.Delete" }
func (*QueueDelete) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueDelete }
func (m *QueueDelete) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Queue.DeleteOk")
}
func (m *QueueDelete) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.bits(m.IfUnused, m.IfEmpty, m.NoWait)
}
func (m *QueueDelete) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	b := r.bits(3)
	m.IfUnused, m.IfEmpty, m.NoWait = b[0], b[1], b[2]
}

type QueueDeleteOk struct {
	async
	MessageCount uint32
}

func (*QueueDeleteOk) Name() string         { return "Queue.DeleteOk" }
func (*QueueDeleteOk) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueDeleteOk }
func (m *QueueDeleteOk) write(w *writer)    { w.long(m.MessageCount) }
func (m *QueueDeleteOk) read(r *reader)     { m.MessageCount = r.long() }

// QueueUnbind has no no-wait flag; it is always synchronous.
type QueueUnbind struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  protocol.Table
}

func (*QueueUnbind) Name() string         { return "Queue.Unbind" }
func (*QueueUnbind) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueUnbind }
func (*QueueUnbind) responses() []string  { return reply("Queue.UnbindOk") }
func (m *QueueUnbind) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.shortstr(m.Exchange)
	w.shortstr(m.RoutingKey)
	w.table(m.Arguments)
}
func (m *QueueUnbind) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	m.Exchange = r.shortstr()
	m.RoutingKey = r.shortstr()
	m.Arguments = r.table()
}

type QueueUnbindOk struct {
	async
	noFields
}

func (*QueueUnbindOk) Name() string         { return "Queue.UnbindOk" }
func (*QueueUnbindOk) id() (uint16, uint16) { return protocol.ClassQueue, protocol.MethodQueueUnbindOk }

// Basic class

type BasicQos struct {
	PrefetchSize  uint32
	PrefetchCount uint16
	Global        bool
}

func (*BasicQos) Name() string         { return "Basic.Qos" }
func (*BasicQos) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicQos }
func (*BasicQos) responses() []string  { return reply("Basic.QosOk") }
func (m *BasicQos) write(w *writer) {
	w.long(m.PrefetchSize)
	w.short(m.PrefetchCount)
	w.bits(m.Global)
}
func (m *BasicQos) read(r *reader) {
	m.PrefetchSize = r.long()
	m.PrefetchCount = r.short()
	m.Global = r.bits(1)[0]
}

type BasicQosOk struct {
	async
	noFields
}

func (*BasicQosOk) Name() string         { return "Basic.QosOk" }
func (*BasicQosOk) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicQosOk }

type BasicConsume struct {
	Queue       string
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   protocol.Table
}

func (*BasicConsume) Name() string         { return "Basic.Consume" }
func (*BasicConsume) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicConsume }
func (m *BasicConsume) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Basic.ConsumeOk")
}
func (m *BasicConsume) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.shortstr(m.ConsumerTag)
	w.bits(m.NoLocal, m.NoAck, m.Exclusive, m.NoWait)
	w.table(m.Arguments)
}
func (m *BasicConsume) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	m.ConsumerTag = r.shortstr()
	b := r.bits(4)
	m.NoLocal, m.NoAck, m.Exclusive, m.NoWait = b[0], b[1], b[2], b[3]
	m.Arguments = r.table()
}

type BasicConsumeOk struct {
	async
	ConsumerTag string
}

func (*BasicConsumeOk) Name() string         { return "Basic.ConsumeOk" }
func (*BasicConsumeOk) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicConsumeOk }
func (m *BasicConsumeOk) write(w *writer)    { w.shortstr(m.ConsumerTag) }
func (m *BasicConsumeOk) read(r *reader)     { m.ConsumerTag = r.shortstr() }

type BasicCancel struct {
	ConsumerTag string
	NoWait      bool
}

func (*BasicCancel) Name() string         { return "Basic.Cancel" }
func (*BasicCancel) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicCancel }
func (m *BasicCancel) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Basic.CancelOk")
}
func (m *BasicCancel) write(w *writer) {
	w.shortstr(m.ConsumerTag)
	w.bits(m.NoWait)
}
func (m *BasicCancel) read(r *reader) {
	m.ConsumerTag = r.shortstr()
	m.NoWait = r.bits(1)[0]
}

type BasicCancelOk struct {
	async
	ConsumerTag string
}

func (*BasicCancelOk) Name() string         { return "Basic.CancelOk" }
func (*BasicCancelOk) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicCancelOk }
func (m *BasicCancelOk) write(w *writer)    { w.shortstr(m.ConsumerTag) }
func (m *BasicCancelOk) read(r *reader)     { m.ConsumerTag = r.shortstr() }

type BasicPublish struct {
	async
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

func (*BasicPublish) Name() string         { return "Basic.Publish" }
func (*BasicPublish) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicPublish }
func (m *BasicPublish) write(w *writer) {
	w.short(0)
	w.shortstr(m.Exchange)
	w.shortstr(m.RoutingKey)
	w.bits(m.Mandatory, m.Immediate)
}
func (m *BasicPublish) read(r *reader) {
	r.short()
	m.Exchange = r.shortstr()
	m.RoutingKey = r.shortstr()
	b := r.bits(2)
	m.Mandatory, m.Immediate = b[0], b[1]
}

type BasicReturn struct {
	async
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (*BasicReturn) Name() string         { return "Basic.Return" }
func (*BasicReturn) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicReturn }
func (m *BasicReturn) write(w *writer) {
	w.short(m.ReplyCode)
	w.shortstr(m.ReplyText)
	w.shortstr(m.Exchange)
	w.shortstr(m.RoutingKey)
}
func (m *BasicReturn) read(r *reader) {
	m.ReplyCode = r.short()
	m.ReplyText = r.shortstr()
	m.Exchange = r.shortstr()
	m.RoutingKey = r.shortstr()
}

type BasicDeliver struct {
	async
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (*BasicDeliver) Name() string         { return "Basic.Deliver" }
func (*BasicDeliver) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicDeliver }
func (m *BasicDeliver) write(w *writer) {
	w.shortstr(m.ConsumerTag)
	w.longlong(m.DeliveryTag)
	w.bits(m.Redelivered)
	w.shortstr(m.Exchange)
	w.shortstr(m.RoutingKey)
}
func (m *BasicDeliver) read(r *reader) {
	m.ConsumerTag = r.shortstr()
	m.DeliveryTag = r.longlong()
	m.Redelivered = r.bits(1)[0]
	m.Exchange = r.shortstr()
	m.RoutingKey = r.shortstr()
}

type BasicGet struct {
	Queue string
	NoAck bool
}

func (*BasicGet) Name() string         { return "Basic.Get" }
func (*BasicGet) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicGet }
func (*BasicGet) responses() []string  { return reply("Basic.GetOk", "Basic.GetEmpty") }
func (m *BasicGet) write(w *writer) {
	w.short(0)
	w.shortstr(m.Queue)
	w.bits(m.NoAck)
}
func (m *BasicGet) read(r *reader) {
	r.short()
	m.Queue = r.shortstr()
	m.NoAck = r.bits(1)[0]
}

type BasicGetOk struct {
	async
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func (*BasicGetOk) Name() string         { return "Basic.GetOk" }
func (*BasicGetOk) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicGetOk }
func (m *BasicGetOk) write(w *writer) {
	w.longlong(m.DeliveryTag)
	w.bits(m.Redelivered)
	w.shortstr(m.Exchange)
	w.shortstr(m.RoutingKey)
	w.long(m.MessageCount)
}
func (m *BasicGetOk) read(r *reader) {
	m.DeliveryTag = r.longlong()
	m.Redelivered = r.bits(1)[0]
	m.Exchange = r.shortstr()
	m.RoutingKey = r.shortstr()
	m.MessageCount = r.long()
}

type BasicGetEmpty struct{ async }

func (*BasicGetEmpty) Name() string         { return "Basic.GetEmpty" }
func (*BasicGetEmpty) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicGetEmpty }
func (*BasicGetEmpty) write(w *writer)      { w.shortstr("") }
func (*BasicGetEmpty) read(r *reader)       { r.shortstr() }

type BasicAck struct {
	async
	DeliveryTag uint64
	Multiple    bool
}

func (*BasicAck) Name() string         { return "Basic.Ack" }
func (*BasicAck) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicAck }
func (m *BasicAck) write(w *writer) {
	w.longlong(m.DeliveryTag)
	w.bits(m.Multiple)
}
func (m *BasicAck) read(r *reader) {
	m.DeliveryTag = r.longlong()
	m.Multiple = r.bits(1)[0]
}

type BasicReject struct {
	async
	DeliveryTag uint64
	Requeue     bool
}

func (*BasicReject) Name() string         { return "Basic.Reject" }
func (*BasicReject) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicReject }
func (m *BasicReject) write(w *writer) {
	w.longlong(m.DeliveryTag)
	w.bits(m.Requeue)
}
func (m *BasicReject) read(r *reader) {
	m.DeliveryTag = r.longlong()
	m.Requeue = r.bits(1)[0]
}

type BasicRecoverAsync struct {
	async
	Requeue bool
}

func (*BasicRecoverAsync) Name() string         { return "Basic.RecoverAsync" }
func (*BasicRecoverAsync) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicRecoverAsync }
func (m *BasicRecoverAsync) write(w *writer)    { w.bits(m.Requeue) }
func (m *BasicRecoverAsync) read(r *reader)     { m.Requeue = r.bits(1)[0] }

type BasicRecover struct {
	Requeue bool
}

func (*BasicRecover) Name() string         { return "Basic.Recover" }
func (*BasicRecover) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicRecover }
func (*BasicRecover) responses() []string  { return reply("Basic.RecoverOk") }
func (m *BasicRecover) write(w *writer)    { w.bits(m.Requeue) }
func (m *BasicRecover) read(r *reader)     { m.Requeue = r.bits(1)[0] }

type BasicRecoverOk struct {
	async
	noFields
}

func (*BasicRecoverOk) Name() string         { return "Basic.RecoverOk" }
func (*BasicRecoverOk) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicRecoverOk }

type BasicNack struct {
	async
	DeliveryTag uint64
	Multiple    bool
	Requeue     bool
}

func (*BasicNack) Name() string         { return "Basic.Nack" }
func (*BasicNack) id() (uint16, uint16) { return protocol.ClassBasic, protocol.MethodBasicNack }
func (m *BasicNack) write(w *writer) {
	w.longlong(m.DeliveryTag)
	w.bits(m.Multiple, m.Requeue)
}
func (m *BasicNack) read(r *reader) {
	m.DeliveryTag = r.longlong()
	b := r.bits(2)
	m.Multiple, m.Requeue = b[0], b[1]
}

// Confirm class

type ConfirmSelect struct {
	NoWait bool
}

func (*ConfirmSelect) Name() string         { return "Confirm.Select" }
func (*ConfirmSelect) id() (uint16, uint16) { return protocol.ClassConfirm, protocol.MethodConfirmSelect }
func (m *ConfirmSelect) responses() []string {
	if m.NoWait {
		return nil
	}
	return reply("Confirm.SelectOk")
}
func (m *ConfirmSelect) write(w *writer) { w.bits(m.NoWait) }
func (m *ConfirmSelect) read(r *reader)  { m.NoWait = r.bits(1)[0] }

type ConfirmSelectOk struct {
	async
	noFields
}

func (*ConfirmSelectOk) Name() string         { return "Confirm.SelectOk" }
func (*ConfirmSelectOk) id() (uint16, uint16) { return protocol.ClassConfirm, protocol.MethodConfirmSelectOk }

// Tx class

type TxSelect struct{ noFields }

func (*TxSelect) Name() string         { return "Tx.Select" }
func (*TxSelect) id() (uint16, uint16) { return protocol.ClassTx, protocol.MethodTxSelect }
func (*TxSelect) responses() []string  { return reply("Tx.SelectOk") }

type TxSelectOk struct {
	async
	noFields
}

func (*TxSelectOk) Name() string         { return "Tx.SelectOk" }
func (*TxSelectOk) id() (uint16, uint16) { return protocol.ClassTx, protocol.MethodTxSelectOk }

type TxCommit struct{ noFields }

func (*TxCommit) Name() string         { return "Tx.Commit" }
func (*TxCommit) id() (uint16, uint16) { return protocol.ClassTx, protocol.MethodTxCommit }
func (*TxCommit) responses() []string  { return reply("Tx.CommitOk") }

type TxCommitOk struct {
	async
	noFields
}

func (*TxCommitOk) Name() string         { return "Tx.CommitOk" }
func (*TxCommitOk) id() (uint16, uint16) { return protocol.ClassTx, protocol.MethodTxCommitOk }

type TxRollback struct{ noFields }

func (*TxRollback) Name() string         { return "Tx.Rollback" }
func (*TxRollback) id() (uint16, uint16) { return protocol.ClassTx, protocol.MethodTxRollback }
func (*TxRollback) responses() []string  { return reply("Tx.RollbackOk") }

type TxRollbackOk struct {
	async
	noFields
}

func (*TxRollbackOk) Name() string         { return "Tx.RollbackOk" }
func (*TxRollbackOk) id() (uint16, uint16) { return protocol.ClassTx, protocol.MethodTxRollbackOk }
