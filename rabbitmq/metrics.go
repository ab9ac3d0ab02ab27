package rabbitmq

import (
	"sync/atomic"

	metrics "github.com/docker/go-metrics"
)

// MetricsCollector observes client activity. Implementations must be safe
// for concurrent use; the reader goroutine reports returns and channel
// errors while callers report publishes and acknowledgements.
type MetricsCollector interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionError(err error)

	ChannelOpened()
	ChannelClosed()
	ChannelError(err error)

	MessagePublished(size int)
	MessageConsumed()
	MessageAcked()
	MessageNacked()
	MessageRejected()
	MessageReturned()

	ConfirmReceived(ack bool)
}

// MetricsSnapshot is a point-in-time copy of a StandardMetricsCollector.
type MetricsSnapshot struct {
	ConnectionsOpened int64
	ConnectionsClosed int64
	ConnectionErrors  int64
	ChannelsOpened    int64
	ChannelsClosed    int64
	ChannelErrors     int64
	MessagesPublished int64
	BytesPublished    int64
	MessagesConsumed  int64
	MessagesAcked     int64
	MessagesNacked    int64
	MessagesRejected  int64
	MessagesReturned  int64
	ConfirmsAcked     int64
	ConfirmsNacked    int64
}

// StandardMetricsCollector keeps in-process counters.
type StandardMetricsCollector struct {
	connectionsOpened atomic.Int64
	connectionsClosed atomic.Int64
	connectionErrors  atomic.Int64
	channelsOpened    atomic.Int64
	channelsClosed    atomic.Int64
	channelErrors     atomic.Int64
	messagesPublished atomic.Int64
	bytesPublished    atomic.Int64
	messagesConsumed  atomic.Int64
	messagesAcked     atomic.Int64
	messagesNacked    atomic.Int64
	messagesRejected  atomic.Int64
	messagesReturned  atomic.Int64
	confirmsAcked     atomic.Int64
	confirmsNacked    atomic.Int64
}

// NewStandardMetricsCollector creates a collector with every counter at zero.
func NewStandardMetricsCollector() *StandardMetricsCollector {
	return &StandardMetricsCollector{}
}

func (m *StandardMetricsCollector) ConnectionOpened()     { m.connectionsOpened.Add(1) }
func (m *StandardMetricsCollector) ConnectionClosed()     { m.connectionsClosed.Add(1) }
func (m *StandardMetricsCollector) ConnectionError(error) { m.connectionErrors.Add(1) }
func (m *StandardMetricsCollector) ChannelOpened()        { m.channelsOpened.Add(1) }
func (m *StandardMetricsCollector) ChannelClosed()        { m.channelsClosed.Add(1) }
func (m *StandardMetricsCollector) ChannelError(error)    { m.channelErrors.Add(1) }
func (m *StandardMetricsCollector) MessageConsumed()      { m.messagesConsumed.Add(1) }
func (m *StandardMetricsCollector) MessageAcked()         { m.messagesAcked.Add(1) }
func (m *StandardMetricsCollector) MessageNacked()        { m.messagesNacked.Add(1) }
func (m *StandardMetricsCollector) MessageRejected()      { m.messagesRejected.Add(1) }
func (m *StandardMetricsCollector) MessageReturned()      { m.messagesReturned.Add(1) }

func (m *StandardMetricsCollector) MessagePublished(size int) {
	m.messagesPublished.Add(1)
	m.bytesPublished.Add(int64(size))
}

func (m *StandardMetricsCollector) ConfirmReceived(ack bool) {
	if ack {
		m.confirmsAcked.Add(1)
	} else {
		m.confirmsNacked.Add(1)
	}
}

// Snapshot copies the current counter values.
func (m *StandardMetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsOpened: m.connectionsOpened.Load(),
		ConnectionsClosed: m.connectionsClosed.Load(),
		ConnectionErrors:  m.connectionErrors.Load(),
		ChannelsOpened:    m.channelsOpened.Load(),
		ChannelsClosed:    m.channelsClosed.Load(),
		ChannelErrors:     m.channelErrors.Load(),
		MessagesPublished: m.messagesPublished.Load(),
		BytesPublished:    m.bytesPublished.Load(),
		MessagesConsumed:  m.messagesConsumed.Load(),
		MessagesAcked:     m.messagesAcked.Load(),
		MessagesNacked:    m.messagesNacked.Load(),
		MessagesRejected:  m.messagesRejected.Load(),
		MessagesReturned:  m.messagesReturned.Load(),
		ConfirmsAcked:     m.confirmsAcked.Load(),
		ConfirmsNacked:    m.confirmsNacked.Load(),
	}
}

// NoOpMetricsCollector discards everything.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) ConnectionOpened()     {}
func (NoOpMetricsCollector) ConnectionClosed()     {}
func (NoOpMetricsCollector) ConnectionError(error) {}
func (NoOpMetricsCollector) ChannelOpened()        {}
func (NoOpMetricsCollector) ChannelClosed()        {}
func (NoOpMetricsCollector) ChannelError(error)    {}
func (NoOpMetricsCollector) MessagePublished(int)  {}
func (NoOpMetricsCollector) MessageConsumed()      {}
func (NoOpMetricsCollector) MessageAcked()         {}
func (NoOpMetricsCollector) MessageNacked()        {}
func (NoOpMetricsCollector) MessageRejected()      {}
func (NoOpMetricsCollector) MessageReturned()      {}
func (NoOpMetricsCollector) ConfirmReceived(bool)  {}

// PrometheusMetricsCollector exports client activity as Prometheus
// counters. The embedded Namespace is a prometheus.Collector; register it
// with metrics.Register or a custom prometheus.Registerer.
type PrometheusMetricsCollector struct {
	*metrics.Namespace

	connections      metrics.LabeledCounter
	connectionErrors metrics.Counter
	channels         metrics.LabeledCounter
	channelErrors    metrics.Counter
	openChannels     metrics.Gauge
	published        metrics.Counter
	publishedBytes   metrics.Counter
	consumed         metrics.Counter
	acks             metrics.LabeledCounter
	returned         metrics.Counter
	confirms         metrics.LabeledCounter
}

// NewPrometheusMetricsCollector creates the counters under namespace, with
// the subsystem "client".
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	ns := metrics.NewNamespace(namespace, "client", nil)
	return &PrometheusMetricsCollector{
		Namespace:        ns,
		connections:      ns.NewLabeledCounter("connections", "Connections opened and closed", "event"),
		connectionErrors: ns.NewCounter("connection_errors", "Errors fatal to a connection"),
		channels:         ns.NewLabeledCounter("channels", "Channels opened and closed", "event"),
		channelErrors:    ns.NewCounter("channel_errors", "Errors fatal to a channel"),
		openChannels:     ns.NewGauge("open", "Channels currently open", metrics.Unit("channels")),
		published:        ns.NewCounter("messages_published", "Messages published"),
		publishedBytes:   ns.NewCounter("published_bytes", "Body bytes published"),
		consumed:         ns.NewCounter("messages_consumed", "Messages delivered to consumers or fetched with get"),
		acks:             ns.NewLabeledCounter("message_acks", "Acknowledgements sent to the broker", "kind"),
		returned:         ns.NewCounter("messages_returned", "Messages returned as undeliverable"),
		confirms:         ns.NewLabeledCounter("confirms", "Publisher confirms received", "result"),
	}
}

func (p *PrometheusMetricsCollector) ConnectionOpened()     { p.connections.WithValues("opened").Inc() }
func (p *PrometheusMetricsCollector) ConnectionClosed()     { p.connections.WithValues("closed").Inc() }
func (p *PrometheusMetricsCollector) ConnectionError(error) { p.connectionErrors.Inc() }
func (p *PrometheusMetricsCollector) ChannelError(error)    { p.channelErrors.Inc() }
func (p *PrometheusMetricsCollector) MessageConsumed()      { p.consumed.Inc() }
func (p *PrometheusMetricsCollector) MessageAcked()         { p.acks.WithValues("ack").Inc() }
func (p *PrometheusMetricsCollector) MessageNacked()        { p.acks.WithValues("nack").Inc() }
func (p *PrometheusMetricsCollector) MessageRejected()      { p.acks.WithValues("reject").Inc() }
func (p *PrometheusMetricsCollector) MessageReturned()      { p.returned.Inc() }

func (p *PrometheusMetricsCollector) ChannelOpened() {
	p.channels.WithValues("opened").Inc()
	p.openChannels.Inc()
}

func (p *PrometheusMetricsCollector) ChannelClosed() {
	p.channels.WithValues("closed").Inc()
	p.openChannels.Dec()
}

func (p *PrometheusMetricsCollector) MessagePublished(size int) {
	p.published.Inc()
	p.publishedBytes.Inc(float64(size))
}

func (p *PrometheusMetricsCollector) ConfirmReceived(ack bool) {
	if ack {
		p.confirms.WithValues("ack").Inc()
	} else {
		p.confirms.WithValues("nack").Inc()
	}
}
