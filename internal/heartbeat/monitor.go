// Package heartbeat keeps an idle connection alive and detects a dead peer.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
)

// deadAfter is the number of consecutive silent intervals that kill a
// connection.
const deadAfter = 2

// ErrorSink receives the connection error raised when the peer is dead.
type ErrorSink interface {
	Append(err error)
}

// Monitor sends heartbeats when nothing was written during an interval and
// declares the connection dead after two intervals without inbound data.
type Monitor struct {
	interval time.Duration
	send     func() error
	clock    clock.Clock
	log      zerolog.Logger

	reads  atomic.Int64
	writes atomic.Int64

	mu        sync.Mutex
	threshold int
	stop      chan struct{}
	sink      ErrorSink
}

// New creates a stopped monitor. send writes one heartbeat frame.
func New(interval time.Duration, send func() error, clk clock.Clock, log zerolog.Logger) *Monitor {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Monitor{
		interval: interval,
		send:     send,
		clock:    clk,
		log:      log,
	}
}

// Interval returns the configured interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start arms the timer. It returns false when heartbeats are disabled.
func (m *Monitor) Start(sink ErrorSink) bool {
	if m.interval <= 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return true
	}
	m.reads.Store(0)
	m.writes.Store(0)
	m.threshold = 0
	m.sink = sink
	m.stop = make(chan struct{})

	go m.run(m.stop)
	m.log.Debug().Dur("interval", m.interval).Msg("heartbeat started")
	return true
}

// Stop disarms the timer. Calling Stop on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// RegisterRead records inbound traffic.
func (m *Monitor) RegisterRead() {
	m.reads.Add(1)
}

// RegisterWrite records outbound traffic.
func (m *Monitor) RegisterWrite() {
	m.writes.Add(1)
}

func (m *Monitor) run(stop chan struct{}) {
	timer := m.clock.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C():
		}

		if !m.tick(stop) {
			return
		}
		timer.Reset(m.interval)
	}
}

// tick runs one check and reports whether the monitor should keep going.
func (m *Monitor) tick(stop chan struct{}) bool {
	if m.writes.Load() == 0 {
		if err := m.send(); err != nil {
			m.log.Debug().Err(err).Msg("send heartbeat")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != stop {
		return false
	}

	if m.reads.Load() == 0 {
		m.threshold++
	} else {
		m.threshold = 0
	}
	// the heartbeat just sent counts as a write; both counters restart here
	m.reads.Store(0)
	m.writes.Store(0)

	if m.threshold >= deadAfter {
		seconds := int(m.interval/time.Second) * deadAfter
		m.log.Warn().Int("seconds", seconds).Msg("connection dead")
		m.sink.Append(amqperr.Connection("Connection dead, no heartbeat or data received in >= %ds", seconds))
		close(m.stop)
		m.stop = nil
		return false
	}
	return true
}
