// Package rpc matches inbound frames to the blocked caller waiting for them.
package rpc

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/israelio/rabbit-blocking-client/internal/amqperr"
	"github.com/israelio/rabbit-blocking-client/internal/frame"
	"github.com/israelio/rabbit-blocking-client/internal/protocol"
)

// WaitOptions bound a single Wait.
type WaitOptions struct {
	Timeout time.Duration
	// Check runs before every poll; a non-nil error aborts the wait.
	Check    func() error
	IdleWait time.Duration
}

// Correlator maps frame names to pending request ids.
type Correlator struct {
	mu        sync.Mutex
	requests  map[string]string
	responses map[string][]frame.Frame
}

// New creates an empty correlator.
func New() *Correlator {
	return &Correlator{
		requests:  make(map[string]string),
		responses: make(map[string][]frame.Frame),
	}
}

// Register claims every name in names for a new request and returns its id.
// A later registration for the same name takes it over.
func (c *Correlator) Register(names []string) string {
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[id] = nil
	for _, name := range names {
		c.requests[name] = id
	}
	return id
}

// OnFrame stores f for the request that owns its name. It reports whether
// the frame was claimed.
func (c *Correlator) OnFrame(f frame.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.requests[f.Name()]
	if !ok {
		return false
	}
	if _, pending := c.responses[id]; !pending {
		delete(c.requests, f.Name())
		return false
	}
	c.responses[id] = append(c.responses[id], f)
	return true
}

// Wait polls until a response for id arrives, opts.Check fails, ctx ends or
// the timeout elapses. The request is removed in every case.
func (c *Correlator) Wait(ctx context.Context, id string, opts WaitOptions) (frame.Frame, error) {
	defer c.Remove(id)

	idle := opts.IdleWait
	if idle <= 0 {
		idle = protocol.IdleWait
	}
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		if opts.Check != nil {
			if err := opts.Check(); err != nil {
				return nil, err
			}
		}
		if f, ok := c.pop(id); ok {
			return f, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, amqperr.Channel("rpc requests %s (%s) took too long", id, strings.Join(c.names(id), ", "))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(idle):
		}
	}
}

// Remove forgets a request and every name it owns.
func (c *Correlator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.responses, id)
	for name, owner := range c.requests {
		if owner == id {
			delete(c.requests, name)
		}
	}
}

// Len returns the number of pending requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

func (c *Correlator) pop(id string) (frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.responses[id]
	if len(queue) == 0 {
		return nil, false
	}
	c.responses[id] = queue[1:]
	return queue[0], true
}

func (c *Correlator) names(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for name, owner := range c.requests {
		if owner == id {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
