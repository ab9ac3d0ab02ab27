package util

import "sync"

// ErrorList is an append-only queue of errors shared between the reader
// goroutine, the heartbeat monitor and blocked callers.
type ErrorList struct {
	mu   sync.Mutex
	errs []error
}

// Append records err. Nil errors are ignored.
func (l *ErrorList) Append(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

// Len returns the number of recorded errors.
func (l *ErrorList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

// First returns the oldest error without removing it.
func (l *ErrorList) First() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return nil
	}
	return l.errs[0]
}

// Pop removes and returns the oldest error.
func (l *ErrorList) Pop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return nil
	}
	err := l.errs[0]
	l.errs = l.errs[1:]
	return err
}

// Reset drops every recorded error.
func (l *ErrorList) Reset() {
	l.mu.Lock()
	l.errs = nil
	l.mu.Unlock()
}
