// Package adapter defines the Adapter Runtime (C3): a long-lived state
// machine that connects to an external source and emits normalized
// RawEvents, without enrichment.
package adapter

import (
	"context"
	"sync"
	"time"
)

// State is one of an adapter's lifecycle states.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Event is the RawEvent shape an adapter emits, pre-enrichment.
type Event struct {
	Source     string
	EventType  string
	ExternalID string
	Payload    map[string]any
	Metadata   map[string]any
	Timestamp  time.Time
}

// Status is the adapter health surface SPEC_FULL.md adds (§3): a snapshot
// a composition root or health endpoint can poll.
type Status struct {
	State       State
	LastError   error
	LastEventAt time.Time
}

// Adapter is the closed operation set every source implements.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) Status

	// Events returns the channel new normalized events are published on.
	// The channel is closed when the adapter stops.
	Events() <-chan Event
}

// Runtime wraps an Adapter with the reconnection-with-backoff loop and
// self-authored-message filtering that spec §4.3 assigns to "the
// runtime" rather than to individual source adapters.
type Runtime struct {
	adapter    Adapter
	selfUserID string // messages authored by this id are dropped

	mu     sync.RWMutex
	status Status

	out chan Event
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
)

// NewRuntime wraps adapter, filtering out events authored by selfUserID
// (the runtime's own posts, to avoid feedback loops). selfUserID may be
// empty if the source has no such concept.
func NewRuntime(a Adapter, selfUserID string) *Runtime {
	return &Runtime{
		adapter:    a,
		selfUserID: selfUserID,
		out:        make(chan Event, 64),
	}
}

// Events returns the runtime's filtered, reconnection-resilient stream.
func (r *Runtime) Events() <-chan Event { return r.out }

func (r *Runtime) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// Status returns the last observed health snapshot.
func (r *Runtime) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Run connects the adapter and forwards its events until ctx is
// cancelled, reconnecting with exponential backoff (capped at 60s) on
// disconnection.
func (r *Runtime) Run(ctx context.Context) {
	defer close(r.out)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		r.setStatus(Status{State: StateConnecting})
		if err := r.adapter.Connect(ctx); err != nil {
			r.setStatus(Status{State: StateError, LastError: err})
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if err := r.adapter.Start(ctx); err != nil {
			r.setStatus(Status{State: StateError, LastError: err})
			r.adapter.Disconnect(ctx)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff
		r.setStatus(Status{State: StateConnected})
		r.forward(ctx)

		r.adapter.Stop(ctx)
		r.adapter.Disconnect(ctx)
		if ctx.Err() != nil {
			return
		}
		// Connection dropped without ctx cancellation: reconnect.
		r.setStatus(Status{State: StateDisconnected})
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (r *Runtime) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.adapter.Events():
			if !ok {
				return
			}
			if r.selfUserID != "" {
				if author, _ := ev.Metadata["author"].(string); author == r.selfUserID {
					continue
				}
			}
			r.setStatus(Status{State: StateConnected, LastEventAt: ev.Timestamp})
			select {
			case r.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
