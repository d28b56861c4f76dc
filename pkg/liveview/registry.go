// Package liveview keeps connected dashboard viewers in sync with run state.
//
// The Registry tracks subscribers per run id, the Dispatcher fans events out
// to them, and the Relay feeds the Dispatcher from the event bus. Storage
// writes and broadcasts stay decoupled: the store is the source of truth,
// delivery here is best effort.
package liveview

import (
	"sync"

	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 64

// Subscriber is one live viewer connection bound to a single run. Frames are
// consumed from Events; the channel is closed exactly once when the
// subscriber is removed from the registry.
type Subscriber struct {
	id    string
	runID string
	ch    chan []byte
	once  sync.Once
}

// RunID returns the run this subscriber is watching.
func (s *Subscriber) RunID() string {
	return s.runID
}

// Events returns the channel of serialized event frames.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// Registry tracks live subscribers per run id. It is safe for concurrent
// subscribe, unsubscribe and iteration from independent goroutines.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscriber]struct{}
	buffer      int
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]map[*Subscriber]struct{}),
		buffer:      defaultSubscriberBuffer,
	}
}

// Subscribe registers a new viewer for the given run id and returns its
// handle. The run does not have to exist; a viewer of an unknown run simply
// never receives events.
func (r *Registry) Subscribe(runID string) *Subscriber {
	sub := &Subscriber{
		id:    uuid.New().String(),
		runID: runID,
		ch:    make(chan []byte, r.buffer),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.subscribers[runID]
	if !exists {
		set = make(map[*Subscriber]struct{})
		r.subscribers[runID] = set
	}

	set[sub] = struct{}{}

	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Removing an
// unknown or already-removed subscriber is a no-op; disconnect cleanup races
// with explicit unsubscribes and both paths must be safe.
func (r *Registry) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	r.mu.Lock()

	set, exists := r.subscribers[sub.runID]
	if exists {
		delete(set, sub)

		if len(set) == 0 {
			delete(r.subscribers, sub.runID)
		}
	}

	r.mu.Unlock()

	sub.close()
}

// Subscribers returns a snapshot of the current subscribers for a run.
func (r *Registry) Subscribers(runID string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subscribers[runID]
	if len(set) == 0 {
		return nil
	}

	subs := make([]*Subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}

	return subs
}

// Count returns the number of live subscribers for a run.
func (r *Registry) Count(runID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subscribers[runID])
}
