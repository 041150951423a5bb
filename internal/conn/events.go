package conn

import "sync"

// State is the connection state of one handle.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange notifies subscribers of a connection state transition.
// Transport carries the negotiated transport name while connected; Err is
// set on disconnects and on the terminal error state.
type StateChange struct {
	State     State
	Transport string
	Err       error
}

// subscription is a typed subscriber list for one event kind, so each
// consumer sees only the events it asked for.
type subscription[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

func newSubscription[T any]() *subscription[T] {
	return &subscription[T]{subs: make(map[int]func(T))}
}

// add registers fn and returns its unsubscribe function.
func (s *subscription[T]) add(fn func(T)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// publish delivers v to all current subscribers in registration order.
func (s *subscription[T]) publish(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.subs))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
