package fetcher

import "time"

// State is the lifecycle position of the cache entry.
type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the cache entry.
type Snapshot[T any] struct {
	Value     T
	Present   bool
	FetchedAt time.Time
	Age       time.Duration
	State     State
}

// Snapshot reports the current entry without touching the network.
func (f *Fetcher[T]) Snapshot() Snapshot[T] {
	now := f.now()

	f.mu.RLock()
	s := Snapshot[T]{Value: f.value, Present: f.has, FetchedAt: f.fetchedAt}
	f.mu.RUnlock()

	if !s.Present {
		s.State = StateEmpty
		return s
	}
	s.Age = now.Sub(s.FetchedAt)
	if s.Age < f.ttl {
		s.State = StateFresh
	} else {
		s.State = StateStale
	}
	return s
}
