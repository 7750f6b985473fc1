// Package clock provides the time source and the id generator used for
// records and audit entries.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock
func System() Clock {
	return systemClock{}
}

// Manual is a clock that only moves when told to. Used in tests and in
// offline tooling that wants reproducible timestamps.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock set to t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// IDSource hands out ids derived from the clock in milliseconds.
// Ids are strictly increasing for the lifetime of the source, even when
// several are requested within the same millisecond or the clock stalls.
type IDSource struct {
	mu    sync.Mutex
	clock Clock
	last  int64
}

// NewIDSource creates an id source backed by c
func NewIDSource(c Clock) *IDSource {
	if c == nil {
		c = System()
	}
	return &IDSource{clock: c}
}

// Next returns a fresh id
func (s *IDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.clock.Now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// Observe raises the floor so that every later id is greater than id.
// Called with ids loaded from storage.
func (s *IDSource) Observe(id int64) {
	s.mu.Lock()
	if id > s.last {
		s.last = id
	}
	s.mu.Unlock()
}
