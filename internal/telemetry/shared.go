// internal/telemetry/shared.go
package telemetry

import (
	"context"
	"sync"
	"time"
)

// Shared lets several loops share one poll per tick: a reading younger than
// the window is handed out again instead of hitting the sensor.
// Concurrent callers for the same tag wait for a single in-flight read.
type Shared struct {
	src    Source
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[Tag]*sharedEntry
}

type sharedEntry struct {
	mu     sync.Mutex
	sample Sample
	err    error
	at     time.Time
	valid  bool
}

// NewShared wraps src. Window is usually slightly below the tick interval.
func NewShared(src Source, window time.Duration) *Shared {
	return &Shared{
		src:     src,
		window:  window,
		now:     time.Now,
		entries: map[Tag]*sharedEntry{},
	}
}

func (s *Shared) entry(tag Tag) *sharedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[tag]
	if !ok {
		e = &sharedEntry{}
		s.entries[tag] = e
	}
	return e
}

func (s *Shared) Read(ctx context.Context, tag Tag) (Sample, error) {
	e := s.entry(tag)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.valid && s.now().Sub(e.at) < s.window {
		return e.sample, e.err
	}

	sample, err := s.src.Read(ctx, tag)
	if ctx.Err() != nil {
		// do not cache a cancellation for the other loop
		return sample, err
	}

	e.sample, e.err, e.at, e.valid = sample, err, s.now(), true
	return sample, err
}
