package telemetry

import (
	"sync"

	"codeberg.org/mutker/mfcctl/internal/mfc"
)

// Store keeps the latest sample and a bounded history per channel. One
// mutex guards both so readers always observe a temporally consistent
// pair; all accessors copy out, so no caller ever holds store memory.
type Store struct {
	mu       sync.Mutex
	channels int
	capacity int
	current  []*mfc.Sample
	history  [][]mfc.Sample
}

func NewStore(channels, capacity int) *Store {
	if channels <= 0 {
		channels = 1
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &Store{
		channels: channels,
		capacity: capacity,
		current:  make([]*mfc.Sample, channels),
		history:  make([][]mfc.Sample, channels),
	}
}

const defaultCapacity = 200

// Update publishes one scheduler cycle's batch: channels that produced
// a sample get their current value overwritten and the sample appended
// to history; channels with a nil slot are left untouched.
func (s *Store) Update(batch []*mfc.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sample := range batch {
		if sample == nil || i >= s.channels {
			continue
		}

		cp := *sample
		s.current[i] = &cp

		s.history[i] = append(s.history[i], cp)
		if len(s.history[i]) > s.capacity {
			s.history[i] = s.history[i][1:]
		}
	}
}

// Current returns a copy of the channel's latest sample, or nil when
// the channel has not produced one yet (or the index is out of range).
func (s *Store) Current(channel int) *mfc.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.channels || s.current[channel] == nil {
		return nil
	}

	cp := *s.current[channel]

	return &cp
}

// History returns a copy of the channel's samples in temporal order.
func (s *Store) History(channel int) []mfc.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= s.channels {
		return nil
	}

	out := make([]mfc.Sample, len(s.history[channel]))
	copy(out, s.history[channel])

	return out
}

// SnapshotCurrent copies the whole current cache in one lock
// acquisition, so a recording tick never sees a torn batch.
func (s *Store) SnapshotCurrent() []*mfc.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*mfc.Sample, s.channels)
	for i, sample := range s.current {
		if sample == nil {
			continue
		}
		cp := *sample
		out[i] = &cp
	}

	return out
}

// Channels returns the configured channel count.
func (s *Store) Channels() int {
	return s.channels
}
