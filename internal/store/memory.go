package store

import (
	"errors"
	"sync"

	"github.com/i474232898/weather-station-sync/internal/weather"
)

var (
	// ErrNotFound is returned when the published index has no entry for a station.
	ErrNotFound = errors.New("no observations for station")
)

// PublishFunc is called after an index has been accepted.
type PublishFunc func(index *weather.ObservationIndex, state weather.SyncState)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// It keeps only the latest accepted index; results from a run older than the
// newest begun generation are dropped.
type MemoryStore struct {
	mu sync.RWMutex

	newest    uint64 // newest generation begun
	published uint64 // generation of index
	index     *weather.ObservationIndex
	lastErr   string

	onPublish []PublishFunc
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// OnPublish registers fn to run after every accepted Publish. Callbacks run
// outside the store lock.
func (s *MemoryStore) OnPublish(fn PublishFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = append(s.onPublish, fn)
}

// Begin marks gen as the newest started run, which puts the store in the
// loading state. Generations that are not newer than the current one are ignored.
func (s *MemoryStore) Begin(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen > s.newest {
		s.newest = gen
	}
}

// Publish replaces the index if gen is the newest begun generation.
// The error string is replaced as well, so a clean run clears a previous error.
func (s *MemoryStore) Publish(gen uint64, index *weather.ObservationIndex, lastErr string) bool {
	s.mu.Lock()
	if gen != s.newest {
		s.mu.Unlock()
		return false
	}
	s.index = index
	s.published = gen
	s.lastErr = lastErr
	state := s.stateLocked()
	callbacks := append([]PublishFunc(nil), s.onPublish...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(index, state)
	}
	return true
}

// Latest returns the published index (nil before the first publish) and the
// current sync state.
func (s *MemoryStore) Latest() (*weather.ObservationIndex, weather.SyncState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index, s.stateLocked()
}

// Records returns the published records for one station.
func (s *MemoryStore) Records(stationID string) ([]weather.ObservationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.index.Records(stationID)
	if !ok {
		return nil, ErrNotFound
	}
	return records, nil
}

func (s *MemoryStore) stateLocked() weather.SyncState {
	return weather.SyncState{
		Generation: s.published,
		Loading:    s.newest > s.published,
		Error:      s.lastErr,
	}
}
