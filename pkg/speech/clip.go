// Package speech implements the serialized speech queue and the clip
// store backing browser playback.
package speech

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clip is one synthesized utterance held for the overlay to fetch.
type Clip struct {
	ID       string
	Audio    []byte
	MIME     string
	Duration time.Duration
	Created  time.Time
}

// DefaultStoreCapacity bounds the clip store. Clips are tiny relative
// to process memory but playback only ever needs the recent few.
const DefaultStoreCapacity = 32

// Store is a bounded in-memory clip store with FIFO eviction.
type Store struct {
	mu    sync.Mutex
	clips map[string]Clip
	order []string
	cap   int
}

// NewStore creates a clip store holding at most capacity clips.
// A non-positive capacity falls back to the default.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &Store{
		clips: map[string]Clip{},
		cap:   capacity,
	}
}

// Put stores audio and returns the clip ID it is served under.
func (s *Store) Put(audio []byte, mime string, duration time.Duration) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.clips, oldest)
	}

	s.clips[id] = Clip{
		ID:       id,
		Audio:    audio,
		MIME:     mime,
		Duration: duration,
		Created:  time.Now(),
	}
	s.order = append(s.order, id)
	return id
}

// Get returns the clip for id.
func (s *Store) Get(id string) (Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[id]
	return c, ok
}

// Len returns the number of stored clips.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}
