// Package cache provides a bounded key/value cache with per-entry TTL.
//
// When the store is full, inserting a new key evicts the entry that was created
// first, regardless of how recently it was read.
package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
)

// DefaultCapacity is used when no capacity option is given.
const DefaultCapacity = 1000

// Entry is one cached value.
type Entry struct {
	Key            string    `json:"key"`
	Value          any       `json:"value"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	// TTL in seconds. Zero never expires.
	TTL      float64 `json:"ttl"`
	HitCount int64   `json:"hit_count"`
}

func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt).Seconds() > e.TTL
}

// Stats summarises the store.
type Stats struct {
	TotalEntries int   `json:"total_entries"`
	TotalHits    int64 `json:"total_hits"`
	Capacity     int   `json:"capacity"`
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity bounds the number of entries. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for eviction traces.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:  make(map[string]*Entry),
		capacity: DefaultCapacity,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set inserts or overwrites key. ttlSeconds <= 0 means no expiry.
func (s *Store) Set(key string, value any, ttlSeconds float64) {
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.capacity {
		s.evictOldest()
	}
	s.entries[key] = &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            ttlSeconds,
	}
}

// evictOldest removes the entry with the earliest creation time. Caller holds mu.
func (s *Store) evictOldest() {
	var oldest *Entry
	for _, e := range s.entries {
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.Key < oldest.Key) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(s.entries, oldest.Key)
		s.logger.Debug("cache evicted", "key", oldest.Key)
	}
}

// Get returns the value for key. Expired entries are removed and reported absent.
// A hit increments the entry's hit count and refreshes its access time.
func (s *Store) Get(key string) (any, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return nil, false
	}
	e.HitCount++
	e.LastAccessedAt = now
	return e.Value, true
}

// Has reports whether Get would find key. It is a full access: it counts as a
// hit and expires a stale entry.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Remove deletes key and reports whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// Keys returns the keys of live entries in lexical order. Expired entries are pruned.
func (s *Store) Keys() []string {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns copies of the live entries ordered by creation time.
func (s *Store) Entries() []Entry {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stats prunes expired entries and reports the remaining count and hits.
func (s *Store) Stats() Stats {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	st := Stats{TotalEntries: len(s.entries), Capacity: s.capacity}
	for _, e := range s.entries {
		st.TotalHits += e.HitCount
	}
	return st
}

// SetCapacity changes the bound. Values below 1 are ignored. Shrinking below
// the current size evicts the earliest created entries.
func (s *Store) SetCapacity(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = n
	for len(s.entries) > s.capacity {
		s.evictOldest()
	}
}

func (s *Store) pruneLocked(now time.Time) {
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}
