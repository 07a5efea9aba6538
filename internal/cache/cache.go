// Package cache provides a small file-backed TTL cache used to avoid
// re-running mailbox searches and re-billing vision decodes. One cache
// is one JSON document on disk; entries are keyed by the SHA-1 of a
// normalized descriptor string.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Store is a TTL-keyed cache backed by a single JSON file. A TTL of
// zero or less means entries never expire. A corrupt or missing file is
// treated as empty; the cache never fails a caller over disk state.
type Store struct {
	path string
	ttl  time.Duration
	log  *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New creates a store at path with the given TTL in minutes.
func New(path string, ttlMinutes int, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		path: path,
		ttl:  time.Duration(ttlMinutes) * time.Minute,
		log:  log,
		now:  time.Now,
	}
}

// Key derives the cache key for a descriptor built from its parts,
// e.g. Key("q="+query, "e="+identity).
func Key(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Get loads a live entry into out. Returns false on miss, expiry, or
// decode failure. An entry aged exactly at the TTL is still live.
func (s *Store) Get(key string, out any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	e, ok := entries[key]
	if !ok {
		return false
	}
	if s.expired(e) {
		return false
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		s.log.Warn("cache payload undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Put stores a payload under key, pruning expired entries on the way.
func (s *Store) Put(key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	for k, e := range entries {
		if s.expired(e) {
			delete(entries, k)
		}
	}
	entries[key] = entry{CreatedAt: s.now().UTC(), Payload: raw}
	return s.save(entries)
}

// Purge removes the backing file entirely.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

func (s *Store) expired(e entry) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(e.CreatedAt) > s.ttl
}

func (s *Store) load() map[string]entry {
	entries := make(map[string]entry)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("cache unreadable", zap.String("path", s.path), zap.Error(err))
		}
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Warn("cache corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return make(map[string]entry)
	}
	return entries
}

func (s *Store) save(entries map[string]entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
