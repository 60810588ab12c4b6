package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"github.com/draftforge/draftforge-backend/internal/domain"
	"github.com/draftforge/draftforge-backend/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTTL is the memoization window for generation results.
const DefaultTTL = 15 * time.Minute

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is a content-addressed, TTL-based memoization layer over generation
// calls. Recomputation is single-flight per key: concurrent callers for the
// same key share one in-flight compute instead of issuing duplicates.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		entries: map[string]entry{},
		now:     time.Now,
	}
}

// NewStoreWithClock is for tests that need to drive expiry.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// Key derives the content address for a generation request: a stable hash of
// kind, model, and the normalized inputs. ForceRefresh is deliberately not
// part of the identity; it changes behavior, not content.
func Key(req domain.GenerationRequest, model string) string {
	h := sha256.New()
	h.Write([]byte(string(req.Kind)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(model)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeInputs(req)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeInputs serializes the request's content-bearing fields with sorted
// map keys so identical inputs always hash identically.
func normalizeInputs(req domain.GenerationRequest) string {
	keys := make([]string, 0, len(req.Inputs))
	for k := range req.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		if blob, err := json.Marshal(req.Inputs[k]); err == nil {
			b.Write(blob)
		}
		b.WriteString(";")
	}

	exclusions := append([]string(nil), req.Exclusions...)
	sort.Strings(exclusions)
	b.WriteString("exclusions=")
	b.WriteString(strings.Join(exclusions, "|"))
	b.WriteString(";focus=")
	b.WriteString(strings.TrimSpace(req.FocusAngle))
	return b.String()
}

// Delete removes any entry for the key and detaches it from any in-flight
// compute, so a caller refreshing the key never receives pre-refresh output
// from a flight that was already running.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	s.group.Forget(key)
}

// Get returns a live cached value.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// GetOrCompute returns the cached value for key if it is within its TTL, or
// runs compute exactly once (across concurrent callers) and caches the
// result. Errors are never cached.
func (s *Store) GetOrCompute(key string, compute func() (any, error), ttl time.Duration) (any, error) {
	if v, ok := s.Get(key); ok {
		if m := observability.Current(); m != nil {
			m.ObserveCache(true)
		}
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have just stored it.
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		if m := observability.Current(); m != nil {
			m.ObserveCache(false)
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		s.mu.Lock()
		s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
