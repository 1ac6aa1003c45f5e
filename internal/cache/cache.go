// Package cache stores rendered list responses. Entries are keyed by entity
// version so that bumping the version of an entity makes every cached page
// of it unreachable at once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is implemented by Redis, Memory and Nop
type Cache interface {
	// Get returns the cached value and whether it was found
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Version returns the current version of entity, 0 if never invalidated
	Version(ctx context.Context, entity string) (int64, error)
	// Invalidate bumps the version of entity
	Invalidate(ctx context.Context, entity string) error
}

// Key builds the cache key of a request on entity at version
func Key(entity string, version int64, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return entity + ":v" + strconv.FormatInt(version, 10) + ":" + hex.EncodeToString(sum[:12])
}

type nop struct{}

// Nop returns a cache that stores nothing
func Nop() Cache { return nop{} }

func (nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nop) Set(context.Context, string, []byte) error         { return nil }
func (nop) Version(context.Context, string) (int64, error)    { return 0, nil }
func (nop) Invalidate(context.Context, string) error          { return nil }

// DefaultMemorySize is the entry bound of a Memory cache created with a
// non-positive size
const DefaultMemorySize = 1000

// Memory is a process-local LRU cache, used when no Redis address is
// configured. It holds at most size entries; the least recently used entry is
// evicted first and expired entries are swept in the background.
type Memory struct {
	entries *expirable.LRU[string, []byte]

	mu       sync.Mutex
	versions map[string]int64
}

// NewMemory creates a memory cache holding up to size entries. A zero ttl
// keeps entries until they are evicted or their entity is invalidated.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		entries:  expirable.NewLRU[string, []byte](size, nil, ttl),
		versions: make(map[string]int64),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.entries.Get(key)
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.entries.Add(key, append([]byte(nil), value...))
	return nil
}

// Len returns the number of cached entries
func (m *Memory) Len() int {
	return m.entries.Len()
}

func (m *Memory) Version(_ context.Context, entity string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[entity], nil
}

// Invalidate bumps the version of entity and drops its stale entries
func (m *Memory) Invalidate(_ context.Context, entity string) error {
	m.mu.Lock()
	m.versions[entity]++
	m.mu.Unlock()

	for _, key := range m.entries.Keys() {
		if strings.HasPrefix(key, entity+":") {
			m.entries.Remove(key)
		}
	}
	return nil
}
