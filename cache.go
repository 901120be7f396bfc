package prism

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// NoTTL marks a cache entry that never expires.
const NoTTL time.Duration = 0

// LRUCache is a thread-safe fixed-capacity cache with least-recently-used
// eviction and optional time-to-live expiry.
//
// Eviction happens on Set when capacity would be exceeded: the
// least-recently-accessed entry is removed and counted. Expiry is lazy:
// Get removes an expired entry, counts it as an expiration, and reports a
// miss. Get promotes the entry to most-recently-used; Set on an existing key
// re-inserts it at the most-recent position.
type LRUCache[K comparable, V any] struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration // default TTL; NoTTL = never expires
	order *list.List    // front = most recent
	items map[K]*list.Element

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	now func() time.Time // swapped in tests
}

type lruEntry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time // zero = never
}

// CacheMetrics is a point-in-time snapshot of cache counters.
type CacheMetrics struct {
	Size        int    `json:"size"`
	MaxSize     int    `json:"max_size"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
}

// NewLRUCache creates a cache holding at most max entries. ttl is the default
// time-to-live for entries set via Set; pass NoTTL for entries that never
// expire. max must be >= 1.
func NewLRUCache[K comparable, V any](max int, ttl time.Duration) *LRUCache[K, V] {
	if max < 1 {
		max = 1
	}
	return &LRUCache[K, V]{
		max:   max,
		ttl:   ttl,
		order: list.New(),
		items: make(map[K]*list.Element),
		now:   time.Now,
	}
}

// Get returns the value for key and promotes it to most-recently-used.
// An expired entry is removed, counted as an expiration, and reported as a
// miss.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	ent := el.Value.(*lruEntry[K, V])
	if !ent.expires.IsZero() && c.now().After(ent.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		c.expirations++
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit per-entry TTL,
// overriding the default. NoTTL means the entry never expires. An existing
// key is re-inserted at the most-recent position. When capacity would be
// exceeded, the oldest entry is evicted and counted.
func (c *LRUCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*lruEntry[K, V])
		ent.value = value
		ent.expires = expires
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.max {
		oldest := c.order.Back()
		if oldest != nil {
			ent := oldest.Value.(*lruEntry[K, V])
			c.order.Remove(oldest)
			delete(c.items, ent.key)
			c.evictions++
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value, expires: expires})
}

// Clear drops all entries. Counters are preserved.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element)
}

// Len returns the current number of entries, including not-yet-reaped
// expired ones.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Metrics returns a snapshot of the cache counters.
func (c *LRUCache[K, V]) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheMetrics{
		Size:        c.order.Len(),
		MaxSize:     c.max,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// --- Capability index ---

// CapabilityIndex maps agent ids to their advertised capabilities and back.
// It is written once at Router construction and read-mostly thereafter;
// reads take a shared lock and may run from any goroutine.
type CapabilityIndex struct {
	mu          sync.RWMutex
	forward     map[string][]string // agent id -> capabilities
	reverse     map[string][]string // capability -> agent ids, sorted
	initialized bool
}

// NewCapabilityIndex returns an empty, uninitialized index.
func NewCapabilityIndex() *CapabilityIndex {
	return &CapabilityIndex{
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
}

// Initialize builds the forward and reverse indexes from a capability map.
// Calling it again with identical input is a no-op in effect; different
// input replaces the previous index.
func (ci *CapabilityIndex) Initialize(capabilityMap map[string][]string) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	ci.forward = make(map[string][]string, len(capabilityMap))
	ci.reverse = make(map[string][]string)
	for agentID, caps := range capabilityMap {
		ci.forward[agentID] = append([]string(nil), caps...)
		for _, c := range caps {
			ci.reverse[c] = append(ci.reverse[c], agentID)
		}
	}
	for c := range ci.reverse {
		sort.Strings(ci.reverse[c])
	}
	ci.initialized = true
}

// Initialized reports whether Initialize has been called.
func (ci *CapabilityIndex) Initialized() bool {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return ci.initialized
}

// AgentCapabilities returns the capabilities advertised by agentID.
func (ci *CapabilityIndex) AgentCapabilities(agentID string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return append([]string(nil), ci.forward[agentID]...)
}

// AgentsForCapability returns the agent ids advertising capability,
// alphabetically sorted. Exact match only.
func (ci *CapabilityIndex) AgentsForCapability(capability string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return append([]string(nil), ci.reverse[capability]...)
}

// Capabilities returns all indexed capability tags in unspecified order.
func (ci *CapabilityIndex) Capabilities() []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	caps := make([]string, 0, len(ci.reverse))
	for c := range ci.reverse {
		caps = append(caps, c)
	}
	return caps
}

// AgentIDs returns all indexed agent ids in unspecified order.
func (ci *CapabilityIndex) AgentIDs() []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	ids := make([]string, 0, len(ci.forward))
	for id := range ci.forward {
		ids = append(ids, id)
	}
	return ids
}

// reset clears the index. Test helper, reached via ResetShared.
func (ci *CapabilityIndex) reset() {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.forward = make(map[string][]string)
	ci.reverse = make(map[string][]string)
	ci.initialized = false
}

// --- Routing cache ---

const (
	routingCacheSize = 500
	routingCacheTTL  = time.Hour
)

// RoutingCache memoizes capability -> agent id routing decisions.
// Thin wrapper over LRUCache with default size 500 and TTL 1h.
type RoutingCache struct {
	lru *LRUCache[string, string]
}

// NewRoutingCache creates a routing cache with the default size and TTL.
func NewRoutingCache() *RoutingCache {
	return &RoutingCache{lru: NewLRUCache[string, string](routingCacheSize, routingCacheTTL)}
}

// Get returns the cached agent id for capability.
func (rc *RoutingCache) Get(capability string) (string, bool) {
	return rc.lru.Get(capability)
}

// Put stores a routing decision under the default TTL.
func (rc *RoutingCache) Put(capability, agentID string) {
	rc.lru.Set(capability, agentID)
}

// Clear drops all cached decisions.
func (rc *RoutingCache) Clear() {
	rc.lru.Clear()
}

// Metrics returns the underlying cache counters.
func (rc *RoutingCache) Metrics() CacheMetrics {
	return rc.lru.Metrics()
}

// --- Process-wide shared state ---

// The capability index, routing cache, and performance metrics are process
// singletons acquired through accessor functions, initialized on first use,
// and safe to read from any goroutine. Tests call ResetShared between cases
// to avoid cross-contamination.
var (
	sharedMu       sync.Mutex
	sharedCapIndex *CapabilityIndex
	sharedRouting  *RoutingCache
	sharedMetrics  *PerformanceMetrics
)

// SharedCapabilityIndex returns the process-wide capability index.
func SharedCapabilityIndex() *CapabilityIndex {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedCapIndex == nil {
		sharedCapIndex = NewCapabilityIndex()
	}
	return sharedCapIndex
}

// SharedRoutingCache returns the process-wide routing cache.
func SharedRoutingCache() *RoutingCache {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedRouting == nil {
		sharedRouting = NewRoutingCache()
	}
	return sharedRouting
}

// SharedMetrics returns the process-wide performance metrics recorder.
func SharedMetrics() *PerformanceMetrics {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedMetrics == nil {
		sharedMetrics = NewPerformanceMetrics()
	}
	return sharedMetrics
}

// ResetShared clears all process-wide singletons. Intended for tests; several
// routing tests depend on a fresh index.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedCapIndex != nil {
		sharedCapIndex.reset()
	}
	if sharedRouting != nil {
		sharedRouting.Clear()
	}
	if sharedMetrics != nil {
		sharedMetrics.reset()
	}
}
