package exchange

import (
	"sync"
	"time"
)

// lookupResult classifies a cache lookup for metrics.
type lookupResult int

const (
	lookupHit lookupResult = iota
	lookupMiss
	lookupExpired
	lookupMismatch
)

type cacheEntry struct {
	token            *Token
	expiresAt        time.Time
	requestorSubject string
}

// tokenCache stores delegated tokens keyed by (sessionID, audience).
// Each entry is bound to the subject that obtained it.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[string]*cacheEntry)}
}

// get returns the cached token for key when it is unexpired and its
// stored requestor subject matches. Expired and subject-mismatched
// entries are evicted.
func (c *tokenCache) get(key, subject string) (*Token, lookupResult) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, lookupMiss
	}
	if time.Now().After(entry.expiresAt) {
		c.evict(key, entry)
		return nil, lookupExpired
	}
	// Anti-confusion binding: the cached token is only valid for the
	// exact subject that obtained it.
	if entry.requestorSubject != subject {
		c.evict(key, entry)
		return nil, lookupMismatch
	}
	return entry.token, lookupHit
}

// evict removes the entry for key if it is still the same entry.
func (c *tokenCache) evict(key string, stale *cacheEntry) {
	c.mu.Lock()
	if current, ok := c.entries[key]; ok && current == stale {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

func (c *tokenCache) set(key, subject string, token *Token) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		token:            token,
		expiresAt:        token.ExpiresAt,
		requestorSubject: subject,
	}
	c.mu.Unlock()
}

// len returns the number of live entries, counting expired ones until
// their lazy eviction.
func (c *tokenCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// approxBytes estimates cache memory usage from token and key sizes.
func (c *tokenCache) approxBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for key, entry := range c.entries {
		total += int64(len(key)) + int64(len(entry.requestorSubject))
		if entry.token != nil {
			total += int64(len(entry.token.AccessToken))
		}
		total += 64 // struct and map overhead, rough
	}
	return total
}
