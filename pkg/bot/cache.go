package bot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/clock"
)

// ComputeFingerprint builds the opaque metadata string stored on the status
// check. A check run is redundant when the recomputed fingerprint matches
// the stored one. The source head leads so the forge adapter can recover the
// head hash from stored metadata. events covers the review and comment
// stream, so a new approval or command invalidates the cached result.
func ComputeFingerprint(sourceHead, targetHead, confHash, body, events string, generation int) string {
	bodySum := sha256.Sum256([]byte(body))
	eventSum := sha256.Sum256([]byte(events))
	return fmt.Sprintf("%s;%s;%s;%s;%s;%d",
		sourceHead, targetHead, confHash,
		hex.EncodeToString(bodySum[:8]), hex.EncodeToString(eventSum[:8]), generation)
}

type cacheEntry struct {
	fingerprint string
	storedAt    time.Time
}

// ResultCache remembers the fingerprint of the last completed check run per
// pull request, so unchanged pull requests are skipped. Entries expire, and
// a recheck can be scheduled ahead of time.
type ResultCache struct {
	mu         sync.Mutex
	clk        clock.Clock
	ttl        time.Duration
	maxEntries int
	entries    map[types.PullRequestID]cacheEntry
	recheckAt  map[types.PullRequestID]time.Time
}

// NewResultCache creates a cache holding at most maxEntries fingerprints,
// each valid for ttl.
func NewResultCache(clk clock.Clock, ttl time.Duration, maxEntries int) *ResultCache {
	return &ResultCache{
		clk:        clk,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[types.PullRequestID]cacheEntry{},
		recheckAt:  map[types.PullRequestID]time.Time{},
	}
}

// Fresh reports whether the stored fingerprint matches and has not expired.
func (c *ResultCache) Fresh(id types.PullRequestID, fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok || entry.fingerprint != fingerprint {
		return false
	}
	now := c.clk.Now()
	if now.Sub(entry.storedAt) > c.ttl {
		delete(c.entries, id)
		return false
	}
	if at, scheduled := c.recheckAt[id]; scheduled && !now.Before(at) {
		delete(c.recheckAt, id)
		delete(c.entries, id)
		return false
	}
	return true
}

// Store records the fingerprint of a completed run.
func (c *ResultCache) Store(id types.PullRequestID, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[id] = cacheEntry{fingerprint: fingerprint, storedAt: c.clk.Now()}
}

// Expire drops the stored fingerprint, forcing the next run to execute.
func (c *ResultCache) Expire(id types.PullRequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// ScheduleRecheckAt invalidates the cache entry at a future instant. An
// earlier already-scheduled recheck wins.
func (c *ResultCache) ScheduleRecheckAt(id types.PullRequestID, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.recheckAt[id]; ok && existing.Before(at) {
		return
	}
	c.recheckAt[id] = at
}

// evictOldest removes the entry with the oldest store time. Called with the
// lock held.
func (c *ResultCache) evictOldest() {
	var oldest types.PullRequestID
	var oldestAt time.Time
	first := true
	for id, entry := range c.entries {
		if first || entry.storedAt.Before(oldestAt) {
			oldest = id
			oldestAt = entry.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldest)
	}
}
