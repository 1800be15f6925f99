package bot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/clock"
)

func cacheID(n int) types.PullRequestID {
	return types.PullRequestID{
		Repo:   types.RepositoryName{Owner: "test", Name: "repo"},
		Number: n,
	}
}

func TestResultCacheFreshness(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewResultCache(clk, time.Hour, 10)
	id := cacheID(1)

	assert.False(t, cache.Fresh(id, "fp1"))

	cache.Store(id, "fp1")
	assert.True(t, cache.Fresh(id, "fp1"))
	assert.False(t, cache.Fresh(id, "fp2"))

	clk.Advance(2 * time.Hour)
	assert.False(t, cache.Fresh(id, "fp1"))
}

func TestResultCacheExpire(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewResultCache(clk, time.Hour, 10)
	id := cacheID(1)

	cache.Store(id, "fp1")
	cache.Expire(id)
	assert.False(t, cache.Fresh(id, "fp1"))
}

func TestResultCacheScheduledRecheck(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewResultCache(clk, 24*time.Hour, 10)
	id := cacheID(1)

	cache.Store(id, "fp1")
	cache.ScheduleRecheckAt(id, clk.Now().Add(10*time.Minute))

	assert.True(t, cache.Fresh(id, "fp1"))
	clk.Advance(11 * time.Minute)
	assert.False(t, cache.Fresh(id, "fp1"))
}

func TestResultCacheBounded(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := NewResultCache(clk, time.Hour, 3)

	for i := 1; i <= 4; i++ {
		cache.Store(cacheID(i), fmt.Sprintf("fp%d", i))
		clk.Advance(time.Second)
	}

	// The oldest entry was evicted to make room.
	assert.False(t, cache.Fresh(cacheID(1), "fp1"))
	assert.True(t, cache.Fresh(cacheID(4), "fp4"))
}

func TestComputeFingerprintChangesWithInputs(t *testing.T) {
	base := ComputeFingerprint("head1", "target1", "conf1", "body", "events", 1)
	assert.NotEqual(t, base, ComputeFingerprint("head2", "target1", "conf1", "body", "events", 1))
	assert.NotEqual(t, base, ComputeFingerprint("head1", "target2", "conf1", "body", "events", 1))
	assert.NotEqual(t, base, ComputeFingerprint("head1", "target1", "conf2", "body", "events", 1))
	assert.NotEqual(t, base, ComputeFingerprint("head1", "target1", "conf1", "other", "events", 1))
	assert.NotEqual(t, base, ComputeFingerprint("head1", "target1", "conf1", "body", "other", 1))
	assert.NotEqual(t, base, ComputeFingerprint("head1", "target1", "conf1", "body", "events", 2))
	assert.Equal(t, base, ComputeFingerprint("head1", "target1", "conf1", "body", "events", 1))
}
