package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/types"
)

func TestPRMapUpdateAndLookup(t *testing.T) {
	m := NewPRMap()
	pr1 := cacheID(1)
	pr2 := cacheID(2)

	m.Update(pr1, []string{"TEST-1", "TEST-2"})
	m.Update(pr2, []string{"TEST-2"})

	assert.ElementsMatch(t, []types.PullRequestID{pr1}, m.PullRequestsFor("TEST-1"))
	assert.ElementsMatch(t, []types.PullRequestID{pr1, pr2}, m.PullRequestsFor("TEST-2"))

	// Replacing the issue set drops stale links.
	m.Update(pr1, []string{"TEST-3"})
	assert.Empty(t, m.PullRequestsFor("TEST-1"))
	assert.ElementsMatch(t, []types.PullRequestID{pr2}, m.PullRequestsFor("TEST-2"))
}

func TestPRMapRemove(t *testing.T) {
	m := NewPRMap()
	pr := cacheID(1)
	m.Update(pr, []string{"TEST-1"})
	m.Remove(pr)
	assert.Empty(t, m.PullRequestsFor("TEST-1"))
}

func TestPRMapFanOut(t *testing.T) {
	m := NewPRMap()
	pr1 := cacheID(1)
	pr2 := cacheID(2)
	m.Update(pr1, []string{"TEST-1"})
	m.Update(pr2, []string{"TEST-1"})

	feed := m.Subscribe()
	m.NotifyIssueChanged("TEST-1")

	received := map[types.PullRequestID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-feed:
			received[id] = true
		default:
			t.Fatal("expected a fan-out notification")
		}
	}
	require.Len(t, received, 2)
	assert.True(t, received[pr1])
	assert.True(t, received[pr2])
}
