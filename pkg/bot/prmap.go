package bot

import (
	"sync"

	"github.com/openjdk/jmerge/internal/types"
)

// PRMap is the many-to-many issue-to-pull-request map used to fan out
// rechecks when a linked issue changes on the tracker. All writes go through
// Update and Remove; readers subscribe to a change feed with a defined
// serialization point.
type PRMap struct {
	mu          sync.RWMutex
	issueToPRs  map[string]map[types.PullRequestID]struct{}
	prToIssues  map[types.PullRequestID]map[string]struct{}
	subscribers []chan types.PullRequestID
}

// NewPRMap creates an empty map.
func NewPRMap() *PRMap {
	return &PRMap{
		issueToPRs: map[string]map[types.PullRequestID]struct{}{},
		prToIssues: map[types.PullRequestID]map[string]struct{}{},
	}
}

// Update replaces the issue set linked to a pull request.
func (m *PRMap) Update(pr types.PullRequestID, issueKeys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.prToIssues[pr] {
		delete(m.issueToPRs[key], pr)
		if len(m.issueToPRs[key]) == 0 {
			delete(m.issueToPRs, key)
		}
	}

	issues := map[string]struct{}{}
	for _, key := range issueKeys {
		issues[key] = struct{}{}
		if m.issueToPRs[key] == nil {
			m.issueToPRs[key] = map[types.PullRequestID]struct{}{}
		}
		m.issueToPRs[key][pr] = struct{}{}
	}
	m.prToIssues[pr] = issues
}

// Remove drops a pull request from the map entirely.
func (m *PRMap) Remove(pr types.PullRequestID) {
	m.Update(pr, nil)
	m.mu.Lock()
	delete(m.prToIssues, pr)
	m.mu.Unlock()
}

// PullRequestsFor returns the pull requests linked to an issue key.
func (m *PRMap) PullRequestsFor(issueKey string) []types.PullRequestID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.PullRequestID
	for pr := range m.issueToPRs[issueKey] {
		out = append(out, pr)
	}
	return out
}

// Subscribe returns a channel receiving the pull requests affected by issue
// changes published through NotifyIssueChanged.
func (m *PRMap) Subscribe() <-chan types.PullRequestID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan types.PullRequestID, 64)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// NotifyIssueChanged fans an issue change out to every subscriber, once per
// linked pull request. Slow subscribers drop notifications rather than
// blocking the writer.
func (m *PRMap) NotifyIssueChanged(issueKey string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for pr := range m.issueToPRs[issueKey] {
		for _, sub := range m.subscribers {
			select {
			case sub <- pr:
			default:
			}
		}
	}
}
