package testutil

import (
	"context"
	"sync"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/tracker"
)

// FakeTracker is an in-memory issue tracker.
type FakeTracker struct {
	mu     sync.Mutex
	issues map[string]*types.IssueData

	// Comments and labels written back by the bot, keyed by issue key.
	Comments map[string][]string
}

// NewFakeTracker creates an empty fake tracker.
func NewFakeTracker() *FakeTracker {
	return &FakeTracker{
		issues:   map[string]*types.IssueData{},
		Comments: map[string][]string{},
	}
}

// AddIssue registers an issue.
func (t *FakeTracker) AddIssue(issue *types.IssueData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issues[issue.Key()] = issue
}

// GetIssue implements tracker.Tracker.
func (t *FakeTracker) GetIssue(_ context.Context, project, id string) (*types.IssueData, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	issue, ok := t.issues[project+"-"+id]
	if !ok {
		return nil, &tracker.NotFoundError{Key: project + "-" + id}
	}
	return issue, nil
}

// SetTitle implements tracker.Tracker.
func (t *FakeTracker) SetTitle(_ context.Context, project, id, title string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if issue, ok := t.issues[project+"-"+id]; ok {
		issue.Title = title
	}
	return nil
}

// SetState implements tracker.Tracker.
func (t *FakeTracker) SetState(_ context.Context, project, id string, state types.IssueState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if issue, ok := t.issues[project+"-"+id]; ok {
		issue.State = state
	}
	return nil
}

// SetProperty implements tracker.Tracker.
func (t *FakeTracker) SetProperty(_ context.Context, project, id, name, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if issue, ok := t.issues[project+"-"+id]; ok {
		if issue.Properties == nil {
			issue.Properties = map[string]string{}
		}
		issue.Properties[name] = value
	}
	return nil
}

// AddLabel implements tracker.Tracker.
func (t *FakeTracker) AddLabel(_ context.Context, project, id, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if issue, ok := t.issues[project+"-"+id]; ok {
		issue.Labels = append(issue.Labels, label)
	}
	return nil
}

// RemoveLabel implements tracker.Tracker.
func (t *FakeTracker) RemoveLabel(_ context.Context, project, id, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	issue, ok := t.issues[project+"-"+id]
	if !ok {
		return nil
	}
	kept := issue.Labels[:0]
	for _, l := range issue.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	issue.Labels = kept
	return nil
}

// AddComment implements tracker.Tracker.
func (t *FakeTracker) AddComment(_ context.Context, project, id, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := project + "-" + id
	t.Comments[key] = append(t.Comments[key], body)
	return nil
}

// AddLink implements tracker.Tracker.
func (t *FakeTracker) AddLink(_ context.Context, project, id string, link types.IssueLink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if issue, ok := t.issues[project+"-"+id]; ok {
		issue.Links = append(issue.Links, link)
	}
	return nil
}

var _ tracker.Tracker = (*FakeTracker)(nil)
