// Package testutil provides in-memory stand-ins for the bot's collaborators:
// forge, tracker, census data and VCS repositories.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/forge"
)

// FakeForge is an in-memory forge. It records every mutation so tests can
// assert on idempotence.
type FakeForge struct {
	mu        sync.Mutex
	prs       map[types.PullRequestID]*types.PullRequest
	BotUser   string
	Mutations int
	nextID    int
	now       time.Time
}

// NewFakeForge creates an empty fake forge whose bot comments are authored
// by botUser.
func NewFakeForge(botUser string) *FakeForge {
	return &FakeForge{
		prs:     map[types.PullRequestID]*types.PullRequest{},
		BotUser: botUser,
		now:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// AddPullRequest registers a pull request snapshot.
func (f *FakeForge) AddPullRequest(pr *types.PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pr.Checks == nil {
		pr.Checks = map[string]types.Check{}
	}
	f.prs[pr.ID] = pr
}

// PR returns the live pull request state for direct inspection and test
// manipulation.
func (f *FakeForge) PR(id types.PullRequestID) *types.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prs[id]
}

// ResetMutations clears the mutation counter.
func (f *FakeForge) ResetMutations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mutations = 0
}

// MutationCount returns the number of mutations applied so far.
func (f *FakeForge) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Mutations
}

// Tick advances the fake forge's comment timestamps.
func (f *FakeForge) Tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Minute)
	return f.now
}

// AddUserComment appends a comment from a (non-bot) user, as if posted on
// the forge UI, and returns its id.
func (f *FakeForge) AddUserComment(id types.PullRequestID, author, body string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := f.prs[id]
	f.nextID++
	f.now = f.now.Add(time.Minute)
	comment := types.Comment{
		ID:        fmt.Sprintf("c%d", f.nextID),
		Author:    author,
		Body:      body,
		CreatedAt: f.now,
	}
	pr.Comments = append(pr.Comments, comment)
	return comment.ID
}

// AddReview appends a review verdict.
func (f *FakeForge) AddReview(id types.PullRequestID, review types.Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := f.prs[id]
	f.nextID++
	f.now = f.now.Add(time.Minute)
	if review.ID == "" {
		review.ID = fmt.Sprintf("r%d", f.nextID)
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = f.now
	}
	pr.Reviews = append(pr.Reviews, review)
}

// ListOpenPullRequests implements forge.Forge.
func (f *FakeForge) ListOpenPullRequests(_ context.Context, repo types.RepositoryName) ([]*types.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.PullRequest
	for _, pr := range f.prs {
		if pr.ID.Repo == repo && pr.Open {
			out = append(out, pr)
		}
	}
	return out, nil
}

// GetPullRequest implements forge.Forge.
func (f *FakeForge) GetPullRequest(_ context.Context, id types.PullRequestID) (*types.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[id]
	if !ok {
		return nil, fmt.Errorf("no such pull request: %s", id)
	}
	return pr, nil
}

// CloneURL implements forge.Forge.
func (f *FakeForge) CloneURL(repo types.RepositoryName) string {
	return "fake://" + repo.String()
}

// SetTitle implements forge.Forge.
func (f *FakeForge) SetTitle(_ context.Context, id types.PullRequestID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[id].Title = title
	f.Mutations++
	return nil
}

// SetBody implements forge.Forge.
func (f *FakeForge) SetBody(_ context.Context, id types.PullRequestID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[id].Body = body
	f.Mutations++
	return nil
}

// AddLabel implements forge.Forge.
func (f *FakeForge) AddLabel(_ context.Context, id types.PullRequestID, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := f.prs[id]
	if !pr.HasLabel(label) {
		pr.Labels = append(pr.Labels, label)
	}
	f.Mutations++
	return nil
}

// RemoveLabel implements forge.Forge.
func (f *FakeForge) RemoveLabel(_ context.Context, id types.PullRequestID, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := f.prs[id]
	kept := pr.Labels[:0]
	for _, l := range pr.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	pr.Labels = kept
	f.Mutations++
	return nil
}

// AddComment implements forge.Forge; the comment is authored by the bot user.
func (f *FakeForge) AddComment(_ context.Context, id types.PullRequestID, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := f.prs[id]
	f.nextID++
	f.now = f.now.Add(time.Second)
	comment := types.Comment{
		ID:        fmt.Sprintf("c%d", f.nextID),
		Author:    f.BotUser,
		Body:      body,
		CreatedAt: f.now,
	}
	pr.Comments = append(pr.Comments, comment)
	f.Mutations++
	return comment.ID, nil
}

// UpdateComment implements forge.Forge.
func (f *FakeForge) UpdateComment(_ context.Context, id types.PullRequestID, commentID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr := f.prs[id]
	for i := range pr.Comments {
		if pr.Comments[i].ID == commentID {
			pr.Comments[i].Body = body
			f.Mutations++
			return nil
		}
	}
	return fmt.Errorf("no such comment: %s", commentID)
}

// CreateCheck implements forge.Forge.
func (f *FakeForge) CreateCheck(_ context.Context, id types.PullRequestID, check types.Check) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[id].Checks[check.Name] = check
	f.Mutations++
	return nil
}

// UpdateCheck implements forge.Forge.
func (f *FakeForge) UpdateCheck(ctx context.Context, id types.PullRequestID, check types.Check) error {
	return f.CreateCheck(ctx, id, check)
}

var _ forge.Forge = (*FakeForge)(nil)
