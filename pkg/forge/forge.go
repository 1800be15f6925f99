// Package forge provides the forge adapter: read access to pull request
// state and the mutators the reconciler is allowed to use.
package forge

import (
	"context"

	"github.com/openjdk/jmerge/internal/types"
)

// Forge is the contract the bot consumes. Implementations must be safe for
// concurrent use by multiple work items.
type Forge interface {
	// ListOpenPullRequests returns snapshots of all open pull requests.
	ListOpenPullRequests(ctx context.Context, repo types.RepositoryName) ([]*types.PullRequest, error)

	// GetPullRequest returns a fresh snapshot of one pull request.
	GetPullRequest(ctx context.Context, id types.PullRequestID) (*types.PullRequest, error)

	// CloneURL returns the URL the VCS adapter clones the repository from.
	CloneURL(repo types.RepositoryName) string

	// SetTitle replaces the pull request title.
	SetTitle(ctx context.Context, id types.PullRequestID, title string) error

	// SetBody replaces the pull request body.
	SetBody(ctx context.Context, id types.PullRequestID, body string) error

	// AddLabel adds a label to the pull request.
	AddLabel(ctx context.Context, id types.PullRequestID, label string) error

	// RemoveLabel removes a label from the pull request.
	RemoveLabel(ctx context.Context, id types.PullRequestID, label string) error

	// AddComment appends a conversation comment and returns its id.
	AddComment(ctx context.Context, id types.PullRequestID, body string) (string, error)

	// UpdateComment replaces an existing comment's body.
	UpdateComment(ctx context.Context, id types.PullRequestID, commentID, body string) error

	// CreateCheck publishes a new status check run for the head commit.
	CreateCheck(ctx context.Context, id types.PullRequestID, check types.Check) error

	// UpdateCheck updates the status check run for the head commit.
	UpdateCheck(ctx context.Context, id types.PullRequestID, check types.Check) error
}
