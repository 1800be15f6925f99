// Package tracker provides the issue tracker adapter: read access to issues
// and the mutators the bot uses for approval requests and backport records.
package tracker

import (
	"context"

	"github.com/openjdk/jmerge/internal/types"
)

// NotFoundError is returned when an issue does not exist.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return "issue " + e.Key + " not found"
}

// IsNotFound reports whether an error is an issue lookup miss.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// Tracker is the contract the bot consumes. Implementations must be safe for
// concurrent use.
type Tracker interface {
	// GetIssue fetches an issue by PROJECT-ID key or bare numeric id in the
	// default project.
	GetIssue(ctx context.Context, project, id string) (*types.IssueData, error)

	// SetTitle replaces an issue's title.
	SetTitle(ctx context.Context, project, id, title string) error

	// SetState moves an issue to a new lifecycle state.
	SetState(ctx context.Context, project, id string, state types.IssueState) error

	// SetProperty sets a named issue property.
	SetProperty(ctx context.Context, project, id, name, value string) error

	// AddLabel adds a label to an issue.
	AddLabel(ctx context.Context, project, id, label string) error

	// RemoveLabel removes a label from an issue.
	RemoveLabel(ctx context.Context, project, id, label string) error

	// AddComment appends a comment to an issue.
	AddComment(ctx context.Context, project, id, body string) error

	// AddLink relates the issue to another issue.
	AddLink(ctx context.Context, project, id string, link types.IssueLink) error
}
