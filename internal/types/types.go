// Package types provides core data structures shared across the jmerge bot:
// forge-side snapshots of pull requests, reviews, comments and status checks,
// and tracker-side issue data.
package types

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryName identifies a repository on the forge as "owner/name".
type RepositoryName struct {
	Owner string
	Name  string
}

// String returns the owner/name form.
func (r RepositoryName) String() string {
	return r.Owner + "/" + r.Name
}

// PullRequestID identifies a pull request across the whole process.
type PullRequestID struct {
	Repo   RepositoryName
	Number int
}

// String returns the owner/name#number form.
func (id PullRequestID) String() string {
	return fmt.Sprintf("%s#%d", id.Repo, id.Number)
}

// PullRequest is a read-only snapshot of a pull request as observed on the
// forge. The bot never owns it; all writes go back through the reconciler.
type PullRequest struct {
	ID            PullRequestID
	Title         string
	Body          string
	HeadHash      string
	BaseRef       string
	SourceRef     string
	Draft         bool
	Open          bool
	Author        string
	Labels        []string
	Comments      []Comment
	Reviews       []Review
	Checks        map[string]Check
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastForcePush time.Time
}

// HasLabel reports whether the snapshot carries the given label.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Comment is a pull request conversation comment.
type Comment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewVerdict is the outcome a reviewer attached to a review.
type ReviewVerdict int

const (
	VerdictComment ReviewVerdict = iota
	VerdictApproved
	VerdictDisapproved
)

// String returns the lowercase verdict name.
func (v ReviewVerdict) String() string {
	switch v {
	case VerdictApproved:
		return "approved"
	case VerdictDisapproved:
		return "disapproved"
	default:
		return "comment"
	}
}

// Review is a forge review event: who reviewed which head against which base.
type Review struct {
	ID        string
	Author    string
	Verdict   ReviewVerdict
	Hash      string
	TargetRef string
	Body      string
	CreatedAt time.Time
}

// CheckStatus is the lifecycle state of a status check.
type CheckStatus int

const (
	CheckInProgress CheckStatus = iota
	CheckSuccess
	CheckFailure
	CheckCancelled
)

// String returns the forge-facing status name.
func (s CheckStatus) String() string {
	switch s {
	case CheckSuccess:
		return "SUCCESS"
	case CheckFailure:
		return "FAILURE"
	case CheckCancelled:
		return "CANCELLED"
	default:
		return "IN_PROGRESS"
	}
}

// Check is a status check attached to a pull request head.
type Check struct {
	Name        string
	Status      CheckStatus
	Title       string
	Summary     string
	Metadata    string
	StartedAt   time.Time
	CompletedAt time.Time
}

// IssueState is the tracker-side lifecycle state of an issue.
type IssueState int

const (
	IssueOpen IssueState = iota
	IssueResolved
	IssueClosed
)

// IssueData is a snapshot of a tracker issue.
type IssueData struct {
	Project     string
	ID          string
	Title       string
	State       IssueState
	Type        string
	Priority    string
	Status      string
	Resolution  string
	FixVersions []string
	Labels      []string
	Links       []IssueLink
	Properties  map[string]string
}

// Key returns the PROJECT-ID issue key.
func (i *IssueData) Key() string {
	return i.Project + "-" + i.ID
}

// IsCSR reports whether the issue is a compatibility and specification request.
func (i *IssueData) IsCSR() bool {
	return strings.EqualFold(i.Type, "CSR")
}

// IsJEP reports whether the issue is an enhancement proposal.
func (i *IssueData) IsJEP() bool {
	return strings.EqualFold(i.Type, "JEP")
}

// IssueLink relates two tracker issues ("csr for", "backported by", ...).
type IssueLink struct {
	Relationship string
	Project      string
	ID           string
}

// CommitMetadata describes a VCS commit as far as the bot needs it.
type CommitMetadata struct {
	Hash      string
	Author    string
	Committer string
	Message   []string
	Parents   []string
	When      time.Time
}

// Branch is a named VCS branch head.
type Branch struct {
	Name string
	Hash string
}

// Tag is a named VCS tag.
type Tag struct {
	Name string
	Hash string
}
