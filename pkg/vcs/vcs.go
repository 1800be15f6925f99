// Package vcs provides the version control adapter: read access through
// go-git, and dry-run merge probes through the git command line, which go-git
// has no machinery for.
package vcs

import (
	"context"

	"github.com/openjdk/jmerge/internal/types"
)

// FileDiff is one file of a diff, carrying what the check pipeline needs.
type FileDiff struct {
	Path       string
	Status     DiffStatus
	Executable bool
	Symlink    bool
	Binary     bool
	AddedLines []DiffLine
}

// DiffStatus describes how a diff touches a file.
type DiffStatus int

const (
	DiffAdded DiffStatus = iota
	DiffModified
	DiffRemoved
)

// DiffLine is one added line with its position in the new file.
type DiffLine struct {
	Number int
	Text   string
}

// ProbeResult is the outcome of a dry-run merge operation. TreeOID is the
// tree the merge would produce, when it is clean.
type ProbeResult struct {
	Clean     bool
	Conflicts []string
	TreeOID   string
}

// Repository is the bot's view of a local repository snapshot.
type Repository interface {
	// Fetch updates the snapshot from its remote.
	Fetch(ctx context.Context) error

	// Resolve turns a ref name into a commit hash.
	Resolve(ctx context.Context, ref string) (string, error)

	// Commit reads commit metadata.
	Commit(ctx context.Context, hash string) (*types.CommitMetadata, error)

	// Branches lists branch heads.
	Branches(ctx context.Context) ([]types.Branch, error)

	// Tags lists tags.
	Tags(ctx context.Context) ([]types.Tag, error)

	// ReadFile reads a file's content at a ref. Returns os.ErrNotExist
	// wrapped when the path is absent.
	ReadFile(ctx context.Context, ref, path string) ([]byte, error)

	// Diff computes the changes from one commit to another.
	Diff(ctx context.Context, from, to string) ([]FileDiff, error)

	// CommonAncestor returns the merge base of two commits.
	CommonAncestor(ctx context.Context, a, b string) (string, error)

	// TreeHash returns the tree object hash of a commit.
	TreeHash(ctx context.Context, ref string) (string, error)

	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)

	// DryRunRebase probes whether source would rebase cleanly onto target.
	DryRunRebase(ctx context.Context, source, onto string) (*ProbeResult, error)

	// DryRunCherryPick probes whether a single commit applies cleanly onto
	// a target. With fuzzy set, the merge base of the commit and the target
	// stands in for the commit's parent as the probe's base.
	DryRunCherryPick(ctx context.Context, hash, onto string, fuzzy bool) (*ProbeResult, error)

	// SourceOnlyPatchEqual reports whether the pull request's own changes
	// (relative to the merge base with targetHead) are identical at two
	// head commits. This is the "only introduces upstream target changes"
	// predicate behind accept-simple-merges.
	SourceOnlyPatchEqual(ctx context.Context, hashA, hashB, targetHead string) (bool, error)

	// CreateAnnotatedTag writes an annotated tag and pushes it.
	CreateAnnotatedTag(ctx context.Context, name, hash, message string) error
}
