package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// FakeRepo is a scriptable in-memory vcs.Repository.
type FakeRepo struct {
	mu sync.Mutex

	// Refs maps ref names (and hashes) to commit hashes.
	Refs map[string]string

	// Commits maps hashes to commit metadata.
	Commits map[string]*types.CommitMetadata

	// Files maps "ref|path" to file content.
	Files map[string][]byte

	// Diffs maps "from..to" to the diff; DefaultDiff answers anything else.
	Diffs       map[string][]vcs.FileDiff
	DefaultDiff []vcs.FileDiff

	// MergeBase answers CommonAncestor for every pair.
	MergeBase string

	// RebaseConflicts lists the conflicting paths of the dry-run rebase;
	// empty means the rebase is clean.
	RebaseConflicts []string
	RebaseTree      string

	// CherryConflicts lists the conflicting paths of dry-run cherry-picks.
	CherryConflicts []string

	// Ancestors holds "a..b" pairs where a is an ancestor of b.
	Ancestors map[string]bool

	// EqualPatches holds "a..b" pairs whose source-only patches match.
	EqualPatches map[string]bool

	// Trees maps commit hashes to tree hashes.
	Trees map[string]string

	TagList     []types.Tag
	CreatedTags []string
}

// NewFakeRepo creates an empty fake repository.
func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		Refs:         map[string]string{},
		Commits:      map[string]*types.CommitMetadata{},
		Files:        map[string][]byte{},
		Diffs:        map[string][]vcs.FileDiff{},
		MergeBase:    "base",
		Ancestors:    map[string]bool{},
		EqualPatches: map[string]bool{},
		Trees:        map[string]string{},
	}
}

// SetFile stores file content visible at a ref.
func (r *FakeRepo) SetFile(ref, path string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Files[ref+"|"+path] = content
}

// Fetch implements vcs.Repository.
func (r *FakeRepo) Fetch(context.Context) error { return nil }

// Resolve implements vcs.Repository.
func (r *FakeRepo) Resolve(_ context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hash, ok := r.Refs[ref]; ok {
		return hash, nil
	}
	if _, ok := r.Commits[ref]; ok {
		return ref, nil
	}
	return "", fmt.Errorf("unknown ref: %s", ref)
}

// Commit implements vcs.Repository.
func (r *FakeRepo) Commit(_ context.Context, hash string) (*types.CommitMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if commit, ok := r.Commits[hash]; ok {
		return commit, nil
	}
	return nil, fmt.Errorf("unknown commit: %s", hash)
}

// Branches implements vcs.Repository.
func (r *FakeRepo) Branches(context.Context) ([]types.Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Branch
	for name, hash := range r.Refs {
		out = append(out, types.Branch{Name: name, Hash: hash})
	}
	return out, nil
}

// Tags implements vcs.Repository.
func (r *FakeRepo) Tags(context.Context) ([]types.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Tag{}, r.TagList...), nil
}

// ReadFile implements vcs.Repository.
func (r *FakeRepo) ReadFile(_ context.Context, ref, path string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if content, ok := r.Files[ref+"|"+path]; ok {
		return content, nil
	}
	if hash, ok := r.Refs[ref]; ok {
		if content, ok := r.Files[hash+"|"+path]; ok {
			return content, nil
		}
	}
	return nil, fmt.Errorf("%s at %s: %w", path, ref, os.ErrNotExist)
}

// Diff implements vcs.Repository.
func (r *FakeRepo) Diff(_ context.Context, from, to string) ([]vcs.FileDiff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if diff, ok := r.Diffs[from+".."+to]; ok {
		return diff, nil
	}
	return r.DefaultDiff, nil
}

// CommonAncestor implements vcs.Repository.
func (r *FakeRepo) CommonAncestor(context.Context, string, string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.MergeBase, nil
}

// TreeHash implements vcs.Repository.
func (r *FakeRepo) TreeHash(_ context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tree, ok := r.Trees[ref]; ok {
		return tree, nil
	}
	if hash, ok := r.Refs[ref]; ok {
		if tree, ok := r.Trees[hash]; ok {
			return tree, nil
		}
	}
	return "tree-" + ref, nil
}

// IsAncestor implements vcs.Repository.
func (r *FakeRepo) IsAncestor(_ context.Context, ancestor, descendant string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Ancestors[ancestor+".."+descendant], nil
}

// DryRunRebase implements vcs.Repository.
func (r *FakeRepo) DryRunRebase(context.Context, string, string) (*vcs.ProbeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.RebaseConflicts) > 0 {
		return &vcs.ProbeResult{Clean: false, Conflicts: append([]string{}, r.RebaseConflicts...)}, nil
	}
	return &vcs.ProbeResult{Clean: true, TreeOID: r.RebaseTree}, nil
}

// DryRunCherryPick implements vcs.Repository.
func (r *FakeRepo) DryRunCherryPick(context.Context, string, string, bool) (*vcs.ProbeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.CherryConflicts) > 0 {
		return &vcs.ProbeResult{Clean: false, Conflicts: append([]string{}, r.CherryConflicts...)}, nil
	}
	return &vcs.ProbeResult{Clean: true}, nil
}

// SourceOnlyPatchEqual implements vcs.Repository.
func (r *FakeRepo) SourceOnlyPatchEqual(_ context.Context, hashA, hashB, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.EqualPatches[hashA+".."+hashB], nil
}

// CreateAnnotatedTag implements vcs.Repository.
func (r *FakeRepo) CreateAnnotatedTag(_ context.Context, name, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CreatedTags = append(r.CreatedTags, name)
	r.TagList = append(r.TagList, types.Tag{Name: name})
	return nil
}

var _ vcs.Repository = (*FakeRepo)(nil)

// FakeAccess hands out a fixed fake repository.
type FakeAccess struct {
	Repo *FakeRepo
}

// WithRepository implements bot.RepositoryAccess.
func (a *FakeAccess) WithRepository(_ context.Context, _ string, fn func(vcs.Repository) error) error {
	return fn(a.Repo)
}
