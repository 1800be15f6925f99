package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/errors"
)

// LocalRepository is a Repository backed by a local clone. Reads go through
// go-git; merge probes shell out to git.
type LocalRepository struct {
	path string
	repo *gogit.Repository
	cli  cliRunner
}

// Open opens an existing local clone.
func Open(path string) (*LocalRepository, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, errors.VCSError("open", err)
	}
	return &LocalRepository{path: path, repo: repo, cli: cliRunner{dir: path}}, nil
}

// Clone clones a remote repository into path and opens it.
func Clone(ctx context.Context, url, path string) (*LocalRepository, error) {
	repo, err := gogit.PlainCloneContext(ctx, path, false, &gogit.CloneOptions{
		URL:  url,
		Tags: gogit.AllTags,
	})
	if err != nil {
		return nil, errors.VCSError("clone", err)
	}
	return &LocalRepository{path: path, repo: repo, cli: cliRunner{dir: path}}, nil
}

// Path returns the working directory of the clone.
func (r *LocalRepository) Path() string {
	return r.path
}

// Fetch updates the snapshot from its remote.
func (r *LocalRepository) Fetch(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		Force:      true,
		Tags:       gogit.AllTags,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return errors.VCSError("fetch", err)
	}
	return nil
}

// Resolve turns a ref name into a commit hash.
func (r *LocalRepository) Resolve(_ context.Context, ref string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		// A bare branch name usually lives under the origin remote in a
		// fetched clone.
		hash, err = r.repo.ResolveRevision(plumbing.Revision("origin/" + ref))
	}
	if err != nil {
		return "", errors.VCSError("resolve "+ref, err)
	}
	return hash.String(), nil
}

// Commit reads commit metadata.
func (r *LocalRepository) Commit(_ context.Context, hash string) (*types.CommitMetadata, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, errors.VCSError("commit "+hash, err)
	}
	parents := make([]string, 0, commit.NumParents())
	for _, p := range commit.ParentHashes {
		parents = append(parents, p.String())
	}
	return &types.CommitMetadata{
		Hash:      commit.Hash.String(),
		Author:    commit.Author.Name,
		Committer: commit.Committer.Name,
		Message:   strings.Split(strings.TrimRight(commit.Message, "\n"), "\n"),
		Parents:   parents,
		When:      commit.Committer.When,
	}, nil
}

// Branches lists branch heads, both local and those fetched from origin.
func (r *LocalRepository) Branches(_ context.Context) ([]types.Branch, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, errors.VCSError("branches", err)
	}
	var branches []types.Branch
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			branches = append(branches, types.Branch{Name: name.Short(), Hash: ref.Hash().String()})
		case name.IsRemote():
			short := strings.TrimPrefix(name.Short(), "origin/")
			if short != "HEAD" {
				branches = append(branches, types.Branch{Name: short, Hash: ref.Hash().String()})
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.VCSError("branches", err)
	}
	return branches, nil
}

// Tags lists tags.
func (r *LocalRepository) Tags(_ context.Context) ([]types.Tag, error) {
	refs, err := r.repo.Tags()
	if err != nil {
		return nil, errors.VCSError("tags", err)
	}
	var tags []types.Tag
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		hash := ref.Hash()
		if tagObj, terr := r.repo.TagObject(hash); terr == nil {
			hash = tagObj.Target
		}
		tags = append(tags, types.Tag{Name: ref.Name().Short(), Hash: hash.String()})
		return nil
	})
	if err != nil {
		return nil, errors.VCSError("tags", err)
	}
	return tags, nil
}

// ReadFile reads a file's content at a ref.
func (r *LocalRepository) ReadFile(ctx context.Context, ref, path string) ([]byte, error) {
	hash, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, errors.VCSError("read "+path, err)
	}
	file, err := commit.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, fmt.Errorf("%s at %s: %w", path, ref, os.ErrNotExist)
		}
		return nil, errors.VCSError("read "+path, err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, errors.VCSError("read "+path, err)
	}
	return []byte(content), nil
}

// Diff computes the changes from one commit to another.
func (r *LocalRepository) Diff(ctx context.Context, from, to string) ([]FileDiff, error) {
	raw, err := r.cli.run(ctx, "diff", "--raw", "--no-renames", from, to)
	if err != nil {
		return nil, errors.VCSError("diff", err)
	}
	files, order, err := parseRawDiff(raw)
	if err != nil {
		return nil, errors.VCSError("diff", err)
	}

	patch, err := r.cli.run(ctx, "diff", "--unified=0", "--no-renames", from, to)
	if err != nil {
		return nil, errors.VCSError("diff", err)
	}
	if err := parseUnifiedDiff(patch, files); err != nil {
		return nil, errors.VCSError("diff", err)
	}

	out := make([]FileDiff, 0, len(order))
	for _, path := range order {
		out = append(out, *files[path])
	}
	return out, nil
}

// parseRawDiff parses `git diff --raw` output into per-file entries.
func parseRawDiff(raw string) (map[string]*FileDiff, []string, error) {
	files := map[string]*FileDiff{}
	var order []string
	if strings.TrimSpace(raw) == "" {
		return files, order, nil
	}
	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, ":") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("malformed raw diff line: %q", line)
		}
		meta := strings.Fields(parts[0])
		if len(meta) < 5 {
			return nil, nil, fmt.Errorf("malformed raw diff line: %q", line)
		}
		newMode := meta[1]
		statusCode := meta[4]

		fd := &FileDiff{Path: parts[1]}
		switch statusCode[0] {
		case 'A':
			fd.Status = DiffAdded
		case 'D':
			fd.Status = DiffRemoved
		default:
			fd.Status = DiffModified
		}
		fd.Executable = newMode == "100755"
		fd.Symlink = newMode == "120000"

		files[fd.Path] = fd
		order = append(order, fd.Path)
	}
	return files, order, nil
}

// parseUnifiedDiff fills in added lines and binary flags from -U0 output.
func parseUnifiedDiff(patch string, files map[string]*FileDiff) error {
	var current *FileDiff
	lineNo := 0
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			if path == "/dev/null" {
				current = nil
				continue
			}
			current = files[path]
		case strings.HasPrefix(line, "Binary files "):
			for path, fd := range files {
				if strings.Contains(line, path) {
					fd.Binary = true
				}
			}
		case strings.HasPrefix(line, "@@"):
			// @@ -a,b +c,d @@
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			target := strings.TrimPrefix(fields[2], "+")
			if idx := strings.Index(target, ","); idx >= 0 {
				target = target[:idx]
			}
			n, err := strconv.Atoi(target)
			if err != nil {
				return fmt.Errorf("malformed hunk header: %q", line)
			}
			lineNo = n
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			if current != nil {
				current.AddedLines = append(current.AddedLines, DiffLine{Number: lineNo, Text: line[1:]})
			}
			lineNo++
		}
	}
	return nil
}

// TreeHash returns the tree object hash of a commit.
func (r *LocalRepository) TreeHash(ctx context.Context, ref string) (string, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(ref))
	if err != nil {
		hash, rerr := r.Resolve(ctx, ref)
		if rerr != nil {
			return "", rerr
		}
		commit, err = r.repo.CommitObject(plumbing.NewHash(hash))
		if err != nil {
			return "", errors.VCSError("tree "+ref, err)
		}
	}
	return commit.TreeHash.String(), nil
}

// CommonAncestor returns the merge base of two commits.
func (r *LocalRepository) CommonAncestor(ctx context.Context, a, b string) (string, error) {
	out, err := r.cli.run(ctx, "merge-base", a, b)
	if err != nil {
		return "", errors.VCSError("merge-base", err)
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *LocalRepository) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, code, err := r.cli.runWithCode(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		return false, errors.VCSError("is-ancestor", err)
	}
	return code == 0, nil
}

// DryRunRebase probes whether source would rebase cleanly onto target.
func (r *LocalRepository) DryRunRebase(ctx context.Context, source, onto string) (*ProbeResult, error) {
	base, err := r.CommonAncestor(ctx, source, onto)
	if err != nil {
		return nil, err
	}
	result, err := r.cli.mergeTree(ctx, base, onto, source)
	if err != nil {
		return nil, errors.VCSError("rebase probe", err)
	}
	return result, nil
}

// DryRunCherryPick probes whether a single commit applies cleanly onto a
// target. With fuzzy enabled the probe uses the merge base instead of the
// commit's first parent, which tolerates context drift between the branches.
func (r *LocalRepository) DryRunCherryPick(ctx context.Context, hash, onto string, fuzzy bool) (*ProbeResult, error) {
	base := hash + "^"
	if fuzzy {
		mergeBase, err := r.CommonAncestor(ctx, hash, onto)
		if err != nil {
			return nil, err
		}
		base = mergeBase
	}
	result, err := r.cli.mergeTree(ctx, base, onto, hash)
	if err != nil {
		return nil, errors.VCSError("cherry-pick probe", err)
	}
	return result, nil
}

// SourceOnlyPatchEqual compares the stable patch ids of the pull request's
// own changes at two head commits, each taken against its merge base with
// the target head.
func (r *LocalRepository) SourceOnlyPatchEqual(ctx context.Context, hashA, hashB, targetHead string) (bool, error) {
	idA, err := r.patchID(ctx, hashA, targetHead)
	if err != nil {
		return false, err
	}
	idB, err := r.patchID(ctx, hashB, targetHead)
	if err != nil {
		return false, err
	}
	return idA == idB && idA != "", nil
}

func (r *LocalRepository) patchID(ctx context.Context, head, targetHead string) (string, error) {
	base, err := r.CommonAncestor(ctx, head, targetHead)
	if err != nil {
		return "", err
	}
	diff, err := r.cli.run(ctx, "diff", "--no-renames", base, head)
	if err != nil {
		return "", errors.VCSError("patch-id", err)
	}
	if strings.TrimSpace(diff) == "" {
		return "", nil
	}

	cmd := exec.CommandContext(ctx, "git", "patch-id", "--stable")
	cmd.Dir = r.path
	cmd.Stdin = strings.NewReader(diff)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", errors.VCSError("patch-id", err)
	}
	fields := strings.Fields(stdout.String())
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// CreateAnnotatedTag writes an annotated tag and pushes it to origin.
func (r *LocalRepository) CreateAnnotatedTag(ctx context.Context, name, hash, message string) error {
	if _, err := r.cli.run(ctx, "tag", "-a", name, hash, "-m", message); err != nil {
		return errors.VCSError("tag", err)
	}
	if _, err := r.cli.run(ctx, "push", "origin", name); err != nil {
		return errors.VCSError("push tag", err)
	}
	return nil
}
