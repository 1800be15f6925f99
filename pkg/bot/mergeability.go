package bot

import (
	"context"
	"fmt"
	"regexp"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// BackportInfo classifies a backport pull request.
type BackportInfo struct {
	OriginalHash   string
	OriginalTitle  string
	OriginalIssues []string
	Clean          bool
	Error          string
}

// MergeStatus is the mergeability prober's contribution to the projection.
type MergeStatus struct {
	TargetHead   string
	Conflict     bool
	Conflicts    []string
	IsMergePR    bool
	MergeRefusal string
	Backport     *BackportInfo
}

var (
	mergeTitlePattern    = regexp.MustCompile(`^Merge ((\S+):)?(\S+)$`)
	backportTitlePattern = regexp.MustCompile(`^Backport\s+([0-9a-fA-F]{8,40})$`)
	messageIssuePattern  = regexp.MustCompile(`^([0-9]+): \S.*$`)
)

// MergeabilityProber probes whether a pull request can integrate cleanly and
// classifies merge-style and backport pull requests.
type MergeabilityProber struct {
	repo *config.RepoConfig
}

// NewMergeabilityProber creates a prober.
func NewMergeabilityProber(repo *config.RepoConfig) *MergeabilityProber {
	return &MergeabilityProber{repo: repo}
}

// Probe runs the dry-run merge checks against a local repository snapshot.
func (p *MergeabilityProber) Probe(ctx context.Context, local vcs.Repository, pr *types.PullRequest) (MergeStatus, error) {
	status := MergeStatus{}

	targetHead, err := local.Resolve(ctx, pr.BaseRef)
	if err != nil {
		return status, err
	}
	status.TargetHead = targetHead

	probe, err := local.DryRunRebase(ctx, pr.HeadHash, targetHead)
	if err != nil {
		return status, err
	}
	if !probe.Clean {
		status.Conflict = true
		status.Conflicts = probe.Conflicts
	}

	if m := mergeTitlePattern.FindStringSubmatch(pr.Title); m != nil {
		status.IsMergePR = true
		p.assessMerge(ctx, local, pr, &status)
	}

	if m := backportTitlePattern.FindStringSubmatch(pr.Title); m != nil && p.repo.EnableBackport {
		status.Backport = p.assessBackport(ctx, local, pr, m[1], targetHead)
	}

	return status, nil
}

// assessMerge verifies that a merge-style pull request is permitted and
// actually contains a merge commit.
func (p *MergeabilityProber) assessMerge(ctx context.Context, local vcs.Repository, pr *types.PullRequest, status *MergeStatus) {
	if !p.repo.EnableMerge {
		status.MergeRefusal = "This repository does not allow merge-style pull requests."
		return
	}
	head, err := local.Commit(ctx, pr.HeadHash)
	if err != nil {
		status.MergeRefusal = "Could not inspect the head commit of this merge-style pull request."
		return
	}
	if len(head.Parents) < 2 {
		status.MergeRefusal = "A merge-style pull request must contain a merge commit at its head."
	}
}

// assessBackport locates the referenced commit and classifies the backport
// as clean or dirty through a dry-run cherry-pick.
func (p *MergeabilityProber) assessBackport(ctx context.Context, local vcs.Repository, pr *types.PullRequest, ref, targetHead string) *BackportInfo {
	info := &BackportInfo{}

	hash, err := local.Resolve(ctx, ref)
	if err != nil {
		info.Error = fmt.Sprintf("Could not find the commit `%s` in this repository or any of its related repositories.", ref)
		return info
	}
	info.OriginalHash = hash

	commit, err := local.Commit(ctx, hash)
	if err != nil {
		info.Error = fmt.Sprintf("Could not read the commit `%s`.", ref)
		return info
	}
	if len(commit.Message) > 0 {
		info.OriginalTitle = commit.Message[0]
		for _, line := range commit.Message {
			if m := messageIssuePattern.FindStringSubmatch(line); m != nil {
				info.OriginalIssues = append(info.OriginalIssues, m[1])
			}
		}
	}

	ancestor, err := local.IsAncestor(ctx, hash, pr.HeadHash)
	if err == nil && ancestor {
		info.Error = fmt.Sprintf("The commit `%s` is already present in this pull request's history and cannot be backported.", shortHash(hash))
		return info
	}

	probe, err := local.DryRunCherryPick(ctx, hash, targetHead, true)
	if err != nil {
		info.Error = fmt.Sprintf("Could not apply the commit `%s` to the target branch.", shortHash(hash))
		return info
	}
	info.Clean = probe.Clean
	return info
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// BackportIssueID returns the primary issue id the backport's original
// commit referenced, if any.
func (b *BackportInfo) BackportIssueID() string {
	if b == nil || len(b.OriginalIssues) == 0 {
		return ""
	}
	return b.OriginalIssues[0]
}
