package bot

import (
	"context"
	"fmt"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// vcsInputs is everything the check run derives while holding the scratch
// repository. The snapshot is released before any forge I/O happens.
type vcsInputs struct {
	resolution Resolution
	sourceRes  *Resolution
	merge      MergeStatus
	diff       []vcs.FileDiff
	subset     bool
	commands   *CommandState
	requirement jcheck.Requirement
	reviews    ReviewAssessment
	exec       ExecResult
	tagReplies []Reply
}

// Run reconciles one pull request snapshot: it gathers the VCS-derived
// inputs, projects the desired state, and applies the difference.
func (b *Bot) Run(ctx context.Context, pr *types.PullRequest) error {
	if !pr.Open {
		b.prmap.Remove(pr.ID)
		return nil
	}

	idx := buildMarkerIndex(pr.Comments, b.botUser)

	var inputs vcsInputs
	err := b.vcs.WithRepository(ctx, b.forge.CloneURL(b.repo), func(local vcs.Repository) error {
		return b.gather(ctx, local, pr, idx, &inputs)
	})
	if err != nil {
		return err
	}

	var fingerprint string
	if inputs.resolution.Kind == ResolutionOk {
		fingerprint = ComputeFingerprint(pr.HeadHash, inputs.merge.TargetHead,
			inputs.resolution.Conf.Hash(), userProse(pr.Body),
			b.eventStream(pr), inputs.commands.Generation)
		if inputs.commands.TouchRequested {
			b.cache.Expire(pr.ID)
		}
		if b.cache.Fresh(pr.ID, fingerprint) {
			b.log.Debug("%s: fingerprint unchanged, skipping", pr.ID)
			return nil
		}
		defer func() {
			if err == nil && !inputs.exec.SourcePassBroken {
				b.cache.Store(pr.ID, fingerprint)
			}
		}()
	}

	inputs.commands.Replies = append(inputs.commands.Replies, inputs.tagReplies...)
	linkage := b.link(ctx, pr, inputs)

	desired := Project(ProjectionInput{
		PR:          pr,
		RepoConfig:  b.repoConfig,
		Fingerprint: fingerprint,
		Resolution:  inputs.resolution,
		Commands:    inputs.commands,
		Linkage:     linkage,
		Reviews:     inputs.reviews,
		Requirement: inputs.requirement,
		Exec:        inputs.exec,
		Merge:       inputs.merge,
		Markers:     idx,
		BotUser:     b.botUser,
		AuthorRole:  b.census.RoleAt(pr.Author, b.clk.Now()),
		SummaryCap:  b.summaryCap,
		Now:         b.clk.Now(),
	})

	mutations, err := b.reconciler.Apply(ctx, pr, desired, idx)
	if err != nil {
		return err
	}
	if mutations > 0 {
		b.log.Info("%s: applied %d mutations", pr.ID, mutations)
	}

	return b.forwardApprovalRequest(ctx, inputs, linkage, idx)
}

// forwardApprovalRequest pushes a newly recorded /approval request to the
// primary issue: a comment with the justification and the request label for
// the fix version. The one-shot approval comment marker guards against
// repeats.
func (b *Bot) forwardApprovalRequest(ctx context.Context, inputs vcsInputs, linkage IssueLinkage, idx markerIndex) error {
	approval := b.repoConfig.Approval
	if !approval.Enabled() || inputs.commands.ApprovalRequest == "" {
		return nil
	}
	if idx.Has(Marker{Kind: MarkerKindApproval}) {
		return nil
	}
	if linkage.Primary == nil {
		return nil
	}

	issue := linkage.Primary
	if err := b.tracker.AddComment(ctx, issue.Project, issue.ID, inputs.commands.ApprovalRequest); err != nil {
		return err
	}
	version := inputs.resolution.Conf.Version
	if version == "" {
		return nil
	}
	return b.tracker.AddLabel(ctx, issue.Project, issue.ID, approval.RequestLabel(version))
}

// gather computes every VCS-derived reconciliation input while the scratch
// repository is held.
func (b *Bot) gather(ctx context.Context, local vcs.Repository, pr *types.PullRequest, idx markerIndex, out *vcsInputs) error {
	out.resolution = b.resolver.ResolveTarget(ctx, local, pr.BaseRef)
	if out.resolution.Kind != ResolutionOk {
		out.commands = &CommandState{}
		return nil
	}
	conf := out.resolution.Conf

	merge, err := b.prober.Probe(ctx, local, pr)
	if err != nil {
		return err
	}
	out.merge = merge

	base, err := local.CommonAncestor(ctx, merge.TargetHead, pr.HeadHash)
	if err != nil {
		return err
	}
	out.diff, err = local.Diff(ctx, base, pr.HeadHash)
	if err != nil {
		return err
	}
	out.subset, err = b.subsetOfTarget(ctx, local, pr, merge, out.diff)
	if err != nil {
		return err
	}

	existingTags := map[string]bool{}
	tags, err := local.Tags(ctx)
	if err == nil {
		for _, tag := range tags {
			existingTags[tag.Name] = true
		}
	}

	out.commands = Dispatch(DispatchInput{
		PR:              pr,
		Census:          b.census,
		Repo:            b.repoConfig,
		ConfRequirement: conf.Reviewers,
		TagPattern:      conf.TagPattern,
		ExistingTags:    existingTags,
		Markers:         idx,
		BotUser:         b.botUser,
	})
	out.requirement = conf.Reviewers.Max(out.commands.ReviewerOverride)
	out.requirement = b.adjustRequirement(out.requirement, pr, merge)

	out.reviews = b.evaluator.Evaluate(ctx, pr, out.requirement, func(ctx context.Context, reviewedHash, headHash string) (bool, error) {
		return local.SourceOnlyPatchEqual(ctx, reviewedHash, headHash, merge.TargetHead)
	})

	if touchesConf(out.diff) {
		sourceRes := b.resolver.ResolveSource(ctx, local, pr.HeadHash)
		out.sourceRes = &sourceRes
	}

	out.exec = b.executor.Execute(ExecInput{
		PR:             pr,
		TargetConf:     conf,
		SourceConf:     out.sourceRes,
		Diff:           out.diff,
		SubsetOfTarget: out.subset,
		Reviews: jcheck.ReviewState{
			CountsByRole: out.reviews.CountsByRole,
			SelfApproved: out.reviews.SelfApproved,
		},
		Requirement: out.requirement,
		RepoConfig:  b.repoConfig,
	})

	out.tagReplies = b.createTags(ctx, local, out.commands)
	return nil
}

// adjustRequirement applies the policy layers on top of the combined
// configuration and command vector: labels that force a second reviewer, and
// the merge-review policy for merge-style pull requests.
func (b *Bot) adjustRequirement(requirement jcheck.Requirement, pr *types.PullRequest, merge MergeStatus) jcheck.Requirement {
	for _, label := range b.repoConfig.TwoReviewersLabels {
		if pr.HasLabel(label) {
			two := jcheck.Requirement{Counts: map[census.Role]int{census.RoleReviewer: 2}}
			requirement = requirement.Max(two)
			break
		}
	}
	if merge.IsMergePR && b.repoConfig.ReviewMerge == config.ReviewMergeNever {
		requirement = jcheck.Requirement{Counts: map[census.Role]int{}, Ignore: requirement.Ignore}
	}
	return requirement
}

// subsetOfTarget reports whether merging the pull request into the target
// would change nothing: the dry-run merge result has the target's own tree.
func (b *Bot) subsetOfTarget(ctx context.Context, local vcs.Repository, pr *types.PullRequest, merge MergeStatus, diff []vcs.FileDiff) (bool, error) {
	if len(diff) == 0 || merge.Conflict {
		return false, nil
	}
	probe, err := local.DryRunRebase(ctx, pr.HeadHash, merge.TargetHead)
	if err != nil {
		return false, err
	}
	if !probe.Clean || probe.TreeOID == "" {
		return false, nil
	}
	targetTree, err := local.TreeHash(ctx, merge.TargetHead)
	if err != nil {
		return false, err
	}
	return probe.TreeOID == targetTree, nil
}

// createTags executes pending /tag commands against the local repository and
// returns their replies.
func (b *Bot) createTags(ctx context.Context, local vcs.Repository, commands *CommandState) []Reply {
	var replies []Reply
	for _, request := range commands.TagRequests {
		message := fmt.Sprintf("Added tag %s", request.Name)
		err := local.CreateAnnotatedTag(ctx, request.Name, "HEAD", message)
		body := fmt.Sprintf("@%s The tag `%s` was successfully created.", request.Source.Issuer, request.Name)
		if err != nil {
			body = fmt.Sprintf("@%s Creating the tag `%s` failed; the operation will be retried.", request.Source.Issuer, request.Name)
			b.log.Warn("tag %s failed: %v", request.Name, err)
			continue
		}
		replies = append(replies, Reply{
			Marker: commandReplyMarker(request.Source),
			Body:   body,
		})
	}
	return replies
}

// link runs the issue linker, seeding backport pull requests with the issue
// ids extracted from the original commit, and publishes the resulting issue
// set to the fan-out map.
func (b *Bot) link(ctx context.Context, pr *types.PullRequest, inputs vcsInputs) IssueLinkage {
	if inputs.resolution.Kind != ResolutionOk {
		return IssueLinkage{}
	}

	seeded := pr
	if backport := inputs.merge.Backport; backport != nil && backport.Error == "" {
		if id := backport.BackportIssueID(); id != "" && CanonicalizeTitle(pr.Title) == pr.Title {
			if backportTitlePattern.MatchString(pr.Title) {
				copied := *pr
				copied.Title = fmt.Sprintf("%s: %s", id, titleText(backport.OriginalTitle))
				seeded = &copied
			}
		}
	}

	linkage := b.linker.Link(ctx, seeded, inputs.resolution.Conf, inputs.commands)
	if seeded != pr && linkage.NewTitle == "" {
		linkage.NewTitle = seeded.Title
	}

	if pattern, err := b.repoConfig.AllowedTargetPattern(); err == nil && pattern != nil {
		if !pattern.MatchString(pr.BaseRef) {
			linkage.Blockers = append(linkage.Blockers,
				fmt.Sprintf("The branch `%s` is not allowed as a target for pull requests in this repository.", pr.BaseRef))
		}
	}

	var keys []string
	for _, li := range linkage.Issues {
		keys = append(keys, li.Issue.Key())
	}
	b.prmap.Update(pr.ID, keys)
	return linkage
}

// eventStream serializes the external parts of the snapshot not covered by
// the head hashes: reviews, other users' comments, and labels the bot does
// not manage itself. Bot-authored artifacts are excluded so a completed run
// does not invalidate its own fingerprint.
func (b *Bot) eventStream(pr *types.PullRequest) string {
	var buf []byte
	buf = append(buf, pr.Title...)
	buf = append(buf, ';')
	buf = append(buf, pr.BaseRef...)
	buf = append(buf, ';')
	if pr.Draft {
		buf = append(buf, 'd')
	}
	buf = append(buf, ';')
	for _, review := range pr.Reviews {
		buf = append(buf, review.ID...)
		buf = append(buf, review.Hash...)
		buf = append(buf, review.TargetRef...)
		buf = append(buf, byte(review.Verdict), ';')
	}
	for _, comment := range pr.Comments {
		if comment.Author == b.botUser {
			continue
		}
		buf = append(buf, comment.ID...)
		buf = append(buf, ';')
	}
	for _, label := range pr.Labels {
		if _, reserved := reservedLabels[label]; reserved || label == b.repoConfig.Approval.Label {
			continue
		}
		buf = append(buf, label...)
		buf = append(buf, ';')
	}
	return string(buf)
}

// titleText strips the issue id prefix from an original commit title.
func titleText(title string) string {
	if m := messageIssuePattern.FindStringSubmatch(title); m != nil {
		return title[len(m[1])+2:]
	}
	return title
}
