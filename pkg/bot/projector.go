package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
)

// CheckName is the single status check the bot maintains.
const CheckName = "jcheck"

// OutboundComment is one comment the reconciler must ensure exists. One-shot
// comments are never updated once posted.
type OutboundComment struct {
	Marker  Marker
	Body    string
	OneShot bool
}

// DesiredState is the projector's output: what the forge must look like.
type DesiredState struct {
	Labels   []string
	NewTitle string
	Body     string
	Check    types.Check
	Comments []OutboundComment
}

// ProjectionInput carries every reconciliation input. The projection is a
// pure function over this value; it never consults prior bot state.
type ProjectionInput struct {
	PR          *types.PullRequest
	RepoConfig  *config.RepoConfig
	Fingerprint string
	Resolution  Resolution
	Commands    *CommandState
	Linkage     IssueLinkage
	Reviews     ReviewAssessment
	Requirement jcheck.Requirement
	Exec        ExecResult
	Merge       MergeStatus
	Markers     markerIndex
	BotUser     string
	AuthorRole  census.Role
	SummaryCap  int
	Now         time.Time
}

// Project computes the desired (labels, body, check, comments) tuple.
func Project(in ProjectionInput) DesiredState {
	if in.Resolution.Kind != ResolutionOk {
		return projectConfigurationProblem(in)
	}

	desired := DesiredState{}
	errors := targetErrors(in.Exec.Findings)

	readiness := readinessMet(in)
	rfr := !in.PR.Draft && readiness && len(errors) == 0 && !in.Exec.SourcePassBroken && !in.Merge.Conflict
	ready := rfr && in.Requirement.Satisfied(in.Reviews.CountsByRole)

	actionComments, integratedNow, sponsorNow := integrationComments(in, ready)

	desired.Labels = projectLabels(in, rfr, ready, integratedNow, sponsorNow)
	desired.NewTitle = in.Linkage.NewTitle
	desired.Check = projectCheck(in, errors)
	desired.Body = RenderBody(in, rfr, ready)
	desired.Comments = projectComments(in, errors, actionComments)
	return desired
}

// projectConfigurationProblem handles missing or invalid jcheck
// configuration: a one-shot warning comment, a failing check, and no label
// changes so previously posted labels survive until the problem is fixed.
func projectConfigurationProblem(in ProjectionInput) DesiredState {
	body := fmt.Sprintf("@%s The jcheck configuration for this repository could not be used (%s): %s\n\n"+
		"No further checks will be performed on this pull request until the configuration problem is resolved.",
		in.PR.Author, in.Resolution.Source, in.Resolution.Diagnostic)

	return DesiredState{
		Labels: append([]string{}, in.PR.Labels...),
		Body:   in.PR.Body,
		Check: types.Check{
			Name:    CheckName,
			Status:  types.CheckFailure,
			Title:   "Unable to locate a valid jcheck configuration",
			Summary: in.Resolution.Diagnostic,
		},
		Comments: []OutboundComment{{
			Marker:  Marker{Kind: MarkerKindConfigError},
			Body:    body,
			OneShot: true,
		}},
	}
}

// readinessMet checks the configured readiness prerequisites: labels that
// must be present and users whose comments must have arrived.
func readinessMet(in ProjectionInput) bool {
	for _, label := range in.RepoConfig.ReadyLabels {
		if !in.PR.HasLabel(label) {
			return false
		}
	}
	for user, pattern := range in.RepoConfig.ReadyComments {
		found := false
		for _, comment := range in.PR.Comments {
			if comment.Author == user && strings.Contains(comment.Body, pattern) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// targetErrors returns the authoritative errors: direct findings and
// target-pass check errors. Source-pass findings are advisory.
func targetErrors(findings []jcheck.Finding) []jcheck.Finding {
	var out []jcheck.Finding
	for _, f := range findings {
		if f.Severity == jcheck.SeverityError && f.Origin == jcheck.OriginTargetConf {
			out = append(out, f)
		}
	}
	return out
}

func projectLabels(in ProjectionInput, rfr, ready, integrated, sponsorPending bool) []string {
	set := map[string]bool{}

	if rfr {
		set[LabelRFR] = true
	}
	if ready {
		set[LabelReady] = true
	}
	if in.Merge.Conflict && !in.PR.Draft {
		set[LabelMergeConflict] = true
	}
	if in.Merge.Backport != nil && in.Merge.Backport.Error == "" {
		set[LabelBackport] = true
		if in.Merge.Backport.Clean {
			set[LabelClean] = true
		}
	}
	if in.Linkage.JEPLabelNeeded {
		set[LabelJEP] = true
	}
	if sponsorPending && !integrated {
		set[LabelSponsor] = true
	}
	if integrated {
		set[LabelIntegrated] = true
		delete(set, LabelReady)
		delete(set, LabelRFR)
		delete(set, LabelSponsor)
	}
	approval := in.RepoConfig.Approval
	if approval.Enabled() && approval.Label != "" && in.Commands.ApprovalRequest != "" {
		if in.Commands.ApprovalVerdict == nil || !*in.Commands.ApprovalVerdict {
			set[approval.Label] = true
		}
	}

	// Externally managed labels the bot must not fight over.
	for _, label := range in.PR.Labels {
		if _, reserved := reservedLabels[label]; !reserved && label != approval.Label {
			set[label] = true
		}
	}

	labels := make([]string, 0, len(set))
	for label := range set {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

var reservedLabels = map[string]struct{}{
	LabelRFR:           {},
	LabelReady:         {},
	LabelMergeConflict: {},
	LabelClean:         {},
	LabelBackport:      {},
	LabelJEP:           {},
	LabelSponsor:       {},
	LabelIntegrated:    {},
}

func projectCheck(in ProjectionInput, errors []jcheck.Finding) types.Check {
	check := types.Check{Name: CheckName, Metadata: in.Fingerprint}

	if in.Exec.SourcePassBroken {
		check.Status = types.CheckFailure
		check.Title = SourcePassErrorTitle
		check.Summary = truncateSummary(in.Exec.SourceDiagnostic, in.SummaryCap)
		return check
	}

	if len(errors) > 0 {
		check.Status = types.CheckFailure
		check.Title = "Required"
		var lines []string
		for _, f := range errors {
			lines = append(lines, "- "+f.Message)
		}
		check.Summary = truncateSummary(strings.Join(lines, "\n"), in.SummaryCap)
		return check
	}

	check.Status = types.CheckSuccess
	check.Title = "Required"
	check.Summary = "All required checks have passed"
	return check
}

// truncateSummary caps the status check summary at the forge limit, ending
// with an ellipsis when cut.
func truncateSummary(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

// integrationComments answers pending /integrate and /sponsor commands based
// on the computed ready state, and reports whether the change is integrated
// and whether a sponsor is awaited after this run.
func integrationComments(in ProjectionInput, ready bool) ([]OutboundComment, bool, bool) {
	var comments []OutboundComment
	commands := in.Commands
	integrated := commands.Integrated
	sponsorPending := commands.SponsorPending

	gateProblem := integrationGateProblem(in, ready)

	if commands.IntegrateRequest != nil && !integrated {
		source := *commands.IntegrateRequest
		switch {
		case gateProblem != "":
			comments = append(comments, OutboundComment{
				Marker: commandReplyMarker(source),
				Body:   fmt.Sprintf("@%s %s", source.Issuer, gateProblem),
			})
		case in.AuthorRole.AtLeast(census.RoleCommitter):
			comments = append(comments, OutboundComment{
				Marker: commandReplyMarker(source),
				Body:   pushedReply(in, source.Issuer),
			})
			integrated = true
		default:
			comments = append(comments, OutboundComment{
				Marker: commandReplyMarker(source),
				Body: fmt.Sprintf("@%s Your change (at version %s) is now ready to be sponsored by a Committer.",
					source.Issuer, shortHash(in.PR.HeadHash)),
			})
			sponsorPending = true
		}
	}

	if commands.SponsorRequest != nil && !integrated {
		source := *commands.SponsorRequest
		switch {
		case !sponsorPending:
			comments = append(comments, OutboundComment{
				Marker: commandReplyMarker(source),
				Body:   fmt.Sprintf("@%s The change author must issue the `/integrate` command before the change can be sponsored.", source.Issuer),
			})
		case gateProblem != "":
			comments = append(comments, OutboundComment{
				Marker: commandReplyMarker(source),
				Body:   fmt.Sprintf("@%s %s", source.Issuer, gateProblem),
			})
		default:
			comments = append(comments, OutboundComment{
				Marker: commandReplyMarker(source),
				Body:   pushedReply(in, source.Issuer),
			})
			integrated = true
		}
	}

	return comments, integrated, sponsorPending
}

// integrationGateProblem describes why integration cannot proceed, or "".
func integrationGateProblem(in ProjectionInput, ready bool) string {
	switch {
	case in.Merge.Conflict:
		return "This pull request cannot be integrated while it has merge conflicts with the target branch."
	case !ready:
		return "This pull request has not yet been marked as ready for integration."
	case len(in.Linkage.Blockers) > 0:
		return "This pull request cannot be integrated yet: " + in.Linkage.Blockers[0]
	case approvalMissing(in):
		return "This pull request has not yet been approved by the maintainers of this repository."
	}
	return ""
}

func approvalMissing(in ProjectionInput) bool {
	approval := in.RepoConfig.Approval
	if !approval.Enabled() {
		return false
	}
	return in.Commands.ApprovalVerdict == nil || !*in.Commands.ApprovalVerdict
}

// pushedReply renders the integration reply including the commit message
// preview with summary, co-authors and the reviewer credit line. Reviewers
// whose verdicts went stale still get credit.
func pushedReply(in ProjectionInput, issuer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s %s %s.\n\n", issuer, pushedReplyPrefix, shortHash(in.PR.HeadHash))
	b.WriteString("The commit message for this change will be:\n\n```\n")
	b.WriteString(commitTitle(in))
	b.WriteString("\n")
	if in.Commands.Summary != "" {
		b.WriteString("\n" + in.Commands.Summary + "\n")
	}
	if len(in.Commands.Contributors) > 0 {
		b.WriteString("\n")
		for _, c := range in.Commands.Contributors {
			fmt.Fprintf(&b, "Co-authored-by: %s\n", c)
		}
	}
	if credited := in.Reviews.CreditedReviewers(); len(credited) > 0 {
		fmt.Fprintf(&b, "\nReviewed-by: %s\n", strings.Join(credited, ", "))
	}
	b.WriteString("```")
	return b.String()
}

func commitTitle(in ProjectionInput) string {
	if in.Linkage.NewTitle != "" {
		return in.Linkage.NewTitle
	}
	return CanonicalizeTitle(in.PR.Title)
}

// projectComments assembles the full outbound comment list: command replies,
// integration replies, and the one-shot situation comments.
func projectComments(in ProjectionInput, errors []jcheck.Finding, actionComments []OutboundComment) []OutboundComment {
	var comments []OutboundComment

	for _, reply := range in.Commands.Replies {
		comments = append(comments, OutboundComment{Marker: reply.Marker, Body: reply.Body})
	}
	comments = append(comments, actionComments...)

	if in.Merge.Conflict && !in.PR.Draft {
		comments = append(comments, OutboundComment{
			Marker: Marker{Kind: MarkerKindMergeConflict},
			Body: fmt.Sprintf("@%s This pull request can no longer be integrated into the target branch cleanly. "+
				"To resolve these merge conflicts, merge `%s` into your branch and resolve the conflicting files, "+
				"then push the result to this pull request.", in.PR.Author, in.PR.BaseRef),
			OneShot: true,
		})
	}

	// Once a merge conflict has been reported, announce recovery exactly
	// once when the automated checks pass again.
	if !in.Merge.Conflict && len(errors) == 0 && !in.Exec.SourcePassBroken &&
		in.Markers.Has(Marker{Kind: MarkerKindMergeConflict}) {
		comments = append(comments, OutboundComment{
			Marker: Marker{Kind: MarkerKindChecksPass},
			Body: fmt.Sprintf("@%s This change now passes all *automated* pre-integration checks.",
				in.PR.Author),
			OneShot: true,
		})
	}

	if in.Merge.MergeRefusal != "" {
		comments = append(comments, OutboundComment{
			Marker:  Marker{Kind: MarkerKindCommandReply, Key: "merge-refusal"},
			Body:    fmt.Sprintf("@%s %s", in.PR.Author, in.Merge.MergeRefusal),
			OneShot: true,
		})
	}

	if backport := in.Merge.Backport; backport != nil {
		if backport.Error != "" {
			comments = append(comments, OutboundComment{
				Marker:  Marker{Kind: MarkerKindBackportError},
				Body:    fmt.Sprintf("@%s %s", in.PR.Author, backport.Error),
				OneShot: true,
			})
		} else {
			kind := "could **not** be applied cleanly; additional manual resolution was required"
			if backport.Clean {
				kind = "applies cleanly to the target branch"
			}
			comments = append(comments, OutboundComment{
				Marker: Marker{Kind: MarkerKindBackport, Key: shortHash(backport.OriginalHash)},
				Body: fmt.Sprintf("This backport pull request has now been updated with the issue from the original commit `%s`, which %s.",
					shortHash(backport.OriginalHash), kind),
				OneShot: true,
			})
		}
	}

	if forcePushAfterReview(in) {
		comments = append(comments, OutboundComment{
			Marker: Marker{Kind: MarkerKindForcePush},
			Body: fmt.Sprintf("@%s Please do not rewrite the history of this pull request while it is under review; "+
				"push additional commits instead, and the bot will squash them on integration.", in.PR.Author),
			OneShot: true,
		})
	}

	if in.Commands.ApprovalRequest != "" && in.RepoConfig.Approval.Enabled() {
		comments = append(comments, OutboundComment{
			Marker: Marker{Kind: MarkerKindApproval},
			Body: fmt.Sprintf("@%s The maintainer approval request has been forwarded to the primary issue:\n\n> %s",
				in.PR.Author, in.Commands.ApprovalRequest),
			OneShot: true,
		})
	}

	if window := in.RepoConfig.KeepAliveWindow; window > 0 && !in.Commands.TouchRequested && !in.Commands.Integrated {
		if !in.PR.UpdatedAt.IsZero() && in.Now.Sub(in.PR.UpdatedAt) > window {
			comments = append(comments, OutboundComment{
				Marker: Marker{Kind: MarkerKindExpiration},
				Body: fmt.Sprintf("@%s This pull request has been inactive for a long period of time. "+
					"Use `/keepalive` or `/touch` to keep it from being closed, or `/open` to resume work on it.", in.PR.Author),
				OneShot: true,
			})
		}
	}

	if in.PR.HeadHash != "" && !in.PR.Draft {
		comments = append(comments, OutboundComment{
			Marker: Marker{Kind: MarkerKindWebrev, Key: shortHash(in.PR.HeadHash)},
			Body: fmt.Sprintf("Webrevs for version %s:\n\n - full: %s/files\n - incremental: %s/files/%s",
				shortHash(in.PR.HeadHash), prURL(in.PR), prURL(in.PR), shortHash(in.PR.HeadHash)),
			OneShot: true,
		})
	}

	return comments
}

func forcePushAfterReview(in ProjectionInput) bool {
	if in.PR.LastForcePush.IsZero() {
		return false
	}
	for _, review := range in.PR.Reviews {
		if review.CreatedAt.Before(in.PR.LastForcePush) {
			return true
		}
	}
	return false
}

func prURL(pr *types.PullRequest) string {
	return fmt.Sprintf("https://github.com/%s/pull/%d", pr.ID.Repo, pr.ID.Number)
}
