package bot

import (
	"fmt"
	"strings"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/jcheck"
)

// RenderBody builds the canonical pull request body: the author's prose,
// then the auto marker, then the generated sections.
func RenderBody(in ProjectionInput, rfr, ready bool) string {
	var b strings.Builder

	prose := userProse(in.PR.Body)
	if prose != "" {
		b.WriteString(prose)
		b.WriteString("\n\n")
	}
	b.WriteString(BodyMarker)
	b.WriteString("\n")

	renderProgress(&b, in, ready)
	renderIssues(&b, in)
	renderReviewers(&b, in)
	renderReviewing(&b, in)
	renderList(&b, "Integration blocker", in.Linkage.Blockers)
	renderWarnings(&b, in)
	renderErrors(&b, in)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderProgress(b *strings.Builder, in ProjectionInput, ready bool) {
	type item struct {
		done bool
		text string
	}
	var items []item

	if in.Requirement.Total() > 0 {
		items = append(items, item{
			done: in.Requirement.Satisfied(in.Reviews.CountsByRole),
			text: fmt.Sprintf("Change must be properly reviewed (%s)", in.Requirement.Describe()),
		})
	}
	if _, enabled := in.Resolution.Conf.CheckEnabled("whitespace"); enabled {
		items = append(items, item{
			done: !hasErrorFrom(in.Exec.Findings, "whitespace"),
			text: "Change must not contain extraneous whitespace",
		})
	}
	if _, enabled := in.Resolution.Conf.CheckEnabled("issues"); enabled {
		items = append(items, item{
			done: in.Linkage.Primary != nil,
			text: "Commit message must refer to an issue",
		})
	}
	if hasKind(in.Linkage, "CSR") || (in.Commands.CSRRequested && !in.Commands.CSRUnneeded) {
		items = append(items, item{
			done: !csrBlocked(in.Linkage),
			text: "Change requires CSR request to be approved",
		})
	}
	if in.RepoConfig.Approval.Enabled() && in.Commands.ApprovalRequest != "" {
		items = append(items, item{
			done: in.Commands.ApprovalVerdict != nil && *in.Commands.ApprovalVerdict,
			text: "Change requires maintainer approval",
		})
	}
	if len(items) == 0 {
		return
	}

	b.WriteString("\n### Progress\n")
	for _, it := range items {
		mark := " "
		if it.done {
			mark = "x"
		}
		fmt.Fprintf(b, "- [%s] %s\n", mark, it.text)
	}
}

func hasErrorFrom(findings []jcheck.Finding, check string) bool {
	for _, f := range findings {
		if f.Check == check && f.Severity == jcheck.SeverityError && f.Origin == jcheck.OriginTargetConf {
			return true
		}
	}
	return false
}

func hasKind(linkage IssueLinkage, kind string) bool {
	for _, li := range linkage.Issues {
		if li.Kind == kind {
			return true
		}
	}
	return false
}

func csrBlocked(linkage IssueLinkage) bool {
	for _, blocker := range linkage.Blockers {
		if strings.Contains(blocker, "CSR") {
			return true
		}
	}
	return false
}

func renderIssues(b *strings.Builder, in ProjectionInput) {
	if len(in.Linkage.Issues) == 0 {
		return
	}
	header := "Issue"
	if len(in.Linkage.Issues) > 1 {
		header = "Issues"
	}
	fmt.Fprintf(b, "\n### %s\n", header)
	for _, li := range in.Linkage.Issues {
		issue := li.Issue
		annotation := ""
		if li.Kind != "" {
			annotation = fmt.Sprintf(" (**%s**)", li.Kind)
		}
		fmt.Fprintf(b, " * [%s](https://bugs.openjdk.org/browse/%s): %s%s\n",
			issue.Key(), issue.Key(), issue.Title, annotation)
	}
}

func renderReviewers(b *strings.Builder, in ProjectionInput) {
	var lines []string
	for _, assessed := range in.Reviews.Reviews {
		if assessed.Review.Verdict != types.VerdictApproved {
			continue
		}
		suffix := ""
		switch {
		case assessed.SimpleMergeOnly:
			suffix = fmt.Sprintf(" - Review applies to %s", shortHash(assessed.Review.Hash))
		case !assessed.Active:
			suffix = " - **Re-review required** (review was made of an earlier version of the change)"
		}
		lines = append(lines, fmt.Sprintf(" * %s (%s)%s",
			assessed.Review.Author, assessed.Role, suffix))
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("\n### Reviewers\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
}

func renderReviewing(b *strings.Builder, in ProjectionInput) {
	if in.PR.HeadHash == "" || in.PR.Draft {
		return
	}
	b.WriteString("\n### Reviewing\n")
	fmt.Fprintf(b, "Using `git`: `git fetch %s pull/%d/head:pull/%d` then `git checkout pull/%d`\n",
		"origin", in.PR.ID.Number, in.PR.ID.Number, in.PR.ID.Number)
	fmt.Fprintf(b, "The [webrev](%s/files) shows the full change at version %s.\n",
		prURL(in.PR), shortHash(in.PR.HeadHash))
}

func renderWarnings(b *strings.Builder, in ProjectionInput) {
	warnings := append([]string{}, in.Linkage.Warnings...)
	for _, f := range in.Exec.Findings {
		switch {
		case f.Severity == jcheck.SeverityWarning:
			warnings = append(warnings, f.Message)
		case f.Severity == jcheck.SeverityError && f.Origin == jcheck.OriginSourceConf:
			warnings = append(warnings, f.Message+" (failed with updated jcheck configuration in pull request)")
		}
	}
	renderList(b, "Warning", warnings)
}

func renderErrors(b *strings.Builder, in ProjectionInput) {
	var errs []string
	for _, f := range targetErrors(in.Exec.Findings) {
		errs = append(errs, f.Message)
	}
	if in.Exec.SourcePassBroken {
		errs = append(errs, SourcePassErrorTitle)
	}
	renderList(b, "Error", errs)
}

// renderList renders a singular/plural section of bullet entries.
func renderList(b *strings.Builder, singular string, entries []string) {
	if len(entries) == 0 {
		return
	}
	header := singular
	if len(entries) > 1 {
		header += "s"
	}
	fmt.Fprintf(b, "\n### %s\n", header)
	for _, entry := range entries {
		fmt.Fprintf(b, " * %s\n", entry)
	}
}
