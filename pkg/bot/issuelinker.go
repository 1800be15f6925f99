package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
	"github.com/openjdk/jmerge/pkg/tracker"
)

// LinkedIssue is one issue rendered in the body's issue section.
type LinkedIssue struct {
	Issue *types.IssueData
	Kind  string // "", "CSR" or "JEP"
}

// IssueLinkage is the issue linker's contribution to the projection.
type IssueLinkage struct {
	// NewTitle is non-empty when the pull request title should be
	// rewritten to its canonical form.
	NewTitle string

	Primary        *types.IssueData
	Issues         []LinkedIssue
	Blockers       []string
	Warnings       []string
	JEPLabelNeeded bool
}

var (
	bareIDPattern    = regexp.MustCompile(`^([0-9]+)$`)
	projectIDPattern = regexp.MustCompile(`^([A-Z][A-Z0-9]*)-([0-9]+)$`)
	titledPattern    = regexp.MustCompile(`^(([A-Z][A-Z0-9]*)-)?([0-9]+)(:| -|  |\x{00A0})\s*(.*)$`)
)

// nbspFolder replaces non-breaking spaces with ordinary spaces.
var nbspFolder = runes.Map(func(r rune) rune {
	if r == '\u00a0' {
		return ' '
	}
	return r
})

// CanonicalizeTitle normalizes a pull request title: leading whitespace
// stripped, non-breaking spaces folded, and separator variants after the
// issue id collapsed to ": ".
func CanonicalizeTitle(title string) string {
	raw := strings.TrimSpace(title)
	folded, _, err := transform.String(nbspFolder, title)
	if err == nil {
		title = folded
	}
	title = strings.TrimSpace(title)

	m := titledPattern.FindStringSubmatch(title)
	if m == nil {
		// Folding turns a non-breaking space separator into a single space,
		// so look for it in the unfolded title.
		if m = titledPattern.FindStringSubmatch(raw); m != nil {
			if rest, _, err := transform.String(nbspFolder, m[5]); err == nil {
				m[5] = rest
			}
		}
	}
	if m != nil {
		rest := strings.TrimSpace(m[5])
		if m[2] != "" {
			return fmt.Sprintf("%s-%s: %s", m[2], m[3], rest)
		}
		return fmt.Sprintf("%s: %s", m[3], rest)
	}
	return title
}

// IssueLinker resolves the pull request title and commands into tracker
// issues, CSRs, JEPs and integration blockers.
type IssueLinker struct {
	tracker tracker.Tracker
	repo    *config.RepoConfig
}

// NewIssueLinker creates an issue linker.
func NewIssueLinker(trk tracker.Tracker, repo *config.RepoConfig) *IssueLinker {
	return &IssueLinker{tracker: trk, repo: repo}
}

// Link computes the issue linkage for a pull request. conf may be nil when
// the configuration could not be resolved; version-dependent checks are
// skipped in that case.
func (l *IssueLinker) Link(ctx context.Context, pr *types.PullRequest, conf *jcheck.Conf, commands *CommandState) IssueLinkage {
	linkage := IssueLinkage{}
	title := CanonicalizeTitle(pr.Title)

	primaryID, rest, blocker := l.primaryID(title)
	if blocker != "" {
		linkage.Blockers = append(linkage.Blockers, blocker)
	}

	if primaryID != "" {
		issue, err := l.tracker.GetIssue(ctx, l.repo.IssueProject, primaryID)
		switch {
		case tracker.IsNotFound(err):
			linkage.Blockers = append(linkage.Blockers,
				fmt.Sprintf("Failed to retrieve information on issue `%s`.", primaryID))
		case err != nil:
			linkage.Blockers = append(linkage.Blockers,
				fmt.Sprintf("Temporary failure when trying to retrieve information on issue `%s`.", primaryID))
		default:
			linkage.Primary = issue
			linkage.Issues = append(linkage.Issues, LinkedIssue{Issue: issue})

			canonical := fmt.Sprintf("%s: %s", primaryID, issue.Title)
			switch {
			case rest == "" || titleTruncated(rest, issue.Title):
				linkage.NewTitle = canonical
			case rest != issue.Title:
				linkage.Blockers = append(linkage.Blockers,
					fmt.Sprintf("Title mismatch between pull request and [%s](%s) issue.", issue.Key(), l.issueURL(issue)))
			}

			l.linkRelated(ctx, issue, &linkage)
			l.checkVersion(issue, conf, &linkage)
		}
	}

	l.linkAdditional(ctx, commands, &linkage)
	l.linkJEP(ctx, commands, &linkage)
	l.checkCSRCommand(commands, &linkage)

	if title != pr.Title && linkage.NewTitle == "" {
		linkage.NewTitle = title
	}
	return linkage
}

// primaryID extracts the leading issue reference. The second return value is
// the descriptive part of the title, empty when the title is a bare id.
func (l *IssueLinker) primaryID(title string) (id, rest, blocker string) {
	if m := bareIDPattern.FindStringSubmatch(title); m != nil {
		return m[1], "", ""
	}
	if m := projectIDPattern.FindStringSubmatch(title); m != nil {
		if m[1] != l.repo.IssueProject {
			return "", "", fmt.Sprintf("The issue `%s-%s` does not belong to the `%s` project - make sure you are using the correct issue tracker.",
				m[1], m[2], l.repo.IssueProject)
		}
		return m[2], "", ""
	}
	if m := titledPattern.FindStringSubmatch(title); m != nil {
		project, idPart, rest := m[2], m[3], strings.TrimSpace(m[5])
		if project != "" && project != l.repo.IssueProject {
			return "", "", fmt.Sprintf("The issue `%s-%s` does not belong to the `%s` project - make sure you are using the correct issue tracker.",
				project, idPart, l.repo.IssueProject)
		}
		return idPart, rest, ""
	}
	return "", "", ""
}

// titleTruncated reports whether prTitle is a forge-truncated prefix of the
// full issue title.
func titleTruncated(prTitle, issueTitle string) bool {
	if !strings.HasSuffix(prTitle, "…") && !strings.HasSuffix(prTitle, "...") {
		return false
	}
	prefix := strings.TrimSuffix(strings.TrimSuffix(prTitle, "…"), "...")
	return strings.HasPrefix(issueTitle, strings.TrimSpace(prefix))
}

func (l *IssueLinker) linkRelated(ctx context.Context, primary *types.IssueData, linkage *IssueLinkage) {
	for _, link := range primary.Links {
		rel := strings.ToLower(link.Relationship)
		if rel != "csr for" && rel != "backported by" {
			continue
		}
		related, err := l.tracker.GetIssue(ctx, link.Project, link.ID)
		if err != nil {
			continue
		}
		switch {
		case related.IsCSR() && l.repo.EnableCSR:
			linkage.Issues = append(linkage.Issues, LinkedIssue{Issue: related, Kind: "CSR"})
			if related.State == types.IssueOpen && !strings.EqualFold(related.Status, "Approved") {
				linkage.Blockers = append(linkage.Blockers,
					fmt.Sprintf("The CSR [%s](%s) must be approved before this pull request can be integrated.",
						related.Key(), l.issueURL(related)))
			}
		case related.IsJEP() && l.repo.EnableJEP:
			linkage.Issues = append(linkage.Issues, LinkedIssue{Issue: related, Kind: "JEP"})
			l.assessJEP(related, linkage)
		}
	}
}

func (l *IssueLinker) linkAdditional(ctx context.Context, commands *CommandState, linkage *IssueLinkage) {
	if commands == nil {
		return
	}
	seen := map[string]bool{}
	for _, li := range linkage.Issues {
		seen[li.Issue.ID] = true
	}
	for _, raw := range commands.AdditionalIssues {
		id := raw
		if m := projectIDPattern.FindStringSubmatch(raw); m != nil {
			if m[1] != l.repo.IssueProject {
				linkage.Blockers = append(linkage.Blockers,
					fmt.Sprintf("The issue `%s` does not belong to the `%s` project - make sure you are using the correct issue tracker.",
						raw, l.repo.IssueProject))
				continue
			}
			id = m[2]
		}
		if seen[id] || commands.RemovedIssues[id] || commands.RemovedIssues[raw] {
			continue
		}
		issue, err := l.tracker.GetIssue(ctx, l.repo.IssueProject, id)
		if err != nil {
			linkage.Blockers = append(linkage.Blockers,
				fmt.Sprintf("Failed to retrieve information on issue `%s`.", raw))
			continue
		}
		seen[id] = true
		linkage.Issues = append(linkage.Issues, LinkedIssue{Issue: issue})
	}
}

func (l *IssueLinker) linkJEP(ctx context.Context, commands *CommandState, linkage *IssueLinkage) {
	if commands == nil || commands.JEPID == "" || !l.repo.EnableJEP {
		return
	}
	issue, err := l.tracker.GetIssue(ctx, l.repo.IssueProject, commands.JEPID)
	if err != nil {
		linkage.Blockers = append(linkage.Blockers,
			fmt.Sprintf("Failed to retrieve information on JEP issue `%s`.", commands.JEPID))
		return
	}
	for _, existing := range linkage.Issues {
		if existing.Issue.ID == issue.ID {
			return
		}
	}
	linkage.Issues = append(linkage.Issues, LinkedIssue{Issue: issue, Kind: "JEP"})
	l.assessJEP(issue, linkage)
}

// assessJEP applies the jep label policy: the label stays until the JEP has
// been targeted (or delivered after being closed).
func (l *IssueLinker) assessJEP(jep *types.IssueData, linkage *IssueLinkage) {
	targeted := strings.EqualFold(jep.Status, "Targeted") ||
		(strings.EqualFold(jep.Status, "Closed") && strings.EqualFold(jep.Resolution, "Delivered"))
	if !targeted {
		linkage.JEPLabelNeeded = true
		linkage.Blockers = append(linkage.Blockers,
			fmt.Sprintf("This pull request will not be integrated until [%s](%s) has been targeted.",
				jep.Key(), l.issueURL(jep)))
	}
}

func (l *IssueLinker) checkCSRCommand(commands *CommandState, linkage *IssueLinkage) {
	if commands == nil || !commands.CSRRequested || commands.CSRUnneeded {
		return
	}
	for _, li := range linkage.Issues {
		if li.Kind == "CSR" {
			return
		}
	}
	linkage.Blockers = append(linkage.Blockers,
		"An approved [CSR](https://wiki.openjdk.org/display/csr/Main) request is required for this pull request.")
}

func (l *IssueLinker) checkVersion(primary *types.IssueData, conf *jcheck.Conf, linkage *IssueLinkage) {
	if conf == nil || conf.Version == "" || !l.repo.VersionMismatchWarning {
		return
	}
	if len(primary.FixVersions) == 0 {
		return
	}
	for _, fv := range primary.FixVersions {
		if fv == conf.Version {
			return
		}
	}
	linkage.Warnings = append(linkage.Warnings,
		fmt.Sprintf("The version `%s` of this repository does not match the fixVersion `%s` of [%s](%s); a backport issue will be created at integration time.",
			conf.Version, strings.Join(primary.FixVersions, "`, `"), primary.Key(), l.issueURL(primary)))
}

func (l *IssueLinker) issueURL(issue *types.IssueData) string {
	return fmt.Sprintf("https://bugs.openjdk.org/browse/%s", issue.Key())
}
