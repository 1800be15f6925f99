package bot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
)

// Contributor is a co-author recorded through /contributor.
type Contributor struct {
	Name  string
	Email string
}

// String renders the "Name <email>" form used in commit messages.
func (c Contributor) String() string {
	return c.Name + " <" + c.Email + ">"
}

// TagRequest is an unexecuted /tag command.
type TagRequest struct {
	Name   string
	Source CommandSource
}

// Reply is a marker-keyed outbound comment produced by command handling.
type Reply struct {
	Marker Marker
	Body   string
}

// CommandState is the folded effect of every command issued on the pull
// request, rebuilt from the comment stream on each reconciliation so the
// projector never needs prior state.
type CommandState struct {
	ReviewerOverride jcheck.Requirement
	AdditionalIssues []string
	RemovedIssues    map[string]bool
	Summary          string
	Contributors     []Contributor
	CSRUnneeded      bool
	CSRRequested     bool
	JEPID            string
	ApprovalRequest  string
	ApprovalVerdict  *bool
	TouchRequested   bool
	Reopened         bool

	// Pending one-shot actions, set only while their command is unreplied.
	IntegrateRequest *CommandSource
	SponsorRequest   *CommandSource
	TagRequests      []TagRequest

	// Derived from earlier replies in the comment stream.
	Integrated     bool
	SponsorPending bool

	Replies    []Reply
	Generation int
}

// DispatchInput carries everything command authorization needs.
type DispatchInput struct {
	PR           *types.PullRequest
	Census       census.Store
	Repo         *config.RepoConfig
	ConfRequirement jcheck.Requirement
	TagPattern   *regexp.Regexp
	ExistingTags map[string]bool
	Markers      markerIndex
	BotUser      string
}

// Reply bodies the dispatcher derives state from on later runs.
const (
	pushedReplyPrefix  = "Pushed as commit"
	sponsorReplyNeedle = "ready to be sponsored"
)

// Dispatch parses and folds all commands in chronological order, enforcing
// authorization, and collects replies for commands not yet answered.
func Dispatch(in DispatchInput) *CommandState {
	state := &CommandState{
		ReviewerOverride: jcheck.Requirement{Counts: map[census.Role]int{}},
		RemovedIssues:    map[string]bool{},
	}

	// Earlier integration replies determine the exit-state flags.
	for m, comment := range in.Markers {
		if m.Kind != MarkerKindCommandReply {
			continue
		}
		if strings.Contains(comment.Body, pushedReplyPrefix) {
			state.Integrated = true
		}
		if strings.Contains(comment.Body, sponsorReplyNeedle) {
			state.SponsorPending = true
		}
	}

	commands := ParseCommands(in.PR, in.BotUser, in.Repo.MLBridgeBotName)
	state.Generation = len(commands)

	for _, cmd := range commands {
		replied := in.Markers.Has(commandReplyMarker(cmd.Source()))
		reply := applyCommand(in, state, cmd, replied)
		if reply != "" && !replied && !hasReply(state, cmd.Source()) {
			state.Replies = append(state.Replies, Reply{
				Marker: commandReplyMarker(cmd.Source()),
				Body:   reply,
			})
		}
	}
	return state
}

func hasReply(state *CommandState, source CommandSource) bool {
	marker := commandReplyMarker(source)
	for _, r := range state.Replies {
		if r.Marker == marker {
			return true
		}
	}
	return false
}

func applyCommand(in DispatchInput, state *CommandState, cmd Command, replied bool) string {
	issuer := cmd.Source().Issuer
	role := in.Census.RoleAt(issuer, cmd.Source().At)

	switch c := cmd.(type) {
	case ReviewersCommand:
		requested := jcheck.Requirement{Counts: map[census.Role]int{}}
		if c.Count > 0 {
			requested.Counts[c.Role] = c.Count
		}
		prev := in.ConfRequirement.Max(state.ReviewerOverride)
		next := in.ConfRequirement.Max(requested)
		if weakerThan(next, prev) && !role.AtLeast(census.RoleReviewer) {
			return fmt.Sprintf("@%s Only Reviewers are allowed to decrease the number of required reviewers.", issuer)
		}
		state.ReviewerOverride = requested
		return fmt.Sprintf("@%s The number of required reviews for this PR is now set to %d (%s).",
			issuer, next.Total(), next.Describe())

	case IssueCommand:
		if issuer != in.PR.Author && !role.AtLeast(census.RoleCommitter) {
			return fmt.Sprintf("@%s Only the author or Committers are allowed to modify the issue list.", issuer)
		}
		if c.Remove {
			for _, id := range c.IDs {
				state.RemovedIssues[id] = true
			}
			return fmt.Sprintf("@%s Removing additional issue from issue list: `%s`.", issuer, strings.Join(c.IDs, "`, `"))
		}
		for _, id := range c.IDs {
			delete(state.RemovedIssues, id)
			state.AdditionalIssues = append(state.AdditionalIssues, id)
		}
		return fmt.Sprintf("@%s Adding additional issue to issue list: `%s`.", issuer, strings.Join(c.IDs, "`, `"))

	case CSRCommand:
		if !in.Repo.EnableCSR {
			return fmt.Sprintf("@%s This repository does not support the `/csr` command.", issuer)
		}
		if c.Unneeded {
			if !role.AtLeast(census.RoleReviewer) {
				return fmt.Sprintf("@%s Only Reviewers can determine that a CSR is not needed.", issuer)
			}
			state.CSRUnneeded = true
			state.CSRRequested = false
			return fmt.Sprintf("@%s determined that a CSR request is not needed for this pull request.", issuer)
		}
		state.CSRRequested = true
		state.CSRUnneeded = false
		return fmt.Sprintf("@%s this pull request will not be integrated until the CSR request has been approved.", issuer)

	case JEPCommand:
		if !in.Repo.EnableJEP {
			return fmt.Sprintf("@%s This repository does not support the `/jep` command.", issuer)
		}
		state.JEPID = c.ID
		return fmt.Sprintf("@%s This pull request will not be integrated until JEP-%s has been targeted.", issuer, c.ID)

	case SummaryCommand:
		if issuer != in.PR.Author && !role.AtLeast(census.RoleCommitter) {
			return fmt.Sprintf("@%s Only the author or Committers are allowed to set a summary.", issuer)
		}
		state.Summary = c.Text
		if c.Text == "" {
			return fmt.Sprintf("@%s Removing existing summary.", issuer)
		}
		return fmt.Sprintf("@%s Setting summary to:\n\n```\n%s\n```", issuer, c.Text)

	case ContributorCommand:
		if issuer != in.PR.Author && !role.AtLeast(census.RoleCommitter) {
			return fmt.Sprintf("@%s Only the author or Committers are allowed to modify the list of contributors.", issuer)
		}
		contributor := Contributor{Name: c.Name, Email: c.Email}
		if c.Remove {
			kept := state.Contributors[:0]
			for _, existing := range state.Contributors {
				if existing.Email != contributor.Email {
					kept = append(kept, existing)
				}
			}
			state.Contributors = kept
			return fmt.Sprintf("@%s Contributor `%s` successfully removed.", issuer, contributor)
		}
		for _, existing := range state.Contributors {
			if existing.Email == contributor.Email {
				return fmt.Sprintf("@%s Contributor `%s` was already added.", issuer, contributor)
			}
		}
		state.Contributors = append(state.Contributors, contributor)
		return fmt.Sprintf("@%s Contributor `%s` successfully added.", issuer, contributor)

	case ApprovalCommand:
		if !in.Repo.Approval.Enabled() {
			return fmt.Sprintf("@%s This repository does not support the `/approval` command.", issuer)
		}
		if issuer != in.PR.Author {
			return fmt.Sprintf("@%s Only the pull request author is allowed to request maintainer approval.", issuer)
		}
		state.ApprovalRequest = c.Text
		return fmt.Sprintf("@%s The maintainer approval request has been recorded and forwarded to the relevant issues.", issuer)

	case ApproveCommand:
		if !in.Repo.IsIntegrator(issuer) {
			return fmt.Sprintf("@%s Only integrators for this repository are allowed to use the `/approve` command.", issuer)
		}
		verdict := c.Approved
		state.ApprovalVerdict = &verdict
		if verdict {
			return fmt.Sprintf("@%s The requested version changes have been approved.", issuer)
		}
		return fmt.Sprintf("@%s The requested version changes have been rejected.", issuer)

	case TagCommand:
		if !in.Repo.IsIntegrator(issuer) {
			return fmt.Sprintf("@%s Only integrators for this repository are allowed to use the `/tag` command.", issuer)
		}
		if in.TagPattern != nil && !in.TagPattern.MatchString(c.Name) {
			return fmt.Sprintf("@%s The given tag name `%s` does not match the repository tag pattern `%s`.", issuer, c.Name, in.TagPattern.String())
		}
		if in.ExistingTags[c.Name] {
			return fmt.Sprintf("@%s A tag with name `%s` already exists.", issuer, c.Name)
		}
		if !replied {
			source := cmd.Source()
			state.TagRequests = append(state.TagRequests, TagRequest{Name: c.Name, Source: source})
		}
		// The reply is produced once the tag has been created.
		return ""

	case TouchCommand:
		if !replied {
			state.TouchRequested = true
		}
		return fmt.Sprintf("@%s The pull request is being re-evaluated and the inactivity timeout has been reset.", issuer)

	case OpenCommand:
		if issuer != in.PR.Author {
			return fmt.Sprintf("@%s Only the pull request author is allowed to use the `/open` command.", issuer)
		}
		state.Reopened = true
		return fmt.Sprintf("@%s This pull request is now open again.", issuer)

	case IntegrateCommand:
		if issuer != in.PR.Author {
			return fmt.Sprintf("@%s Only the author is allowed to issue the `/integrate` command.", issuer)
		}
		if !replied && !state.Integrated {
			source := cmd.Source()
			state.IntegrateRequest = &source
		}
		// The reply depends on the check outcome; the check run answers it.
		return ""

	case SponsorCommand:
		if issuer == in.PR.Author {
			return fmt.Sprintf("@%s You cannot sponsor your own contribution; ask a Committer to do it.", issuer)
		}
		if !role.AtLeast(census.RoleCommitter) {
			return fmt.Sprintf("@%s Only Committers are allowed to sponsor changes.", issuer)
		}
		if !replied && !state.Integrated {
			source := cmd.Source()
			state.SponsorRequest = &source
		}
		return ""

	case UnknownCommand:
		return fmt.Sprintf("@%s Unknown command `%s` - for a list of valid commands use `/help`.", issuer, c.Verb())
	}
	return ""
}

// weakerThan reports whether requirement a demands less than b at any role
// level, counting higher-role spillover.
func weakerThan(a, b jcheck.Requirement) bool {
	roles := []census.Role{
		census.RoleLead,
		census.RoleReviewer,
		census.RoleCommitter,
		census.RoleAuthor,
		census.RoleContributor,
	}
	cumA, cumB := 0, 0
	for _, role := range roles {
		cumA += a.Counts[role]
		cumB += b.Counts[role]
		if cumA < cumB {
			return true
		}
	}
	return false
}
