package bot

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
)

// CommandSource identifies where a command was issued. Body commands are
// keyed by a hash of the body revision so each revision is processed once;
// comment commands are keyed by the comment id.
type CommandSource struct {
	Key    string
	Issuer string
	At     time.Time
}

// Command is one parsed slash command. The concrete type carries the
// arguments; dispatch switches over the variants.
type Command interface {
	Verb() string
	Source() CommandSource
}

type commandBase struct {
	verb   string
	source CommandSource
}

func (c commandBase) Verb() string            { return c.verb }
func (c commandBase) Source() CommandSource   { return c.source }

// ReviewersCommand sets the command layer of the reviewer requirement.
type ReviewersCommand struct {
	commandBase
	Count int
	Role  census.Role
}

// IntegrateCommand asks for the change to be integrated.
type IntegrateCommand struct {
	commandBase
}

// SponsorCommand integrates on behalf of a non-committer author.
type SponsorCommand struct {
	commandBase
}

// CSRCommand marks the change as requiring (or not requiring) a CSR.
type CSRCommand struct {
	commandBase
	Unneeded bool
}

// JEPCommand associates the change with an enhancement proposal issue.
type JEPCommand struct {
	commandBase
	ID string
}

// ApprovalCommand requests maintainer approval with a justification.
type ApprovalCommand struct {
	commandBase
	Text string
}

// ApproveCommand records an integrator's approval verdict.
type ApproveCommand struct {
	commandBase
	Approved bool
}

// TagCommand creates an annotated tag after integration.
type TagCommand struct {
	commandBase
	Name string
}

// IssueCommand adds or removes additional solved issues.
type IssueCommand struct {
	commandBase
	Remove bool
	IDs    []string
}

// TouchCommand forces a recheck of the pull request.
type TouchCommand struct {
	commandBase
}

// SummaryCommand records an extra commit message paragraph.
type SummaryCommand struct {
	commandBase
	Text string
}

// ContributorCommand maintains the co-author list.
type ContributorCommand struct {
	commandBase
	Remove bool
	Name   string
	Email  string
}

// OpenCommand reopens work on an expired pull request.
type OpenCommand struct {
	commandBase
}

// UnknownCommand is an unrecognized verb; it gets a help reply.
type UnknownCommand struct {
	commandBase
}

var commandLine = regexp.MustCompile(`^\s*/([A-Za-z]+)\b[ \t]*(.*)$`)
var contributorPattern = regexp.MustCompile(`^(.*?)\s*<(\S+@\S+)>$`)

// bodyCommandKey derives the processing key for the current body revision.
func bodyCommandKey(body string) string {
	sum := sha256.Sum256([]byte(body))
	return "body:" + hex.EncodeToString(sum[:4])
}

// ParseCommands extracts the commands from the pull request description and
// its comments, in chronological order. Comments by the ignored authors
// (the bot itself, the mailing list bridge) are skipped.
func ParseCommands(pr *types.PullRequest, ignoredAuthors ...string) []Command {
	var commands []Command

	ignored := map[string]bool{}
	for _, author := range ignoredAuthors {
		if author != "" {
			ignored[author] = true
		}
	}

	// Keyed by the author's prose only, so the bot's own body rewrites do
	// not count as a new revision.
	bodySource := CommandSource{
		Key:    bodyCommandKey(userProse(pr.Body)),
		Issuer: pr.Author,
		At:     pr.CreatedAt,
	}
	commands = append(commands, parseLines(userProse(pr.Body), bodySource)...)

	for _, comment := range pr.Comments {
		if ignored[comment.Author] {
			continue
		}
		source := CommandSource{Key: comment.ID, Issuer: comment.Author, At: comment.CreatedAt}
		commands = append(commands, parseLines(comment.Body, source)...)
	}
	return commands
}

func parseLines(text string, source CommandSource) []Command {
	var commands []Command
	for _, line := range strings.Split(text, "\n") {
		m := commandLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		verb := strings.ToLower(m[1])
		args := strings.TrimSpace(m[2])
		if cmd := parseCommand(verb, args, source); cmd != nil {
			commands = append(commands, cmd)
		}
	}
	return commands
}

func parseCommand(verb, args string, source CommandSource) Command {
	base := commandBase{verb: verb, source: source}
	switch verb {
	case "reviewers":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			return UnknownCommand{base}
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 {
			return UnknownCommand{base}
		}
		role := census.RoleReviewer
		if len(fields) > 1 {
			role, err = census.ParseRole(strings.ToLower(fields[1]))
			if err != nil {
				return UnknownCommand{base}
			}
		}
		return ReviewersCommand{commandBase: base, Count: count, Role: role}
	case "integrate":
		return IntegrateCommand{base}
	case "sponsor":
		return SponsorCommand{base}
	case "csr":
		return CSRCommand{commandBase: base, Unneeded: strings.EqualFold(args, "unneeded")}
	case "jep":
		if args == "" {
			return UnknownCommand{base}
		}
		return JEPCommand{commandBase: base, ID: strings.TrimPrefix(strings.ToUpper(args), "JEP-")}
	case "approval":
		text := strings.TrimSpace(strings.TrimPrefix(args, "request"))
		return ApprovalCommand{commandBase: base, Text: text}
	case "approve":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			return UnknownCommand{base}
		}
		switch strings.ToLower(fields[0]) {
		case "yes":
			return ApproveCommand{commandBase: base, Approved: true}
		case "no":
			return ApproveCommand{commandBase: base, Approved: false}
		}
		return UnknownCommand{base}
	case "tag":
		if args == "" {
			return UnknownCommand{base}
		}
		return TagCommand{commandBase: base, Name: strings.Fields(args)[0]}
	case "issue", "solves":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			return UnknownCommand{base}
		}
		remove := false
		switch strings.ToLower(fields[0]) {
		case "add":
			fields = fields[1:]
		case "remove", "delete":
			remove = true
			fields = fields[1:]
		}
		var ids []string
		for _, f := range fields {
			ids = append(ids, strings.TrimSuffix(f, ","))
		}
		if len(ids) == 0 {
			return UnknownCommand{base}
		}
		return IssueCommand{commandBase: base, Remove: remove, IDs: ids}
	case "touch", "keepalive":
		return TouchCommand{base}
	case "summary":
		return SummaryCommand{commandBase: base, Text: args}
	case "contributor":
		fields := strings.SplitN(args, " ", 2)
		if len(fields) < 2 {
			return UnknownCommand{base}
		}
		remove := false
		switch strings.ToLower(fields[0]) {
		case "add":
		case "remove":
			remove = true
		default:
			return UnknownCommand{base}
		}
		m := contributorPattern.FindStringSubmatch(strings.TrimSpace(fields[1]))
		if m == nil {
			return UnknownCommand{base}
		}
		return ContributorCommand{commandBase: base, Remove: remove, Name: strings.TrimSpace(m[1]), Email: m[2]}
	case "open":
		return OpenCommand{base}
	default:
		return UnknownCommand{base}
	}
}

// commandReplyMarker returns the marker identifying the reply to a command.
func commandReplyMarker(source CommandSource) Marker {
	return Marker{Kind: MarkerKindCommandReply, Key: source.Key}
}

// userProse returns the part of the body above the auto marker.
func userProse(body string) string {
	if idx := strings.Index(body, BodyMarker); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimRight(body, "\n")
}
