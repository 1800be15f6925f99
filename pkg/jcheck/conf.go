package jcheck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/openjdk/jmerge/pkg/census"
)

// ConfPath is where the configuration lives inside a repository.
const ConfPath = ".jcheck/conf"

// Conf is a parsed .jcheck/conf.
type Conf struct {
	Project string
	Version string

	ErrorChecks   []string
	WarningChecks []string

	CensusVersion string
	CensusDomain  string

	TagPattern    *regexp.Regexp
	BranchPattern *regexp.Regexp

	Reviewers      Requirement
	IssuePattern   *regexp.Regexp
	WhitespaceFiles *regexp.Regexp
	MergeMessage   string
	ProblemLists   string

	hash string
}

// defaultIssuePattern matches the leading "<id>: <title>" commit title form.
var defaultIssuePattern = regexp.MustCompile(`^(([A-Z][A-Z0-9]+-)?[0-9]+): (\S.*)$`)

// Parse reads a .jcheck/conf blob. The raw content also determines the
// configuration hash used in check fingerprints.
func Parse(data []byte) (*Conf, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jcheck configuration: %w", err)
	}

	c := &Conf{}
	sum := sha256.Sum256(data)
	c.hash = hex.EncodeToString(sum[:])

	general := file.Section("general")
	c.Project = general.Key("project").String()
	c.Version = general.Key("version").String()
	if c.Project == "" {
		return nil, fmt.Errorf("jcheck configuration is missing general.project")
	}

	checks := file.Section("checks")
	c.ErrorChecks = splitList(checks.Key("error").String())
	c.WarningChecks = splitList(checks.Key("warning").String())

	censusSection := file.Section("census")
	c.CensusVersion = censusSection.Key("version").String()
	c.CensusDomain = censusSection.Key("domain").String()

	repo := file.Section("repository")
	if tags := repo.Key("tags").String(); tags != "" {
		c.TagPattern, err = regexp.Compile(tags)
		if err != nil {
			return nil, fmt.Errorf("invalid repository.tags pattern: %w", err)
		}
	}
	if branches := repo.Key("branches").String(); branches != "" {
		c.BranchPattern, err = regexp.Compile(branches)
		if err != nil {
			return nil, fmt.Errorf("invalid repository.branches pattern: %w", err)
		}
	}

	c.Reviewers, err = parseReviewers(file.Section(`checks "reviewers"`))
	if err != nil {
		return nil, err
	}

	issues := file.Section(`checks "issues"`)
	if pattern := issues.Key("pattern").String(); pattern != "" {
		c.IssuePattern, err = regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid issues pattern: %w", err)
		}
	} else {
		c.IssuePattern = defaultIssuePattern
	}

	whitespace := file.Section(`checks "whitespace"`)
	if files := whitespace.Key("files").String(); files != "" {
		c.WhitespaceFiles, err = regexp.Compile(files)
		if err != nil {
			return nil, fmt.Errorf("invalid whitespace files pattern: %w", err)
		}
	}

	c.MergeMessage = file.Section(`checks "merge"`).Key("message").String()
	c.ProblemLists = file.Section(`checks "problemlists"`).Key("dirs").String()

	return c, nil
}

func parseReviewers(section *ini.Section) (Requirement, error) {
	req := Requirement{Counts: map[census.Role]int{}}

	for key, role := range map[string]census.Role{
		"lead":         census.RoleLead,
		"reviewers":    census.RoleReviewer,
		"committers":   census.RoleCommitter,
		"authors":      census.RoleAuthor,
		"contributors": census.RoleContributor,
	} {
		if v := section.Key(key).String(); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return req, fmt.Errorf("invalid reviewers.%s count: %s", key, v)
			}
			if n > 0 {
				req.Counts[role] = n
			}
		}
	}

	// Legacy form: minimum=N role=reviewer
	if v := section.Key("minimum").String(); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid reviewers.minimum: %s", v)
		}
		role := census.RoleReviewer
		if r := section.Key("role").String(); r != "" {
			role, err = census.ParseRole(r)
			if err != nil {
				return req, fmt.Errorf("invalid reviewers.role: %w", err)
			}
		}
		if n > req.Counts[role] {
			req.Counts[role] = n
		}
	}

	req.Ignore = splitList(section.Key("ignore").String())
	return req, nil
}

// Hash returns a fingerprint of the raw configuration content.
func (c *Conf) Hash() string {
	return c.hash
}

// CheckEnabled reports whether the named check runs at all, and at which
// severity.
func (c *Conf) CheckEnabled(name string) (Severity, bool) {
	for _, e := range c.ErrorChecks {
		if e == name {
			return SeverityError, true
		}
	}
	for _, w := range c.WarningChecks {
		if w == name {
			return SeverityWarning, true
		}
	}
	return SeverityError, false
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
