package jcheck

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/openjdk/jmerge/pkg/census"
)

// FileStatus describes how a change touches a file.
type FileStatus int

const (
	FileAdded FileStatus = iota
	FileModified
	FileRemoved
)

// Line is one added line of a change, with its position in the new file.
type Line struct {
	Number int
	Text   string
}

// ChangedFile is one file of a change as the checks see it.
type ChangedFile struct {
	Path       string
	Status     FileStatus
	Executable bool
	Symlink    bool
	Binary     bool
	AddedLines []Line
}

// Change is the unit the engine checks: the squashed pull request change,
// presented as the commit it would integrate as.
type Change struct {
	Title   string
	Message []string
	Author  string
	Files   []ChangedFile
}

// ReviewState summarizes the active reviews for the reviewers check.
type ReviewState struct {
	CountsByRole map[census.Role]int
	SelfApproved bool
}

// Engine runs the configured checks over a change. It holds no state; two
// runs over equal inputs produce equal findings.
type Engine struct{}

// NewEngine creates a check engine.
func NewEngine() *Engine {
	return &Engine{}
}

// checkFunc produces findings for one named check at the given severity.
type checkFunc func(change Change, conf *Conf, reviews ReviewState, requirement Requirement, severity Severity) []Finding

var checkFuncs = map[string]checkFunc{
	"whitespace":   checkWhitespace,
	"reviewers":    checkReviewers,
	"issues":       checkIssues,
	"issuestitle":  checkIssuesTitle,
	"executable":   checkExecutable,
	"symlink":      checkSymlink,
	"binary":       checkBinary,
	"copyright":    checkCopyright,
	"problemlists": checkProblemLists,
}

// Run executes every enabled check and stamps the findings with the given
// origin. The effective reviewer requirement (configuration combined with
// any /reviewers command) is supplied by the caller.
func (e *Engine) Run(change Change, conf *Conf, reviews ReviewState, requirement Requirement, origin Origin) []Finding {
	var findings []Finding
	for name, fn := range checkFuncs {
		severity, enabled := conf.CheckEnabled(name)
		if !enabled {
			continue
		}
		findings = append(findings, fn(change, conf, reviews, requirement, severity)...)
	}
	for i := range findings {
		findings[i].Origin = origin
	}
	return findings
}

func checkWhitespace(change Change, conf *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	var findings []Finding
	for _, file := range change.Files {
		if file.Status == FileRemoved || file.Binary || file.Symlink {
			continue
		}
		if conf.WhitespaceFiles != nil && !conf.WhitespaceFiles.MatchString(file.Path) {
			continue
		}
		for _, line := range file.AddedLines {
			var problems []string
			if strings.HasSuffix(line.Text, " ") || strings.HasSuffix(line.Text, "\t") {
				problems = append(problems, "trailing whitespace")
			}
			if strings.ContainsRune(line.Text, '\r') {
				problems = append(problems, "carriage return")
			}
			if strings.ContainsRune(line.Text, '\t') && !strings.HasSuffix(line.Text, "\t") {
				problems = append(problems, "tab")
			}
			if len(problems) > 0 {
				findings = append(findings, Finding{
					Check:    "whitespace",
					Severity: severity,
					Message: fmt.Sprintf("Whitespace errors (%s) in %s line %d",
						strings.Join(problems, ", "), file.Path, line.Number),
				})
			}
		}
	}
	return findings
}

// checkReviewers fails on self-reviews only. A requirement that is not yet
// met is pending review state, not a defect in the change; the projector
// tracks it in the progress section instead.
func checkReviewers(change Change, _ *Conf, reviews ReviewState, _ Requirement, severity Severity) []Finding {
	if !reviews.SelfApproved {
		return nil
	}
	return []Finding{{
		Check:    "reviewers",
		Severity: severity,
		Message:  "Self-reviews are not allowed",
	}}
}

func checkIssues(change Change, conf *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	if conf.IssuePattern.MatchString(change.Title) {
		return nil
	}
	return []Finding{{
		Check:    "issues",
		Severity: severity,
		Message:  "The commit message does not reference any issue",
	}}
}

func checkIssuesTitle(change Change, conf *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	m := conf.IssuePattern.FindStringSubmatch(change.Title)
	if m == nil {
		return nil
	}
	title := m[len(m)-1]

	var findings []Finding
	if strings.HasSuffix(title, ".") && !strings.HasSuffix(title, "...") {
		findings = append(findings, Finding{
			Check:    "issuestitle",
			Severity: severity,
			Message:  fmt.Sprintf("Found trailing period in issue title `%s`", title),
		})
	}
	for _, r := range title {
		if unicode.IsLetter(r) && unicode.IsLower(r) {
			findings = append(findings, Finding{
				Check:    "issuestitle",
				Severity: severity,
				Message:  fmt.Sprintf("Found lowercase letter at the beginning of issue title `%s`", title),
			})
		}
		break
	}
	return findings
}

func checkExecutable(change Change, _ *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	var findings []Finding
	for _, file := range change.Files {
		if file.Status == FileRemoved || !file.Executable {
			continue
		}
		findings = append(findings, Finding{
			Check:    "executable",
			Severity: severity,
			Message:  fmt.Sprintf("Executable files are not allowed (file: %s)", file.Path),
		})
	}
	return findings
}

func checkSymlink(change Change, _ *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	var findings []Finding
	for _, file := range change.Files {
		if file.Status == FileRemoved || !file.Symlink {
			continue
		}
		findings = append(findings, Finding{
			Check:    "symlink",
			Severity: severity,
			Message:  fmt.Sprintf("Symbolic links are not allowed (file: %s)", file.Path),
		})
	}
	return findings
}

func checkBinary(change Change, _ *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	var findings []Finding
	for _, file := range change.Files {
		if file.Status != FileAdded || !file.Binary {
			continue
		}
		findings = append(findings, Finding{
			Check:    "binary",
			Severity: severity,
			Message:  fmt.Sprintf("Binary files are not allowed (file: %s)", file.Path),
		})
	}
	return findings
}

func checkCopyright(change Change, conf *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	var findings []Finding
	for _, file := range change.Files {
		if file.Status != FileAdded || file.Binary || file.Symlink {
			continue
		}
		if conf.WhitespaceFiles != nil && !conf.WhitespaceFiles.MatchString(file.Path) {
			continue
		}
		found := false
		for _, line := range file.AddedLines {
			if strings.Contains(line.Text, "Copyright") {
				found = true
				break
			}
		}
		if !found {
			findings = append(findings, Finding{
				Check:    "copyright",
				Severity: severity,
				Message:  fmt.Sprintf("Missing copyright notice in %s", file.Path),
			})
		}
	}
	return findings
}

func checkProblemLists(change Change, conf *Conf, _ ReviewState, _ Requirement, severity Severity) []Finding {
	if conf.ProblemLists == "" {
		return nil
	}
	var findings []Finding
	for _, file := range change.Files {
		if file.Status == FileRemoved {
			continue
		}
		if !strings.HasPrefix(file.Path, conf.ProblemLists) || !strings.Contains(file.Path, "ProblemList") {
			continue
		}
		for _, line := range file.AddedLines {
			text := strings.TrimSpace(line.Text)
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			if len(strings.Fields(text)) < 2 {
				findings = append(findings, Finding{
					Check:    "problemlists",
					Severity: severity,
					Message:  fmt.Sprintf("Malformed problem list entry in %s line %d", file.Path, line.Number),
				})
			}
		}
	}
	return findings
}
