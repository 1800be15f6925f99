package bot

import (
	"fmt"
	"strings"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// SourcePassErrorTitle is the check title used when the pull request's own
// jcheck configuration cannot be used.
const SourcePassErrorTitle = "Exception occurred during source jcheck - the operation will be retried"

// ExecInput bundles everything a check execution needs.
type ExecInput struct {
	PR             *types.PullRequest
	TargetConf     *jcheck.Conf
	SourceConf     *Resolution
	Diff           []vcs.FileDiff
	SubsetOfTarget bool
	Reviews        jcheck.ReviewState
	Requirement    jcheck.Requirement
	RepoConfig     *config.RepoConfig
}

// ExecResult is the aggregated outcome of the two check passes.
type ExecResult struct {
	Findings []jcheck.Finding

	// SourcePassBroken is set when the pull request modifies .jcheck/conf
	// into something unusable; the run fails with SourcePassErrorTitle and
	// is retried.
	SourcePassBroken bool
	SourceDiagnostic string
}

// CheckExecutor runs jcheck over the pull request change: once under the
// target configuration (authoritative) and, when the pull request modifies
// .jcheck/conf, once more under the proposed configuration (advisory).
type CheckExecutor struct {
	engine *jcheck.Engine
}

// NewCheckExecutor creates a check executor.
func NewCheckExecutor() *CheckExecutor {
	return &CheckExecutor{engine: jcheck.NewEngine()}
}

// Execute runs the configured checks plus the direct structural errors.
func (e *CheckExecutor) Execute(in ExecInput) ExecResult {
	result := ExecResult{}
	result.Findings = append(result.Findings, directFindings(in)...)

	change := changeFromDiff(in.PR, in.Diff)

	targetFindings := e.engine.Run(change, in.TargetConf, in.Reviews, in.Requirement, jcheck.OriginTargetConf)
	result.Findings = append(result.Findings, targetFindings...)

	if touchesConf(in.Diff) && in.SourceConf != nil {
		switch in.SourceConf.Kind {
		case ResolutionOk:
			sourceFindings := e.engine.Run(change, in.SourceConf.Conf, in.Reviews, in.Requirement, jcheck.OriginSourceConf)
			result.Findings = append(result.Findings, sourceFindings...)
		default:
			result.SourcePassBroken = true
			result.SourceDiagnostic = in.SourceConf.Diagnostic
		}
	}

	result.Findings = jcheck.Deduplicate(result.Findings)
	return result
}

// directFindings emits the errors that bypass the configured checks.
func directFindings(in ExecInput) []jcheck.Finding {
	var findings []jcheck.Finding

	if strings.TrimSpace(userProse(in.PR.Body)) == "" {
		findings = append(findings, jcheck.Finding{
			Check:    "body",
			Severity: jcheck.SeverityError,
			Message:  "The pull request body must not be empty.",
		})
	}
	if len(in.Diff) == 0 {
		findings = append(findings, jcheck.Finding{
			Check:    "diff",
			Severity: jcheck.SeverityError,
			Message:  "This pull request contains no changes.",
		})
	} else if in.SubsetOfTarget {
		findings = append(findings, jcheck.Finding{
			Check:    "diff",
			Severity: jcheck.SeverityError,
			Message:  "This pull request only contains changes already present in the target.",
		})
	}
	for label, message := range in.RepoConfig.BlockingCheckLabels {
		if in.PR.HasLabel(label) {
			if message == "" {
				message = fmt.Sprintf("The change is currently blocked by the `%s` label.", label)
			}
			findings = append(findings, jcheck.Finding{
				Check:    "blocked",
				Severity: jcheck.SeverityError,
				Message:  message,
			})
		}
	}
	return findings
}

// changeFromDiff converts the pull request diff into the engine's change
// snapshot, presented as the commit it would integrate as.
func changeFromDiff(pr *types.PullRequest, diff []vcs.FileDiff) jcheck.Change {
	change := jcheck.Change{
		Title:  CanonicalizeTitle(pr.Title),
		Author: pr.Author,
	}
	if prose := strings.TrimSpace(userProse(pr.Body)); prose != "" {
		change.Message = strings.Split(prose, "\n")
	}
	for _, fd := range diff {
		file := jcheck.ChangedFile{
			Path:       fd.Path,
			Executable: fd.Executable,
			Symlink:    fd.Symlink,
			Binary:     fd.Binary,
		}
		switch fd.Status {
		case vcs.DiffAdded:
			file.Status = jcheck.FileAdded
		case vcs.DiffRemoved:
			file.Status = jcheck.FileRemoved
		default:
			file.Status = jcheck.FileModified
		}
		for _, line := range fd.AddedLines {
			file.AddedLines = append(file.AddedLines, jcheck.Line{Number: line.Number, Text: line.Text})
		}
		change.Files = append(change.Files, file)
	}
	return change
}

// touchesConf reports whether the diff modifies the jcheck configuration.
func touchesConf(diff []vcs.FileDiff) bool {
	for _, fd := range diff {
		if fd.Path == jcheck.ConfPath {
			return true
		}
	}
	return false
}
