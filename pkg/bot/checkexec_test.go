package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
	"github.com/openjdk/jmerge/pkg/vcs"
)

func execInput(t *testing.T) ExecInput {
	t.Helper()
	pr := testPR("A change description\n")
	return ExecInput{
		PR:         pr,
		TargetConf: testJCheckConf(t),
		Diff: []vcs.FileDiff{{
			Path:       "src/file.txt",
			Status:     vcs.DiffModified,
			AddedLines: []vcs.DiffLine{{Number: 1, Text: "clean"}},
		}},
		Reviews:     jcheck.ReviewState{},
		Requirement: jcheck.Requirement{},
		RepoConfig:  &config.RepoConfig{Repository: "test/repo", IssueProject: "TEST"},
	}
}

func TestExecuteCleanChange(t *testing.T) {
	result := NewCheckExecutor().Execute(execInput(t))
	assert.Empty(t, jcheck.Errors(result.Findings))
	assert.False(t, result.SourcePassBroken)
}

func TestExecuteEmptyBody(t *testing.T) {
	in := execInput(t)
	in.PR.Body = ""
	result := NewCheckExecutor().Execute(in)

	errs := jcheck.Errors(result.Findings)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "must not be empty")
}

func TestExecuteNoChanges(t *testing.T) {
	in := execInput(t)
	in.Diff = nil
	result := NewCheckExecutor().Execute(in)

	errs := jcheck.Errors(result.Findings)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "contains no changes")
}

func TestExecuteSubsetOfTarget(t *testing.T) {
	in := execInput(t)
	in.SubsetOfTarget = true
	result := NewCheckExecutor().Execute(in)

	errs := jcheck.Errors(result.Findings)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "already present in the target")
}

func TestExecuteBlockingLabel(t *testing.T) {
	in := execInput(t)
	in.PR.Labels = []string{"block"}
	in.RepoConfig.BlockingCheckLabels = map[string]string{"block": "Integration is currently blocked."}
	result := NewCheckExecutor().Execute(in)

	errs := jcheck.Errors(result.Findings)
	require.Len(t, errs, 1)
	assert.Equal(t, "Integration is currently blocked.", errs[0].Message)
}

func TestExecuteSourcePassAdvisory(t *testing.T) {
	in := execInput(t)
	in.Diff = append(in.Diff,
		vcs.FileDiff{Path: jcheck.ConfPath, Status: vcs.DiffModified},
		vcs.FileDiff{
			Path:       "src/new.txt",
			Status:     vcs.DiffAdded,
			AddedLines: []vcs.DiffLine{{Number: 1, Text: "no notice here"}},
		})

	// The proposed configuration enables a check the target one does not.
	sourceConf, err := jcheck.Parse([]byte(`
[general]
project=test

[checks]
error=whitespace,copyright
`))
	require.NoError(t, err)
	in.SourceConf = &Resolution{Kind: ResolutionOk, Conf: sourceConf, Source: "pull request head"}

	result := NewCheckExecutor().Execute(in)
	assert.False(t, result.SourcePassBroken)

	var sourceFindings []jcheck.Finding
	for _, f := range result.Findings {
		if f.Origin == jcheck.OriginSourceConf {
			sourceFindings = append(sourceFindings, f)
		}
	}
	assert.NotEmpty(t, sourceFindings)
}

func TestExecuteSourcePassBroken(t *testing.T) {
	in := execInput(t)
	in.Diff = append(in.Diff, vcs.FileDiff{Path: jcheck.ConfPath, Status: vcs.DiffModified})
	in.SourceConf = &Resolution{Kind: ResolutionInvalid, Source: "pull request head", Diagnostic: "missing general.project"}

	result := NewCheckExecutor().Execute(in)
	assert.True(t, result.SourcePassBroken)
	assert.Equal(t, "missing general.project", result.SourceDiagnostic)
}
