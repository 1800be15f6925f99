package jcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/pkg/census"
)

func engineConf(t *testing.T, checks string) *Conf {
	t.Helper()
	conf, err := Parse([]byte("[general]\nproject=test\n\n[checks]\n" + checks + "\n"))
	require.NoError(t, err)
	return conf
}

func findingsFor(findings []Finding, check string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Check == check {
			out = append(out, f)
		}
	}
	return out
}

func TestWhitespaceCheck(t *testing.T) {
	conf := engineConf(t, "error=whitespace")
	change := Change{
		Title: "1: Something",
		Files: []ChangedFile{{
			Path:   "src/Foo.java",
			Status: FileModified,
			AddedLines: []Line{
				{Number: 3, Text: "clean line"},
				{Number: 4, Text: "trailing "},
				{Number: 5, Text: "has\ttab inside"},
				{Number: 6, Text: "carriage\r"},
			},
		}},
	}

	findings := NewEngine().Run(change, conf, ReviewState{}, Requirement{}, OriginTargetConf)
	whitespace := findingsFor(findings, "whitespace")
	require.Len(t, whitespace, 3)
	assert.Contains(t, whitespace[0].Message, "line 4")
}

func TestWhitespaceCheckRespectsFilePattern(t *testing.T) {
	confWithFiles, err := Parse([]byte(`
[general]
project=test

[checks]
error=whitespace

[checks "whitespace"]
files=.*\.java
`))
	require.NoError(t, err)

	change := Change{
		Title: "1: Something",
		Files: []ChangedFile{{
			Path:       "README.md",
			Status:     FileModified,
			AddedLines: []Line{{Number: 1, Text: "trailing "}},
		}},
	}
	findings := NewEngine().Run(change, confWithFiles, ReviewState{}, Requirement{}, OriginTargetConf)
	assert.Empty(t, findingsFor(findings, "whitespace"))
}

func TestSelfReviewCheck(t *testing.T) {
	conf := engineConf(t, "error=reviewers")
	findings := NewEngine().Run(Change{Title: "1: X"}, conf, ReviewState{SelfApproved: true}, Requirement{}, OriginTargetConf)
	require.Len(t, findingsFor(findings, "reviewers"), 1)

	// An unmet requirement alone is not an error.
	findings = NewEngine().Run(Change{Title: "1: X"}, conf, ReviewState{}, Requirement{
		Counts: map[census.Role]int{census.RoleReviewer: 1},
	}, OriginTargetConf)
	assert.Empty(t, findingsFor(findings, "reviewers"))
}

func TestIssuesCheck(t *testing.T) {
	conf := engineConf(t, "error=issues")

	findings := NewEngine().Run(Change{Title: "Fix it"}, conf, ReviewState{}, Requirement{}, OriginTargetConf)
	require.Len(t, findingsFor(findings, "issues"), 1)

	findings = NewEngine().Run(Change{Title: "8291234: Fix it"}, conf, ReviewState{}, Requirement{}, OriginTargetConf)
	assert.Empty(t, findingsFor(findings, "issues"))
}

func TestIssuesTitleCheck(t *testing.T) {
	conf := engineConf(t, "warning=issuestitle")

	findings := NewEngine().Run(Change{Title: "8291234: fix it."}, conf, ReviewState{}, Requirement{}, OriginTargetConf)
	titles := findingsFor(findings, "issuestitle")
	require.Len(t, titles, 2)
	assert.Equal(t, SeverityWarning, titles[0].Severity)
}

func TestExecutableAndSymlinkChecks(t *testing.T) {
	conf := engineConf(t, "error=executable,symlink")
	change := Change{
		Title: "1: X",
		Files: []ChangedFile{
			{Path: "run.sh", Status: FileAdded, Executable: true},
			{Path: "link", Status: FileAdded, Symlink: true},
			{Path: "gone.sh", Status: FileRemoved, Executable: true},
		},
	}
	findings := NewEngine().Run(change, conf, ReviewState{}, Requirement{}, OriginTargetConf)
	assert.Len(t, findingsFor(findings, "executable"), 1)
	assert.Len(t, findingsFor(findings, "symlink"), 1)
}

func TestDeduplicatePrefersTargetPass(t *testing.T) {
	findings := []Finding{
		{Check: "whitespace", Severity: SeverityError, Message: "same", Origin: OriginSourceConf},
		{Check: "whitespace", Severity: SeverityError, Message: "same", Origin: OriginTargetConf},
		{Check: "whitespace", Severity: SeverityError, Message: "source only", Origin: OriginSourceConf},
	}
	out := Deduplicate(findings)
	require.Len(t, out, 2)
	assert.Equal(t, OriginTargetConf, out[0].Origin)
	assert.Equal(t, "source only", out[1].Message)
}

func TestErrorsAndWarnings(t *testing.T) {
	findings := []Finding{
		{Check: "a", Severity: SeverityError},
		{Check: "b", Severity: SeverityWarning},
	}
	assert.Len(t, Errors(findings), 1)
	assert.Len(t, Warnings(findings), 1)
}
