package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/testutil"
	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
)

func TestCanonicalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"plain", "This is a pull request", "This is a pull request"},
		{"already canonical", "123: Fix the thing", "123: Fix the thing"},
		{"leading whitespace", "   123: Fix the thing", "123: Fix the thing"},
		{"dash separator", "123 - Fix the thing", "123: Fix the thing"},
		{"double space separator", "123  Fix the thing", "123: Fix the thing"},
		{"non-breaking space", "123: Fix the thing", "123: Fix the thing"},
		{"nbsp separator", "123 Fix the thing", "123: Fix the thing"},
		{"project prefix", "TEST-123: Fix the thing", "TEST-123: Fix the thing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalizeTitle(tt.title))
		})
	}
}

func newLinker(t *testing.T) (*IssueLinker, *testutil.FakeTracker) {
	t.Helper()
	trk := testutil.NewFakeTracker()
	rc := &config.RepoConfig{
		Repository:   "test/repo",
		IssueProject: "TEST",
		EnableCSR:    true,
		EnableJEP:    true,
	}
	return NewIssueLinker(trk, rc), trk
}

func emptyCommands() *CommandState {
	return &CommandState{RemovedIssues: map[string]bool{}}
}

func testJCheckConf(t *testing.T) *jcheck.Conf {
	t.Helper()
	conf, err := jcheck.Parse([]byte(testConf))
	require.NoError(t, err)
	return conf
}

func TestLinkBareIDRewritesTitle(t *testing.T) {
	linker, trk := newLinker(t)
	trk.AddIssue(&types.IssueData{Project: "TEST", ID: "42", Title: "Fix the widget", Type: "Bug"})

	pr := testPR("")
	pr.Title = "42"
	linkage := linker.Link(context.Background(), pr, testJCheckConf(t), emptyCommands())

	assert.Equal(t, "42: Fix the widget", linkage.NewTitle)
	require.NotNil(t, linkage.Primary)
	assert.Empty(t, linkage.Blockers)
}

func TestLinkTruncatedTitleRestored(t *testing.T) {
	linker, trk := newLinker(t)
	trk.AddIssue(&types.IssueData{Project: "TEST", ID: "42", Title: "Fix the widget factory", Type: "Bug"})

	pr := testPR("")
	pr.Title = "42: Fix the widget…"
	linkage := linker.Link(context.Background(), pr, testJCheckConf(t), emptyCommands())

	assert.Equal(t, "42: Fix the widget factory", linkage.NewTitle)
}

func TestLinkCSRBlocksIntegration(t *testing.T) {
	linker, trk := newLinker(t)
	trk.AddIssue(&types.IssueData{
		Project: "TEST", ID: "42", Title: "Fix the widget", Type: "Bug",
		Links: []types.IssueLink{{Relationship: "csr for", Project: "TEST", ID: "43"}},
	})
	trk.AddIssue(&types.IssueData{
		Project: "TEST", ID: "43", Title: "Fix the widget (CSR)", Type: "CSR",
		State: types.IssueOpen, Status: "Provisional",
	})

	pr := testPR("")
	pr.Title = "42: Fix the widget"
	linkage := linker.Link(context.Background(), pr, testJCheckConf(t), emptyCommands())

	require.Len(t, linkage.Issues, 2)
	assert.Equal(t, "CSR", linkage.Issues[1].Kind)
	require.Len(t, linkage.Blockers, 1)
	assert.Contains(t, linkage.Blockers[0], "CSR")
}

func TestLinkJEPLabelPolicy(t *testing.T) {
	linker, trk := newLinker(t)
	trk.AddIssue(&types.IssueData{
		Project: "TEST", ID: "100", Title: "A grand proposal", Type: "JEP",
		Status: "Submitted",
	})

	pr := testPR("")
	pr.Title = "Something without an issue"
	commands := emptyCommands()
	commands.JEPID = "100"
	linkage := linker.Link(context.Background(), pr, testJCheckConf(t), commands)
	assert.True(t, linkage.JEPLabelNeeded)

	trk.AddIssue(&types.IssueData{
		Project: "TEST", ID: "100", Title: "A grand proposal", Type: "JEP",
		Status: "Targeted",
	})
	linkage = linker.Link(context.Background(), pr, testJCheckConf(t), commands)
	assert.False(t, linkage.JEPLabelNeeded)
}

func TestLinkAdditionalIssues(t *testing.T) {
	linker, trk := newLinker(t)
	trk.AddIssue(&types.IssueData{Project: "TEST", ID: "42", Title: "Fix the widget", Type: "Bug"})
	trk.AddIssue(&types.IssueData{Project: "TEST", ID: "43", Title: "Another fix", Type: "Bug"})

	pr := testPR("")
	pr.Title = "42: Fix the widget"
	commands := emptyCommands()
	commands.AdditionalIssues = []string{"43", "44"}
	linkage := linker.Link(context.Background(), pr, testJCheckConf(t), commands)

	require.Len(t, linkage.Issues, 2)
	require.Len(t, linkage.Blockers, 1)
	assert.Contains(t, linkage.Blockers[0], "44")
}

func TestLinkVersionMismatchWarning(t *testing.T) {
	trk := testutil.NewFakeTracker()
	rc := &config.RepoConfig{
		Repository:             "test/repo",
		IssueProject:           "TEST",
		VersionMismatchWarning: true,
	}
	linker := NewIssueLinker(trk, rc)
	trk.AddIssue(&types.IssueData{
		Project: "TEST", ID: "42", Title: "Fix the widget", Type: "Bug",
		FixVersions: []string{"21"},
	})

	pr := testPR("")
	pr.Title = "42: Fix the widget"
	linkage := linker.Link(context.Background(), pr, testJCheckConf(t), emptyCommands())

	require.Len(t, linkage.Warnings, 1)
	assert.Contains(t, linkage.Warnings[0], "backport issue will be created")
}
