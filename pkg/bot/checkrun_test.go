package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/testutil"
	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/clock"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/vcs"
)

const testBotUser = "jmerge"

const testCensus = `
version: "1"
group: test
members:
  - username: author
    role: author
  - username: reviewer
    role: reviewer
  - username: committer
    role: committer
  - username: bystander
    role: contributor
`

const testConf = `
[general]
project=test
version=17

[checks]
error=whitespace,reviewers

[checks "reviewers"]
reviewers=1
`

// harness wires a bot against the in-memory fakes.
type harness struct {
	t       *testing.T
	bot     *Bot
	forge   *testutil.FakeForge
	tracker *testutil.FakeTracker
	repo    *testutil.FakeRepo
	clk     *clock.FakeClock
	id      types.PullRequestID
}

func cleanDiff() []vcs.FileDiff {
	return []vcs.FileDiff{{
		Path:   "src/file.txt",
		Status: vcs.DiffModified,
		AddedLines: []vcs.DiffLine{
			{Number: 1, Text: "A clean line"},
		},
	}}
}

func newHarness(t *testing.T, mutate func(*config.RepoConfig)) *harness {
	t.Helper()

	rc := &config.RepoConfig{
		Repository:      "test/repo",
		IssueProject:    "TEST",
		UseStaleReviews: true,
		EnableBackport:  true,
		EnableCSR:       true,
	}
	if mutate != nil {
		mutate(rc)
	}

	censusStore, err := census.Parse([]byte(testCensus))
	require.NoError(t, err)

	fakeForge := testutil.NewFakeForge(testBotUser)
	fakeTracker := testutil.NewFakeTracker()
	repo := testutil.NewFakeRepo()
	repo.Refs["master"] = "target1"
	repo.DefaultDiff = cleanDiff()
	repo.SetFile("master", ".jcheck/conf", []byte(testConf))
	repo.SetFile("other", ".jcheck/conf", []byte(testConf))

	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	b := New(Options{
		Repo:       types.RepositoryName{Owner: "test", Name: "repo"},
		RepoConfig: rc,
		Forge:      fakeForge,
		Tracker:    fakeTracker,
		Census:     censusStore,
		VCS:        &testutil.FakeAccess{Repo: repo},
		Clock:      clk,
		BotUser:    testBotUser,
	})

	id := types.PullRequestID{Repo: b.Repository(), Number: 1}
	fakeForge.AddPullRequest(&types.PullRequest{
		ID:        id,
		Title:     "This is a pull request",
		Body:      "This is my change\n",
		HeadHash:  "head1",
		BaseRef:   "master",
		SourceRef: "edit",
		Open:      true,
		Author:    "author",
		CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	})

	return &harness{t: t, bot: b, forge: fakeForge, tracker: fakeTracker, repo: repo, clk: clk, id: id}
}

func (h *harness) run() {
	h.t.Helper()
	require.NoError(h.t, h.bot.Run(context.Background(), h.forge.PR(h.id)))
}

func (h *harness) pr() *types.PullRequest {
	return h.forge.PR(h.id)
}

func (h *harness) check() types.Check {
	return h.pr().Checks[CheckName]
}

func (h *harness) labels() map[string]bool {
	out := map[string]bool{}
	for _, l := range h.pr().Labels {
		out[l] = true
	}
	return out
}

func (h *harness) commentsContaining(needle string) []types.Comment {
	var out []types.Comment
	for _, c := range h.pr().Comments {
		if strings.Contains(c.Body, needle) {
			out = append(out, c)
		}
	}
	return out
}

func (h *harness) approve(reviewer, hash, targetRef string) {
	h.forge.AddReview(h.id, types.Review{
		Author:    reviewer,
		Verdict:   types.VerdictApproved,
		Hash:      hash,
		TargetRef: targetRef,
	})
}

func TestSimpleCommit(t *testing.T) {
	h := newHarness(t, nil)

	h.run()

	check := h.check()
	assert.Equal(t, types.CheckSuccess, check.Status)
	labels := h.labels()
	assert.True(t, labels[LabelRFR])
	assert.False(t, labels[LabelReady])
	assert.Contains(t, h.pr().Body, "1 review required, with at least 1 Reviewer")

	h.approve("reviewer", "head1", "master")
	h.run()

	labels = h.labels()
	assert.True(t, labels[LabelRFR])
	assert.True(t, labels[LabelReady])
}

func TestWhitespaceIssue(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()
	require.True(t, h.labels()[LabelReady])

	// A new revision introduces trailing whitespace.
	h.pr().HeadHash = "head2"
	h.repo.DefaultDiff = []vcs.FileDiff{{
		Path:   "src/file.txt",
		Status: vcs.DiffModified,
		AddedLines: []vcs.DiffLine{
			{Number: 1, Text: "An untidy line   "},
		},
	}}
	h.run()

	assert.Equal(t, types.CheckFailure, h.check().Status)
	labels := h.labels()
	assert.False(t, labels[LabelRFR])
	assert.False(t, labels[LabelReady])

	// The line is replaced with a clean one.
	h.pr().HeadHash = "head3"
	h.repo.DefaultDiff = cleanDiff()
	h.run()

	assert.Equal(t, types.CheckSuccess, h.check().Status)
	labels = h.labels()
	assert.True(t, labels[LabelRFR])
	assert.True(t, labels[LabelReady])
}

func TestSelfReview(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("author", "head1", "master")
	h.run()

	check := h.check()
	assert.Equal(t, types.CheckFailure, check.Status)
	assert.Contains(t, check.Summary, "Self-reviews are not allowed")
	assert.False(t, h.labels()[LabelReady])
}

func TestIssueInSummary(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.AddIssue(&types.IssueData{
		Project: "TEST", ID: "1", Title: "My first issue", Type: "Bug",
	})

	h.pr().Title = "TEST-1: This is a pull request"
	h.run()
	assert.Contains(t, h.pr().Body, "My first issue")

	h.pr().Title = "BADPROJECT-1"
	h.run()
	assert.Contains(t, h.pr().Body, "does not belong to the `TEST` project")

	h.pr().Title = "2384848: This is a pull request"
	h.run()
	assert.Contains(t, h.pr().Body, "Failed to retrieve")
	assert.Equal(t, types.CheckSuccess, h.check().Status)
}

func TestCannotRebase(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()
	require.True(t, h.labels()[LabelReady])

	// A conflicting commit lands on master.
	h.repo.Refs["master"] = "target2"
	h.repo.SetFile("target2", ".jcheck/conf", []byte(testConf))
	h.repo.RebaseConflicts = []string{"src/file.txt"}
	h.run()

	labels := h.labels()
	assert.True(t, labels[LabelMergeConflict])
	assert.False(t, labels[LabelReady])
	assert.Len(t, h.commentsContaining("To resolve these merge conflicts"), 1)

	// Master is restored.
	h.repo.Refs["master"] = "target1"
	h.repo.RebaseConflicts = nil
	h.run()

	labels = h.labels()
	assert.False(t, labels[LabelMergeConflict])
	assert.True(t, labels[LabelReady])
	assert.Len(t, h.commentsContaining("change now passes all *automated*"), 1)

	// Another run must not repost it.
	h.bot.cache.Expire(h.id)
	h.run()
	assert.Len(t, h.commentsContaining("change now passes all *automated*"), 1)
}

func TestReviewersCommand(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()
	require.True(t, h.labels()[LabelReady])

	h.forge.AddUserComment(h.id, "bystander", "/reviewers 2")
	h.run()
	assert.False(t, h.labels()[LabelReady])

	h.forge.AddUserComment(h.id, "author", "/reviewers 1")
	h.run()
	assert.False(t, h.labels()[LabelReady])
	replies := h.commentsContaining("Only Reviewers are allowed to decrease the number of required reviewers.")
	assert.Len(t, replies, 1)

	h.forge.AddUserComment(h.id, "reviewer", "/reviewers 1")
	h.run()
	assert.True(t, h.labels()[LabelReady])
}

func TestCleanBackport(t *testing.T) {
	h := newHarness(t, nil)
	h.tracker.AddIssue(&types.IssueData{
		Project: "TEST", ID: "1234567", Title: "Original fix", Type: "Bug",
	})

	original := "0123456789abcdef0123456789abcdef01234567"
	h.repo.Commits[original] = &types.CommitMetadata{
		Hash:    original,
		Message: []string{"1234567: Original fix"},
	}

	h.pr().Title = "Backport " + original
	h.run()

	assert.Equal(t, "1234567: Original fix", h.pr().Title)
	labels := h.labels()
	assert.True(t, labels[LabelBackport])
	assert.True(t, labels[LabelClean])
	assert.Len(t, h.commentsContaining("backport pull request"), 1)
}

func TestReconcilerIdempotence(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()

	// A second run with no external change applies no forge mutations,
	// with or without the fingerprint cache.
	h.forge.ResetMutations()
	h.run()
	assert.Equal(t, 0, h.forge.MutationCount())

	h.bot.cache.Expire(h.id)
	h.run()
	assert.Equal(t, 0, h.forge.MutationCount())
}

func TestMarkerUniqueness(t *testing.T) {
	h := newHarness(t, nil)
	h.forge.AddUserComment(h.id, "bystander", "/reviewers 2")
	h.run()
	h.bot.cache.Expire(h.id)
	h.run()

	seen := map[Marker]int{}
	for _, c := range h.pr().Comments {
		if c.Author != testBotUser {
			continue
		}
		if m, ok := ParseMarker(c.Body); ok {
			seen[m]++
		}
	}
	for marker, count := range seen {
		assert.Equal(t, 1, count, "marker %s appears %d times", marker, count)
	}
}

func TestLabelDeterminism(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()
	first := h.pr().Labels

	h.bot.cache.Expire(h.id)
	h.run()
	assert.ElementsMatch(t, first, h.pr().Labels)
}

func TestDraftExclusion(t *testing.T) {
	h := newHarness(t, nil)
	h.pr().Draft = true
	h.approve("reviewer", "head1", "master")
	h.run()

	labels := h.labels()
	assert.False(t, labels[LabelRFR])
	assert.False(t, labels[LabelReady])
}

func TestReadyImpliesRFR(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()

	labels := h.labels()
	if labels[LabelReady] {
		assert.True(t, labels[LabelRFR])
	}
}

func TestStaleRecoveryOnTargetRefRevert(t *testing.T) {
	h := newHarness(t, func(rc *config.RepoConfig) {
		rc.UseStaleReviews = false
	})
	h.repo.Refs["other"] = "othertarget"
	h.approve("reviewer", "head1", "master")
	h.run()
	require.True(t, h.labels()[LabelReady])

	// Retargeting the pull request makes the review stale.
	h.pr().BaseRef = "other"
	h.run()
	assert.False(t, h.labels()[LabelReady])

	// Reverting the target ref restores the verdict.
	h.pr().BaseRef = "master"
	h.run()
	assert.True(t, h.labels()[LabelReady])
}

func TestMergeConflictExcludesReady(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.repo.RebaseConflicts = []string{"src/file.txt"}
	h.run()

	labels := h.labels()
	assert.True(t, labels[LabelMergeConflict])
	assert.False(t, labels[LabelReady])
}

func TestIntegrateBySponsoredAuthor(t *testing.T) {
	h := newHarness(t, nil)
	h.approve("reviewer", "head1", "master")
	h.run()
	require.True(t, h.labels()[LabelReady])

	// The author holds the author role only, so integration waits for a
	// sponsor.
	h.forge.AddUserComment(h.id, "author", "/integrate")
	h.run()
	assert.Len(t, h.commentsContaining("ready to be sponsored"), 1)
	assert.True(t, h.labels()[LabelSponsor])

	h.forge.AddUserComment(h.id, "committer", "/sponsor")
	h.run()
	assert.Len(t, h.commentsContaining("Pushed as commit"), 1)
	assert.True(t, h.labels()[LabelIntegrated])
	assert.False(t, h.labels()[LabelSponsor])
}

func TestIntegrateNotReady(t *testing.T) {
	h := newHarness(t, nil)
	h.forge.AddUserComment(h.id, "author", "/integrate")
	h.run()
	assert.Len(t, h.commentsContaining("not yet been marked as ready"), 1)
	assert.False(t, h.labels()[LabelIntegrated])
}

func TestMergePRRefusedWhenDisabled(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.Refs["other"] = "othertarget"
	h.repo.Commits["head1"] = &types.CommitMetadata{Hash: "head1", Parents: []string{"p1"}}

	h.pr().Title = "Merge other:master"
	h.run()

	assert.Len(t, h.commentsContaining("does not allow merge-style pull requests"), 1)

	// The refusal is one-shot.
	h.bot.cache.Expire(h.id)
	h.run()
	assert.Len(t, h.commentsContaining("does not allow merge-style pull requests"), 1)
}

func TestMergePRRequiresMergeCommit(t *testing.T) {
	h := newHarness(t, func(rc *config.RepoConfig) {
		rc.EnableMerge = true
	})
	h.repo.Commits["head1"] = &types.CommitMetadata{Hash: "head1", Parents: []string{"p1"}}

	h.pr().Title = "Merge other:master"
	h.run()

	assert.Len(t, h.commentsContaining("must contain a merge commit"), 1)
}

func TestTouchExpiresCache(t *testing.T) {
	h := newHarness(t, nil)
	h.run()

	h.forge.ResetMutations()
	h.forge.AddUserComment(h.id, "author", "/touch")
	h.run()

	// The touch reply itself is a mutation; the run was not skipped.
	assert.Len(t, h.commentsContaining("re-evaluated"), 1)
}
