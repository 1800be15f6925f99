package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
)

func reviewEvaluator(t *testing.T, mutate func(*config.RepoConfig)) *ReviewEvaluator {
	t.Helper()
	censusStore, err := census.Parse([]byte(testCensus))
	require.NoError(t, err)
	rc := &config.RepoConfig{Repository: "test/repo", IssueProject: "TEST"}
	if mutate != nil {
		mutate(rc)
	}
	return NewReviewEvaluator(censusStore, rc)
}

func oneReviewer() jcheck.Requirement {
	return jcheck.Requirement{Counts: map[census.Role]int{census.RoleReviewer: 1}}
}

func TestEvaluateActiveReview(t *testing.T) {
	e := reviewEvaluator(t, nil)
	pr := testPR("")
	pr.HeadHash = "head1"
	pr.BaseRef = "master"
	pr.Reviews = []types.Review{{
		ID: "r1", Author: "reviewer", Verdict: types.VerdictApproved,
		Hash: "head1", TargetRef: "master", CreatedAt: time.Now(),
	}}

	a := e.Evaluate(context.Background(), pr, oneReviewer(), nil)
	assert.Equal(t, 1, a.CountsByRole[census.RoleReviewer])
	assert.True(t, a.Reviews[0].Active)
}

func TestEvaluateStaleOnNewHead(t *testing.T) {
	e := reviewEvaluator(t, nil)
	pr := testPR("")
	pr.HeadHash = "head2"
	pr.BaseRef = "master"
	pr.Reviews = []types.Review{{
		ID: "r1", Author: "reviewer", Verdict: types.VerdictApproved,
		Hash: "head1", TargetRef: "master", CreatedAt: time.Now(),
	}}

	a := e.Evaluate(context.Background(), pr, oneReviewer(), nil)
	assert.Equal(t, 0, a.CountsByRole[census.RoleReviewer])
	assert.False(t, a.Reviews[0].Active)
}

func TestEvaluateAcceptSimpleMerges(t *testing.T) {
	e := reviewEvaluator(t, func(rc *config.RepoConfig) {
		rc.AcceptSimpleMerges = true
	})
	pr := testPR("")
	pr.HeadHash = "head2"
	pr.BaseRef = "master"
	pr.Reviews = []types.Review{{
		ID: "r1", Author: "reviewer", Verdict: types.VerdictApproved,
		Hash: "head1", TargetRef: "master", CreatedAt: time.Now(),
	}}

	a := e.Evaluate(context.Background(), pr, oneReviewer(), func(_ context.Context, reviewed, head string) (bool, error) {
		return reviewed == "head1" && head == "head2", nil
	})
	require.True(t, a.Reviews[0].Active)
	assert.True(t, a.Reviews[0].SimpleMergeOnly)
	assert.Equal(t, 1, a.CountsByRole[census.RoleReviewer])
}

func TestEvaluateSelfReview(t *testing.T) {
	e := reviewEvaluator(t, nil)
	pr := testPR("")
	pr.HeadHash = "head1"
	pr.BaseRef = "master"
	pr.Reviews = []types.Review{{
		ID: "r1", Author: "author", Verdict: types.VerdictApproved,
		Hash: "head1", TargetRef: "master", CreatedAt: time.Now(),
	}}

	a := e.Evaluate(context.Background(), pr, oneReviewer(), nil)
	assert.True(t, a.SelfApproved)
	assert.Equal(t, 0, a.CountsByRole[census.RoleAuthor])
}

func TestEvaluateLatestVerdictWins(t *testing.T) {
	e := reviewEvaluator(t, nil)
	base := time.Now()
	pr := testPR("")
	pr.HeadHash = "head1"
	pr.BaseRef = "master"
	pr.Reviews = []types.Review{
		{ID: "r1", Author: "reviewer", Verdict: types.VerdictApproved, Hash: "head1", TargetRef: "master", CreatedAt: base},
		{ID: "r2", Author: "reviewer", Verdict: types.VerdictDisapproved, Hash: "head1", TargetRef: "master", CreatedAt: base.Add(time.Hour)},
	}

	a := e.Evaluate(context.Background(), pr, oneReviewer(), nil)
	require.Len(t, a.Reviews, 1)
	assert.Equal(t, types.VerdictDisapproved, a.Reviews[0].Review.Verdict)
	assert.Equal(t, 0, a.CountsByRole[census.RoleReviewer])
}

func TestEvaluateIgnoredReviewer(t *testing.T) {
	e := reviewEvaluator(t, nil)
	pr := testPR("")
	pr.HeadHash = "head1"
	pr.BaseRef = "master"
	pr.Reviews = []types.Review{{
		ID: "r1", Author: "reviewer", Verdict: types.VerdictApproved,
		Hash: "head1", TargetRef: "master", CreatedAt: time.Now(),
	}}

	requirement := oneReviewer()
	requirement.Ignore = []string{"reviewer"}
	a := e.Evaluate(context.Background(), pr, requirement, nil)
	assert.Equal(t, 0, a.CountsByRole[census.RoleReviewer])
}
