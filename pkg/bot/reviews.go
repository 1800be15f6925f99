package bot

import (
	"context"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
)

// AssessedReview is a review verdict weighed against the current pull
// request state.
type AssessedReview struct {
	Review          types.Review
	Role            census.Role
	Active          bool
	SimpleMergeOnly bool
}

// ReviewAssessment is the review evaluator's contribution to the projection.
type ReviewAssessment struct {
	Reviews      []AssessedReview
	CountsByRole map[census.Role]int
	SelfApproved bool
}

// SimpleMergePredicate reports whether the head moved from the reviewed hash
// only by merging in upstream target changes. Backed by the VCS adapter's
// source-only patch comparison.
type SimpleMergePredicate func(ctx context.Context, reviewedHash, headHash string) (bool, error)

// ReviewEvaluator decides which review verdicts are active and whether the
// reviewer requirement is met.
type ReviewEvaluator struct {
	census census.Store
	repo   *config.RepoConfig
}

// NewReviewEvaluator creates a review evaluator.
func NewReviewEvaluator(cs census.Store, repo *config.RepoConfig) *ReviewEvaluator {
	return &ReviewEvaluator{census: cs, repo: repo}
}

// Evaluate assesses all reviews of the pull request. Only the latest verdict
// per reviewer counts. simpleMerge may be nil when the VCS is unavailable;
// accept-simple-merges is then effectively off.
func (e *ReviewEvaluator) Evaluate(ctx context.Context, pr *types.PullRequest, requirement jcheck.Requirement, simpleMerge SimpleMergePredicate) ReviewAssessment {
	assessment := ReviewAssessment{
		CountsByRole: map[census.Role]int{},
	}

	latest := map[string]types.Review{}
	var order []string
	for _, review := range pr.Reviews {
		if review.Verdict == types.VerdictComment {
			continue
		}
		if _, seen := latest[review.Author]; !seen {
			order = append(order, review.Author)
		}
		if prev, seen := latest[review.Author]; !seen || review.CreatedAt.After(prev.CreatedAt) {
			latest[review.Author] = review
		}
	}

	for _, author := range order {
		review := latest[author]
		assessed := AssessedReview{
			Review: review,
			Role:   e.census.RoleAt(author, review.CreatedAt),
		}
		assessed.Active, assessed.SimpleMergeOnly = e.isActive(ctx, pr, review, simpleMerge)
		assessment.Reviews = append(assessment.Reviews, assessed)

		if review.Verdict != types.VerdictApproved {
			continue
		}
		if author == pr.Author {
			assessment.SelfApproved = true
			continue
		}
		if requirement.Ignored(author) {
			continue
		}
		if assessed.Active || e.repo.UseStaleReviews {
			assessment.CountsByRole[assessed.Role]++
		}
	}
	return assessment
}

// isActive applies the staleness rules: a verdict stays active while its
// (hash, target ref) pair matches the pull request, and, with
// accept-simple-merges on, while the head has only moved by merging in
// upstream target changes.
func (e *ReviewEvaluator) isActive(ctx context.Context, pr *types.PullRequest, review types.Review, simpleMerge SimpleMergePredicate) (active, simpleOnly bool) {
	if review.TargetRef != "" && review.TargetRef != pr.BaseRef {
		return false, false
	}
	if review.Hash == pr.HeadHash {
		return true, false
	}
	if e.repo.AcceptSimpleMerges && simpleMerge != nil {
		equal, err := simpleMerge(ctx, review.Hash, pr.HeadHash)
		if err == nil && equal {
			return true, true
		}
	}
	return false, false
}

// ActiveReviewers lists the usernames whose verdicts are currently active.
func (a ReviewAssessment) ActiveReviewers() []string {
	var out []string
	for _, r := range a.Reviews {
		if r.Active {
			out = append(out, r.Review.Author)
		}
	}
	return out
}

// CreditedReviewers lists every reviewer who approved, stale or not, for the
// integration credit line.
func (a ReviewAssessment) CreditedReviewers() []string {
	var out []string
	for _, r := range a.Reviews {
		if r.Review.Verdict == types.VerdictApproved {
			out = append(out, r.Review.Author)
		}
	}
	return out
}
