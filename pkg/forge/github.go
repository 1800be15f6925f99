package forge

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/errors"
)

// GitHubForge implements Forge against the GitHub API.
type GitHubForge struct {
	client      *github.Client
	rateLimiter *RateLimiter
}

// NewGitHubForge creates a forge client. An explicit token takes precedence;
// otherwise the gh CLI's stored credentials are used.
func NewGitHubForge(ctx context.Context, token string) (*GitHubForge, error) {
	if token == "" {
		discovered, _ := auth.TokenForHost("github.com")
		token = discovered
	}
	if token == "" {
		return nil, errors.ConfigurationError("no forge token configured and no gh credentials found")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = 30 * time.Second

	return &GitHubForge{
		client:      github.NewClient(httpClient),
		rateLimiter: NewRateLimiter(5000, time.Hour),
	}, nil
}

// CloneURL returns the HTTPS clone URL for a repository.
func (f *GitHubForge) CloneURL(repo types.RepositoryName) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", repo.Owner, repo.Name)
}

// ListOpenPullRequests returns snapshots of all open pull requests.
func (f *GitHubForge) ListOpenPullRequests(ctx context.Context, repo types.RepositoryName) ([]*types.PullRequest, error) {
	var out []*types.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		prs, resp, err := f.client.PullRequests.List(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, errors.ForgeError("list pull requests", err)
		}
		for _, pr := range prs {
			snapshot, err := f.snapshot(ctx, repo, pr)
			if err != nil {
				return nil, err
			}
			out = append(out, snapshot)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetPullRequest returns a fresh snapshot of one pull request.
func (f *GitHubForge) GetPullRequest(ctx context.Context, id types.PullRequestID) (*types.PullRequest, error) {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	pr, _, err := f.client.PullRequests.Get(ctx, id.Repo.Owner, id.Repo.Name, id.Number)
	if err != nil {
		return nil, errors.ForgeError("get pull request", err)
	}
	return f.snapshot(ctx, id.Repo, pr)
}

func (f *GitHubForge) snapshot(ctx context.Context, repo types.RepositoryName, pr *github.PullRequest) (*types.PullRequest, error) {
	id := types.PullRequestID{Repo: repo, Number: pr.GetNumber()}

	snapshot := &types.PullRequest{
		ID:        id,
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		HeadHash:  pr.GetHead().GetSHA(),
		BaseRef:   pr.GetBase().GetRef(),
		SourceRef: pr.GetHead().GetRef(),
		Draft:     pr.GetDraft(),
		Open:      pr.GetState() == "open",
		Author:    pr.GetUser().GetLogin(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
		Checks:    map[string]types.Check{},
	}
	for _, label := range pr.Labels {
		snapshot.Labels = append(snapshot.Labels, label.GetName())
	}

	comments, err := f.listComments(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot.Comments = comments

	reviews, err := f.listReviews(ctx, id, snapshot.BaseRef)
	if err != nil {
		return nil, err
	}
	snapshot.Reviews = reviews

	checks, err := f.listChecks(ctx, id, snapshot.HeadHash)
	if err != nil {
		return nil, err
	}
	snapshot.Checks = checks

	return snapshot, nil
}

func (f *GitHubForge) listComments(ctx context.Context, id types.PullRequestID) ([]types.Comment, error) {
	var out []types.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		comments, resp, err := f.client.Issues.ListComments(ctx, id.Repo.Owner, id.Repo.Name, id.Number, opts)
		if err != nil {
			return nil, errors.ForgeError("list comments", err)
		}
		for _, c := range comments {
			out = append(out, types.Comment{
				ID:        strconv.FormatInt(c.GetID(), 10),
				Author:    c.GetUser().GetLogin(),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
				UpdatedAt: c.GetUpdatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (f *GitHubForge) listReviews(ctx context.Context, id types.PullRequestID, baseRef string) ([]types.Review, error) {
	var out []types.Review
	opts := &github.ListOptions{PerPage: 100}
	for {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		reviews, resp, err := f.client.PullRequests.ListReviews(ctx, id.Repo.Owner, id.Repo.Name, id.Number, opts)
		if err != nil {
			return nil, errors.ForgeError("list reviews", err)
		}
		for _, r := range reviews {
			verdict := types.VerdictComment
			switch r.GetState() {
			case "APPROVED":
				verdict = types.VerdictApproved
			case "CHANGES_REQUESTED":
				verdict = types.VerdictDisapproved
			}
			out = append(out, types.Review{
				ID:      strconv.FormatInt(r.GetID(), 10),
				Author:  r.GetUser().GetLogin(),
				Verdict: verdict,
				Hash:    r.GetCommitID(),
				// GitHub does not record the base ref a review was made
				// against; the base observed with the snapshot is the
				// closest available value.
				TargetRef: baseRef,
				Body:      r.GetBody(),
				CreatedAt: r.GetSubmittedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (f *GitHubForge) listChecks(ctx context.Context, id types.PullRequestID, headSHA string) (map[string]types.Check, error) {
	out := map[string]types.Check{}
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	runs, _, err := f.client.Checks.ListCheckRunsForRef(ctx, id.Repo.Owner, id.Repo.Name, headSHA, &github.ListCheckRunsOptions{})
	if err != nil {
		return nil, errors.ForgeError("list checks", err)
	}
	for _, run := range runs.CheckRuns {
		check := types.Check{
			Name:     run.GetName(),
			Title:    run.GetOutput().GetTitle(),
			Summary:  run.GetOutput().GetSummary(),
			Metadata: run.GetExternalID(),
		}
		switch run.GetStatus() {
		case "completed":
			switch run.GetConclusion() {
			case "success":
				check.Status = types.CheckSuccess
			case "cancelled":
				check.Status = types.CheckCancelled
			default:
				check.Status = types.CheckFailure
			}
			check.CompletedAt = run.GetCompletedAt().Time
		default:
			check.Status = types.CheckInProgress
		}
		check.StartedAt = run.GetStartedAt().Time
		out[check.Name] = check
	}
	return out, nil
}

// SetTitle replaces the pull request title.
func (f *GitHubForge) SetTitle(ctx context.Context, id types.PullRequestID, title string) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := f.client.PullRequests.Edit(ctx, id.Repo.Owner, id.Repo.Name, id.Number, &github.PullRequest{Title: github.String(title)})
	if err != nil {
		return errors.ForgeError("set title", err)
	}
	return nil
}

// SetBody replaces the pull request body.
func (f *GitHubForge) SetBody(ctx context.Context, id types.PullRequestID, body string) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := f.client.PullRequests.Edit(ctx, id.Repo.Owner, id.Repo.Name, id.Number, &github.PullRequest{Body: github.String(body)})
	if err != nil {
		return errors.ForgeError("set body", err)
	}
	return nil
}

// AddLabel adds a label to the pull request.
func (f *GitHubForge) AddLabel(ctx context.Context, id types.PullRequestID, label string) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := f.client.Issues.AddLabelsToIssue(ctx, id.Repo.Owner, id.Repo.Name, id.Number, []string{label})
	if err != nil {
		return errors.ForgeError("add label", err)
	}
	return nil
}

// RemoveLabel removes a label from the pull request.
func (f *GitHubForge) RemoveLabel(ctx context.Context, id types.PullRequestID, label string) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := f.client.Issues.RemoveLabelForIssue(ctx, id.Repo.Owner, id.Repo.Name, id.Number, label)
	if err != nil {
		// Racing another label removal is not an error.
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return errors.ForgeError("remove label", err)
	}
	return nil
}

// AddComment appends a conversation comment and returns its id.
func (f *GitHubForge) AddComment(ctx context.Context, id types.PullRequestID, body string) (string, error) {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	comment, _, err := f.client.Issues.CreateComment(ctx, id.Repo.Owner, id.Repo.Name, id.Number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return "", errors.ForgeError("add comment", err)
	}
	return strconv.FormatInt(comment.GetID(), 10), nil
}

// UpdateComment replaces an existing comment's body.
func (f *GitHubForge) UpdateComment(ctx context.Context, id types.PullRequestID, commentID, body string) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	cid, err := strconv.ParseInt(commentID, 10, 64)
	if err != nil {
		return errors.ValidationError("malformed comment id: " + commentID)
	}
	_, _, err = f.client.Issues.EditComment(ctx, id.Repo.Owner, id.Repo.Name, cid, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return errors.ForgeError("update comment", err)
	}
	return nil
}

// CreateCheck publishes a new status check run for the head commit.
func (f *GitHubForge) CreateCheck(ctx context.Context, id types.PullRequestID, check types.Check) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	opts := github.CreateCheckRunOptions{
		Name:       check.Name,
		HeadSHA:    checkHeadSHA(check),
		ExternalID: github.String(check.Metadata),
		Output: &github.CheckRunOutput{
			Title:   github.String(check.Title),
			Summary: github.String(check.Summary),
		},
	}
	applyCheckStatus(&opts.Status, &opts.Conclusion, check.Status)
	_, _, err := f.client.Checks.CreateCheckRun(ctx, id.Repo.Owner, id.Repo.Name, opts)
	if err != nil {
		return errors.ForgeError("create check", err)
	}
	return nil
}

// UpdateCheck updates the status check run for the head commit.
func (f *GitHubForge) UpdateCheck(ctx context.Context, id types.PullRequestID, check types.Check) error {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	runs, _, err := f.client.Checks.ListCheckRunsForRef(ctx, id.Repo.Owner, id.Repo.Name, checkHeadSHA(check), &github.ListCheckRunsOptions{
		CheckName: github.String(check.Name),
	})
	if err != nil {
		return errors.ForgeError("update check", err)
	}
	if len(runs.CheckRuns) == 0 {
		return f.CreateCheck(ctx, id, check)
	}

	opts := github.UpdateCheckRunOptions{
		Name:       check.Name,
		ExternalID: github.String(check.Metadata),
		Output: &github.CheckRunOutput{
			Title:   github.String(check.Title),
			Summary: github.String(check.Summary),
		},
	}
	applyCheckStatus(&opts.Status, &opts.Conclusion, check.Status)
	_, _, err = f.client.Checks.UpdateCheckRun(ctx, id.Repo.Owner, id.Repo.Name, runs.CheckRuns[0].GetID(), opts)
	if err != nil {
		return errors.ForgeError("update check", err)
	}
	return nil
}

// checkHeadSHA recovers the head hash from the check metadata, where the bot
// encodes it as the leading field.
func checkHeadSHA(check types.Check) string {
	// Fingerprint metadata begins with the source head hash.
	for i := 0; i < len(check.Metadata); i++ {
		if check.Metadata[i] == ';' {
			return check.Metadata[:i]
		}
	}
	return check.Metadata
}

func applyCheckStatus(status, conclusion **string, s types.CheckStatus) {
	switch s {
	case types.CheckSuccess:
		*status = github.String("completed")
		*conclusion = github.String("success")
	case types.CheckFailure:
		*status = github.String("completed")
		*conclusion = github.String("failure")
	case types.CheckCancelled:
		*status = github.String("completed")
		*conclusion = github.String("cancelled")
	default:
		*status = github.String("in_progress")
	}
}

var _ Forge = (*GitHubForge)(nil)
