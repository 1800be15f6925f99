package bot

import (
	"context"
	"time"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/clock"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/forge"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/tracker"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// RepositoryAccess hands out scoped local repository snapshots. Implemented
// by the VCS scratch area; test fakes substitute an in-memory repository.
type RepositoryAccess interface {
	WithRepository(ctx context.Context, url string, fn func(vcs.Repository) error) error
}

// Options bundles a Bot's collaborators.
type Options struct {
	Repo         types.RepositoryName
	RepoConfig   *config.RepoConfig
	Forge        forge.Forge
	Tracker      tracker.Tracker
	Census       census.Store
	VCS          RepositoryAccess
	OverrideRepo vcs.Repository
	Clock        clock.Clock
	Logger       *logger.Logger
	BotUser      string
	SummaryCap   int
	CacheTTL     time.Duration
	CacheSize    int
}

// Bot reconciles every pull request of one watched repository.
type Bot struct {
	repo       types.RepositoryName
	repoConfig *config.RepoConfig

	forge   forge.Forge
	tracker tracker.Tracker
	census  census.Store
	vcs     RepositoryAccess

	resolver   *ConfResolver
	linker     *IssueLinker
	evaluator  *ReviewEvaluator
	prober     *MergeabilityProber
	executor   *CheckExecutor
	reconciler *Reconciler
	cache      *ResultCache
	prmap      *PRMap

	clk        clock.Clock
	log        *logger.Logger
	botUser    string
	summaryCap int
}

// New creates a bot for one repository with immutable configuration.
func New(opts Options) *Bot {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithPrefix(opts.Repo.String())

	summaryCap := opts.SummaryCap
	if summaryCap == 0 {
		summaryCap = 65536
	}
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	size := opts.CacheSize
	if size == 0 {
		size = 1000
	}

	return &Bot{
		repo:       opts.Repo,
		repoConfig: opts.RepoConfig,
		forge:      opts.Forge,
		tracker:    opts.Tracker,
		census:     opts.Census,
		vcs:        opts.VCS,
		resolver:   NewConfResolver(opts.RepoConfig, opts.OverrideRepo),
		linker:     NewIssueLinker(opts.Tracker, opts.RepoConfig),
		evaluator:  NewReviewEvaluator(opts.Census, opts.RepoConfig),
		prober:     NewMergeabilityProber(opts.RepoConfig),
		executor:   NewCheckExecutor(),
		reconciler: NewReconciler(opts.Forge, clk, log),
		cache:      NewResultCache(clk, ttl, size),
		prmap:      NewPRMap(),
		clk:        clk,
		log:        log,
		botUser:    opts.BotUser,
		summaryCap: summaryCap,
	}
}

// Repository returns the repository this bot is bound to.
func (b *Bot) Repository() types.RepositoryName {
	return b.repo
}

// PRMap exposes the issue fan-out map, shared with the tracker change feed.
func (b *Bot) PRMap() *PRMap {
	return b.prmap
}

// IssuePRMapEnabled reports whether tracker-side changes should fan out to
// pull request rechecks for this repository.
func (b *Bot) IssuePRMapEnabled() bool {
	return b.repoConfig.IssuePRMap
}

// ScheduleRecheckAt invalidates the check cache for a pull request at a
// future instant.
func (b *Bot) ScheduleRecheckAt(id types.PullRequestID, at time.Time) {
	b.cache.ScheduleRecheckAt(id, at)
}

// ListOpenPullRequests lists the work items this bot currently has.
func (b *Bot) ListOpenPullRequests(ctx context.Context) ([]*types.PullRequest, error) {
	return b.forge.ListOpenPullRequests(ctx, b.repo)
}

// RunPullRequest fetches a fresh snapshot and reconciles it.
func (b *Bot) RunPullRequest(ctx context.Context, id types.PullRequestID) error {
	pr, err := b.forge.GetPullRequest(ctx, id)
	if err != nil {
		return err
	}
	return b.Run(ctx, pr)
}
