package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/bot"
	"github.com/openjdk/jmerge/pkg/census"
	"github.com/openjdk/jmerge/pkg/clock"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/forge"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/scheduler"
	"github.com/openjdk/jmerge/pkg/tracker"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// runCmd starts the bots and keeps reconciling until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured bots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runBots(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBots(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger()
	clk := clock.NewRealClock()

	ghForge, err := forge.NewGitHubForge(ctx, cfg.ForgeToken)
	if err != nil {
		return err
	}
	var trk tracker.Tracker
	if cfg.TrackerURI != "" {
		trk = tracker.NewRESTTracker(cfg.TrackerURI, cfg.TrackerToken)
	} else {
		return fmt.Errorf("tracker_uri must be configured")
	}
	scratch := vcs.NewScratchArea(cfg.ScratchDir)

	bots, err := buildBots(ctx, cfg, ghForge, trk, scratch, clk, log)
	if err != nil {
		return err
	}
	if len(bots) == 0 {
		return fmt.Errorf("no repositories configured")
	}

	registry := prometheus.NewRegistry()
	metrics := scheduler.NewMetrics(registry)
	sched := scheduler.New(scheduler.Config{
		Workers:     cfg.Workers,
		ItemTimeout: cfg.ItemTimeout,
		Clock:       clk,
		Logger:      log,
		Metrics:     metrics,
	})

	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, registry, log)
	}

	// Re-run affected pull requests when a linked issue changes.
	for _, b := range bots {
		if !b.IssuePRMapEnabled() {
			continue
		}
		b := b
		feed := b.PRMap().Subscribe()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-feed:
					sched.Enqueue(scheduler.Item{Bot: b, PR: id})
				}
			}
		}()
	}

	// Bots run with immutable configuration; a config file change adjusts
	// the log level live and warns that a restart is needed when the number
	// of configured repositories changes. Other changes are not applied.
	if cfgFile != "" {
		watcher := config.NewWatcher(cfgFile, log, func(next *config.Config) {
			applyLogLevel(next.LogLevel)
			if len(next.Repositories) != len(cfg.Repositories) {
				log.Warn("repository configuration changed; restart to apply")
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("config watcher stopped: %v", err)
			}
		}()
	}

	go pollLoop(ctx, cfg, bots, sched, log)
	log.Info("started %d bot(s) with %d workers", len(bots), cfg.Workers)

	sched.Run(ctx)
	log.Info("drained, shutting down")
	return nil
}

func buildBots(ctx context.Context, cfg *config.Config, ghForge forge.Forge, trk tracker.Tracker, scratch *vcs.ScratchArea, clk clock.Clock, log *logger.Logger) ([]*bot.Bot, error) {
	var bots []*bot.Bot
	for i := range cfg.Repositories {
		rc := &cfg.Repositories[i]
		owner, name, ok := strings.Cut(rc.Repository, "/")
		if !ok {
			return nil, fmt.Errorf("malformed repository name: %s", rc.Repository)
		}
		repo := types.RepositoryName{Owner: owner, Name: name}

		censusStore, err := loadCensus(ctx, rc, scratch)
		if err != nil {
			return nil, fmt.Errorf("loading census for %s: %w", rc.Repository, err)
		}

		var override vcs.Repository
		if rc.ConfOverride.Enabled() {
			overrideURL := "https://github.com/" + rc.ConfOverride.Repo + ".git"
			override, err = materializeStandalone(ctx, scratch, overrideURL)
			if err != nil {
				return nil, fmt.Errorf("loading conf override for %s: %w", rc.Repository, err)
			}
		}

		bots = append(bots, bot.New(bot.Options{
			Repo:         repo,
			RepoConfig:   rc,
			Forge:        ghForge,
			Tracker:      trk,
			Census:       censusStore,
			VCS:          scratch,
			OverrideRepo: override,
			Clock:        clk,
			Logger:       log,
			BotUser:      cfg.Name,
			SummaryCap:   cfg.CheckSummaryLimit,
		}))
	}
	return bots, nil
}

// loadCensus clones the census repository and parses census.yaml at the
// configured ref.
func loadCensus(ctx context.Context, rc *config.RepoConfig, scratch *vcs.ScratchArea) (census.Store, error) {
	if rc.CensusRepo == "" {
		return nil, fmt.Errorf("census_repo must be configured")
	}
	url := "https://github.com/" + rc.CensusRepo + ".git"
	ref := rc.CensusRef
	if ref == "" {
		ref = "HEAD"
	}

	var store census.Store
	err := scratch.WithRepository(ctx, url, func(repo vcs.Repository) error {
		data, err := repo.ReadFile(ctx, ref, "census.yaml")
		if err != nil {
			return err
		}
		store, err = census.Parse(data)
		return err
	})
	return store, err
}

// materializeStandalone pins a long-lived repository handle outside the
// scoped scratch discipline, for the conf override repo which is read on
// every check run.
func materializeStandalone(ctx context.Context, scratch *vcs.ScratchArea, url string) (vcs.Repository, error) {
	var repo vcs.Repository
	err := scratch.WithRepository(ctx, url, func(r vcs.Repository) error {
		repo = r
		return nil
	})
	return repo, err
}

// pollLoop periodically lists open pull requests and enqueues each one.
func pollLoop(ctx context.Context, cfg *config.Config, bots []*bot.Bot, sched *scheduler.Scheduler, log *logger.Logger) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	poll := func() {
		for _, b := range bots {
			prs, err := b.ListOpenPullRequests(ctx)
			if err != nil {
				log.Warn("%s: listing pull requests failed: %v", b.Repository(), err)
				continue
			}
			for _, pr := range prs {
				sched.Enqueue(scheduler.Item{Bot: b, PR: pr.ID})
			}
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func serveMetrics(address string, registry *prometheus.Registry, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics listening on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped: %v", err)
	}
}
