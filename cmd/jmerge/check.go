package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/clock"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/forge"
	"github.com/openjdk/jmerge/pkg/logger"
	"github.com/openjdk/jmerge/pkg/tracker"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// checkCmd reconciles a single pull request once and exits. Useful for
// debugging a misbehaving pull request without running the full bot.
var checkCmd = &cobra.Command{
	Use:   "check <owner/repo> <number>",
	Short: "Run a single reconciliation for one pull request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rc := cfg.RepoFor(args[0])
		if rc == nil {
			return fmt.Errorf("repository %s is not configured", args[0])
		}
		number, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("malformed pull request number: %s", args[1])
		}

		ctx := cmd.Context()
		ghForge, err := forge.NewGitHubForge(ctx, cfg.ForgeToken)
		if err != nil {
			return err
		}
		trk := tracker.NewRESTTracker(cfg.TrackerURI, cfg.TrackerToken)
		scratch := vcs.NewScratchArea(cfg.ScratchDir)

		single := *cfg
		single.Repositories = []config.RepoConfig{*rc}
		bots, err := buildBots(ctx, &single, ghForge, trk, scratch, clock.NewRealClock(), logger.GetGlobalLogger())
		if err != nil {
			return err
		}

		owner, name, _ := strings.Cut(args[0], "/")
		id := types.PullRequestID{
			Repo:   types.RepositoryName{Owner: owner, Name: name},
			Number: number,
		}
		return bots[0].RunPullRequest(ctx, id)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
