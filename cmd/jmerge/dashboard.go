package main

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/bot"
	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/dashboard"
	"github.com/openjdk/jmerge/pkg/forge"
)

// dashboardCmd shows a live table of the watched pull requests.
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show a live dashboard of watched pull requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ghForge, err := forge.NewGitHubForge(cmd.Context(), cfg.ForgeToken)
		if err != nil {
			return err
		}

		source := &forgeSource{forge: ghForge, cfg: cfg}
		model := dashboard.NewModel(source, cfg.PollInterval)
		_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

// forgeSource lists open pull requests of every configured repository.
type forgeSource struct {
	forge forge.Forge
	cfg   *config.Config
}

// Snapshot implements dashboard.Source.
func (s *forgeSource) Snapshot(ctx context.Context) ([]dashboard.Row, error) {
	var rows []dashboard.Row
	for i := range s.cfg.Repositories {
		owner, name, ok := strings.Cut(s.cfg.Repositories[i].Repository, "/")
		if !ok {
			continue
		}
		prs, err := s.forge.ListOpenPullRequests(ctx, types.RepositoryName{Owner: owner, Name: name})
		if err != nil {
			return nil, err
		}
		for _, pr := range prs {
			check := "-"
			if c, ok := pr.Checks[bot.CheckName]; ok {
				check = c.Status.String()
			}
			rows = append(rows, dashboard.Row{
				Repo:   pr.ID.Repo.String(),
				Number: pr.ID.Number,
				Title:  pr.Title,
				Author: pr.Author,
				Labels: pr.Labels,
				Check:  check,
			})
		}
	}
	return rows, nil
}
