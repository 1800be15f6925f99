package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/logger"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jmerge",
	Short: "Pull request review bot for OpenJDK-style projects",
	Long: `jmerge continuously reconciles pull requests on watched repositories
against the project's structural and policy checks (jcheck), the issue
tracker, and the contributor census.

For every open pull request it maintains a canonical body, a label set,
a status check verdict, and the replies to commands such as /reviewers,
/integrate, /sponsor, /csr, /jep and /tag.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is jmerge.yaml in the working directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug output")
}

// applyLogLevel sets the global logger level from its config keyword.
func applyLogLevel(level string) {
	switch level {
	case "debug":
		logger.GetGlobalLogger().SetLevel(logger.LevelDebug)
	case "warn":
		logger.GetGlobalLogger().SetLevel(logger.LevelWarn)
	case "error":
		logger.GetGlobalLogger().SetLevel(logger.LevelError)
	default:
		logger.GetGlobalLogger().SetLevel(logger.LevelInfo)
	}
}

// loadConfig loads the process configuration and wires up the global logger.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("jmerge.yaml"); err == nil {
			path = "jmerge.yaml"
		}
	}
	cfg, err := config.NewLoader(path).LoadConfig()
	if err != nil {
		return nil, err
	}

	level := logger.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = logger.LevelDebug
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}
	if debug {
		level = logger.LevelDebug
	}
	log, err := logger.New(logger.Config{
		Level:     level,
		LogFile:   cfg.LogFile,
		Timestamp: true,
		Prefix:    cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(log)
	return cfg, nil
}
