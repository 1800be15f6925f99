// Package config provides configuration management for the jmerge bot
// process and the per-repository bot instances it hosts.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// ReviewMergePolicy controls whether merge-style pull requests require review.
type ReviewMergePolicy string

const (
	ReviewMergeNever    ReviewMergePolicy = "never"
	ReviewMergeAlways   ReviewMergePolicy = "always"
	ReviewMergeByConfig ReviewMergePolicy = "byConfig"
)

// ApprovalConfig configures the maintainer approval workflow for update
// releases.
type ApprovalConfig struct {
	Prefix            string `yaml:"prefix"`
	RequestSuffix     string `yaml:"request_suffix"`
	ApprovedSuffix    string `yaml:"approved_suffix"`
	RejectedSuffix    string `yaml:"rejected_suffix"`
	DocumentationURL  string `yaml:"documentation_url"`
	GeneratedApproval bool   `yaml:"generated_approval"`
	Label             string `yaml:"label"`
}

// Enabled reports whether the approval workflow is configured at all.
func (a ApprovalConfig) Enabled() bool {
	return a.Prefix != ""
}

// RequestLabel returns the tracker label that marks a pending request for the
// given fix version.
func (a ApprovalConfig) RequestLabel(version string) string {
	return a.Prefix + version + a.RequestSuffix
}

// ApprovedLabel returns the tracker label that marks an approved request.
func (a ApprovalConfig) ApprovedLabel(version string) string {
	return a.Prefix + version + a.ApprovedSuffix
}

// RejectedLabel returns the tracker label that marks a rejected request.
func (a ApprovalConfig) RejectedLabel(version string) string {
	return a.Prefix + version + a.RejectedSuffix
}

// ConfOverrideConfig points the jcheck configuration at a location other than
// the target branch's .jcheck/conf.
type ConfOverrideConfig struct {
	Repo string `yaml:"repo"`
	Name string `yaml:"name"`
	Ref  string `yaml:"ref"`
}

// Enabled reports whether an override location is configured.
func (c ConfOverrideConfig) Enabled() bool {
	return c.Repo != ""
}

// RepoConfig is the per-repository bot configuration.
type RepoConfig struct {
	Repository             string             `yaml:"repository"`
	CensusRepo             string             `yaml:"census_repo"`
	CensusRef              string             `yaml:"census_ref"`
	CensusLink             string             `yaml:"census_link"`
	IssueProject           string             `yaml:"issue_project"`
	IssuePRMap             bool               `yaml:"issue_pr_map"`
	EnableCSR              bool               `yaml:"enable_csr"`
	EnableJEP              bool               `yaml:"enable_jep"`
	EnableMerge            bool               `yaml:"enable_merge"`
	EnableBackport         bool               `yaml:"enable_backport"`
	UseStaleReviews        bool               `yaml:"use_stale_reviews"`
	AcceptSimpleMerges     bool               `yaml:"accept_simple_merges"`
	AllowedTargetBranches  string             `yaml:"allowed_target_branches"`
	ReadyLabels            []string           `yaml:"ready_labels"`
	ReadyComments          map[string]string  `yaml:"ready_comments"`
	BlockingCheckLabels    map[string]string  `yaml:"blocking_check_labels"`
	TwoReviewersLabels     []string           `yaml:"two_reviewers_labels"`
	ConfOverride           ConfOverrideConfig `yaml:"conf_override"`
	ReviewMerge            ReviewMergePolicy  `yaml:"review_merge"`
	MLBridgeBotName        string             `yaml:"mlbridge_bot_name"`
	Integrators            []string           `yaml:"integrators"`
	Approval               ApprovalConfig     `yaml:"approval"`
	VersionMismatchWarning bool               `yaml:"version_mismatch_warning"`
	SeedStorage            string             `yaml:"seed_storage"`
	Forks                  map[string]string  `yaml:"forks"`
	KeepAliveWindow        time.Duration      `yaml:"keep_alive_window"`
}

// AllowedTargetPattern compiles the allowed target branch expression; a nil
// result means every branch is allowed.
func (rc *RepoConfig) AllowedTargetPattern() (*regexp.Regexp, error) {
	if rc.AllowedTargetBranches == "" {
		return nil, nil
	}
	return regexp.Compile(rc.AllowedTargetBranches)
}

// IsIntegrator reports whether the forge user is a configured integrator.
func (rc *RepoConfig) IsIntegrator(username string) bool {
	for _, i := range rc.Integrators {
		if i == username {
			return true
		}
	}
	return false
}

// Config is the process-level jmerge configuration.
type Config struct {
	Name              string        `yaml:"name"`
	LogFile           string        `yaml:"log_file"`
	LogLevel          string        `yaml:"log_level"`
	ScratchDir        string        `yaml:"scratch_dir"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	Workers           int           `yaml:"workers"`
	ItemTimeout       time.Duration `yaml:"item_timeout"`
	MetricsAddress    string        `yaml:"metrics_address"`
	CheckSummaryLimit int           `yaml:"check_summary_limit"`
	ForgeToken        string        `yaml:"forge_token"`
	TrackerURI        string        `yaml:"tracker_uri"`
	TrackerToken      string        `yaml:"tracker_token"`
	Repositories      []RepoConfig  `yaml:"repositories"`
}

// DefaultConfig returns a configuration with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Name:              "jmerge",
		LogLevel:          "info",
		ScratchDir:        defaultScratchDir(),
		PollInterval:      30 * time.Second,
		Workers:           4,
		ItemTimeout:       10 * time.Minute,
		CheckSummaryLimit: 65536,
	}
}

func defaultScratchDir() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return ".jmerge"
	}
	return cache + "/jmerge"
}

// ApplyEnvironmentOverrides overlays environment variables onto the config.
func (c *Config) ApplyEnvironmentOverrides() {
	if v := os.Getenv("JMERGE_FORGE_TOKEN"); v != "" {
		c.ForgeToken = v
	}
	if v := os.Getenv("JMERGE_TRACKER_TOKEN"); v != "" {
		c.TrackerToken = v
	}
	if v := os.Getenv("JMERGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("JMERGE_SCRATCH_DIR"); v != "" {
		c.ScratchDir = v
	}
	if v := os.Getenv("JMERGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.ItemTimeout <= 0 {
		return fmt.Errorf("item_timeout must be positive")
	}
	if c.CheckSummaryLimit <= 0 {
		return fmt.Errorf("check_summary_limit must be positive")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	seen := map[string]bool{}
	for i := range c.Repositories {
		rc := &c.Repositories[i]
		if rc.Repository == "" {
			return fmt.Errorf("repositories[%d]: repository cannot be empty", i)
		}
		if seen[rc.Repository] {
			return fmt.Errorf("repository %s configured twice", rc.Repository)
		}
		seen[rc.Repository] = true
		if rc.IssueProject == "" {
			return fmt.Errorf("repository %s: issue_project cannot be empty", rc.Repository)
		}
		switch rc.ReviewMerge {
		case "", ReviewMergeNever, ReviewMergeAlways, ReviewMergeByConfig:
		default:
			return fmt.Errorf("repository %s: invalid review_merge policy %q", rc.Repository, rc.ReviewMerge)
		}
		if _, err := rc.AllowedTargetPattern(); err != nil {
			return fmt.Errorf("repository %s: invalid allowed_target_branches: %w", rc.Repository, err)
		}
	}
	return nil
}

// RepoFor returns the repository configuration for the given owner/name, or
// nil if it is not watched.
func (c *Config) RepoFor(repository string) *RepoConfig {
	for i := range c.Repositories {
		if c.Repositories[i].Repository == repository {
			return &c.Repositories[i]
		}
	}
	return nil
}
