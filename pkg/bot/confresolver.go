package bot

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openjdk/jmerge/pkg/config"
	"github.com/openjdk/jmerge/pkg/jcheck"
	"github.com/openjdk/jmerge/pkg/vcs"
)

// ResolutionKind classifies a configuration lookup outcome.
type ResolutionKind int

const (
	ResolutionOk ResolutionKind = iota
	ResolutionMissing
	ResolutionInvalid
)

// Resolution is the outcome of locating the effective jcheck configuration
// for a pull request.
type Resolution struct {
	Kind       ResolutionKind
	Conf       *jcheck.Conf
	Source     string
	Diagnostic string
}

// ConfResolver locates the effective jcheck configuration: an override
// location when configured, the target branch's .jcheck/conf otherwise.
// Override fetch failure is fatal for the pull request rather than silently
// falling back to the target configuration.
type ConfResolver struct {
	repo     *config.RepoConfig
	override vcs.Repository
}

// NewConfResolver creates a resolver. The override repository is only
// consulted when the repository configuration names one; pass nil otherwise.
func NewConfResolver(repo *config.RepoConfig, override vcs.Repository) *ConfResolver {
	return &ConfResolver{repo: repo, override: override}
}

// ResolveTarget loads the configuration governing the pull request's target.
func (r *ConfResolver) ResolveTarget(ctx context.Context, local vcs.Repository, targetRef string) Resolution {
	if r.repo.ConfOverride.Enabled() {
		return r.resolveOverride(ctx)
	}
	return loadConfAt(ctx, local, targetRef, jcheck.ConfPath, "branch "+targetRef)
}

func (r *ConfResolver) resolveOverride(ctx context.Context) Resolution {
	override := r.repo.ConfOverride
	source := fmt.Sprintf("override %s:%s (%s)", override.Repo, override.Ref, override.Name)
	if r.override == nil {
		return Resolution{Kind: ResolutionMissing, Source: source,
			Diagnostic: "the configured override repository is not available"}
	}
	ref := override.Ref
	if ref == "" {
		ref = "HEAD"
	}
	name := override.Name
	if name == "" {
		name = jcheck.ConfPath
	}
	return loadConfAt(ctx, r.override, ref, name, source)
}

// ResolveSource loads the configuration as modified by the pull request, for
// the advisory source pass.
func (r *ConfResolver) ResolveSource(ctx context.Context, local vcs.Repository, headHash string) Resolution {
	return loadConfAt(ctx, local, headHash, jcheck.ConfPath, "pull request head")
}

func loadConfAt(ctx context.Context, repo vcs.Repository, ref, path, source string) Resolution {
	data, err := repo.ReadFile(ctx, ref, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resolution{Kind: ResolutionMissing, Source: source,
				Diagnostic: fmt.Sprintf("no %s present at %s", path, source)}
		}
		return Resolution{Kind: ResolutionInvalid, Source: source, Diagnostic: err.Error()}
	}
	conf, err := jcheck.Parse(data)
	if err != nil {
		return Resolution{Kind: ResolutionInvalid, Source: source, Diagnostic: err.Error()}
	}
	return Resolution{Kind: ResolutionOk, Conf: conf, Source: source}
}
