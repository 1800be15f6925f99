package bot

import (
	"context"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/clock"
	"github.com/openjdk/jmerge/pkg/errors"
	"github.com/openjdk/jmerge/pkg/forge"
	"github.com/openjdk/jmerge/pkg/logger"
)

// Reconciler compares the desired state with the observed forge state and
// applies the minimal set of mutations. Running it twice with no external
// change applies nothing the second time.
type Reconciler struct {
	forge forge.Forge
	clk   clock.Clock
	log   *logger.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(f forge.Forge, clk clock.Clock, log *logger.Logger) *Reconciler {
	return &Reconciler{forge: f, clk: clk, log: log.WithPrefix("reconcile")}
}

// Apply pushes the desired state to the forge and returns the number of
// mutations performed. Mutations are retried with backoff; a persistent
// failure aborts the run and the work item is rescheduled.
func (r *Reconciler) Apply(ctx context.Context, pr *types.PullRequest, desired DesiredState, idx markerIndex) (int, error) {
	mutations := 0

	apply := func(op string, fn func() error) error {
		err := errors.RetryAdapterOperation(ctx, r.clk, fn)
		if err != nil {
			return err
		}
		r.log.Debug("%s: %s", pr.ID, op)
		mutations++
		return nil
	}

	if desired.NewTitle != "" && desired.NewTitle != pr.Title {
		if err := apply("set title", func() error {
			return r.forge.SetTitle(ctx, pr.ID, desired.NewTitle)
		}); err != nil {
			return mutations, err
		}
	}

	if err := r.applyLabels(ctx, pr, desired.Labels, apply); err != nil {
		return mutations, err
	}

	if desired.Body != pr.Body {
		if err := apply("set body", func() error {
			return r.forge.SetBody(ctx, pr.ID, desired.Body)
		}); err != nil {
			return mutations, err
		}
	}

	if err := r.applyCheck(ctx, pr, desired.Check, apply); err != nil {
		return mutations, err
	}

	if err := r.applyComments(ctx, pr, desired.Comments, idx, apply); err != nil {
		return mutations, err
	}

	return mutations, nil
}

func (r *Reconciler) applyLabels(ctx context.Context, pr *types.PullRequest, desired []string, apply func(string, func() error) error) error {
	want := map[string]bool{}
	for _, label := range desired {
		want[label] = true
	}
	have := map[string]bool{}
	for _, label := range pr.Labels {
		have[label] = true
	}

	for _, label := range desired {
		if !have[label] {
			label := label
			if err := apply("add label "+label, func() error {
				return r.forge.AddLabel(ctx, pr.ID, label)
			}); err != nil {
				return err
			}
		}
	}
	for _, label := range pr.Labels {
		if !want[label] {
			label := label
			if err := apply("remove label "+label, func() error {
				return r.forge.RemoveLabel(ctx, pr.ID, label)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reconciler) applyCheck(ctx context.Context, pr *types.PullRequest, desired types.Check, apply func(string, func() error) error) error {
	if desired.Name == "" {
		return nil
	}
	existing, ok := pr.Checks[desired.Name]
	if ok &&
		existing.Status == desired.Status &&
		existing.Title == desired.Title &&
		existing.Summary == desired.Summary &&
		existing.Metadata == desired.Metadata {
		return nil
	}
	if !ok {
		return apply("create check", func() error {
			return r.forge.CreateCheck(ctx, pr.ID, desired)
		})
	}
	return apply("update check", func() error {
		return r.forge.UpdateCheck(ctx, pr.ID, desired)
	})
}

func (r *Reconciler) applyComments(ctx context.Context, pr *types.PullRequest, comments []OutboundComment, idx markerIndex, apply func(string, func() error) error) error {
	posted := map[Marker]bool{}
	for _, comment := range comments {
		if posted[comment.Marker] {
			continue
		}
		posted[comment.Marker] = true
		body := comment.Marker.String() + "\n" + comment.Body

		existing, exists := idx[comment.Marker]
		switch {
		case exists && comment.OneShot:
			// Posted once; never rewritten.
		case exists && existing.Body != body:
			commentID := existing.ID
			if err := apply("update comment "+comment.Marker.Kind, func() error {
				return r.forge.UpdateComment(ctx, pr.ID, commentID, body)
			}); err != nil {
				return err
			}
		case !exists:
			if err := apply("add comment "+comment.Marker.Kind, func() error {
				_, err := r.forge.AddComment(ctx, pr.ID, body)
				return err
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
