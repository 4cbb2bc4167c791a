package jobs

import (
	"context"

	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/wiki"
)

// Sweeper deletes pending links whose terms now resolve.
type Sweeper interface {
	Sweep(ctx context.Context) (wiki.SweepResult, error)
}

// ReadInvalidator drops cached wiki reads.
type ReadInvalidator interface {
	InvalidateReads(ctx context.Context)
}

// ReconcileJob runs the pending link sweep. Cached reads are dropped when the
// sweep deletes anything.
type ReconcileJob struct {
	Sweeper Sweeper
	Reads   ReadInvalidator
}

// Name implements Job.
func (ReconcileJob) Name() string { return "reconcile-pending" }

// Run implements Job.
func (j ReconcileJob) Run(ctx context.Context) error {
	result, err := j.Sweeper.Sweep(ctx)
	if result.Deleted > 0 && j.Reads != nil {
		j.Reads.InvalidateReads(ctx)
	}
	return err
}

// Pruner drops expired cache items.
type Pruner interface {
	Prune() int
}

// CachePruneJob evicts expired items from an in-process cache.
type CachePruneJob struct {
	Cache  Pruner
	Logger *logrus.Logger
}

// Name implements Job.
func (CachePruneJob) Name() string { return "cache-prune" }

// Run implements Job.
func (j CachePruneJob) Run(context.Context) error {
	pruned := j.Cache.Prune()
	if pruned > 0 && j.Logger != nil {
		j.Logger.WithFields(logrus.Fields{"component": "jobs.cache_prune", "pruned": pruned}).Debug("pruned expired cache items")
	}
	return nil
}
