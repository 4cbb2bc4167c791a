package wiki

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikilinks/app/internal/events"
	applog "wikilinks/app/internal/log"
	"wikilinks/app/internal/metrics"
)

const sweepBatchSize = 500

// Reconciler deletes pending links once their term resolves to an entry.
type Reconciler struct {
	entries EntryRepository
	pending PendingRepository
	logger  *logrus.Entry
	hub     *sentry.Hub
}

// SweepResult summarises one sweep.
type SweepResult struct {
	TermsChecked  int   `json:"terms_checked"`
	TermsResolved int   `json:"terms_resolved"`
	Deleted       int64 `json:"deleted"`
}

// NewReconciler constructs a reconciler over the entry and pending repositories.
func NewReconciler(entries EntryRepository, pending PendingRepository, logger *logrus.Logger, hub *sentry.Hub) (*Reconciler, error) {
	if entries == nil {
		return nil, eris.New("entry repository is required")
	}
	if pending == nil {
		return nil, eris.New("pending link repository is required")
	}

	return &Reconciler{
		entries: entries,
		pending: pending,
		logger:  applog.Component(logger, "wiki.reconciler"),
		hub:     hub,
	}, nil
}

// Register subscribes the reconciler to NamesClaimed events on bus.
func (r *Reconciler) Register(bus *events.Bus) {
	bus.Subscribe(EventNamesClaimed, "wiki.reconciler", r.Handle)
}

// Handle deletes the pending links of every claimed name. Each name is handled on
// its own so one failure does not stop the rest.
func (r *Reconciler) Handle(ctx context.Context, event events.Event) error {
	claimed, ok := event.(NamesClaimed)
	if !ok {
		return eris.Errorf("unexpected event type %T", event)
	}

	var failures []error
	for _, name := range claimed.Names {
		deleted, err := r.reconcileName(ctx, name, claimed.Reason)
		if err != nil {
			failures = append(failures, err)
			continue
		}

		if deleted > 0 {
			r.logger.WithFields(logrus.Fields{
				"entry_id": claimed.EntryID,
				"slug":     claimed.Slug,
				"term":     name,
				"reason":   claimed.Reason,
				"deleted":  deleted,
			}).Info("resolved pending links")
		}
	}

	return errors.Join(failures...)
}

// Sweep deletes the pending links of every pending term that now resolves. It repairs
// state left behind when an entry committed but its reconciliation never ran.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	keys, err := r.pending.DistinctTermKeys(ctx)
	if err != nil {
		return result, eris.Wrap(err, "listing pending terms for sweep")
	}
	result.TermsChecked = len(keys)

	var failures []error
	for start := 0; start < len(keys); start += sweepBatchSize {
		end := min(start+sweepBatchSize, len(keys))

		claimed, err := r.entries.ClaimedKeys(ctx, keys[start:end])
		if err != nil {
			return result, eris.Wrap(err, "reading claimed names for sweep")
		}

		for _, key := range claimed {
			deleted, err := r.reconcileName(ctx, key, ReasonSweep)
			if err != nil {
				failures = append(failures, err)
				continue
			}
			result.TermsResolved++
			result.Deleted += deleted
		}
	}

	r.logger.WithFields(logrus.Fields{
		"terms_checked":  result.TermsChecked,
		"terms_resolved": result.TermsResolved,
		"deleted":        result.Deleted,
	}).Info("pending link sweep complete")

	return result, errors.Join(failures...)
}

func (r *Reconciler) reconcileName(ctx context.Context, name, reason string) (int64, error) {
	key := NormalizeTerm(name)
	if key == "" {
		return 0, nil
	}

	deleted, err := r.pending.DeleteByTermKey(ctx, key)
	if err != nil {
		metrics.ReconcileFailures.WithLabelValues(reason).Inc()
		wrapped := eris.Wrapf(err, "reconciling pending links for %q", name)
		r.logger.WithFields(logrus.Fields{"term": name, "reason": reason, "error": err.Error()}).Error("reconciling pending links failed")
		applog.Capture(ctx, r.hub, wrapped)
		return 0, wrapped
	}

	metrics.PendingReconciled.WithLabelValues(reason).Add(float64(deleted))
	return deleted, nil
}
