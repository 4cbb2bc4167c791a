// Package jobs runs background maintenance on cron schedules.
package jobs

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/getsentry/sentry-go"
	cron "github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	applog "wikilinks/app/internal/log"
	"wikilinks/app/internal/metrics"
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job whose previous run is still going is
// skipped rather than started twice.
type Scheduler struct {
	cron    *cron.Cron
	running mapset.Set[string]
	logger  *logrus.Entry
	hub     *sentry.Hub

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler constructs an idle scheduler.
func NewScheduler(logger *logrus.Logger, hub *sentry.Hub) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		running: mapset.NewSet[string](),
		logger:  applog.Component(logger, "jobs.scheduler"),
		hub:     hub,
		ctx:     context.Background(),
	}
}

// Add registers job under schedule, a six-field cron spec or a descriptor such as
// "@every 5m".
func (s *Scheduler) Add(schedule string, job Job) error {
	if job == nil {
		return eris.New("job is required")
	}

	if _, err := cron.Parse(schedule); err != nil {
		return eris.Wrapf(err, "invalid schedule %q for job %s", schedule, job.Name())
	}

	err := s.cron.AddFunc(schedule, func() {
		s.RunNow(s.context(), job)
	})
	if err != nil {
		return eris.Wrapf(err, "scheduling job %s", job.Name())
	}

	s.logger.WithFields(logrus.Fields{"job": job.Name(), "schedule": schedule}).Info("job scheduled")
	return nil
}

// Start begins running scheduled jobs. Runs see ctx until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
}

// Stop halts the schedule and cancels in-flight runs.
func (s *Scheduler) Stop() {
	s.cron.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// RunNow runs job immediately unless it is already running, and reports whether
// it ran.
func (s *Scheduler) RunNow(ctx context.Context, job Job) bool {
	name := job.Name()
	if !s.running.Add(name) {
		s.logger.WithField("job", name).Warn("job is already running")
		metrics.JobRuns.WithLabelValues(name, "skipped").Inc()
		return false
	}
	defer s.running.Remove(name)

	if err := job.Run(ctx); err != nil {
		s.logger.WithFields(logrus.Fields{"job": name, "error": err.Error()}).Error("job failed")
		applog.Capture(ctx, s.hub, err)
		metrics.JobRuns.WithLabelValues(name, "failed").Inc()
		return true
	}

	metrics.JobRuns.WithLabelValues(name, "succeeded").Inc()
	return true
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
