package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "wikilinks/app/internal/log"
	"wikilinks/app/internal/wiki"
)

type blockingJob struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(context.Context) error {
	j.runs.Add(1)
	close(j.started)
	<-j.release
	return nil
}

func TestRunNowSkipsOverlappingRuns(t *testing.T) {
	scheduler := NewScheduler(applog.Discard(), nil)
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}

	done := make(chan bool)
	go func() { done <- scheduler.RunNow(context.Background(), job) }()

	<-job.started
	assert.False(t, scheduler.RunNow(context.Background(), job))

	close(job.release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), job.runs.Load())
}

type fakeSweeper struct {
	calls   atomic.Int32
	deleted int64
	err     error
}

func (f *fakeSweeper) Sweep(context.Context) (wiki.SweepResult, error) {
	f.calls.Add(1)
	return wiki.SweepResult{Deleted: f.deleted}, f.err
}

type countingInvalidator struct{ calls atomic.Int32 }

func (c *countingInvalidator) InvalidateReads(context.Context) { c.calls.Add(1) }

func TestReconcileJobRunsSweep(t *testing.T) {
	scheduler := NewScheduler(applog.Discard(), nil)
	sweeper := &fakeSweeper{err: errors.New("sweep failed")}

	assert.True(t, scheduler.RunNow(context.Background(), ReconcileJob{Sweeper: sweeper}))
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestReconcileJobInvalidatesReadsAfterDeleting(t *testing.T) {
	reads := &countingInvalidator{}

	require.NoError(t, ReconcileJob{Sweeper: &fakeSweeper{}, Reads: reads}.Run(context.Background()))
	assert.Equal(t, int32(0), reads.calls.Load())

	require.NoError(t, ReconcileJob{Sweeper: &fakeSweeper{deleted: 3}, Reads: reads}.Run(context.Background()))
	assert.Equal(t, int32(1), reads.calls.Load())

	require.NoError(t, ReconcileJob{Sweeper: &fakeSweeper{deleted: 1}}.Run(context.Background()))
}

func TestAddRejectsInvalidSchedule(t *testing.T) {
	scheduler := NewScheduler(applog.Discard(), nil)

	assert.Error(t, scheduler.Add("not a schedule", ReconcileJob{Sweeper: &fakeSweeper{}}))
	assert.Error(t, scheduler.Add("@every 1s", nil))
}

func TestScheduledJobRuns(t *testing.T) {
	scheduler := NewScheduler(applog.Discard(), nil)
	sweeper := &fakeSweeper{}

	require.NoError(t, scheduler.Add("@every 1s", ReconcileJob{Sweeper: sweeper}))
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}

type countingPruner struct{ calls int }

func (p *countingPruner) Prune() int {
	p.calls++
	return 2
}

func TestCachePruneJob(t *testing.T) {
	pruner := &countingPruner{}
	job := CachePruneJob{Cache: pruner, Logger: applog.Discard()}

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, pruner.calls)
}
