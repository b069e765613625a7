/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package xjob coordinates background jobs across worker processes. Workers share nothing but the
// job table; mutual exclusion per (type, resource id) is expressed entirely as conditional writes
// against it, so any number of workers can race a job and exactly one executes it.
package xjob

import (
	"context"
	"math/rand"
	"time"

	"k8s.io/utils/clock"

	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/metrics"
	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/operator/options"
)

// Store is the slice of the database the coordinator drives its state machine through.
type Store interface {
	NewJob(ctx context.Context, jobType, resourceID string) (*models.Job, error)
	RegisterJob(ctx context.Context, jobType, resourceID string) (*models.Job, error)
	GetRunningJob(ctx context.Context, jobType, resourceID string) (*models.Job, error)
	FinishJob(ctx context.Context, jobID string, successful bool, timestamp int64) error
	GetLatestTimestamp(ctx context.Context, status, jobType, resourceID string) (int64, error)
	GetLatestFailedJobs(ctx context.Context) ([]*models.Job, error)
}

// Handler executes one job against a resource. Handlers must be idempotent; the redo sweep can
// fire them again after partial effects.
type Handler func(ctx context.Context, resourceID string) error

// Config carries the coordinator's timing knobs. The clock and rng are injectable for tests.
type Config struct {
	HandleTimeout time.Duration
	RunExpire     time.Duration
	SleepTime     time.Duration
	Clock         clock.Clock
	Rand          *rand.Rand
}

// ConfigFromOptions translates the worker option group.
func ConfigFromOptions(opts *options.Options) Config {
	return Config{
		HandleTimeout: time.Duration(opts.WorkerHandleTimeout) * time.Second,
		RunExpire:     time.Duration(opts.JobRunExpire) * time.Second,
		SleepTime:     time.Duration(opts.WorkerSleepTime) * time.Second,
	}
}

type Coordinator struct {
	store    Store
	handlers map[string]Handler
	clock    clock.Clock
	rng      *rand.Rand

	handleTimeout time.Duration
	runExpire     time.Duration
	sleepTime     time.Duration
}

func NewCoordinator(store Store, cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Coordinator{
		store:         store,
		handlers:      map[string]Handler{},
		clock:         cfg.Clock,
		rng:           cfg.Rand,
		handleTimeout: cfg.HandleTimeout,
		runExpire:     cfg.RunExpire,
		sleepTime:     cfg.SleepTime,
	}
}

// Register binds a handler to a job type. The redo sweep only re-enqueues types with a handler.
func (c *Coordinator) Register(jobType string, handler Handler) {
	c.handlers[jobType] = handler
}

// Run drives one job attempt through the lifecycle. It records a New marker, then loops: when a
// Success at or after the marker appears the work is already done; otherwise it races for the
// single Running slot. The winner executes fn and finishes the row; losers either sweep an expired
// holder and loop, or back off and yield to a live one. Handler failures are never surfaced to the
// caller, they are reported through job status and retried by the redo sweep.
func (c *Coordinator) Run(ctx context.Context, jobType, resourceID string, fn func(context.Context) error) error {
	log := logging.FromContext(ctx).With("job", jobType, "resource", resourceID)
	marker, err := c.store.NewJob(ctx, jobType, resourceID)
	if err != nil {
		return err
	}
	deadline := c.clock.Now().Add(c.handleTimeout)
	for {
		latestSuccess, err := c.store.GetLatestTimestamp(ctx, models.JobSuccess, jobType, resourceID)
		if err != nil {
			return err
		}
		if latestSuccess >= marker.Timestamp {
			log.Debugf("job already satisfied by a concurrent success")
			return nil
		}
		if !c.clock.Now().Before(deadline) {
			log.Warnf("giving up on job after %s", c.handleTimeout)
			return nil
		}
		job, err := c.store.RegisterJob(ctx, jobType, resourceID)
		if err != nil {
			return err
		}
		if job != nil {
			c.execute(ctx, job, marker.Timestamp, fn)
			return nil
		}
		running, err := c.store.GetRunningJob(ctx, jobType, resourceID)
		if err != nil {
			return err
		}
		if running == nil {
			// lost the insert race to a job that finished in between; try again shortly
			c.clock.Sleep(c.sleepTime)
			continue
		}
		if c.clock.Now().UnixNano()-running.Timestamp > c.runExpire.Nanoseconds() {
			log.Warnf("sweeping expired running job %s", running.ID)
			metrics.JobsExpiredTotal.WithLabelValues(jobType).Inc()
			if err := c.store.FinishJob(ctx, running.ID, false, running.Timestamp); err != nil {
				return err
			}
			continue
		}
		// a live worker holds the job; let it finish
		c.clock.Sleep(c.sleepTime)
		return nil
	}
}

func (c *Coordinator) execute(ctx context.Context, job *models.Job, markerTimestamp int64, fn func(context.Context) error) {
	log := logging.FromContext(ctx).With("job", job.Type, "resource", job.ResourceID)
	err := fn(ctx)
	status := models.JobSuccess
	if err != nil {
		status = models.JobFail
		log.Errorf("job failed, %s", err)
	}
	metrics.JobsExecutedTotal.WithLabelValues(job.Type, status).Inc()
	if finishErr := c.store.FinishJob(ctx, job.ID, err == nil, markerTimestamp); finishErr != nil {
		log.Errorf("recording job outcome, %s", finishErr)
	}
}

// RunRegistered runs the registered handler for jobType against resourceID through Run.
func (c *Coordinator) RunRegistered(ctx context.Context, jobType, resourceID string) error {
	handler, ok := c.handlers[jobType]
	if !ok {
		logging.FromContext(ctx).With("job", jobType).Warnf("no handler registered")
		return nil
	}
	return c.Run(ctx, jobType, resourceID, func(ctx context.Context) error {
		return handler(ctx, resourceID)
	})
}

// RedoFailedJobs re-enqueues one failed job per sweep. Only jobs whose latest row is Fail and
// whose type has a handler are eligible; the pick is uniform so that a crowd of workers spreads
// over the backlog instead of all retrying the same job.
func (c *Coordinator) RedoFailedJobs(ctx context.Context) error {
	failed, err := c.store.GetLatestFailedJobs(ctx)
	if err != nil {
		return err
	}
	eligible := make([]*models.Job, 0, len(failed))
	for _, job := range failed {
		if _, ok := c.handlers[job.Type]; ok {
			eligible = append(eligible, job)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	job := eligible[c.rng.Intn(len(eligible))]
	logging.FromContext(ctx).With("job", job.Type, "resource", job.ResourceID).Infof("redoing failed job")
	metrics.JobsRedoneTotal.WithLabelValues(job.Type).Inc()
	return c.RunRegistered(ctx, job.Type, job.ResourceID)
}
