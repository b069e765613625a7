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

package xjob

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo/parallel"

	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/operator/options"
)

// PodLister enumerates the pods whose state the worker refreshes.
type PodLister interface {
	ListPods(ctx context.Context) ([]*models.Pod, error)
}

// Worker is the periodic side of the job system: it sweeps failed jobs back into execution and
// enqueues a pod state refresh per bottom pod. All actual execution funnels through the
// coordinator, so any number of workers can run the same schedule concurrently.
type Worker struct {
	coordinator *Coordinator
	pods        PodLister
	cron        *cron.Cron

	redoInterval  time.Duration
	stateInterval time.Duration
}

func NewWorker(coordinator *Coordinator, pods PodLister, opts *options.Options) *Worker {
	return &Worker{
		coordinator:   coordinator,
		pods:          pods,
		cron:          cron.New(),
		redoInterval:  time.Duration(opts.RedoJobInterval) * time.Second,
		stateInterval: time.Duration(opts.PodStateInterval) * time.Second,
	}
}

// Start schedules the periodic sweeps and starts the cron runner in its own goroutine. The given
// context flows into every triggered execution.
func (w *Worker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(every(w.redoInterval), func() {
		if err := w.coordinator.RedoFailedJobs(ctx); err != nil {
			logging.FromContext(ctx).Errorf("redoing failed jobs, %s", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling the redo sweep, %w", err)
	}
	if _, err := w.cron.AddFunc(every(w.stateInterval), func() {
		w.RefreshPodStates(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling the pod state refresh, %w", err)
	}
	w.cron.Start()
	return nil
}

// Stop halts the schedule and returns once in-flight triggers have drained.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

// RefreshPodStates enqueues a pod_state_statistics job for every bottom pod, in parallel. Failures
// are logged per pod and retried by the redo sweep, never propagated.
func (w *Worker) RefreshPodStates(ctx context.Context) {
	log := logging.FromContext(ctx)
	pods, err := w.pods.ListPods(ctx)
	if err != nil {
		log.Errorf("listing pods for the state refresh, %s", err)
		return
	}
	parallel.ForEach(pods, func(pod *models.Pod, _ int) {
		if pod.IsTop() {
			return
		}
		if err := w.coordinator.RunRegistered(ctx, models.JobPodStateStatistics, pod.PodID); err != nil {
			log.With("pod", pod.PodName).Errorf("refreshing pod state, %s", err)
		}
	})
}

func every(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}
