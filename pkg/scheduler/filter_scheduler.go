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

package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/samber/lo"

	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/metrics"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// filterScheduler selects in two phases. The bound phase restricts candidates to pods the tenant
// already holds a binding to; a hit there leaves bindings untouched. Only when no bound pod
// qualifies does the unbound phase run, over the remaining pods, and the winner becomes the
// tenant's new active binding in its az.
type filterScheduler struct {
	manager     *PodManager
	rng         *rand.Rand
	subsetSize  int
	shuffleBest bool
}

func (s *filterScheduler) SelectDestination(ctx context.Context, spec *models.RequestSpec) (*models.Pod, string, error) {
	defer func(start time.Time) {
		metrics.SchedulingDuration.WithLabelValues("filter_scheduler").Observe(time.Since(start).Seconds())
	}(time.Now())
	log := logging.FromContext(ctx)

	bound, err := s.manager.GetFilteredPods(ctx, spec, true)
	if err != nil {
		return nil, "", err
	}
	if len(bound) > 0 {
		pod, err := s.pick(ctx, bound)
		if err != nil || pod == nil {
			return nil, "", err
		}
		log.With("pod", pod.PodName, "tenant", spec.ProjectID).Debugf("selected bound pod")
		return pod, pod.PodName, nil
	}

	boundPods, err := s.manager.CurrentBoundPods(ctx, spec.ProjectID)
	if err != nil {
		return nil, "", err
	}
	unboundSpec := spec.WithIgnoredPods(lo.Map(boundPods, func(p *models.Pod, _ int) string {
		return p.PodName
	})...)
	candidates, err := s.manager.GetFilteredPods(ctx, unboundSpec, false)
	if err != nil {
		return nil, "", err
	}
	pod, err := s.pick(ctx, candidates)
	if err != nil || pod == nil {
		return nil, "", err
	}
	if err := s.manager.UpdateBinding(ctx, spec.ProjectID, pod.PodID); err != nil {
		return nil, "", err
	}
	log.With("pod", pod.PodName, "tenant", spec.ProjectID).Debugf("selected and bound new pod")
	return pod, pod.PodName, nil
}

// pick weighs the filtered pods and chooses uniformly from the top subsetSize candidates. When
// shuffleBest is set, the prefix sharing the best weight is shuffled first so ties do not always
// resolve to the same pod.
func (s *filterScheduler) pick(ctx context.Context, pods []*models.Pod) (*models.Pod, error) {
	if len(pods) == 0 {
		return nil, nil
	}
	weighed, err := s.manager.GetWeighedPods(ctx, pods)
	if err != nil {
		return nil, err
	}
	if s.shuffleBest {
		best := weighed[0].Weight
		tied := 1
		for tied < len(weighed) && weighed[tied].Weight == best {
			tied++
		}
		s.rng.Shuffle(tied, func(i, j int) {
			weighed[i], weighed[j] = weighed[j], weighed[i]
		})
	}
	subset := weighed[:lo.Min([]int{s.subsetSize, len(weighed)})]
	chosen := subset[s.rng.Intn(len(subset))]
	pod, ok := lo.Find(pods, func(p *models.Pod) bool { return p.PodID == chosen.PodID })
	if !ok {
		return nil, nil
	}
	return pod, nil
}

var _ Scheduler = (*filterScheduler)(nil)
