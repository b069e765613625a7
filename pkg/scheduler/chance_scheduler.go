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

	"github.com/openstack-archive/trio2o/pkg/metrics"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// chanceScheduler samples uniformly from the eligible pods: bottom, not under maintenance, not
// ignored, and carrying every requested affinity tag. It never touches bindings.
type chanceScheduler struct {
	catalog Catalog
	rng     *rand.Rand
}

func (s *chanceScheduler) SelectDestination(ctx context.Context, spec *models.RequestSpec) (*models.Pod, string, error) {
	defer func(start time.Time) {
		metrics.SchedulingDuration.WithLabelValues("chance_scheduler").Observe(time.Since(start).Seconds())
	}(time.Now())
	pods, err := s.catalog.ListPods(ctx)
	if err != nil {
		return nil, "", err
	}
	eligible := make([]*models.Pod, 0, len(pods))
	for _, pod := range pods {
		if pod.IsTop() || pod.IsUnderMaintenance || spec.Ignored(pod.PodName) {
			continue
		}
		ok, err := s.matchesAffinityTags(ctx, pod, spec)
		if err != nil {
			return nil, "", err
		}
		if ok {
			eligible = append(eligible, pod)
		}
	}
	if len(eligible) == 0 {
		return nil, "", nil
	}
	pod := eligible[s.rng.Intn(len(eligible))]
	return pod, pod.PodName, nil
}

func (s *chanceScheduler) matchesAffinityTags(ctx context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if len(spec.AffinityTags) == 0 {
		return true, nil
	}
	tags, err := s.catalog.AffinityTagsAsMap(ctx, pod.PodID)
	if err != nil {
		return false, err
	}
	for key, want := range spec.AffinityTags {
		if got, ok := tags[key]; !ok || got != want {
			return false, nil
		}
	}
	return true, nil
}

var _ Scheduler = (*chanceScheduler)(nil)
