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

// Package filters narrows a candidate pod set against a request spec. Filters are pure predicates
// over one pod and one spec; the pipeline applies them in the configured order and short-circuits
// per pod. The set of filters is fixed at build time: enabled names resolve against a name-indexed
// registry and unknown names are a hard configuration error.
package filters

import (
	"context"

	"github.com/samber/lo"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// Catalog is the slice of the store the filters read from.
type Catalog interface {
	GetPodState(ctx context.Context, podID string) (*models.PodState, error)
	AffinityTagsAsMap(ctx context.Context, podID string) (map[string]string, error)
	HasBinding(ctx context.Context, tenantID, podID string) (bool, error)
}

// Filter decides whether a single pod may serve a request.
type Filter interface {
	Name() string
	Passes(ctx context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error)
}

// registry maps filter names to constructors. Population happens at build time only.
var registry = map[string]func(Catalog) Filter{
	"AllPodsFilter":          func(Catalog) Filter { return AllPodsFilter{} },
	"AvailabilityZoneFilter": func(Catalog) Filter { return AvailabilityZoneFilter{} },
	"BottomPodFilter":        func(Catalog) Filter { return BottomPodFilter{} },
	"CreateTimeFilter":       func(Catalog) Filter { return CreateTimeFilter{} },
	"DestinationPodFilter":   func(Catalog) Filter { return DestinationPodFilter{} },
	"DiskFilter":             func(c Catalog) Filter { return DiskFilter{catalog: c} },
	"IgnorePodFilter":        func(Catalog) Filter { return IgnorePodFilter{} },
	"PodAffinityTagFilter":   func(c Catalog) Filter { return PodAffinityTagFilter{catalog: c} },
	"RamFilter":              func(c Catalog) Filter { return RamFilter{catalog: c} },
	"TenantFilter":           func(c Catalog) Filter { return TenantFilter{catalog: c} },
}

// New resolves the ordered enabled filter names against the available list and the registry.
// A name missing from either is fatal.
func New(catalog Catalog, available, enabled []string) ([]Filter, error) {
	for _, name := range available {
		if _, ok := registry[name]; !ok {
			return nil, t_errors.NewSchedulerPodFilterNotFound(name)
		}
	}
	out := make([]Filter, 0, len(enabled))
	for _, name := range enabled {
		if !lo.Contains(available, name) {
			return nil, t_errors.NewSchedulerPodFilterNotFound(name)
		}
		out = append(out, registry[name](catalog))
	}
	return out, nil
}

// MustExist returns the named filter from the registry, panicking on unknown names. It backs the
// scheduler's tenant filter toggling, where the name is a compile-time constant.
func MustExist(catalog Catalog, name string) Filter {
	ctor, ok := registry[name]
	if !ok {
		panic(t_errors.NewSchedulerPodFilterNotFound(name))
	}
	return ctor(catalog)
}

// Apply runs the filter chain over the candidates, short-circuiting per pod on the first filter
// that rejects it. An empty result is valid; the scheduler then reports no pod.
func Apply(ctx context.Context, chain []Filter, pods []*models.Pod, spec *models.RequestSpec) ([]*models.Pod, error) {
	out := make([]*models.Pod, 0, len(pods))
	for _, pod := range pods {
		passed := true
		for _, f := range chain {
			ok, err := f.Passes(ctx, pod, spec)
			if err != nil {
				return nil, err
			}
			if !ok {
				logging.FromContext(ctx).With("pod", pod.PodName, "filter", f.Name()).Debugf("pod rejected")
				passed = false
				break
			}
		}
		if passed {
			out = append(out, pod)
		}
	}
	return out, nil
}
