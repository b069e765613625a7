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

	"github.com/samber/lo"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/operator/options"
	"github.com/openstack-archive/trio2o/pkg/scheduler/filters"
	"github.com/openstack-archive/trio2o/pkg/scheduler/weights"
)

// PodManager owns the resolved filter chain and weighers and answers the filter scheduler's
// per-phase questions. The chain it keeps never contains the tenant filter; that one is appended
// per call in the bound phase so the unbound phase can run without it on an unchanged chain.
type PodManager struct {
	catalog      Catalog
	chain        []filters.Filter
	tenantFilter filters.Filter
	weighers     []weights.Weigher
}

// NewPodManager resolves the configured filters and weighers. Unknown names fail construction,
// which callers treat as fatal.
func NewPodManager(catalog Catalog, opts *options.Options) (*PodManager, error) {
	enabled := lo.Filter(opts.EnabledFilters, func(name string, _ int) bool {
		return name != filters.TenantFilterName
	})
	chain, err := filters.New(catalog, opts.AvailableFilters, enabled)
	if err != nil {
		return nil, err
	}
	weighers, err := weights.New(opts.WeightClasses, weights.Multipliers{
		Ram:      opts.RamWeightMultiplier,
		Disk:     opts.DiskWeightMultiplier,
		VCPU:     opts.VCPUWeightMultiplier,
		Workload: opts.WorkloadWeightMultiplier,
	})
	if err != nil {
		return nil, err
	}
	return &PodManager{
		catalog:      catalog,
		chain:        chain,
		tenantFilter: filters.MustExist(catalog, filters.TenantFilterName),
		weighers:     weighers,
	}, nil
}

// GetFilteredPods runs the chain over the candidate set, with the tenant filter appended when
// withTenant is set. A requested destination shrinks the candidate set to that single pod up
// front; the chain still runs so maintenance and capacity checks apply to it, and a destination
// that matches no pod surfaces as PodNotFound rather than an empty selection.
func (m *PodManager) GetFilteredPods(ctx context.Context, spec *models.RequestSpec, withTenant bool) ([]*models.Pod, error) {
	var candidates []*models.Pod
	if spec.RequestedDestination != "" {
		pod, err := m.catalog.GetPodByName(ctx, spec.RequestedDestination)
		if err != nil {
			return nil, err
		}
		candidates = []*models.Pod{pod}
	} else {
		pods, err := m.catalog.ListPods(ctx)
		if err != nil {
			return nil, err
		}
		candidates = pods
	}
	chain := m.chain
	if withTenant {
		chain = append(append([]filters.Filter{}, m.chain...), m.tenantFilter)
	}
	return filters.Apply(ctx, chain, candidates, spec)
}

// GetWeighedPods weighs the filtered pods by their last known state. A pod without a state
// snapshot is weighed on a zero state, so it stays selectable but never wins against a pod with
// known free capacity.
func (m *PodManager) GetWeighedPods(ctx context.Context, pods []*models.Pod) ([]weights.WeighedPod, error) {
	states := make([]*models.PodState, 0, len(pods))
	for _, pod := range pods {
		state, err := m.catalog.GetPodState(ctx, pod.PodID)
		if err != nil {
			if !t_errors.IsNotFound(err) {
				return nil, err
			}
			state = &models.PodState{PodID: pod.PodID}
		}
		states = append(states, state)
	}
	return weights.Weigh(m.weighers, states), nil
}

// CurrentBoundPods returns the pods the tenant holds active bindings to.
func (m *PodManager) CurrentBoundPods(ctx context.Context, tenantID string) ([]*models.Pod, error) {
	return m.catalog.ListPodsByTenant(ctx, tenantID)
}

// UpdateBinding makes the pod the tenant's active pod within the pod's az, deactivating any other
// active binding in that az. Bindings in other azs are untouched.
func (m *PodManager) UpdateBinding(ctx context.Context, tenantID, podID string) error {
	return m.catalog.ChangePodBinding(ctx, tenantID, podID)
}
