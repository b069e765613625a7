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

package filters

import (
	"context"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// AllPodsFilter is the sanity gate: it only rejects pods under maintenance.
type AllPodsFilter struct{}

func (AllPodsFilter) Name() string { return "AllPodsFilter" }

func (AllPodsFilter) Passes(_ context.Context, pod *models.Pod, _ *models.RequestSpec) (bool, error) {
	return !pod.IsUnderMaintenance, nil
}

// AvailabilityZoneFilter keeps pods in the requested az; an empty az in the spec passes everything.
type AvailabilityZoneFilter struct{}

func (AvailabilityZoneFilter) Name() string { return "AvailabilityZoneFilter" }

func (AvailabilityZoneFilter) Passes(_ context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if spec.AZName == "" {
		return true, nil
	}
	return spec.AZName == pod.AZName, nil
}

// BottomPodFilter rejects the top pod; it is never a provisioning destination.
type BottomPodFilter struct{}

func (BottomPodFilter) Name() string { return "BottomPodFilter" }

func (BottomPodFilter) Passes(_ context.Context, pod *models.Pod, _ *models.RequestSpec) (bool, error) {
	return !pod.IsTop(), nil
}

// CreateTimeFilter keeps pods created at or after the spec's cutoff.
type CreateTimeFilter struct{}

func (CreateTimeFilter) Name() string { return "CreateTimeFilter" }

func (CreateTimeFilter) Passes(_ context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if spec.CreateTime == nil {
		return true, nil
	}
	return pod.CreateTime >= *spec.CreateTime, nil
}

// DestinationPodFilter keeps only the explicitly requested destination when one is set.
type DestinationPodFilter struct{}

func (DestinationPodFilter) Name() string { return "DestinationPodFilter" }

func (DestinationPodFilter) Passes(_ context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if spec.RequestedDestination == "" {
		return true, nil
	}
	return spec.RequestedDestination == pod.PodName, nil
}

// DiskFilter keeps pods whose last known free disk covers the requested size. Pods without a
// state snapshot cannot prove capacity and are rejected when a size is requested.
type DiskFilter struct {
	catalog Catalog
}

func (DiskFilter) Name() string { return "DiskFilter" }

func (f DiskFilter) Passes(ctx context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if spec.DiskGB == nil {
		return true, nil
	}
	state, err := f.catalog.GetPodState(ctx, pod.PodID)
	if err != nil {
		if t_errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return state.FreeDiskGB >= *spec.DiskGB, nil
}

// IgnorePodFilter rejects pods named in the spec's ignore list.
type IgnorePodFilter struct{}

func (IgnorePodFilter) Name() string { return "IgnorePodFilter" }

func (IgnorePodFilter) Passes(_ context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	return !spec.Ignored(pod.PodName), nil
}

// PodAffinityTagFilter requires every requested (key, value) pair to be present among the pod's
// affinity tags.
type PodAffinityTagFilter struct {
	catalog Catalog
}

func (PodAffinityTagFilter) Name() string { return "PodAffinityTagFilter" }

func (f PodAffinityTagFilter) Passes(ctx context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if len(spec.AffinityTags) == 0 {
		return true, nil
	}
	tags, err := f.catalog.AffinityTagsAsMap(ctx, pod.PodID)
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

// RamFilter keeps pods with enough free memory, recomputed from the raw counters rather than the
// free_ram_mb column to match how capacity is reported.
type RamFilter struct {
	catalog Catalog
}

func (RamFilter) Name() string { return "RamFilter" }

func (f RamFilter) Passes(ctx context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	if spec.MemoryMB == nil {
		return true, nil
	}
	state, err := f.catalog.GetPodState(ctx, pod.PodID)
	if err != nil {
		if t_errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return state.MemoryMB-state.MemoryMBUsed >= *spec.MemoryMB, nil
}

// TenantFilter keeps only pods the requesting tenant holds an active binding to. The filter
// scheduler toggles it between its bound and unbound phases.
type TenantFilter struct {
	catalog Catalog
}

// TenantFilterName is referenced by the scheduler when assembling per-call chains.
const TenantFilterName = "TenantFilter"

func (TenantFilter) Name() string { return TenantFilterName }

func (f TenantFilter) Passes(ctx context.Context, pod *models.Pod, spec *models.RequestSpec) (bool, error) {
	return f.catalog.HasBinding(ctx, spec.ProjectID, pod.PodID)
}
