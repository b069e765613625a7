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

// Package scheduler selects the destination pod for a provisioning request. Two drivers exist: the
// chance scheduler samples uniformly from the eligible pods, the filter scheduler runs the
// configured filter chain and weighers in two phases that prefer the tenant's already bound pods.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/operator/options"
	"github.com/openstack-archive/trio2o/pkg/scheduler/filters"
)

// Catalog is the slice of the store the schedulers read and write. The only write is the binding
// change after an unbound phase selection.
type Catalog interface {
	filters.Catalog
	ListPods(ctx context.Context) ([]*models.Pod, error)
	ListPodsByTenant(ctx context.Context, tenantID string) ([]*models.Pod, error)
	GetPodByName(ctx context.Context, podName string) (*models.Pod, error)
	ChangePodBinding(ctx context.Context, tenantID, podID string) error
}

// Scheduler picks a destination pod for a request spec. A nil pod with a nil error means no pod
// can serve the request; handlers translate that into a client facing failure.
type Scheduler interface {
	SelectDestination(ctx context.Context, spec *models.RequestSpec) (*models.Pod, string, error)
}

// New builds the driver the options name. The rng is injectable so tests can pin tie-breaking;
// passing nil seeds one from the wall clock.
func New(catalog Catalog, opts *options.Options, rng *rand.Rand) (Scheduler, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	switch opts.GetDriver() {
	case options.ChanceScheduler:
		return &chanceScheduler{catalog: catalog, rng: rng}, nil
	case options.FilterScheduler:
		manager, err := NewPodManager(catalog, opts)
		if err != nil {
			return nil, err
		}
		return &filterScheduler{
			manager:     manager,
			rng:         rng,
			subsetSize:  opts.PodSubsetSize,
			shuffleBest: opts.ShuffleBestSameWeighedPods,
		}, nil
	}
	return nil, fmt.Errorf("unknown scheduler driver %q", opts.Driver)
}
