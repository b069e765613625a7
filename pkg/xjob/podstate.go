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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openstack-archive/trio2o/pkg/client"
	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/utils/pretty"
)

// StateStore is the slice of the database the pod state refresher writes to.
type StateStore interface {
	GetPod(ctx context.Context, podID string) (*models.Pod, error)
	UpdatePodState(ctx context.Context, state *models.PodState) error
}

// PodStateRefresher pulls the hypervisor statistics summary from a pod's compute service and
// upserts the pod's state row. It runs as the pod_state_statistics job handler, one job per pod.
type PodStateRefresher struct {
	store     StateStore
	forwarder *client.Forwarder
	cm        *pretty.ChangeMonitor
}

func NewPodStateRefresher(store StateStore, forwarder *client.Forwarder) *PodStateRefresher {
	return &PodStateRefresher{
		store:     store,
		forwarder: forwarder,
		cm:        pretty.NewChangeMonitor(),
	}
}

// hypervisorStatistics is the compute service's aggregated hypervisor summary.
type hypervisorStatistics struct {
	Statistics struct {
		Count              int64 `json:"count"`
		VCPUs              int64 `json:"vcpus"`
		VCPUsUsed          int64 `json:"vcpus_used"`
		MemoryMB           int64 `json:"memory_mb"`
		MemoryMBUsed       int64 `json:"memory_mb_used"`
		LocalGB            int64 `json:"local_gb"`
		LocalGBUsed        int64 `json:"local_gb_used"`
		FreeRamMB          int64 `json:"free_ram_mb"`
		FreeDiskGB         int64 `json:"free_disk_gb"`
		CurrentWorkload    int64 `json:"current_workload"`
		RunningVMs         int64 `json:"running_vms"`
		DiskAvailableLeast int64 `json:"disk_available_least"`
	} `json:"hypervisor_statistics"`
}

// Refresh is the pod_state_statistics handler; resourceID is the pod id.
func (r *PodStateRefresher) Refresh(ctx context.Context, resourceID string) error {
	pod, err := r.store.GetPod(ctx, resourceID)
	if err != nil {
		return err
	}
	resp, err := r.forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/os-hypervisors/statistics", nil, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("pod %s answered %d to the hypervisor statistics query", pod.PodName, resp.StatusCode)
	}
	var stats hypervisorStatistics
	if err := json.Unmarshal(resp.Body, &stats); err != nil {
		return fmt.Errorf("decoding hypervisor statistics from pod %s, %w", pod.PodName, err)
	}
	state := &models.PodState{
		PodID:              pod.PodID,
		Count:              stats.Statistics.Count,
		VCPUs:              stats.Statistics.VCPUs,
		VCPUsUsed:          stats.Statistics.VCPUsUsed,
		MemoryMB:           stats.Statistics.MemoryMB,
		MemoryMBUsed:       stats.Statistics.MemoryMBUsed,
		LocalGB:            stats.Statistics.LocalGB,
		LocalGBUsed:        stats.Statistics.LocalGBUsed,
		FreeRamMB:          stats.Statistics.FreeRamMB,
		FreeDiskGB:         stats.Statistics.FreeDiskGB,
		CurrentWorkload:    stats.Statistics.CurrentWorkload,
		RunningVMs:         stats.Statistics.RunningVMs,
		DiskAvailableLeast: stats.Statistics.DiskAvailableLeast,
	}
	if err := r.store.UpdatePodState(ctx, state); err != nil {
		return err
	}
	if r.cm.HasChanged(pod.PodID, state) {
		logging.FromContext(ctx).With("pod", pod.PodName, "running_vms", state.RunningVMs,
			"free_disk_gb", state.FreeDiskGB).Infof("pod state changed")
	}
	return nil
}
