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

// Package models holds the persisted row types shared by the stores, the scheduler and the job
// workers. All timestamps are unix nanoseconds so that ordering comparisons are exact across
// workers regardless of the database's text affinity for time values.
package models

import "database/sql"

// Pod is a single downstream region the gateway can forward to. A pod with an empty AZName is the
// top pod and is never a provisioning target; at most one such pod exists.
type Pod struct {
	PodID              string `db:"pod_id" json:"pod_id"`
	PodName            string `db:"pod_name" json:"pod_name"`
	PodAZName          string `db:"pod_az_name" json:"pod_az_name"`
	DCName             string `db:"dc_name" json:"dc_name"`
	AZName             string `db:"az_name" json:"az_name"`
	IsUnderMaintenance bool   `db:"is_under_maintenance" json:"is_under_maintenance"`
	CreateTime         int64  `db:"create_time" json:"create_time"`
}

// IsTop reports whether this pod is the gateway's own pod rather than a provisioning target.
func (p *Pod) IsTop() bool {
	return p.AZName == ""
}

// PodState is a statistics snapshot pulled periodically from a pod's hypervisors. At most one row
// exists per pod; stale reads are tolerated by the scheduler.
type PodState struct {
	ID                 int64  `db:"id" json:"-"`
	PodID              string `db:"pod_id" json:"pod_id"`
	Count              int64  `db:"count" json:"count"`
	VCPUs              int64  `db:"vcpus" json:"vcpus"`
	VCPUsUsed          int64  `db:"vcpus_used" json:"vcpus_used"`
	MemoryMB           int64  `db:"memory_mb" json:"memory_mb"`
	MemoryMBUsed       int64  `db:"memory_mb_used" json:"memory_mb_used"`
	LocalGB            int64  `db:"local_gb" json:"local_gb"`
	LocalGBUsed        int64  `db:"local_gb_used" json:"local_gb_used"`
	FreeRamMB          int64  `db:"free_ram_mb" json:"free_ram_mb"`
	FreeDiskGB         int64  `db:"free_disk_gb" json:"free_disk_gb"`
	CurrentWorkload    int64  `db:"current_workload" json:"current_workload"`
	RunningVMs         int64  `db:"running_vms" json:"running_vms"`
	DiskAvailableLeast int64  `db:"disk_available_least" json:"disk_available_least"`
}

// PodAffinityTag is an operator authored (key, value) capability assertion on a pod, e.g.
// volume=SSD. A pod may carry many pairs; when collapsed to a map the last write wins.
type PodAffinityTag struct {
	AffinityTagID string `db:"affinity_tag_id" json:"affinity_tag_id"`
	PodID         string `db:"pod_id" json:"pod_id"`
	Key           string `db:"key" json:"key"`
	Value         string `db:"value" json:"value"`
}

// PodBinding marks a tenant's home pod within an az. For a given (tenant, az) at most one row has
// IsBinding set; switching the active binding flips the previous row in the same transaction.
type PodBinding struct {
	ID        int64  `db:"id" json:"id"`
	TenantID  string `db:"tenant_id" json:"tenant_id"`
	PodID     string `db:"pod_id" json:"pod_id"`
	IsBinding bool   `db:"is_binding" json:"is_binding"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// ResourceRouting maps a top side resource identifier to its bottom side counterpart in a pod.
// A row whose BottomID is null is a reservation: it acts as the create-time lock for
// (TopID, ResourceType) until the owner fills in the bottom id or the reservation expires.
type ResourceRouting struct {
	ID           int64          `db:"id" json:"id"`
	TopID        string         `db:"top_id" json:"top_id"`
	BottomID     sql.NullString `db:"bottom_id" json:"bottom_id"`
	PodID        string         `db:"pod_id" json:"pod_id"`
	ProjectID    string         `db:"project_id" json:"project_id"`
	ResourceType string         `db:"resource_type" json:"resource_type"`
	CreatedAt    int64          `db:"created_at" json:"created_at"`
	UpdatedAt    int64          `db:"updated_at" json:"updated_at"`
}

// IsReservation reports whether the row is still a create-time lock without a bottom resource.
func (r *ResourceRouting) IsReservation() bool {
	return !r.BottomID.Valid || r.BottomID.String == ""
}

// Job records one attempted execution of a named reconciliation against a resource.
type Job struct {
	ID         string `db:"id" json:"id"`
	Type       string `db:"type" json:"type"`
	ResourceID string `db:"resource_id" json:"resource_id"`
	ExtraID    string `db:"extra_id" json:"extra_id"`
	Status     string `db:"status" json:"status"`
	Timestamp  int64  `db:"timestamp" json:"timestamp"`
}

// ServiceEndpoint is one service catalog entry: the base URL for a service type inside a pod.
type ServiceEndpoint struct {
	ServiceID   string `db:"service_id" json:"service_id"`
	PodID       string `db:"pod_id" json:"pod_id"`
	ServiceType string `db:"service_type" json:"service_type"`
	ServiceURL  string `db:"service_url" json:"service_url"`
}
