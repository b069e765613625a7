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

package models

// Job lifecycle states. Transitions are New -> Running -> {Success, Fail} only; Running rows older
// than the configured expiry are swept to Fail.
const (
	JobNew     = "New"
	JobRunning = "Running"
	JobSuccess = "Success"
	JobFail    = "Fail"
)

// SPExtraID is the sentinel extra id shared by every Running job row. Together with the unique
// index over (type, status, resource_id, extra_id) it guarantees at most one Running row per
// (type, resource_id); finished rows get a fresh uuid so the slot frees up.
const SPExtraID = "00000000-0000-0000-0000-000000000000"

// Resource types routed through the gateway.
const (
	ResourceTypeServer   = "server"
	ResourceTypeVolume   = "volume"
	ResourceTypeSnapshot = "snapshot"
	ResourceTypeBackup   = "backup"
	ResourceTypeImage    = "image"
)

// Downstream service types a pod exposes endpoints for.
const (
	ServiceTypeNova     = "nova"
	ServiceTypeCinder   = "cinder"
	ServiceTypeGlance   = "glance"
	ServiceTypeKeystone = "keystone"
)

// JobPodStateStatistics refreshes a pod's PodState row from its hypervisor summary.
const JobPodStateStatistics = "pod_state_statistics"
