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

import "github.com/samber/lo"

// RequestSpec carries the selection input for one scheduling call: identity, placement
// constraints, resource demand and the creation-time cutoff. Optional numeric demands use
// pointers; nil means the corresponding filter passes unconditionally. The spec itself is never
// mutated by the scheduler; phase two of the filter scheduler derives a copy with an extended
// ignore list.
type RequestSpec struct {
	ProjectID            string            `json:"project_id"`
	RequestedDestination string            `json:"requested_destination"`
	IgnorePods           []string          `json:"ignore_pods"`
	AZName               string            `json:"az_name"`
	AffinityTags         map[string]string `json:"affinity_tags"`
	LoadSensitive        bool              `json:"load_sensitive"`
	TimeSensitive        bool              `json:"time_sensitive"`
	CreateTime           *int64            `json:"create_time"`
	VCPUs                *int64            `json:"vcpus"`
	MemoryMB             *int64            `json:"memory_mb"`
	DiskGB               *int64            `json:"disk_gb"`
}

// Ignored reports whether the pod name appears in the spec's ignore list.
func (s *RequestSpec) Ignored(podName string) bool {
	return lo.Contains(s.IgnorePods, podName)
}

// WithIgnoredPods returns a copy of the spec whose ignore list is extended with the given pod
// names, deduplicated.
func (s *RequestSpec) WithIgnoredPods(podNames ...string) *RequestSpec {
	out := *s
	out.IgnorePods = lo.Uniq(append(append([]string{}, s.IgnorePods...), podNames...))
	return &out
}
