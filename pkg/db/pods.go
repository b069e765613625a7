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

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// CreatePod persists a pod. An empty PodID gets a generated uuid; CreateTime is stamped by the
// store. At most one pod may have an empty az_name (the top pod).
func (s *Store) CreatePod(ctx context.Context, pod *models.Pod) (*models.Pod, error) {
	if pod.PodID == "" {
		pod.PodID = uuid.NewString()
	}
	pod.CreateTime = s.now()
	if pod.IsTop() {
		var count int
		if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM pods WHERE az_name = ''"); err != nil {
			return nil, fmt.Errorf("checking for existing top pod, %w", err)
		}
		if count > 0 {
			return nil, t_errors.NewConflict("a top pod already exists")
		}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pods (pod_id, pod_name, pod_az_name, dc_name, az_name, is_under_maintenance, create_time)
		VALUES (:pod_id, :pod_name, :pod_az_name, :dc_name, :az_name, :is_under_maintenance, :create_time)`, pod)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, t_errors.NewConflict("pod %s already exists", pod.PodName)
		}
		return nil, fmt.Errorf("creating pod %s, %w", pod.PodName, err)
	}
	return pod, nil
}

func (s *Store) GetPod(ctx context.Context, podID string) (*models.Pod, error) {
	pod := &models.Pod{}
	if err := s.db.GetContext(ctx, pod, "SELECT * FROM pods WHERE pod_id = ?", podID); err != nil {
		if err == sql.ErrNoRows {
			return nil, t_errors.NewPodNotFound(podID)
		}
		return nil, fmt.Errorf("getting pod %s, %w", podID, err)
	}
	return pod, nil
}

func (s *Store) GetPodByName(ctx context.Context, podName string) (*models.Pod, error) {
	pod := &models.Pod{}
	if err := s.db.GetContext(ctx, pod, "SELECT * FROM pods WHERE pod_name = ?", podName); err != nil {
		if err == sql.ErrNoRows {
			return nil, t_errors.NewPodNotFound(podName)
		}
		return nil, fmt.Errorf("getting pod %s, %w", podName, err)
	}
	return pod, nil
}

func (s *Store) ListPods(ctx context.Context) ([]*models.Pod, error) {
	pods := []*models.Pod{}
	if err := s.db.SelectContext(ctx, &pods, "SELECT * FROM pods ORDER BY pod_name"); err != nil {
		return nil, fmt.Errorf("listing pods, %w", err)
	}
	return pods, nil
}

// TopPod returns the pod with an empty az_name, or a PodNotFound error when none is registered.
func (s *Store) TopPod(ctx context.Context) (*models.Pod, error) {
	pod := &models.Pod{}
	if err := s.db.GetContext(ctx, pod, "SELECT * FROM pods WHERE az_name = ''"); err != nil {
		if err == sql.ErrNoRows {
			return nil, t_errors.NewPodNotFound("top")
		}
		return nil, fmt.Errorf("getting top pod, %w", err)
	}
	return pod, nil
}

// DeletePod removes a pod. Deletion is forbidden while resource routings still reference the pod.
func (s *Store) DeletePod(ctx context.Context, podID string) error {
	var refs int
	if err := s.db.GetContext(ctx, &refs, "SELECT COUNT(*) FROM resource_routings WHERE pod_id = ?", podID); err != nil {
		return fmt.Errorf("counting routings for pod %s, %w", podID, err)
	}
	if refs > 0 {
		return t_errors.NewConflict("pod %s is still referenced by %d resource routings", podID, refs)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM pods WHERE pod_id = ?", podID)
	if err != nil {
		return fmt.Errorf("deleting pod %s, %w", podID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return t_errors.NewPodNotFound(podID)
	}
	return nil
}

// ListPodsByTenant returns the pods the tenant holds an active binding to.
func (s *Store) ListPodsByTenant(ctx context.Context, tenantID string) ([]*models.Pod, error) {
	pods := []*models.Pod{}
	err := s.db.SelectContext(ctx, &pods, `
		SELECT p.* FROM pods p
		JOIN pod_bindings b ON b.pod_id = p.pod_id
		WHERE b.tenant_id = ? AND b.is_binding = 1
		ORDER BY p.pod_name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing pods for tenant %s, %w", tenantID, err)
	}
	return pods, nil
}

// CreatePodAffinityTag records an operator authored (key, value) pair on a pod, generating the
// affinity_tag_id when empty.
func (s *Store) CreatePodAffinityTag(ctx context.Context, tag *models.PodAffinityTag) (*models.PodAffinityTag, error) {
	if tag.AffinityTagID == "" {
		tag.AffinityTagID = uuid.NewString()
	}
	if _, err := s.GetPod(ctx, tag.PodID); err != nil {
		return nil, err
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pod_affinity_tags (affinity_tag_id, pod_id, key, value)
		VALUES (:affinity_tag_id, :pod_id, :key, :value)`, tag)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, t_errors.NewConflict("pod affinity tag %s already exists", tag.AffinityTagID)
		}
		return nil, fmt.Errorf("creating affinity tag for pod %s, %w", tag.PodID, err)
	}
	return tag, nil
}

func (s *Store) GetPodAffinityTag(ctx context.Context, affinityTagID string) (*models.PodAffinityTag, error) {
	tag := &models.PodAffinityTag{}
	if err := s.db.GetContext(ctx, tag, "SELECT * FROM pod_affinity_tags WHERE affinity_tag_id = ?", affinityTagID); err != nil {
		if err == sql.ErrNoRows {
			return nil, t_errors.NewResourceNotFound("pod affinity tag", affinityTagID)
		}
		return nil, fmt.Errorf("getting affinity tag %s, %w", affinityTagID, err)
	}
	return tag, nil
}

var affinityTagFilterKeys = map[string]bool{"pod_id": true, "key": true, "value": true}

func (s *Store) ListPodAffinityTags(ctx context.Context, filters ...Filter) ([]*models.PodAffinityTag, error) {
	where, args, err := buildWhere(filters, affinityTagFilterKeys)
	if err != nil {
		return nil, err
	}
	tags := []*models.PodAffinityTag{}
	if err := s.db.SelectContext(ctx, &tags, "SELECT * FROM pod_affinity_tags"+where, args...); err != nil {
		return nil, fmt.Errorf("listing affinity tags, %w", err)
	}
	return tags, nil
}

// AffinityTagsAsMap collapses a pod's affinity tags into a key to value map; later rows win on
// duplicate keys.
func (s *Store) AffinityTagsAsMap(ctx context.Context, podID string) (map[string]string, error) {
	tags, err := s.ListPodAffinityTags(ctx, Filter{Key: "pod_id", Value: podID})
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(tags, func(t *models.PodAffinityTag) (string, string) {
		return t.Key, t.Value
	}), nil
}

func (s *Store) DeletePodAffinityTag(ctx context.Context, affinityTagID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pod_affinity_tags WHERE affinity_tag_id = ?", affinityTagID)
	if err != nil {
		return fmt.Errorf("deleting affinity tag %s, %w", affinityTagID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return t_errors.NewResourceNotFound("pod affinity tag", affinityTagID)
	}
	return nil
}

// UpdatePodState upserts the statistics snapshot for a pod inside one transaction so concurrent
// refreshes can never produce duplicate rows for the same pod.
func (s *Store) UpdatePodState(ctx context.Context, state *models.PodState) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning pod state update, %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.NamedExecContext(ctx, `
		UPDATE pod_states SET
			count = :count, vcpus = :vcpus, vcpus_used = :vcpus_used,
			memory_mb = :memory_mb, memory_mb_used = :memory_mb_used,
			local_gb = :local_gb, local_gb_used = :local_gb_used,
			free_ram_mb = :free_ram_mb, free_disk_gb = :free_disk_gb,
			current_workload = :current_workload, running_vms = :running_vms,
			disk_available_least = :disk_available_least
		WHERE pod_id = :pod_id`, state)
	if err != nil {
		return fmt.Errorf("updating pod state for %s, %w", state.PodID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO pod_states (pod_id, count, vcpus, vcpus_used, memory_mb, memory_mb_used,
				local_gb, local_gb_used, free_ram_mb, free_disk_gb, current_workload, running_vms,
				disk_available_least)
			VALUES (:pod_id, :count, :vcpus, :vcpus_used, :memory_mb, :memory_mb_used,
				:local_gb, :local_gb_used, :free_ram_mb, :free_disk_gb, :current_workload,
				:running_vms, :disk_available_least)`, state); err != nil {
			return fmt.Errorf("inserting pod state for %s, %w", state.PodID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetPodState(ctx context.Context, podID string) (*models.PodState, error) {
	state := &models.PodState{}
	if err := s.db.GetContext(ctx, state, "SELECT * FROM pod_states WHERE pod_id = ?", podID); err != nil {
		if err == sql.ErrNoRows {
			return nil, t_errors.NewResourceNotFound("pod state", podID)
		}
		return nil, fmt.Errorf("getting pod state for %s, %w", podID, err)
	}
	return state, nil
}

// CreateServiceEndpoint registers the base URL of a service type inside a pod.
func (s *Store) CreateServiceEndpoint(ctx context.Context, ep *models.ServiceEndpoint) (*models.ServiceEndpoint, error) {
	if ep.ServiceID == "" {
		ep.ServiceID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pod_service_endpoints (service_id, pod_id, service_type, service_url)
		VALUES (:service_id, :pod_id, :service_type, :service_url)
		ON CONFLICT (pod_id, service_type) DO UPDATE SET service_url = :service_url`, ep)
	if err != nil {
		return nil, fmt.Errorf("creating service endpoint for pod %s, %w", ep.PodID, err)
	}
	return ep, nil
}

func (s *Store) GetServiceEndpoint(ctx context.Context, podID, serviceType string) (*models.ServiceEndpoint, error) {
	ep := &models.ServiceEndpoint{}
	err := s.db.GetContext(ctx, ep,
		"SELECT * FROM pod_service_endpoints WHERE pod_id = ? AND service_type = ?", podID, serviceType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, t_errors.NewEndpointNotFound(podID, serviceType)
		}
		return nil, fmt.Errorf("getting %s endpoint for pod %s, %w", serviceType, podID, err)
	}
	return ep, nil
}
