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
	"fmt"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// CreatePodBinding inserts an active binding between a tenant and a pod. If an inactive row for
// the pair already exists it is reactivated instead.
func (s *Store) CreatePodBinding(ctx context.Context, tenantID, podID string) (*models.PodBinding, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pod_bindings (tenant_id, pod_id, is_binding, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (tenant_id, pod_id) DO UPDATE SET is_binding = 1, updated_at = ?`,
		tenantID, podID, now, now, now)
	if err != nil {
		return nil, fmt.Errorf("creating binding of tenant %s to pod %s, %w", tenantID, podID, err)
	}
	return s.GetPodBinding(ctx, tenantID, podID)
}

func (s *Store) GetPodBinding(ctx context.Context, tenantID, podID string) (*models.PodBinding, error) {
	binding := &models.PodBinding{}
	err := s.db.GetContext(ctx, binding,
		"SELECT * FROM pod_bindings WHERE tenant_id = ? AND pod_id = ?", tenantID, podID)
	if err != nil {
		return nil, t_errors.NewResourceNotFound("pod binding", tenantID+"/"+podID)
	}
	return binding, nil
}

// ListActiveBindings returns every binding of the tenant whose is_binding flag is set.
func (s *Store) ListActiveBindings(ctx context.Context, tenantID string) ([]*models.PodBinding, error) {
	bindings := []*models.PodBinding{}
	err := s.db.SelectContext(ctx, &bindings,
		"SELECT * FROM pod_bindings WHERE tenant_id = ? AND is_binding = 1", tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing bindings for tenant %s, %w", tenantID, err)
	}
	return bindings, nil
}

// HasBinding reports whether the tenant holds an active binding to the pod. The Tenant filter is
// built on this.
func (s *Store) HasBinding(ctx context.Context, tenantID, podID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM pod_bindings WHERE tenant_id = ? AND pod_id = ? AND is_binding = 1",
		tenantID, podID)
	if err != nil {
		return false, fmt.Errorf("checking binding of tenant %s to pod %s, %w", tenantID, podID, err)
	}
	return count > 0, nil
}

// ChangePodBinding atomically makes newPodID the tenant's active pod within that pod's az:
// every active binding the tenant holds to another pod in the same az is deactivated and the new
// binding is inserted (or reactivated) in the same transaction. Bindings in other azs are left
// untouched.
func (s *Store) ChangePodBinding(ctx context.Context, tenantID, newPodID string) error {
	newPod, err := s.GetPod(ctx, newPodID)
	if err != nil {
		return err
	}
	now := s.now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning binding change, %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE pod_bindings SET is_binding = 0, updated_at = ?
		WHERE tenant_id = ? AND is_binding = 1 AND pod_id != ?
		  AND pod_id IN (SELECT pod_id FROM pods WHERE az_name = ?)`,
		now, tenantID, newPodID, newPod.AZName); err != nil {
		return fmt.Errorf("deactivating previous bindings for tenant %s, %w", tenantID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pod_bindings (tenant_id, pod_id, is_binding, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (tenant_id, pod_id) DO UPDATE SET is_binding = 1, updated_at = ?`,
		tenantID, newPodID, now, now, now); err != nil {
		return fmt.Errorf("activating binding of tenant %s to pod %s, %w", tenantID, newPodID, err)
	}
	return tx.Commit()
}
