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

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// ReserveStatus is the outcome of a reservation attempt against (top_id, resource_type).
type ReserveStatus int

const (
	// ReserveOwned means the caller holds the reservation and must create the bottom resource.
	ReserveOwned ReserveStatus = iota
	// ReserveResDone means the bottom resource already exists; the recorded row is returned.
	ReserveResDone
	// ReserveNoneDone means another worker holds a fresh reservation; the caller backs off.
	ReserveNoneDone
)

func (r ReserveStatus) String() string {
	switch r {
	case ReserveOwned:
		return "OWNED"
	case ReserveResDone:
		return "RES_DONE"
	case ReserveNoneDone:
		return "NONE_DONE"
	}
	return "UNKNOWN"
}

// Reserve acts as the distributed create lock for (topID, resourceType). It inserts a reservation
// row (bottom_id null) when none exists; reports RES_DONE when a completed row exists; defers to
// a fresh reservation with NONE_DONE; and takes over reservations older than the store's
// reservation TTL with a compare-and-set on updated_at. Races are resolved entirely by the
// table's uniqueness constraint and conditional writes.
func (s *Store) Reserve(ctx context.Context, topID, resourceType, projectID string) (*models.ResourceRouting, ReserveStatus, error) {
	now := s.now()
	existing, err := s.getRouting(ctx, topID, resourceType)
	if err != nil && err != sql.ErrNoRows {
		return nil, ReserveNoneDone, fmt.Errorf("inspecting routing for %s/%s, %w", resourceType, topID, err)
	}
	if err == nil {
		if !existing.IsReservation() {
			return existing, ReserveResDone, nil
		}
		if now-existing.UpdatedAt <= s.reservationExpire.Nanoseconds() {
			return nil, ReserveNoneDone, nil
		}
		// abandoned reservation: take ownership iff nobody else did in the meantime
		res, err := s.db.ExecContext(ctx,
			"UPDATE resource_routings SET updated_at = ?, project_id = ? WHERE id = ? AND updated_at = ?",
			now, projectID, existing.ID, existing.UpdatedAt)
		if err != nil {
			return nil, ReserveNoneDone, fmt.Errorf("reclaiming reservation for %s/%s, %w", resourceType, topID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			existing.UpdatedAt = now
			existing.ProjectID = projectID
			return existing, ReserveOwned, nil
		}
		return nil, ReserveNoneDone, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO resource_routings (top_id, bottom_id, pod_id, project_id, resource_type, created_at, updated_at)
		VALUES (?, NULL, '', ?, ?, ?, ?)`,
		topID, projectID, resourceType, now, now)
	if err != nil {
		return nil, ReserveNoneDone, fmt.Errorf("reserving routing for %s/%s, %w", resourceType, topID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		row, err := s.getRouting(ctx, topID, resourceType)
		if err != nil {
			return nil, ReserveNoneDone, fmt.Errorf("reading reservation for %s/%s, %w", resourceType, topID, err)
		}
		return row, ReserveOwned, nil
	}
	// lost the insert race; the winner's row decides between RES_DONE and NONE_DONE
	row, err := s.getRouting(ctx, topID, resourceType)
	if err != nil {
		return nil, ReserveNoneDone, nil
	}
	if !row.IsReservation() {
		return row, ReserveResDone, nil
	}
	return nil, ReserveNoneDone, nil
}

// Complete fills in the bottom resource on a reservation. If expiry handling ripped the row out in
// the meantime a fresh completed row is inserted.
func (s *Store) Complete(ctx context.Context, topID, resourceType, bottomID, podID, projectID string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE resource_routings SET bottom_id = ?, pod_id = ?, project_id = ?, updated_at = ?
		WHERE top_id = ? AND resource_type = ?`,
		bottomID, podID, projectID, now, topID, resourceType)
	if err != nil {
		return fmt.Errorf("completing routing for %s/%s, %w", resourceType, topID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO resource_routings (top_id, bottom_id, pod_id, project_id, resource_type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			topID, bottomID, podID, projectID, resourceType, now, now); err != nil {
			return fmt.Errorf("inserting completed routing for %s/%s, %w", resourceType, topID, err)
		}
	}
	return nil
}

func (s *Store) getRouting(ctx context.Context, topID, resourceType string) (*models.ResourceRouting, error) {
	row := &models.ResourceRouting{}
	err := s.db.GetContext(ctx, row,
		"SELECT * FROM resource_routings WHERE top_id = ? AND resource_type = ?", topID, resourceType)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Mapping pairs the pod holding a bottom resource with that resource's id.
type Mapping struct {
	Pod      *models.Pod
	BottomID string
}

// LookupBottoms returns the (pod, bottom_id) mappings recorded for a top resource. Reservation
// rows are excluded; a completed routing to a vanished pod is an internal inconsistency.
func (s *Store) LookupBottoms(ctx context.Context, topID, resourceType string) ([]Mapping, error) {
	rows := []*models.ResourceRouting{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM resource_routings
		WHERE top_id = ? AND resource_type = ? AND bottom_id IS NOT NULL AND bottom_id != ''`,
		topID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("looking up bottoms for %s/%s, %w", resourceType, topID, err)
	}
	mappings := make([]Mapping, 0, len(rows))
	for _, row := range rows {
		pod, err := s.GetPod(ctx, row.PodID)
		if err != nil {
			return nil, t_errors.NewInternal("routing %d references missing pod %s", row.ID, row.PodID).WithCause(err)
		}
		mappings = append(mappings, Mapping{Pod: pod, BottomID: row.BottomID.String})
	}
	return mappings, nil
}

// LookupByTenantPod returns the completed routings of a tenant inside one pod, keyed by
// bottom_id. Handlers intersect downstream list results with this map to drop resources that were
// never provisioned through the gateway.
func (s *Store) LookupByTenantPod(ctx context.Context, tenantID, podID, resourceType string) (map[string]*models.ResourceRouting, error) {
	rows := []*models.ResourceRouting{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM resource_routings
		WHERE project_id = ? AND pod_id = ? AND resource_type = ?
		  AND bottom_id IS NOT NULL AND bottom_id != ''`,
		tenantID, podID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("looking up routings of tenant %s in pod %s, %w", tenantID, podID, err)
	}
	out := make(map[string]*models.ResourceRouting, len(rows))
	for _, row := range rows {
		out[row.BottomID.String] = row
	}
	return out, nil
}

var routingFilterKeys = map[string]bool{
	"top_id": true, "bottom_id": true, "pod_id": true, "project_id": true, "resource_type": true,
}

// DeleteRoutings removes every routing row matching the filters and returns how many went away.
// Callers use it both for explicit deletes and for clearing stale rows after a downstream 404.
func (s *Store) DeleteRoutings(ctx context.Context, filters ...Filter) (int64, error) {
	where, args, err := buildWhere(filters, routingFilterKeys)
	if err != nil {
		return 0, err
	}
	if where == "" {
		return 0, t_errors.NewInvalidInput("refusing to delete routings without filters")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM resource_routings"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting routings, %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
