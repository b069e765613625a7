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

	"github.com/openstack-archive/trio2o/pkg/models"
)

// NewJob records a New marker for (jobType, resourceID) and returns it. The marker's timestamp is
// the reference point the coordinator compares later Success rows against.
func (s *Store) NewJob(ctx context.Context, jobType, resourceID string) (*models.Job, error) {
	job := &models.Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		ResourceID: resourceID,
		ExtraID:    uuid.NewString(),
		Status:     models.JobNew,
		Timestamp:  s.now(),
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO async_jobs (id, type, resource_id, extra_id, status, timestamp)
		VALUES (:id, :type, :resource_id, :extra_id, :status, :timestamp)`, job); err != nil {
		return nil, fmt.Errorf("recording new job %s for %s, %w", jobType, resourceID, err)
	}
	return job, nil
}

// RegisterJob attempts to take the run lock for (jobType, resourceID) by inserting the single
// permitted Running row, whose extra id is the shared sentinel. The insert is conditional on no
// Running row existing, so exactly one of any number of concurrent workers wins; losers get a nil
// job and no error.
func (s *Store) RegisterJob(ctx context.Context, jobType, resourceID string) (*models.Job, error) {
	id := uuid.NewString()
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO async_jobs (id, type, resource_id, extra_id, status, timestamp)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM async_jobs WHERE type = ? AND resource_id = ? AND status = ?
		)`,
		id, jobType, resourceID, models.SPExtraID, models.JobRunning, now,
		jobType, resourceID, models.JobRunning)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registering job %s for %s, %w", jobType, resourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return &models.Job{
		ID: id, Type: jobType, ResourceID: resourceID,
		ExtraID: models.SPExtraID, Status: models.JobRunning, Timestamp: now,
	}, nil
}

// GetRunningJob returns the Running row for (jobType, resourceID), or nil when there is none.
func (s *Store) GetRunningJob(ctx context.Context, jobType, resourceID string) (*models.Job, error) {
	job := &models.Job{}
	err := s.db.GetContext(ctx, job,
		"SELECT * FROM async_jobs WHERE type = ? AND resource_id = ? AND status = ?",
		jobType, resourceID, models.JobRunning)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting running job %s for %s, %w", jobType, resourceID, err)
	}
	return job, nil
}

// FinishJob moves a Running job row to Success or Fail. The row keeps the given timestamp (the
// caller's New marker) so the latest-Success comparison holds, and gets a fresh extra id so the
// Running slot frees up under the unique index. The write is conditional on the row still being
// Running: a finisher racing the expiry sweep cannot overwrite the other's recorded outcome, and
// losing that race is a no-op.
func (s *Store) FinishJob(ctx context.Context, jobID string, successful bool, timestamp int64) error {
	status := models.JobFail
	if successful {
		status = models.JobSuccess
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE async_jobs SET status = ?, timestamp = ?, extra_id = ? WHERE id = ? AND status = ?",
		status, timestamp, uuid.NewString(), jobID, models.JobRunning); err != nil {
		return fmt.Errorf("finishing job %s, %w", jobID, err)
	}
	return nil
}

// GetLatestTimestamp returns the newest timestamp among rows of the given status for
// (jobType, resourceID), or 0 when there is none.
func (s *Store) GetLatestTimestamp(ctx context.Context, status, jobType, resourceID string) (int64, error) {
	var ts int64
	err := s.db.GetContext(ctx, &ts, `
		SELECT timestamp FROM async_jobs
		WHERE type = ? AND resource_id = ? AND status = ?
		ORDER BY timestamp DESC LIMIT 1`,
		jobType, resourceID, status)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("getting latest %s timestamp of %s for %s, %w", status, jobType, resourceID, err)
	}
	return ts, nil
}

// GetLatestFailedJobs returns, for every (type, resource_id), the newest row when that row is
// Fail. These are the redo candidates.
func (s *Store) GetLatestFailedJobs(ctx context.Context) ([]*models.Job, error) {
	jobs := []*models.Job{}
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT j.* FROM async_jobs j
		JOIN (
			SELECT type, resource_id, MAX(timestamp) AS ts
			FROM async_jobs GROUP BY type, resource_id
		) latest
		ON j.type = latest.type AND j.resource_id = latest.resource_id AND j.timestamp = latest.ts
		WHERE j.status = ?`, models.JobFail)
	if err != nil {
		return nil, fmt.Errorf("listing latest failed jobs, %w", err)
	}
	return jobs, nil
}
