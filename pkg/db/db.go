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

// Package db is the single persistent truth shared by every worker process. Pods, bindings,
// routings and jobs live here; all cross-worker mutual exclusion is expressed as conditional
// writes against these tables, never as in-process locks.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"k8s.io/utils/clock"
	sqlite "modernc.org/sqlite"

	"github.com/openstack-archive/trio2o/pkg/utils/functional"
)

const schema = `
CREATE TABLE IF NOT EXISTS pods (
	pod_id               TEXT PRIMARY KEY,
	pod_name             TEXT NOT NULL UNIQUE,
	pod_az_name          TEXT NOT NULL DEFAULT '',
	dc_name              TEXT NOT NULL DEFAULT '',
	az_name              TEXT NOT NULL DEFAULT '',
	is_under_maintenance INTEGER NOT NULL DEFAULT 0,
	create_time          INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pod_states (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	pod_id               TEXT NOT NULL UNIQUE,
	count                INTEGER NOT NULL DEFAULT 0,
	vcpus                INTEGER NOT NULL DEFAULT 0,
	vcpus_used           INTEGER NOT NULL DEFAULT 0,
	memory_mb            INTEGER NOT NULL DEFAULT 0,
	memory_mb_used       INTEGER NOT NULL DEFAULT 0,
	local_gb             INTEGER NOT NULL DEFAULT 0,
	local_gb_used        INTEGER NOT NULL DEFAULT 0,
	free_ram_mb          INTEGER NOT NULL DEFAULT 0,
	free_disk_gb         INTEGER NOT NULL DEFAULT 0,
	current_workload     INTEGER NOT NULL DEFAULT 0,
	running_vms          INTEGER NOT NULL DEFAULT 0,
	disk_available_least INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pod_affinity_tags (
	affinity_tag_id TEXT PRIMARY KEY,
	pod_id          TEXT NOT NULL,
	key             TEXT NOT NULL,
	value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pod_bindings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id  TEXT NOT NULL,
	pod_id     TEXT NOT NULL,
	is_binding INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (tenant_id, pod_id)
);

CREATE TABLE IF NOT EXISTS resource_routings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	top_id        TEXT NOT NULL,
	bottom_id     TEXT,
	pod_id        TEXT NOT NULL DEFAULT '',
	project_id    TEXT NOT NULL DEFAULT '',
	resource_type TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	UNIQUE (top_id, resource_type)
);

CREATE TABLE IF NOT EXISTS async_jobs (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	extra_id    TEXT NOT NULL,
	status      TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	UNIQUE (type, status, resource_id, extra_id)
);

CREATE TABLE IF NOT EXISTS pod_service_endpoints (
	service_id   TEXT PRIMARY KEY,
	pod_id       TEXT NOT NULL,
	service_type TEXT NOT NULL,
	service_url  TEXT NOT NULL,
	UNIQUE (pod_id, service_type)
);
`

// DefaultReservationExpire is how long a routing reservation (bottom_id null) is honored before a
// competing worker may take ownership of it.
const DefaultReservationExpire = 60 * time.Second

type Options struct {
	Clock             clock.Clock
	ReservationExpire time.Duration
}

func WithClock(c clock.Clock) functional.Option[Options] {
	return func(o Options) Options {
		o.Clock = c
		return o
	}
}

func WithReservationExpire(d time.Duration) functional.Option[Options] {
	return func(o Options) Options {
		o.ReservationExpire = d
		return o
	}
}

// Store wraps the shared database. It is safe for concurrent use; sqlite serializes writers and
// every multi-statement mutation runs in a transaction.
type Store struct {
	db                *sqlx.DB
	clock             clock.Clock
	reservationExpire time.Duration
}

// Open opens (creating if needed) the database at the given DSN and applies the schema.
// In-memory DSNs are limited to a single connection so that every caller observes the same
// database.
func Open(ctx context.Context, dsn string, opts ...functional.Option[Options]) (*Store, error) {
	options := functional.ResolveOptions(opts...)
	if options.Clock == nil {
		options.Clock = clock.RealClock{}
	}
	if options.ReservationExpire == 0 {
		options.ReservationExpire = DefaultReservationExpire
	}
	memory := strings.Contains(dsn, ":memory:")
	if !memory {
		// the pragma rides the DSN so every pooled connection gets it; a connection without a
		// busy timeout fails writes with SQLITE_BUSY instead of waiting out a concurrent writer
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(10000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s, %w", dsn, err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		// sqlite serializes writers anyway; a small pool keeps readers from queueing behind them
		db.SetMaxOpenConns(4)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("applying schema, %w", err)
	}
	return &Store{db: db, clock: options.Clock, reservationExpire: options.ReservationExpire}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() int64 {
	return s.clock.Now().UnixNano()
}

// Filter is one predicate of a store list query, mirroring the {key, comparator, value} triples
// the admin API accepts. Only "eq" is supported; keys are whitelisted per query.
type Filter struct {
	Key   string
	Value any
}

// isUniqueViolation recognizes sqlite constraint failures so they can surface as Conflict instead
// of opaque driver errors. 19 is SQLITE_CONSTRAINT; 1555 and 2067 are the primary key and unique
// extended codes.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == 19 || code == 1555 || code == 2067
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func buildWhere(filters []Filter, allowed map[string]bool) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if !allowed[f.Key] {
			return "", nil, fmt.Errorf("unsupported filter key %q", f.Key)
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", f.Key))
		args = append(args, f.Value)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
