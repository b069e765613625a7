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

// Package api exposes the gateway's REST surface: pod administration, pod affinity tags, tenant
// bindings and the resource gateway that schedules and forwards provisioning requests into pods.
// Handlers are thin; all coordination lives in the stores, the scheduler and the forwarder.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openstack-archive/trio2o/pkg/client"
	"github.com/openstack-archive/trio2o/pkg/db"
	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/metrics"
	"github.com/openstack-archive/trio2o/pkg/scheduler"
)

// Server wires the REST handlers to their dependencies.
type Server struct {
	router    *mux.Router
	store     *db.Store
	scheduler scheduler.Scheduler
	forwarder *client.Forwarder
}

func NewServer(store *db.Store, sched scheduler.Scheduler, forwarder *client.Forwarder) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     store,
		scheduler: sched,
		forwarder: forwarder,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router.PathPrefix("/v1.0").Subrouter()
	r.Use(identityMiddleware, observeMiddleware)

	r.HandleFunc("/pods", s.createPod).Methods(http.MethodPost)
	r.HandleFunc("/pods", s.listPods).Methods(http.MethodGet)
	r.HandleFunc("/pods/{id}", s.getPod).Methods(http.MethodGet)
	r.HandleFunc("/pods/{id}", s.deletePod).Methods(http.MethodDelete)

	r.HandleFunc("/pod_affinity_tags", s.createAffinityTag).Methods(http.MethodPost)
	r.HandleFunc("/pod_affinity_tags", s.listAffinityTags).Methods(http.MethodGet)
	r.HandleFunc("/pod_affinity_tags/{id}", s.getAffinityTag).Methods(http.MethodGet)
	r.HandleFunc("/pod_affinity_tags/{id}", s.deleteAffinityTag).Methods(http.MethodDelete)

	r.HandleFunc("/bindings", s.createBinding).Methods(http.MethodPost)
	r.HandleFunc("/bindings/{tenant_id}", s.listBindings).Methods(http.MethodGet)

	for _, res := range gatewayResources {
		res := res
		r.HandleFunc("/{project_id}/"+res.collection, s.createResource(res)).Methods(http.MethodPost)
		r.HandleFunc("/{project_id}/"+res.collection, s.listResources(res)).Methods(http.MethodGet)
		r.HandleFunc("/{project_id}/"+res.collection+"/{id}", s.getResource(res)).Methods(http.MethodGet)
		r.HandleFunc("/{project_id}/"+res.collection+"/{id}", s.deleteResource(res)).Methods(http.MethodDelete)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// observeMiddleware logs the request and records its duration.
func observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		metrics.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).
			Observe(elapsed.Seconds())
		logging.FromContext(r.Context()).
			With("method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", elapsed).
			Debugf("handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := t_errors.FormatError(err)
	writeJSON(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
