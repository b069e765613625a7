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

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/openstack-archive/trio2o/pkg/db"
	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/metrics"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// gatewayResource describes one resource collection the gateway proxies into pods.
type gatewayResource struct {
	collection   string
	element      string
	resourceType string
	serviceType  string
	path         string
}

var gatewayResources = []gatewayResource{
	{collection: "servers", element: "server", resourceType: models.ResourceTypeServer, serviceType: models.ServiceTypeNova, path: "/servers"},
	{collection: "volumes", element: "volume", resourceType: models.ResourceTypeVolume, serviceType: models.ServiceTypeCinder, path: "/volumes"},
	{collection: "snapshots", element: "snapshot", resourceType: models.ResourceTypeSnapshot, serviceType: models.ServiceTypeCinder, path: "/snapshots"},
	{collection: "backups", element: "backup", resourceType: models.ResourceTypeBackup, serviceType: models.ServiceTypeCinder, path: "/backups"},
}

func (s *Server) authorizeTenant(r *http.Request) (string, error) {
	project := mux.Vars(r)["project_id"]
	id := IdentityFromContext(r.Context())
	if !id.IsAdmin() && id.ProjectID != project {
		return "", t_errors.NewPolicyNotAuthorized("operate on project " + project)
	}
	return project, nil
}

// createResource schedules a destination pod, takes the create reservation for the top id and
// forwards the request. The reservation is the distributed lock between concurrent creates of the
// same resource: exactly one caller owns it, late callers see the recorded result or back off.
func (s *Server) createResource(res gatewayResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		project, err := s.authorizeTenant(r)
		if err != nil {
			writeError(w, err)
			return
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, t_errors.NewBadRequest("reading request body"))
			return
		}
		var body map[string]map[string]any
		if err := json.Unmarshal(raw, &body); err != nil || body[res.element] == nil {
			writeError(w, t_errors.NewBadRequest("request body %s not found", res.element))
			return
		}
		element := body[res.element]

		topID, _ := element["id"].(string)
		if topID == "" {
			topID = uuid.NewString()
		}
		row, status, err := s.store.Reserve(ctx, topID, res.resourceType, project)
		if err != nil {
			writeError(w, err)
			return
		}
		switch status {
		case db.ReserveResDone:
			writeJSON(w, http.StatusOK, map[string]any{res.element: map[string]any{
				"id":        topID,
				"bottom_id": row.BottomID.String,
				"pod_id":    row.PodID,
			}})
			return
		case db.ReserveNoneDone:
			writeError(w, t_errors.NewConflict("%s %s is being created", res.resourceType, topID))
			return
		}

		spec := specFromElement(project, element)
		pod, _, err := s.scheduler.SelectDestination(ctx, spec)
		if err != nil {
			writeError(w, err)
			return
		}
		if pod == nil {
			s.dropRouting(ctx, topID, res.resourceType)
			writeError(w, t_errors.NewInternal("no pod can serve the %s request", res.resourceType))
			return
		}
		resp, err := s.forwarder.Forward(ctx, pod, res.serviceType, http.MethodPost, res.path, forwardHeaders(r), raw)
		if err != nil {
			s.dropRouting(ctx, topID, res.resourceType)
			writeError(w, err)
			return
		}
		metrics.ForwardedRequestsTotal.WithLabelValues(res.serviceType, http.MethodPost, strconv.Itoa(resp.StatusCode)).Inc()
		if !resp.OK() {
			s.dropRouting(ctx, topID, res.resourceType)
			writeRaw(w, resp.StatusCode, resp.Body)
			return
		}
		bottomID := bottomIDFromResponse(resp.Body, res.element)
		if bottomID == "" {
			bottomID = topID
		}
		if err := s.store.Complete(ctx, topID, res.resourceType, bottomID, pod.PodID, project); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, resp.StatusCode, annotateElement(resp.Body, res.element, map[string]any{
			"id":        topID,
			"bottom_id": bottomID,
			"az_name":   pod.AZName,
		}))
	}
}

func (s *Server) getResource(res gatewayResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, err := s.authorizeTenant(r); err != nil {
			writeError(w, err)
			return
		}
		topID := mux.Vars(r)["id"]
		mapping, err := s.singleMapping(ctx, topID, res)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := s.forwarder.Forward(ctx, mapping.Pod, res.serviceType, http.MethodGet,
			res.path+"/"+mapping.BottomID, forwardHeaders(r), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ForwardedRequestsTotal.WithLabelValues(res.serviceType, http.MethodGet, strconv.Itoa(resp.StatusCode)).Inc()
		if resp.NotFound() {
			s.dropRouting(ctx, topID, res.resourceType)
			writeError(w, t_errors.NewResourceNotFound(res.resourceType, topID))
			return
		}
		writeRaw(w, resp.StatusCode, resp.Body)
	}
}

// deleteResource forwards the delete and keeps the routing row: deletion completes asynchronously
// in the pod and a later read will clean the row up once the pod answers 404.
func (s *Server) deleteResource(res gatewayResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, err := s.authorizeTenant(r); err != nil {
			writeError(w, err)
			return
		}
		topID := mux.Vars(r)["id"]
		mapping, err := s.singleMapping(ctx, topID, res)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := s.forwarder.Forward(ctx, mapping.Pod, res.serviceType, http.MethodDelete,
			res.path+"/"+mapping.BottomID, forwardHeaders(r), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.ForwardedRequestsTotal.WithLabelValues(res.serviceType, http.MethodDelete, strconv.Itoa(resp.StatusCode)).Inc()
		writeRaw(w, resp.StatusCode, resp.Body)
	}
}

// listResources aggregates the collection across the tenant's bound pods. Downstream items are
// intersected with the routing table so resources not provisioned through the gateway never show
// up, and each surviving item is annotated with its pod's az.
func (s *Server) listResources(res gatewayResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		project, err := s.authorizeTenant(r)
		if err != nil {
			writeError(w, err)
			return
		}
		pods, err := s.store.ListPodsByTenant(ctx, project)
		if err != nil {
			writeError(w, err)
			return
		}
		items := []map[string]any{}
		for _, pod := range pods {
			resp, err := s.forwarder.Forward(ctx, pod, res.serviceType, http.MethodGet, res.path, forwardHeaders(r), nil)
			if err != nil {
				logging.FromContext(ctx).With("pod", pod.PodName).Errorf("listing %s, %s", res.collection, err)
				continue
			}
			metrics.ForwardedRequestsTotal.WithLabelValues(res.serviceType, http.MethodGet, strconv.Itoa(resp.StatusCode)).Inc()
			if !resp.OK() {
				continue
			}
			routings, err := s.store.LookupByTenantPod(ctx, project, pod.PodID, res.resourceType)
			if err != nil {
				writeError(w, err)
				return
			}
			var page map[string][]map[string]any
			if err := json.Unmarshal(resp.Body, &page); err != nil {
				continue
			}
			for _, item := range page[res.collection] {
				bottomID, _ := item["id"].(string)
				routing, ok := routings[bottomID]
				if !ok {
					continue
				}
				item["id"] = routing.TopID
				item["az_name"] = pod.AZName
				items = append(items, item)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{res.collection: items})
	}
}

// singleMapping resolves the one expected routing for a top id.
func (s *Server) singleMapping(ctx context.Context, topID string, res gatewayResource) (db.Mapping, error) {
	mappings, err := s.store.LookupBottoms(ctx, topID, res.resourceType)
	if err != nil {
		return db.Mapping{}, err
	}
	if len(mappings) == 0 {
		return db.Mapping{}, t_errors.NewResourceNotFound(res.resourceType, topID)
	}
	return mappings[0], nil
}

// dropRouting clears the routing rows for a top id, logging rather than surfacing failures since
// it is always a cleanup side effect.
func (s *Server) dropRouting(ctx context.Context, topID, resourceType string) {
	if _, err := s.store.DeleteRoutings(ctx,
		db.Filter{Key: "top_id", Value: topID},
		db.Filter{Key: "resource_type", Value: resourceType},
	); err != nil {
		logging.FromContext(ctx).With("top_id", topID).Errorf("clearing routing, %s", err)
	}
}

// specFromElement builds the scheduling input from the create body.
func specFromElement(project string, element map[string]any) *models.RequestSpec {
	spec := &models.RequestSpec{ProjectID: project}
	if az, ok := element["availability_zone"].(string); ok {
		spec.AZName = az
	}
	if dest, ok := element["pod_name"].(string); ok {
		spec.RequestedDestination = dest
	}
	if hints, ok := element["scheduler_hints"].(map[string]any); ok {
		tags := map[string]string{}
		for k, v := range hints {
			if value, ok := v.(string); ok {
				tags[k] = value
			}
		}
		if len(tags) > 0 {
			spec.AffinityTags = tags
		}
	}
	for key, target := range map[string]**int64{
		"vcpus": &spec.VCPUs, "memory_mb": &spec.MemoryMB, "size": &spec.DiskGB,
	} {
		if value, ok := element[key].(float64); ok {
			demand := int64(value)
			*target = &demand
		}
	}
	return spec
}

// bottomIDFromResponse extracts the created resource's id from the downstream body.
func bottomIDFromResponse(body []byte, element string) string {
	var parsed map[string]map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	id, _ := parsed[element]["id"].(string)
	return id
}

// annotateElement merges gateway-side fields into the downstream element body.
func annotateElement(body []byte, element string, extra map[string]any) map[string]any {
	var parsed map[string]map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil || parsed[element] == nil {
		parsed = map[string]map[string]any{element: {}}
	}
	for k, v := range extra {
		parsed[element][k] = v
	}
	return map[string]any{element: parsed[element]}
}

// forwardHeaders keeps the identity headers on the way down.
func forwardHeaders(r *http.Request) http.Header {
	out := http.Header{}
	for _, key := range []string{"X-Project-Id", "X-Roles", "X-Auth-Token", "Content-Type"} {
		if value := r.Header.Get(key); value != "" {
			out.Set(key, value)
		}
	}
	return out
}
