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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/openstack-archive/trio2o/pkg/db"
	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

type affinityTagRequest struct {
	PodAffinityTag *struct {
		PodID string `json:"pod_id"`
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"pod_affinity_tag"`
}

func (s *Server) createAffinityTag(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("create pod affinity tag"))
		return
	}
	var req affinityTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PodAffinityTag == nil {
		writeError(w, t_errors.NewBadRequest("request body pod_affinity_tag not found"))
		return
	}
	for field, value := range map[string]string{
		"pod_id": req.PodAffinityTag.PodID,
		"key":    req.PodAffinityTag.Key,
		"value":  req.PodAffinityTag.Value,
	} {
		if value == "" {
			writeError(w, t_errors.NewBadRequest("field %s can not be empty", field))
			return
		}
	}
	tag, err := s.store.CreatePodAffinityTag(r.Context(), &models.PodAffinityTag{
		PodID: req.PodAffinityTag.PodID,
		Key:   req.PodAffinityTag.Key,
		Value: req.PodAffinityTag.Value,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*models.PodAffinityTag{"pod_affinity_tag": tag})
}

func (s *Server) getAffinityTag(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("get pod affinity tag"))
		return
	}
	tag, err := s.store.GetPodAffinityTag(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.PodAffinityTag{"pod_affinity_tag": tag})
}

func (s *Server) listAffinityTags(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("list pod affinity tags"))
		return
	}
	var filters []db.Filter
	for _, key := range []string{"pod_id", "key", "value"} {
		if value := r.URL.Query().Get(key); value != "" {
			filters = append(filters, db.Filter{Key: key, Value: value})
		}
	}
	tags, err := s.store.ListPodAffinityTags(r.Context(), filters...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*models.PodAffinityTag{"pod_affinity_tags": tags})
}

func (s *Server) deleteAffinityTag(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("delete pod affinity tag"))
		return
	}
	if err := s.store.DeletePodAffinityTag(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
