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

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

type podRequest struct {
	Pod *struct {
		PodName            string `json:"pod_name"`
		PodAZName          string `json:"pod_az_name"`
		DCName             string `json:"dc_name"`
		AZName             string `json:"az_name"`
		IsUnderMaintenance bool   `json:"is_under_maintenance"`
	} `json:"pod"`
}

func (s *Server) createPod(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("create pod"))
		return
	}
	var req podRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pod == nil {
		writeError(w, t_errors.NewBadRequest("request body not found"))
		return
	}
	if req.Pod.PodName == "" {
		writeError(w, t_errors.NewBadRequest("field pod_name can not be empty"))
		return
	}
	pod, err := s.store.CreatePod(r.Context(), &models.Pod{
		PodName:            req.Pod.PodName,
		PodAZName:          req.Pod.PodAZName,
		DCName:             req.Pod.DCName,
		AZName:             req.Pod.AZName,
		IsUnderMaintenance: req.Pod.IsUnderMaintenance,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*models.Pod{"pod": pod})
}

func (s *Server) listPods(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("list pods"))
		return
	}
	pods, err := s.store.ListPods(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*models.Pod{"pods": pods})
}

func (s *Server) getPod(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("get pod"))
		return
	}
	pod, err := s.store.GetPod(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Pod{"pod": pod})
}

func (s *Server) deletePod(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("delete pod"))
		return
	}
	if err := s.store.DeletePod(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
