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

type bindingRequest struct {
	PodBinding *struct {
		TenantID string `json:"tenant_id"`
		PodID    string `json:"pod_id"`
	} `json:"pod_binding"`
}

// createBinding makes the pod the tenant's active pod within the pod's az. The store deactivates
// any other active binding the tenant holds in that az in the same transaction.
func (s *Server) createBinding(w http.ResponseWriter, r *http.Request) {
	if !IdentityFromContext(r.Context()).IsAdmin() {
		writeError(w, t_errors.NewPolicyNotAuthorized("create pod binding"))
		return
	}
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PodBinding == nil {
		writeError(w, t_errors.NewBadRequest("request body pod_binding not found"))
		return
	}
	if req.PodBinding.TenantID == "" || req.PodBinding.PodID == "" {
		writeError(w, t_errors.NewBadRequest("fields tenant_id and pod_id can not be empty"))
		return
	}
	if err := s.store.ChangePodBinding(r.Context(), req.PodBinding.TenantID, req.PodBinding.PodID); err != nil {
		writeError(w, err)
		return
	}
	binding, err := s.store.GetPodBinding(r.Context(), req.PodBinding.TenantID, req.PodBinding.PodID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*models.PodBinding{"pod_binding": binding})
}

func (s *Server) listBindings(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	tenantID := mux.Vars(r)["tenant_id"]
	if !id.IsAdmin() && id.ProjectID != tenantID {
		writeError(w, t_errors.NewPolicyNotAuthorized("list pod bindings"))
		return
	}
	bindings, err := s.store.ListActiveBindings(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*models.PodBinding{"pod_bindings": bindings})
}
