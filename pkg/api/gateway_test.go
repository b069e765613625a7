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

package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/samber/lo"

	"github.com/openstack-archive/trio2o/pkg/db"
	"github.com/openstack-archive/trio2o/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Resource gateway", func() {
	var (
		compute *httptest.Server
		pod     *models.Pod
		deleted map[string]bool
	)

	BeforeEach(func() {
		deleted = map[string]bool{}
		compute = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/servers":
				w.WriteHeader(http.StatusAccepted)
				fmt.Fprint(w, `{"server": {"id": "bottom-1", "status": "BUILD"}}`)
			case r.Method == http.MethodGet && r.URL.Path == "/servers":
				fmt.Fprint(w, `{"servers": [{"id": "bottom-1", "status": "ACTIVE"}, {"id": "foreign", "status": "ACTIVE"}]}`)
			case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/servers/"):
				id := strings.TrimPrefix(r.URL.Path, "/servers/")
				if deleted[id] || id != "bottom-1" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				fmt.Fprint(w, `{"server": {"id": "bottom-1", "status": "ACTIVE"}}`)
			case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/servers/"):
				deleted[strings.TrimPrefix(r.URL.Path, "/servers/")] = true
				w.WriteHeader(http.StatusNoContent)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		pod = lo.Must(store.CreatePod(ctx, &models.Pod{PodName: "p1", AZName: "az-1"}))
		Expect(store.UpdatePodState(ctx, &models.PodState{PodID: pod.PodID, FreeDiskGB: 100, MemoryMB: 8192})).To(Succeed())
		_, err := store.CreateServiceEndpoint(ctx, &models.ServiceEndpoint{
			PodID: pod.PodID, ServiceType: models.ServiceTypeNova, ServiceURL: compute.URL,
		})
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		compute.Close()
	})

	createServer := func(topID string) map[string]any {
		body := `{"server": {"name": "vm-1"`
		if topID != "" {
			body += fmt.Sprintf(`, "id": "%s"`, topID)
		}
		body += `}}`
		rec := do(http.MethodPost, "/v1.0/"+project+"/servers", body, project, false)
		Expect(rec.Code).To(Equal(http.StatusAccepted))
		var parsed map[string]map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &parsed)).To(Succeed())
		return parsed["server"]
	}

	It("should schedule, forward and record the routing on create", func() {
		element := createServer("top-1")
		Expect(element["id"]).To(Equal("top-1"))
		Expect(element["bottom_id"]).To(Equal("bottom-1"))
		Expect(element["az_name"]).To(Equal("az-1"))

		mappings, err := store.LookupBottoms(ctx, "top-1", models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(HaveLen(1))
		Expect(mappings[0].Pod.PodID).To(Equal(pod.PodID))

		// the winning create bound the tenant to the pod
		has, err := store.HasBinding(ctx, project, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(has).To(BeTrue())
	})
	It("should answer a repeated create with the recorded bottom", func() {
		createServer("top-1")

		rec := do(http.MethodPost, "/v1.0/"+project+"/servers", `{"server": {"id": "top-1"}}`, project, false)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("bottom-1"))
	})
	It("should tell a concurrent create to back off", func() {
		_, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, project)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))

		rec := do(http.MethodPost, "/v1.0/"+project+"/servers", `{"server": {"id": "top-1"}}`, project, false)
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(rec.Body.String()).To(ContainSubstring("conflictingRequest"))
	})
	It("should proxy reads through the routing", func() {
		createServer("top-1")

		rec := do(http.MethodGet, "/v1.0/"+project+"/servers/top-1", "", project, false)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ACTIVE"))
	})
	It("should clean the stale routing when the pod answers 404", func() {
		createServer("top-1")
		deleted["bottom-1"] = true

		rec := do(http.MethodGet, "/v1.0/"+project+"/servers/top-1", "", project, false)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring("itemNotFound"))

		mappings, err := store.LookupBottoms(ctx, "top-1", models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(BeEmpty())
	})
	It("should preserve the routing across an async delete", func() {
		createServer("top-1")

		rec := do(http.MethodDelete, "/v1.0/"+project+"/servers/top-1", "", project, false)
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		mappings, err := store.LookupBottoms(ctx, "top-1", models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(HaveLen(1))
	})
	It("should list only resources provisioned through the gateway, annotated with the az", func() {
		createServer("top-1")

		rec := do(http.MethodGet, "/v1.0/"+project+"/servers", "", project, false)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var listed map[string][]map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &listed)).To(Succeed())
		Expect(listed["servers"]).To(HaveLen(1))
		Expect(listed["servers"][0]["id"]).To(Equal("top-1"))
		Expect(listed["servers"][0]["az_name"]).To(Equal("az-1"))
	})
	It("should answer 404 for an unrouted resource", func() {
		rec := do(http.MethodGet, "/v1.0/"+project+"/servers/ghost", "", project, false)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
	It("should refuse operating on another tenant's project", func() {
		rec := do(http.MethodPost, "/v1.0/other-project/servers", `{"server": {}}`, project, false)
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})
})
