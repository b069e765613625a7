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

package xjob_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/openstack-archive/trio2o/pkg/client"
	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/operator/options"
	"github.com/openstack-archive/trio2o/pkg/xjob"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PodStateRefresher", func() {
	var (
		compute *httptest.Server
		pod     *models.Pod
	)

	BeforeEach(func() {
		compute = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/os-hypervisors/statistics"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"hypervisor_statistics": {
				"count": 2, "vcpus": 64, "vcpus_used": 16,
				"memory_mb": 131072, "memory_mb_used": 65536,
				"local_gb": 2048, "local_gb_used": 512,
				"free_ram_mb": 65536, "free_disk_gb": 1536,
				"current_workload": 3, "running_vms": 12,
				"disk_available_least": 1024
			}}`)
		}))
		var err error
		pod, err = store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreateServiceEndpoint(ctx, &models.ServiceEndpoint{
			PodID: pod.PodID, ServiceType: models.ServiceTypeNova, ServiceURL: compute.URL,
		})
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		compute.Close()
	})

	It("should pull the hypervisor summary into the pod state", func() {
		refresher := xjob.NewPodStateRefresher(store, client.NewForwarder(store, false))
		Expect(refresher.Refresh(ctx, pod.PodID)).To(Succeed())

		state, err := store.GetPodState(ctx, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(state.VCPUs).To(Equal(int64(64)))
		Expect(state.FreeDiskGB).To(Equal(int64(1536)))
		Expect(state.RunningVMs).To(Equal(int64(12)))
	})
	It("should refresh every bottom pod through the worker", func() {
		refresher := xjob.NewPodStateRefresher(store, client.NewForwarder(store, false))
		coordinator.Register(models.JobPodStateStatistics, refresher.Refresh)
		worker := xjob.NewWorker(coordinator, store, options.New())

		worker.RefreshPodStates(ctx)

		state, err := store.GetPodState(ctx, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(state.MemoryMBUsed).To(Equal(int64(65536)))

		ts, err := store.GetLatestTimestamp(ctx, models.JobSuccess, models.JobPodStateStatistics, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(ts).ToNot(BeZero())
	})
	It("should record a failure when the pod answers with an error", func() {
		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer broken.Close()
		_, err := store.CreateServiceEndpoint(ctx, &models.ServiceEndpoint{
			PodID: pod.PodID, ServiceType: models.ServiceTypeNova, ServiceURL: broken.URL,
		})
		Expect(err).ToNot(HaveOccurred())

		refresher := xjob.NewPodStateRefresher(store, client.NewForwarder(store, false))
		coordinator.Register(models.JobPodStateStatistics, refresher.Refresh)
		Expect(coordinator.RunRegistered(ctx, models.JobPodStateStatistics, pod.PodID)).To(Succeed())

		ts, err := store.GetLatestTimestamp(ctx, models.JobFail, models.JobPodStateStatistics, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(ts).ToNot(BeZero())
	})
})
