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

package db_test

import (
	"time"

	"github.com/openstack-archive/trio2o/pkg/db"
	"github.com/openstack-archive/trio2o/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Routing", func() {
	var pod *models.Pod

	BeforeEach(func() {
		var err error
		pod, err = store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
	})

	It("should grant ownership to the first reserver", func() {
		row, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))
		Expect(row.IsReservation()).To(BeTrue())
	})
	It("should tell a second reserver to back off while the reservation is fresh", func() {
		_, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))

		_, status, err = store.Reserve(ctx, "top-1", models.ResourceTypeServer, "other")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveNoneDone))
	})
	It("should report the recorded bottom after completion", func() {
		_, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))
		Expect(store.Complete(ctx, "top-1", models.ResourceTypeServer, "bottom-1", pod.PodID, "tenant")).To(Succeed())

		row, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "other")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveResDone))
		Expect(row.BottomID.String).To(Equal("bottom-1"))
	})
	It("should hand an abandoned reservation to a new owner after the expiry", func() {
		_, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))

		fakeClock.Step(2 * time.Minute)
		row, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "other")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))
		Expect(row.ProjectID).To(Equal("other"))
	})
	It("should exclude reservations from bottom lookups", func() {
		_, _, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "tenant")
		Expect(err).ToNot(HaveOccurred())

		mappings, err := store.LookupBottoms(ctx, "top-1", models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(BeEmpty())

		Expect(store.Complete(ctx, "top-1", models.ResourceTypeServer, "bottom-1", pod.PodID, "tenant")).To(Succeed())
		mappings, err = store.LookupBottoms(ctx, "top-1", models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(HaveLen(1))
		Expect(mappings[0].Pod.PodID).To(Equal(pod.PodID))
		Expect(mappings[0].BottomID).To(Equal("bottom-1"))
	})
	It("should key tenant lookups by bottom id", func() {
		Expect(store.Complete(ctx, "top-1", models.ResourceTypeVolume, "bottom-1", pod.PodID, "tenant")).To(Succeed())
		Expect(store.Complete(ctx, "top-2", models.ResourceTypeVolume, "bottom-2", pod.PodID, "tenant")).To(Succeed())

		routings, err := store.LookupByTenantPod(ctx, "tenant", pod.PodID, models.ResourceTypeVolume)
		Expect(err).ToNot(HaveOccurred())
		Expect(routings).To(HaveLen(2))
		Expect(routings["bottom-1"].TopID).To(Equal("top-1"))
	})
	It("should refuse to delete routings without filters", func() {
		_, err := store.DeleteRoutings(ctx)
		Expect(err).To(HaveOccurred())
	})
	It("should delete routings matching the filters", func() {
		Expect(store.Complete(ctx, "top-1", models.ResourceTypeServer, "bottom-1", pod.PodID, "tenant")).To(Succeed())

		n, err := store.DeleteRoutings(ctx,
			db.Filter{Key: "top_id", Value: "top-1"},
			db.Filter{Key: "resource_type", Value: models.ResourceTypeServer},
		)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		mappings, err := store.LookupBottoms(ctx, "top-1", models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(mappings).To(BeEmpty())
	})
	It("should leave no reservation behind once completed", func() {
		_, status, err := store.Reserve(ctx, "top-1", models.ResourceTypeServer, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(db.ReserveOwned))
		Expect(store.Complete(ctx, "top-1", models.ResourceTypeServer, "bottom-1", pod.PodID, "tenant")).To(Succeed())

		// the reservation row became the completed row, there is exactly one
		routings, err := store.LookupByTenantPod(ctx, "tenant", pod.PodID, models.ResourceTypeServer)
		Expect(err).ToNot(HaveOccurred())
		Expect(routings).To(HaveLen(1))
	})
})
