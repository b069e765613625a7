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
	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pods", func() {
	It("should generate an id and stamp the create time", func() {
		pod, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		Expect(pod.PodID).ToNot(BeEmpty())
		Expect(pod.CreateTime).To(Equal(fakeClock.Now().UnixNano()))
	})
	It("should reject a duplicate pod name", func() {
		_, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-2"})
		Expect(t_errors.IsConflict(err)).To(BeTrue())
	})
	It("should allow at most one top pod", func() {
		_, err := store.CreatePod(ctx, &models.Pod{PodName: "top"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreatePod(ctx, &models.Pod{PodName: "top-2"})
		Expect(t_errors.IsConflict(err)).To(BeTrue())

		top, err := store.TopPod(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(top.PodName).To(Equal("top"))
	})
	It("should find pods by name and by id", func() {
		created, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())

		byID, err := store.GetPod(ctx, created.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(byID.PodName).To(Equal("pod-1"))

		byName, err := store.GetPodByName(ctx, "pod-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(byName.PodID).To(Equal(created.PodID))
	})
	It("should refuse deleting a pod that routings still reference", func() {
		pod, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		Expect(store.Complete(ctx, "top-r", models.ResourceTypeServer, "bottom-r", pod.PodID, "tenant")).To(Succeed())

		err = store.DeletePod(ctx, pod.PodID)
		Expect(t_errors.IsConflict(err)).To(BeTrue())
	})
	It("should upsert the pod state without duplicating rows", func() {
		pod, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		Expect(store.UpdatePodState(ctx, &models.PodState{PodID: pod.PodID, FreeDiskGB: 10})).To(Succeed())
		Expect(store.UpdatePodState(ctx, &models.PodState{PodID: pod.PodID, FreeDiskGB: 20})).To(Succeed())

		state, err := store.GetPodState(ctx, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(state.FreeDiskGB).To(Equal(int64(20)))
	})
	It("should collapse affinity tags into a map with the last write winning", func() {
		pod, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreatePodAffinityTag(ctx, &models.PodAffinityTag{PodID: pod.PodID, Key: "volume", Value: "SAS"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreatePodAffinityTag(ctx, &models.PodAffinityTag{PodID: pod.PodID, Key: "volume", Value: "SSD"})
		Expect(err).ToNot(HaveOccurred())

		tags, err := store.AffinityTagsAsMap(ctx, pod.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(tags).To(HaveKeyWithValue("volume", "SSD"))
	})
	It("should reject creating a tag for a missing pod", func() {
		_, err := store.CreatePodAffinityTag(ctx, &models.PodAffinityTag{PodID: "nope", Key: "volume", Value: "SSD"})
		Expect(t_errors.IsNotFound(err)).To(BeTrue())
	})
	It("should upsert service endpoints per (pod, service type)", func() {
		pod, err := store.CreatePod(ctx, &models.Pod{PodName: "pod-1", AZName: "az-1"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreateServiceEndpoint(ctx, &models.ServiceEndpoint{PodID: pod.PodID, ServiceType: models.ServiceTypeNova, ServiceURL: "http://old"})
		Expect(err).ToNot(HaveOccurred())
		_, err = store.CreateServiceEndpoint(ctx, &models.ServiceEndpoint{PodID: pod.PodID, ServiceType: models.ServiceTypeNova, ServiceURL: "http://new"})
		Expect(err).ToNot(HaveOccurred())

		ep, err := store.GetServiceEndpoint(ctx, pod.PodID, models.ServiceTypeNova)
		Expect(err).ToNot(HaveOccurred())
		Expect(ep.ServiceURL).To(Equal("http://new"))
	})
})

var _ = Describe("Bindings", func() {
	var podA1, podA2, podB *models.Pod

	BeforeEach(func() {
		var err error
		podA1, err = store.CreatePod(ctx, &models.Pod{PodName: "pod-a1", AZName: "az-a"})
		Expect(err).ToNot(HaveOccurred())
		podA2, err = store.CreatePod(ctx, &models.Pod{PodName: "pod-a2", AZName: "az-a"})
		Expect(err).ToNot(HaveOccurred())
		podB, err = store.CreatePod(ctx, &models.Pod{PodName: "pod-b", AZName: "az-b"})
		Expect(err).ToNot(HaveOccurred())
	})
	It("should report active bindings", func() {
		_, err := store.CreatePodBinding(ctx, "tenant", podA1.PodID)
		Expect(err).ToNot(HaveOccurred())

		has, err := store.HasBinding(ctx, "tenant", podA1.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(has).To(BeTrue())

		has, err = store.HasBinding(ctx, "tenant", podA2.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(has).To(BeFalse())
	})
	It("should keep at most one active binding per az when switching", func() {
		_, err := store.CreatePodBinding(ctx, "tenant", podA1.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(store.ChangePodBinding(ctx, "tenant", podA2.PodID)).To(Succeed())

		previous, err := store.GetPodBinding(ctx, "tenant", podA1.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(previous.IsBinding).To(BeFalse())

		current, err := store.GetPodBinding(ctx, "tenant", podA2.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(current.IsBinding).To(BeTrue())
	})
	It("should leave bindings in other azs untouched", func() {
		_, err := store.CreatePodBinding(ctx, "tenant", podB.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(store.ChangePodBinding(ctx, "tenant", podA1.PodID)).To(Succeed())

		other, err := store.GetPodBinding(ctx, "tenant", podB.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(other.IsBinding).To(BeTrue())

		pods, err := store.ListPodsByTenant(ctx, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(pods).To(HaveLen(2))
	})
	It("should reactivate an inactive binding instead of duplicating it", func() {
		_, err := store.CreatePodBinding(ctx, "tenant", podA1.PodID)
		Expect(err).ToNot(HaveOccurred())
		Expect(store.ChangePodBinding(ctx, "tenant", podA2.PodID)).To(Succeed())
		Expect(store.ChangePodBinding(ctx, "tenant", podA1.PodID)).To(Succeed())

		bindings, err := store.ListActiveBindings(ctx, "tenant")
		Expect(err).ToNot(HaveOccurred())
		Expect(bindings).To(HaveLen(1))
		Expect(bindings[0].PodID).To(Equal(podA1.PodID))
	})
})
