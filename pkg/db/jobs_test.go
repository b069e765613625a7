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

	"github.com/openstack-archive/trio2o/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Jobs", func() {
	It("should admit exactly one running job per (type, resource)", func() {
		first, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(first).ToNot(BeNil())
		Expect(first.ExtraID).To(Equal(models.SPExtraID))

		second, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(second).To(BeNil())
	})
	It("should keep registrations for different resources independent", func() {
		first, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(first).ToNot(BeNil())

		other, err := store.RegisterJob(ctx, "job-a", "res-2")
		Expect(err).ToNot(HaveOccurred())
		Expect(other).ToNot(BeNil())
	})
	It("should free the running slot when a job finishes", func() {
		job, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.FinishJob(ctx, job.ID, true, job.Timestamp)).To(Succeed())

		running, err := store.GetRunningJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(running).To(BeNil())

		again, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(again).ToNot(BeNil())
	})
	It("should not overwrite a finished job's outcome", func() {
		marker, err := store.NewJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		job, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.FinishJob(ctx, job.ID, true, marker.Timestamp)).To(Succeed())

		// a sweep that read the row while it was still running loses the race and changes nothing
		Expect(store.FinishJob(ctx, job.ID, false, job.Timestamp)).To(Succeed())

		ts, err := store.GetLatestTimestamp(ctx, models.JobSuccess, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(ts).To(Equal(marker.Timestamp))
		failed, err := store.GetLatestFailedJobs(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(failed).To(BeEmpty())
	})
	It("should expose the latest success timestamp", func() {
		marker, err := store.NewJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		job, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.FinishJob(ctx, job.ID, true, marker.Timestamp)).To(Succeed())

		ts, err := store.GetLatestTimestamp(ctx, models.JobSuccess, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(ts).To(Equal(marker.Timestamp))

		ts, err = store.GetLatestTimestamp(ctx, models.JobFail, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(ts).To(BeZero())
	})
	It("should list only jobs whose latest row is a failure", func() {
		// res-1 fails, res-2 fails then succeeds
		marker1, err := store.NewJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		job1, err := store.RegisterJob(ctx, "job-a", "res-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.FinishJob(ctx, job1.ID, false, marker1.Timestamp)).To(Succeed())

		marker2, err := store.NewJob(ctx, "job-a", "res-2")
		Expect(err).ToNot(HaveOccurred())
		job2, err := store.RegisterJob(ctx, "job-a", "res-2")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.FinishJob(ctx, job2.ID, false, marker2.Timestamp)).To(Succeed())

		fakeClock.Step(time.Second)
		marker3, err := store.NewJob(ctx, "job-a", "res-2")
		Expect(err).ToNot(HaveOccurred())
		job3, err := store.RegisterJob(ctx, "job-a", "res-2")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.FinishJob(ctx, job3.ID, true, marker3.Timestamp)).To(Succeed())

		failed, err := store.GetLatestFailedJobs(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(failed).To(HaveLen(1))
		Expect(failed[0].ResourceID).To(Equal("res-1"))
	})
})
