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

package options_test

import (
	"github.com/openstack-archive/trio2o/pkg/operator/options"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Options", func() {
	var opts *options.Options

	BeforeEach(func() {
		opts = options.New()
	})

	It("should carry sane defaults", func() {
		Expect(opts.Validate()).To(Succeed())
		Expect(opts.APIPort).To(Equal(19996))
		Expect(opts.GetDriver()).To(Equal(options.FilterScheduler))
		Expect(opts.EnabledFilters).To(Equal(options.DefaultFilters))
		Expect(opts.WeightClasses).To(Equal(options.DefaultWeighers))
		Expect(opts.PodSubsetSize).To(Equal(1))
		Expect(opts.ShuffleBestSameWeighedPods).To(BeFalse())
		Expect(opts.AutoRefreshEndpoint).To(BeTrue())
	})
	It("should parse list flags", func() {
		Expect(opts.Parse([]string{
			"--enabled-filters", "AllPodsFilter, DiskFilter",
			"--available-filters", "AllPodsFilter,DiskFilter,RamFilter",
		})).To(Succeed())
		Expect(opts.Validate()).To(Succeed())
		Expect(opts.EnabledFilters).To(Equal([]string{"AllPodsFilter", "DiskFilter"}))
	})
	It("should reject an unknown scheduler driver", func() {
		Expect(opts.Parse([]string{"--scheduler-driver", "wishful_scheduler"})).To(Succeed())
		Expect(opts.Validate()).To(HaveOccurred())
	})
	It("should reject enabled filters missing from available", func() {
		Expect(opts.Parse([]string{"--available-filters", "AllPodsFilter"})).To(Succeed())
		err := opts.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("missing from available-filters"))
	})
	It("should coerce a pod subset size below one", func() {
		Expect(opts.Parse([]string{"--pod-subset-size", "0"})).To(Succeed())
		Expect(opts.Validate()).To(Succeed())
		Expect(opts.PodSubsetSize).To(Equal(1))
	})
	It("should reject non-positive worker timeouts", func() {
		Expect(opts.Parse([]string{"--worker-handle-timeout", "0"})).To(Succeed())
		Expect(opts.Validate()).To(HaveOccurred())
	})
	It("should collect every validation failure at once", func() {
		Expect(opts.Parse([]string{
			"--scheduler-driver", "nope",
			"--worker-handle-timeout", "0",
			"--job-run-expire", "-1",
		})).To(Succeed())
		err := opts.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("scheduler-driver"))
		Expect(err.Error()).To(ContainSubstring("worker-handle-timeout"))
		Expect(err.Error()).To(ContainSubstring("job-run-expire"))
	})
})
