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

package client_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/openstack-archive/trio2o/pkg/client"
	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func registerEndpoint(url string) {
	_, err := store.CreateServiceEndpoint(ctx, &models.ServiceEndpoint{
		PodID: pod.PodID, ServiceType: models.ServiceTypeNova, ServiceURL: url,
	})
	Expect(err).ToNot(HaveOccurred())
}

var _ = Describe("Forwarder", func() {
	It("should forward the request and return the downstream answer", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/servers"))
			Expect(r.Header.Get("X-Auth-Token")).To(Equal("secret"))
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprint(w, `{"server": {"id": "s-1"}}`)
		}))
		defer server.Close()
		registerEndpoint(server.URL)

		forwarder := client.NewForwarder(store, false)
		header := http.Header{}
		header.Set("X-Auth-Token", "secret")
		resp, err := forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodPost, "/servers",
			header, []byte(`{"server": {}}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		Expect(string(resp.Body)).To(ContainSubstring(`"s-1"`))
	})
	It("should surface a missing endpoint without retrying", func() {
		forwarder := client.NewForwarder(store, true)
		_, err := forwarder.Forward(ctx, pod, models.ServiceTypeCinder, http.MethodGet, "/volumes", nil, nil)
		Expect(t_errors.IsEndpointNotFound(err)).To(BeTrue())
	})
	It("should report the endpoint unavailable on a connection failure", func() {
		registerEndpoint("http://127.0.0.1:1")

		forwarder := client.NewForwarder(store, false)
		_, err := forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/servers", nil, nil)
		Expect(t_errors.IsEndpointNotAvailable(err)).To(BeTrue())
	})
	It("should refresh the catalog and retry once after a connection failure", func() {
		oldServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		registerEndpoint(oldServer.URL)

		forwarder := client.NewForwarder(store, true)
		resp, err := forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/servers", nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		// the pod's endpoint moves; the cached URL goes dark
		newServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"from": "new"}`)
		}))
		defer newServer.Close()
		registerEndpoint(newServer.URL)
		oldServer.Close()

		resp, err = forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/servers", nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(resp.Body)).To(ContainSubstring("new"))
	})
	It("should not retry when the catalog is not refreshed automatically", func() {
		oldServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		registerEndpoint(oldServer.URL)

		forwarder := client.NewForwarder(store, false)
		_, err := forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/servers", nil, nil)
		Expect(err).ToNot(HaveOccurred())

		newServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer newServer.Close()
		registerEndpoint(newServer.URL)
		oldServer.Close()

		_, err = forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/servers", nil, nil)
		Expect(t_errors.IsEndpointNotAvailable(err)).To(BeTrue())
	})
	It("should never retry an application-layer failure", func() {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		registerEndpoint(server.URL)

		forwarder := client.NewForwarder(store, true)
		resp, err := forwarder.Forward(ctx, pod, models.ServiceTypeNova, http.MethodGet, "/servers", nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(requests).To(Equal(1))
	})
})
