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

// Package client forwards requests to the service endpoints registered for a pod. Endpoint URLs
// are cached per (pod, service type) and invalidated when a pod stops answering; with endpoint
// auto refresh enabled a connection failure triggers exactly one catalog re-read and retry.
// Application-layer failures (any HTTP status) are returned to the caller untouched and never
// retried here.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/patrickmn/go-cache"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/models"
	"github.com/openstack-archive/trio2o/pkg/utils/functional"
)

// EndpointCatalog is the slice of the store the forwarder resolves endpoints from.
type EndpointCatalog interface {
	GetServiceEndpoint(ctx context.Context, podID, serviceType string) (*models.ServiceEndpoint, error)
}

// VersionConverter rewrites headers and body for version compatibility before a request leaves the
// gateway. A nil converter forwards everything as-is.
type VersionConverter func(header http.Header, body []byte) (http.Header, []byte)

// Response is the downstream answer, returned regardless of status code.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NotFound reports a downstream 404, the trigger for stale routing cleanup.
func (r *Response) NotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

const endpointCacheExpiry = 5 * time.Minute

// ForwarderOptions tune the forwarder; zero values fall back to defaults.
type ForwarderOptions struct {
	HTTPClient *http.Client
	Converter  VersionConverter
	CacheTTL   time.Duration
}

func WithHTTPClient(c *http.Client) functional.Option[ForwarderOptions] {
	return func(o ForwarderOptions) ForwarderOptions {
		o.HTTPClient = c
		return o
	}
}

func WithConverter(fn VersionConverter) functional.Option[ForwarderOptions] {
	return func(o ForwarderOptions) ForwarderOptions {
		o.Converter = fn
		return o
	}
}

func WithCacheTTL(ttl time.Duration) functional.Option[ForwarderOptions] {
	return func(o ForwarderOptions) ForwarderOptions {
		o.CacheTTL = ttl
		return o
	}
}

// Forwarder proxies one request at a time to a pod's service endpoint.
type Forwarder struct {
	catalog     EndpointCatalog
	httpClient  *http.Client
	converter   VersionConverter
	autoRefresh bool
	endpoints   *cache.Cache
}

func NewForwarder(catalog EndpointCatalog, autoRefresh bool, opts ...functional.Option[ForwarderOptions]) *Forwarder {
	o := functional.ResolveOptions(opts...)
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = endpointCacheExpiry
	}
	return &Forwarder{
		catalog:     catalog,
		httpClient:  o.HTTPClient,
		converter:   o.Converter,
		autoRefresh: autoRefresh,
		endpoints:   cache.New(o.CacheTTL, o.CacheTTL),
	}
}

// Forward sends method+path with the given body to the pod's endpoint for serviceType. A non-2xx
// answer is not an error; callers inspect the response. An error means the pod could not be
// reached at all.
func (f *Forwarder) Forward(ctx context.Context, pod *models.Pod, serviceType, method, path string, header http.Header, body []byte) (*Response, error) {
	if f.converter != nil {
		header, body = f.converter(header, body)
	}
	var out *Response
	refreshed := false
	err := retry.Do(func() error {
		base, err := f.endpoint(ctx, pod, serviceType, refreshed)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := f.send(ctx, base, method, path, header, body)
		if err != nil {
			f.MarkUnavailable(pod.PodID, serviceType)
			refreshed = true
			return t_errors.NewEndpointNotAvailable(serviceType, pod.PodName).WithCause(err)
		}
		out = resp
		return nil
	},
		retry.Attempts(uint(f.attempts())),
		retry.Delay(0),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// attempts is 2 when a connection failure may refresh the catalog and retry, else 1.
func (f *Forwarder) attempts() int {
	if f.autoRefresh {
		return 2
	}
	return 1
}

// endpoint resolves the base URL for (pod, serviceType), preferring the cache unless the caller
// just invalidated it.
func (f *Forwarder) endpoint(ctx context.Context, pod *models.Pod, serviceType string, bypassCache bool) (string, error) {
	key := pod.PodID + "/" + serviceType
	if !bypassCache {
		if cached, ok := f.endpoints.Get(key); ok {
			return cached.(string), nil
		}
	}
	ep, err := f.catalog.GetServiceEndpoint(ctx, pod.PodID, serviceType)
	if err != nil {
		return "", err
	}
	f.endpoints.SetDefault(key, ep.ServiceURL)
	if bypassCache {
		logging.FromContext(ctx).With("pod", pod.PodName, "service", serviceType).
			Infof("refreshed service endpoint")
	}
	return ep.ServiceURL, nil
}

func (f *Forwarder) send(ctx context.Context, base, method, path string, header http.Header, body []byte) (*Response, error) {
	url := strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s %s, %w", method, url, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

// MarkUnavailable drops the cached endpoint for (pod, serviceType) so the next call resolves it
// from the catalog again.
func (f *Forwarder) MarkUnavailable(podID, serviceType string) {
	f.endpoints.Delete(podID + "/" + serviceType)
}
