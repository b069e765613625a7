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

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openstack-archive/trio2o/pkg/api"
	"github.com/openstack-archive/trio2o/pkg/client"
	"github.com/openstack-archive/trio2o/pkg/db"
	"github.com/openstack-archive/trio2o/pkg/logging"
	"github.com/openstack-archive/trio2o/pkg/operator/options"
	"github.com/openstack-archive/trio2o/pkg/scheduler"
)

func main() {
	opts := options.New().MustParse()
	logger := logging.NewLogger("api", opts.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx := logging.WithLogger(options.ToContext(context.Background(), opts), logger)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, opts.DatabasePath)
	if err != nil {
		logger.Fatalf("opening database, %s", err)
	}
	defer func() { _ = store.Close() }()

	sched, err := scheduler.New(store, opts, nil)
	if err != nil {
		logger.Fatalf("building scheduler, %s", err)
	}
	forwarder := client.NewForwarder(store, opts.AutoRefreshEndpoint)
	server := api.NewServer(store, sched, forwarder)

	apiServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", opts.APIPort),
		Handler:     server.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.MetricsPort),
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server, %s", err)
		}
	}()
	go func() {
		logger.With("port", opts.APIPort).Infof("serving gateway API")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("api server, %s", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}
