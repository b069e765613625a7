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

package options

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/openstack-archive/trio2o/pkg/utils/env"
)

type SchedulerDriver string

const (
	FilterScheduler SchedulerDriver = "filter_scheduler"
	ChanceScheduler SchedulerDriver = "chance_scheduler"
)

// DefaultFilters is the authoritative list of filter names shipped with the gateway. It is both
// the default for available_filters and for enabled_filters.
var DefaultFilters = []string{
	"AllPodsFilter",
	"AvailabilityZoneFilter",
	"BottomPodFilter",
	"CreateTimeFilter",
	"DestinationPodFilter",
	"DiskFilter",
	"IgnorePodFilter",
	"PodAffinityTagFilter",
	"RamFilter",
}

// DefaultWeighers is the default weight_classes value.
var DefaultWeighers = []string{
	"RamWeigher",
	"DiskWeigher",
	"VCPUWeigher",
	"WorkloadWeigher",
}

// Options for running this binary
type Options struct {
	*flag.FlagSet
	// Service
	APIPort      int
	MetricsPort  int
	DatabasePath string
	LogLevel     string
	// Filter scheduler group
	RamWeightMultiplier        float64
	DiskWeightMultiplier       float64
	VCPUWeightMultiplier       float64
	WorkloadWeightMultiplier   float64
	PodSubsetSize              int
	AvailableFilters           []string
	EnabledFilters             []string
	WeightClasses              []string
	ShuffleBestSameWeighedPods bool
	// Scheduler group
	Driver string
	// Worker group, durations are seconds
	WorkerHandleTimeout int
	JobRunExpire        int
	WorkerSleepTime     int
	RedoJobInterval     int
	PodStateInterval    int
	// Client group
	TopPodName          string
	AutoRefreshEndpoint bool
}

// New creates an Options struct and registers CLI flags and environment variables to fill-in the
// Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("trio2o", flag.ContinueOnError)
	opts.FlagSet = f

	// Service
	f.IntVar(&opts.APIPort, "api-port", env.WithDefaultInt("API_PORT", 19996), "The port the gateway API binds to")
	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metric endpoint binds to for operating metrics about the service itself")
	f.StringVar(&opts.DatabasePath, "database-path", env.WithDefaultString("DATABASE_PATH", "trio2o.db"), "Path of the sqlite database shared by the gateway and the job workers")
	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "Log verbosity (debug, info, warn, error)")

	// Filter scheduler group
	f.Float64Var(&opts.RamWeightMultiplier, "ram-weight-multiplier", env.WithDefaultFloat64("RAM_WEIGHT_MULTIPLIER", 1.0), "Multiplier used for weighing free ram. Negative numbers indicate to stack vs spread")
	f.Float64Var(&opts.DiskWeightMultiplier, "disk-weight-multiplier", env.WithDefaultFloat64("DISK_WEIGHT_MULTIPLIER", 1.0), "Multiplier used for weighing free disk. Negative numbers indicate to stack vs spread")
	f.Float64Var(&opts.VCPUWeightMultiplier, "vcpu-weight-multiplier", env.WithDefaultFloat64("VCPU_WEIGHT_MULTIPLIER", 1.0), "Multiplier used for weighing free vcpus. Negative numbers indicate to stack vs spread")
	f.Float64Var(&opts.WorkloadWeightMultiplier, "workload-weight-multiplier", env.WithDefaultFloat64("WORKLOAD_WEIGHT_MULTIPLIER", 1.0), "Multiplier used for weighing pod workload. Raise to prefer loaded pods, use a negative number to pack away from them")
	f.IntVar(&opts.PodSubsetSize, "pod-subset-size", env.WithDefaultInt("POD_SUBSET_SIZE", 1), "Size of the subset of best pods the scheduler randomly chooses from. Values below 1 are treated as 1")
	opts.AvailableFilters = env.WithDefaultStringSlice("AVAILABLE_FILTERS", append([]string{}, DefaultFilters...))
	f.Var(newStringSliceValue(&opts.AvailableFilters), "available-filters", "Filters the scheduler is allowed to enable, comma separated")
	opts.EnabledFilters = env.WithDefaultStringSlice("ENABLED_FILTERS", append([]string{}, DefaultFilters...))
	f.Var(newStringSliceValue(&opts.EnabledFilters), "enabled-filters", "Ordered filters the scheduler applies; every entry must appear in available-filters")
	opts.WeightClasses = env.WithDefaultStringSlice("WEIGHT_CLASSES", append([]string{}, DefaultWeighers...))
	f.Var(newStringSliceValue(&opts.WeightClasses), "weight-classes", "Weighers used to order filtered pods, comma separated")
	f.BoolVar(&opts.ShuffleBestSameWeighedPods, "shuffle-best-same-weighed-pods", env.WithDefaultBool("SHUFFLE_BEST_SAME_WEIGHED_PODS", false), "Shuffle pods sharing the best weight before subset selection to spread contention")

	// Scheduler group
	f.StringVar(&opts.Driver, "scheduler-driver", env.WithDefaultString("SCHEDULER_DRIVER", string(FilterScheduler)), "The scheduler driver, either filter_scheduler or chance_scheduler")

	// Worker group
	f.IntVar(&opts.WorkerHandleTimeout, "worker-handle-timeout", env.WithDefaultInt("WORKER_HANDLE_TIMEOUT", 1800), "Timeout in seconds for one worker to handle a job")
	f.IntVar(&opts.JobRunExpire, "job-run-expire", env.WithDefaultInt("JOB_RUN_EXPIRE", 180), "Running jobs older than this number of seconds are considered expired and swept to Fail")
	f.IntVar(&opts.WorkerSleepTime, "worker-sleep-time", env.WithDefaultInt("WORKER_SLEEP_TIME", 1), "Seconds a worker sleeps before yielding a contended job to its current holder")
	f.IntVar(&opts.RedoJobInterval, "redo-job-interval", env.WithDefaultInt("REDO_JOB_INTERVAL", 60), "Seconds between two sweeps re-enqueueing the latest failed jobs")
	f.IntVar(&opts.PodStateInterval, "pod-state-interval", env.WithDefaultInt("POD_STATE_INTERVAL", 120), "Seconds between two refreshes of the pod state statistics")

	// Client group
	f.StringVar(&opts.TopPodName, "top-pod-name", env.WithDefaultString("TOP_POD_NAME", ""), "Name of the pod the gateway itself runs in")
	f.BoolVar(&opts.AutoRefreshEndpoint, "auto-refresh-endpoint", env.WithDefaultBool("AUTO_REFRESH_ENDPOINT", true), "Re-read the endpoint catalog and retry once when a pod endpoint stops answering")
	return opts
}

// MustParse reads the user passed flags, environment variables, and default values.
// Options are validated and panics if an error is returned
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}

func (o *Options) Validate() (err error) {
	driver := SchedulerDriver(o.Driver)
	if driver != FilterScheduler && driver != ChanceScheduler {
		err = multierr.Append(err, fmt.Errorf("scheduler-driver may only be either filter_scheduler or chance_scheduler"))
	}
	if unknown, _ := lo.Difference(o.EnabledFilters, o.AvailableFilters); len(unknown) > 0 {
		err = multierr.Append(err, fmt.Errorf("enabled filters %s missing from available-filters", strings.Join(unknown, ", ")))
	}
	if o.WorkerHandleTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("worker-handle-timeout must be positive"))
	}
	if o.JobRunExpire <= 0 {
		err = multierr.Append(err, fmt.Errorf("job-run-expire must be positive"))
	}
	// pod_subset_size is coerced, not rejected
	if o.PodSubsetSize < 1 {
		o.PodSubsetSize = 1
	}
	return err
}

func (o *Options) GetDriver() SchedulerDriver {
	return SchedulerDriver(o.Driver)
}

type stringSliceValue struct {
	target *[]string
}

func newStringSliceValue(target *[]string) *stringSliceValue {
	return &stringSliceValue{target: target}
}

func (s *stringSliceValue) Set(val string) error {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	*s.target = out
	return nil
}

func (s *stringSliceValue) String() string {
	if s == nil || s.target == nil {
		return ""
	}
	return strings.Join(*s.target, ",")
}

type optionsKey struct{}

// ToContext injects the options so deeply nested callers can read configuration without plumbing
// it through every signature.
func ToContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

// FromContext returns the injected options; it panics when called outside an injected context
// since that is always a programming error.
func FromContext(ctx context.Context) *Options {
	opts, ok := ctx.Value(optionsKey{}).(*Options)
	if !ok {
		panic("options not found in context")
	}
	return opts
}
