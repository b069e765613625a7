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

// Package weights scores the pods that survived filtering. Every weigher produces a raw score per
// pod state; raw scores are min-max normalized to [0, 1] per weigher, scaled by the weigher's
// multiplier and summed. A degenerate score range contributes 0 to every pod.
package weights

import (
	"sort"

	t_errors "github.com/openstack-archive/trio2o/pkg/errors"
	"github.com/openstack-archive/trio2o/pkg/models"
)

// Weigher scores one pod state. Multiplier carries both the relative importance and the sign:
// positive spreads onto pods with the higher raw score, negative packs away from them.
type Weigher interface {
	Name() string
	Multiplier() float64
	WeighObject(state *models.PodState) float64
}

// Multipliers carries the configured weight multipliers into the weigher constructors.
type Multipliers struct {
	Ram      float64
	Disk     float64
	VCPU     float64
	Workload float64
}

var registry = map[string]func(Multipliers) Weigher{
	"RamWeigher":      func(m Multipliers) Weigher { return RamWeigher{multiplier: m.Ram} },
	"DiskWeigher":     func(m Multipliers) Weigher { return DiskWeigher{multiplier: m.Disk} },
	"VCPUWeigher":     func(m Multipliers) Weigher { return VCPUWeigher{multiplier: m.VCPU} },
	"WorkloadWeigher": func(m Multipliers) Weigher { return WorkloadWeigher{multiplier: m.Workload} },
}

// New resolves the configured weight classes against the build-time registry; unknown names are a
// hard configuration error.
func New(classes []string, multipliers Multipliers) ([]Weigher, error) {
	out := make([]Weigher, 0, len(classes))
	for _, name := range classes {
		ctor, ok := registry[name]
		if !ok {
			return nil, t_errors.NewSchedulerPodFilterNotFound(name)
		}
		out = append(out, ctor(multipliers))
	}
	return out, nil
}

// WeighedPod is one candidate with its combined weight.
type WeighedPod struct {
	PodID  string
	Weight float64
}

// Weigh combines all weighers over the candidate states and returns the candidates sorted by
// descending weight. The sort is stable so equal weights keep their input order, which the
// scheduler's same-best-weight shuffle relies on.
func Weigh(weighers []Weigher, states []*models.PodState) []WeighedPod {
	if len(states) == 0 {
		return nil
	}
	out := make([]WeighedPod, len(states))
	for i, state := range states {
		out[i] = WeighedPod{PodID: state.PodID}
	}
	for _, weigher := range weighers {
		raw := make([]float64, len(states))
		for i, state := range states {
			raw[i] = weigher.WeighObject(state)
		}
		for i, normalized := range normalize(raw) {
			out[i].Weight += normalized * weigher.Multiplier()
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// normalize maps raw scores onto [0, 1] by min-max. When every score is equal there is nothing to
// discriminate on and every pod gets 0.
func normalize(raw []float64) []float64 {
	min, max := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(raw))
	if max == min {
		return out
	}
	for i, v := range raw {
		out[i] = (v - min) / (max - min)
	}
	return out
}

// RamWeigher scores free memory, recomputed from the raw counters.
type RamWeigher struct {
	multiplier float64
}

func (RamWeigher) Name() string          { return "RamWeigher" }
func (w RamWeigher) Multiplier() float64 { return w.multiplier }

func (RamWeigher) WeighObject(state *models.PodState) float64 {
	return float64(state.MemoryMB - state.MemoryMBUsed)
}

// DiskWeigher scores free disk.
type DiskWeigher struct {
	multiplier float64
}

func (DiskWeigher) Name() string          { return "DiskWeigher" }
func (w DiskWeigher) Multiplier() float64 { return w.multiplier }

func (DiskWeigher) WeighObject(state *models.PodState) float64 {
	return float64(state.FreeDiskGB)
}

// VCPUWeigher scores free vcpus.
type VCPUWeigher struct {
	multiplier float64
}

func (VCPUWeigher) Name() string          { return "VCPUWeigher" }
func (w VCPUWeigher) Multiplier() float64 { return w.multiplier }

func (VCPUWeigher) WeighObject(state *models.PodState) float64 {
	return float64(state.VCPUs - state.VCPUsUsed)
}

// WorkloadWeigher scores running vms; the current_workload counter is not accurate enough. With
// the default positive multiplier loaded pods weigh more; operators configure a negative
// multiplier to pack away from them.
type WorkloadWeigher struct {
	multiplier float64
}

func (WorkloadWeigher) Name() string          { return "WorkloadWeigher" }
func (w WorkloadWeigher) Multiplier() float64 { return w.multiplier }

func (WorkloadWeigher) WeighObject(state *models.PodState) float64 {
	return float64(state.RunningVMs)
}
