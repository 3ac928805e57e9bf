package status

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// Resources is a coarse view of the process footprint.
type Resources struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// resourceSampler derives CPU usage from the delta between two reads.
type resourceSampler struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceSampler() *resourceSampler {
	return &resourceSampler{
		samples: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceSampler) Sample() Resources {
	if r == nil {
		return Resources{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.Read(r.samples)
	sample := r.samples[0]
	haveCPU := sample.Value.Kind() == metrics.KindFloat64
	now := time.Now()

	var usage Resources
	if haveCPU {
		cpuSeconds := sample.Value.Float64()
		if !r.lastSample.IsZero() {
			if wall := now.Sub(r.lastSample).Seconds(); wall > 0 && r.numCPU > 0 {
				usage.CPUPercent = (cpuSeconds - r.lastCPUSeconds) / wall / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.MemoryBytes = mem.Alloc
	usage.Goroutines = runtime.NumGoroutine()
	return usage
}
