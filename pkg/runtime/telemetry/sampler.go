// Package telemetry periodically samples resource usage of a launched
// container and hands each sample to a sink.
package telemetry

import (
	"context"
	"errors"
	"time"
)

const defaultInterval = 10 * time.Second

// Stats is one resource usage sample.
type Stats struct {
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsage uint64    `json:"memory_usage"`
	MemoryLimit uint64    `json:"memory_limit"`
	SampledAt   time.Time `json:"sampled_at"`
}

// MemoryPercent returns memory usage relative to the limit, or 0 when no
// limit is set.
func (s Stats) MemoryPercent() float64 {
	if s.MemoryLimit == 0 {
		return 0
	}
	return float64(s.MemoryUsage) / float64(s.MemoryLimit) * 100
}

// SampleFunc produces one usage sample for the observed container.
type SampleFunc func(ctx context.Context) (Stats, error)

// SinkFunc consumes samples. Sample errors are reported with a zero Stats
// and the error.
type SinkFunc func(Stats, error)

// Sampler polls a SampleFunc on a fixed interval until its context ends.
type Sampler struct {
	interval time.Duration
	sample   SampleFunc
	sink     SinkFunc
	now      func() time.Time
}

// NewSampler constructs a Sampler. A non-positive interval falls back to
// the default.
func NewSampler(interval time.Duration, sample SampleFunc, sink SinkFunc) (*Sampler, error) {
	if sample == nil {
		return nil, errors.New("telemetry sample function required")
	}
	if sink == nil {
		return nil, errors.New("telemetry sink required")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sampler{interval: interval, sample: sample, sink: sink, now: time.Now}, nil
}

// Run polls until ctx is cancelled. It never returns an error of its own;
// sample failures are passed to the sink so one missed reading does not
// stop observation.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.sample(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				stats.SampledAt = s.now().UTC()
			}
			s.sink(stats, err)
		}
	}
}
