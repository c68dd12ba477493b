package meshlink

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement this interface to integrate with monitoring
// systems.
type MetricsCollector interface {
	// RecordGather is called after each donor collection. donors is
	// the group-wide donor count, duration the time taken, err is nil
	// if successful.
	RecordGather(donors int, duration time.Duration, err error)

	// RecordPair is called after each marker-pair interpolation.
	// vertices is the number of locally owned target vertices
	// processed.
	RecordPair(vertices int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGather(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordPair(int, time.Duration, error)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external
// dependencies.
type BasicMetricsCollector struct {
	GatherCount      atomic.Int64
	GatherErrors     atomic.Int64
	GatherTotalNanos atomic.Int64
	DonorsGathered   atomic.Int64
	PairCount        atomic.Int64
	PairErrors       atomic.Int64
	PairTotalNanos   atomic.Int64
	VerticesTotal    atomic.Int64
}

// RecordGather implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGather(donors int, duration time.Duration, err error) {
	b.GatherCount.Add(1)
	b.GatherTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GatherErrors.Add(1)
		return
	}
	b.DonorsGathered.Add(int64(donors))
}

// RecordPair implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPair(vertices int, duration time.Duration, err error) {
	b.PairCount.Add(1)
	b.PairTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PairErrors.Add(1)
		return
	}
	b.VerticesTotal.Add(int64(vertices))
}
