package datasource

import (
	"context"
	"fmt"
	"time"
)

// Metric names the telemetry series strategies can ask for.
type Metric string

const (
	HostCPUUsage     Metric = "host_cpu_usage"     // percent
	HostRAMUsage     Metric = "host_ram_usage"     // MiB
	InstanceCPUUsage Metric = "instance_cpu_usage" // percent
	InstanceRAMUsage Metric = "instance_ram_usage" // MiB
)

// Aggregate selects how samples in the window are folded.
type Aggregate string

const (
	AggregateMean Aggregate = "mean"
	AggregateMin  Aggregate = "min"
	AggregateMax  Aggregate = "max"
)

// UnknownMetricError reports a metric the backend has no query for.
type UnknownMetricError struct {
	Metric Metric
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q", string(e.Metric))
}

// NoDataError reports an empty query result.
type NoDataError struct {
	Metric   Metric
	Resource string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data for metric %q on resource %s", string(e.Metric), e.Resource)
}

// DataSource is the telemetry contract strategies depend on. Resource
// is a hostname for host metrics and an instance UUID for instance
// metrics.
type DataSource interface {
	StatisticAggregation(ctx context.Context, resource string, metric Metric, period time.Duration, agg Aggregate) (float64, error)
}
