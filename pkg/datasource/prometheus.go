package datasource

import (
	"context"
	"fmt"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/sirocco-cloud/sirocco/pkg/log"
)

// Prometheus answers statistic queries from a Prometheus server
// scraping the node exporter on every compute host and the guest
// exporters labelled with resource_id.
type Prometheus struct {
	api promv1.API
}

// NewPrometheus connects to the server at addr (e.g. http://prom:9090).
func NewPrometheus(addr string) (*Prometheus, error) {
	client, err := promapi.NewClient(promapi.Config{Address: addr})
	if err != nil {
		return nil, err
	}
	return &Prometheus{api: promv1.NewAPI(client)}, nil
}

var _ DataSource = (*Prometheus)(nil)

func promAggregate(agg Aggregate) string {
	switch agg {
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	default:
		return "avg"
	}
}

// buildQuery renders the PromQL for one metric. Host metrics match the
// node exporter by instance label, tolerating an optional port suffix.
func buildQuery(resource string, metric Metric, period time.Duration, agg Aggregate) (string, error) {
	fn := promAggregate(agg)
	window := fmt.Sprintf("%ds", int(period.Seconds()))
	instance := fmt.Sprintf("^%s(:[0-9]+)?$", resource)

	switch metric {
	case HostCPUUsage:
		return fmt.Sprintf(
			"100 - (%s by (instance)(rate(node_cpu_seconds_total{mode='idle',instance=~'%s'}[%s])) * 100)",
			fn, instance, window), nil
	case HostRAMUsage:
		return fmt.Sprintf(
			"(%s_over_time(node_memory_MemTotal_bytes{instance=~'%s'}[%s]) - %s_over_time(node_memory_MemAvailable_bytes{instance=~'%s'}[%s])) / 1048576",
			fn, instance, window, fn, instance, window), nil
	case InstanceCPUUsage:
		return fmt.Sprintf("%s_over_time(instance_cpu_usage{resource_id='%s'}[%s])", fn, resource, window), nil
	case InstanceRAMUsage:
		return fmt.Sprintf("%s_over_time(instance_ram_usage{resource_id='%s'}[%s])", fn, resource, window), nil
	default:
		return "", &UnknownMetricError{Metric: metric}
	}
}

// StatisticAggregation runs the query and returns the first sample.
func (p *Prometheus) StatisticAggregation(ctx context.Context, resource string, metric Metric, period time.Duration, agg Aggregate) (float64, error) {
	query, err := buildQuery(resource, metric, period, agg)
	if err != nil {
		return 0, err
	}

	value, warnings, err := p.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("prometheus query failed: %w", err)
	}
	for _, w := range warnings {
		log.WithComponent("datasource").Warn().Str("warning", w).Msg("prometheus query warning")
	}

	vector, ok := value.(model.Vector)
	if !ok || vector.Len() == 0 {
		return 0, &NoDataError{Metric: metric, Resource: resource}
	}
	return float64(vector[0].Value), nil
}
