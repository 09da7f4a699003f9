/*
Package datasource abstracts the metrics backend strategies read their
fleet telemetry from.

DataSource exposes a single StatisticAggregation call: one metric, one
resource, one aggregate over a trailing window. Prometheus is the
shipped implementation and translates each metric to a PromQL query
against the node exporter and the per-instance exporters.
*/
package datasource
