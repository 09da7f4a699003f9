/*
Package metrics exposes Prometheus collectors for the controller core.

Counters and gauges cover the audit pipeline (runs, durations), the planner
(plans created/rejected), the action engine (executions, reverts, plan
duration), the service monitor (ticks, leader gauge, reassignments) and
cloud call retries. Handler serves the standard promhttp endpoint.
*/
package metrics
