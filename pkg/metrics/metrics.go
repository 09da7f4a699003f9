package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Audit pipeline metrics
	AuditsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sirocco_audits_total",
			Help: "Total number of audits by state",
		},
		[]string{"state"},
	)

	AuditRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirocco_audit_runs_total",
			Help: "Total number of audit runs by outcome",
		},
		[]string{"outcome"},
	)

	AuditDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sirocco_audit_duration_seconds",
			Help:    "Strategy execution duration per audit run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Planner metrics
	PlansCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sirocco_action_plans_created_total",
			Help: "Total number of action plans persisted by the planner",
		},
	)

	PlansRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sirocco_action_plans_rejected_total",
			Help: "Total number of solutions rejected by the planner",
		},
	)

	// Action engine metrics
	ActionsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirocco_actions_executed_total",
			Help: "Total number of actions executed by type and outcome",
		},
		[]string{"action_type", "outcome"},
	)

	ActionsRevertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sirocco_actions_reverted_total",
			Help: "Total number of actions reverted after a plan failure",
		},
	)

	PlanExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sirocco_plan_execution_duration_seconds",
			Help:    "Action plan execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// Service monitor metrics
	MonitorTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sirocco_monitor_ticks_total",
			Help: "Total number of service monitor ticks",
		},
	)

	ServicesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sirocco_services_total",
			Help: "Known controller services by derived status",
		},
		[]string{"status"},
	)

	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sirocco_monitor_is_leader",
			Help: "Whether this host is the elected decision-engine leader (1 = leader)",
		},
	)

	AuditsReassignedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sirocco_audits_reassigned_total",
			Help: "Total number of continuous audits migrated off failed hosts",
		},
	)

	// Cloud adapter metrics
	CloudCallRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sirocco_cloud_call_retries_total",
			Help: "Total number of retried cloud calls",
		},
	)
)

func init() {
	prometheus.MustRegister(AuditsTotal)
	prometheus.MustRegister(AuditRunsTotal)
	prometheus.MustRegister(AuditDuration)
	prometheus.MustRegister(PlansCreatedTotal)
	prometheus.MustRegister(PlansRejectedTotal)
	prometheus.MustRegister(ActionsExecutedTotal)
	prometheus.MustRegister(ActionsRevertedTotal)
	prometheus.MustRegister(PlanExecutionDuration)
	prometheus.MustRegister(MonitorTicksTotal)
	prometheus.MustRegister(ServicesByStatus)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(AuditsReassignedTotal)
	prometheus.MustRegister(CloudCallRetriesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
