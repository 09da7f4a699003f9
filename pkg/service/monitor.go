package service

import (
	"sort"
	"time"

	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/metrics"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// MonitorConfig tunes one monitor instance.
type MonitorConfig struct {
	Host      string
	Interval  time.Duration
	Staleness time.Duration
}

// Monitor derives service liveness, elects the reassignment leader and
// rebinds continuous audits away from failed hosts. The remembered
// statuses map is owned by the tick loop and never shared.
type Monitor struct {
	store  storage.Store
	broker *events.Broker
	cfg    MonitorConfig

	statuses map[string]types.ServiceStatus // service UUID -> last derived status
	stopCh   chan struct{}
}

// NewMonitor builds a monitor for this host.
func NewMonitor(store storage.Store, broker *events.Broker, cfg MonitorConfig) *Monitor {
	return &Monitor{
		store:    store,
		broker:   broker,
		cfg:      cfg,
		statuses: make(map[string]types.ServiceStatus),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the tick loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop ends the loop; an in-flight tick completes.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("monitor")
	for {
		select {
		case <-ticker.C:
			if err := m.Tick(time.Now()); err != nil {
				// A failed tick must never kill the loop.
				logger.Error().Err(err).Msg("monitor tick failed")
			}
		case <-m.stopCh:
			return
		}
	}
}

// Tick performs one monitoring pass at the given instant.
func (m *Monitor) Tick(now time.Time) error {
	metrics.MonitorTicksTotal.Inc()

	services, err := m.store.ListServices(&storage.ListQuery{})
	if err != nil {
		return err
	}

	var active, failed int
	var justFailed []string     // hosts that flipped ACTIVE -> FAILED this tick
	var activeDeciders []string // ACTIVE decision-engine hosts
	for _, svc := range services {
		status := svc.Status(now, m.cfg.Staleness)
		switch status {
		case types.ServiceActive:
			active++
			if svc.Name == types.DecisionEngineName {
				activeDeciders = append(activeDeciders, svc.Host)
			}
		case types.ServiceFailed:
			failed++
		}

		previous, seen := m.statuses[svc.UUID]
		if seen && previous != status {
			if previous == types.ServiceActive && status == types.ServiceFailed {
				justFailed = append(justFailed, svc.Host)
			}
			m.broker.Publish(&events.Notification{
				Kind:     events.KindService,
				UUID:     svc.UUID,
				OldState: string(previous),
				NewState: string(status),
				Payload:  map[string]string{"name": svc.Name, "host": svc.Host},
			})
		}
		m.statuses[svc.UUID] = status
	}

	metrics.ServicesByStatus.WithLabelValues(string(types.ServiceActive)).Set(float64(active))
	metrics.ServicesByStatus.WithLabelValues(string(types.ServiceFailed)).Set(float64(failed))

	leader := electLeader(activeDeciders)
	if leader == m.cfg.Host {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
	if leader != m.cfg.Host || len(justFailed) == 0 {
		return nil
	}
	return m.reassignAudits(justFailed, activeDeciders)
}

// electLeader picks the first active decision-engine host in
// lexicographic order; empty when none are active.
func electLeader(activeHosts []string) string {
	if len(activeHosts) == 0 {
		return ""
	}
	sorted := append([]string(nil), activeHosts...)
	sort.Strings(sorted)
	return sorted[0]
}

// reassignAudits moves continuous ongoing audits off the hosts that
// failed this tick, round-robin over the surviving hosts. The cursor
// is tick-local; distribution across ticks need not be balanced.
func (m *Monitor) reassignAudits(failedHosts, activeHosts []string) error {
	targets := append([]string(nil), activeHosts...)
	sort.Strings(targets)
	if len(targets) == 0 {
		return nil
	}

	logger := log.WithComponent("monitor")
	cursor := 0
	for _, failedHost := range failedHosts {
		audits, err := m.store.ListAudits(&storage.ListQuery{
			Filters: map[string]any{
				"audit_type__eq": string(types.AuditContinuous),
				"state__eq":      string(types.AuditOngoing),
				"hostname__eq":   failedHost,
			},
		})
		if err != nil {
			return err
		}
		for _, audit := range audits {
			newHost := targets[cursor%len(targets)]
			cursor++

			audit.Hostname = newHost
			if _, err := m.store.UpdateAudit(audit); err != nil {
				logger.Error().Err(err).
					Str("audit_uuid", audit.UUID).
					Msg("audit reassignment failed")
				continue
			}
			metrics.AuditsReassignedTotal.Inc()
			m.broker.Publish(&events.Notification{
				Kind:     events.KindAudit,
				UUID:     audit.UUID,
				OldState: string(audit.State),
				NewState: string(audit.State),
				Reason:   "host failover",
				Payload: map[string]string{
					"audit_uuid":  audit.UUID,
					"new_host":    newHost,
					"failed_host": failedHost,
					"state":       string(types.ServiceFailed),
				},
			})
			logger.Info().
				Str("audit_uuid", audit.UUID).
				Str("failed_host", failedHost).
				Str("new_host", newHost).
				Msg("audit reassigned")
		}
	}
	return nil
}
