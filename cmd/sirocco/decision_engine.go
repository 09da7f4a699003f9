package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/audit"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/planner"
	"github.com/sirocco-cloud/sirocco/pkg/service"
	"github.com/sirocco-cloud/sirocco/pkg/strategy"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var decisionEngineCmd = &cobra.Command{
	Use:   "decision-engine",
	Short: "Run the audit engine and service monitor",
	Long: `Run the decision engine role: register this host in the service
registry, monitor peer liveness, and schedule audits owned by this
host. The lexicographically first active decision-engine host also
reassigns continuous audits away from failed peers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		adapter, err := rt.cloudAdapter(ctx)
		if err != nil {
			return fmt.Errorf("failed to build cloud adapter: %w", err)
		}
		ds, err := rt.strategyDatasource()
		if err != nil {
			return fmt.Errorf("failed to build datasource: %w", err)
		}

		heartbeat := service.NewHeartbeat(rt.store, types.DecisionEngineName,
			rt.cfg.Host, rt.cfg.HeartbeatInterval)
		if err := heartbeat.Start(); err != nil {
			return fmt.Errorf("failed to register service: %w", err)
		}

		monitor := service.NewMonitor(rt.store, rt.broker, service.MonitorConfig{
			Host:      rt.cfg.Host,
			Interval:  rt.cfg.ServiceMonitorInterval,
			Staleness: rt.cfg.ServiceStalenessThreshold,
		})
		monitor.Start()

		pl := planner.New(rt.store, actions.DefaultRegistry(), rt.broker, nil)
		engine := audit.NewEngine(rt.store, rt.broker, adapter, ds,
			strategy.DefaultRegistry(), pl, audit.Config{
				Host:     rt.cfg.Host,
				Interval: rt.cfg.AuditSchedulerInterval,
			})
		engine.Start()

		log.WithComponent("decision-engine").Info().
			Str("host", rt.cfg.Host).
			Msg("decision engine running")
		waitForSignal()

		engine.Stop()
		monitor.Stop()
		heartbeat.Stop()
		return nil
	},
}
