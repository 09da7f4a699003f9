package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/applier"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/service"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var applierCmd = &cobra.Command{
	Use:   "applier",
	Short: "Run the action execution engine",
	Long: `Run the applier role: register this host in the service registry
and execute pending action plans on a bounded worker pool. A SIGTERM
aborts running plans cooperatively before the process exits.`,
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

		heartbeat := service.NewHeartbeat(rt.store, types.ApplierName,
			rt.cfg.Host, rt.cfg.HeartbeatInterval)
		if err := heartbeat.Start(); err != nil {
			return fmt.Errorf("failed to register service: %w", err)
		}

		engine := applier.New(rt.store, rt.broker, adapter,
			actions.DefaultRegistry(), applier.Config{
				Host:          rt.cfg.Host,
				Interval:      rt.cfg.ApplierInterval,
				Workers:       rt.cfg.ActionEngineWorkerCount,
				MaxRetries:    rt.cfg.MigrationMaxRetries,
				RetryInterval: rt.cfg.MigrationInterval,
			})
		engine.Start()

		log.WithComponent("applier").Info().
			Str("host", rt.cfg.Host).
			Msg("applier running")
		waitForSignal()

		engine.Stop()
		heartbeat.Stop()
		return nil
	},
}
