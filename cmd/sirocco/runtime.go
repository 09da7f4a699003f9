package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/config"
	"github.com/sirocco-cloud/sirocco/pkg/datasource"
	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/metrics"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
)

// runtime bundles the process-wide collaborators both roles share.
type runtime struct {
	cfg     *config.Config
	store   *storage.Storage
	journal *events.Journal
	broker  *events.Broker
	metrics *http.Server
}

// newRuntime loads the configuration and opens storage, the notification
// journal and the metrics listener.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	store, err := storage.Open(cfg.DBDialect, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var journal *events.Journal
	if cfg.JournalPath != "" {
		journal, err = events.OpenJournal(cfg.JournalPath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to open notification journal: %w", err)
		}
	}

	broker := events.NewBroker(journal)
	broker.Start()

	rt := &runtime{cfg: cfg, store: store, journal: journal, broker: broker}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		rt.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := rt.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithComponent("metrics").Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.metrics != nil {
		_ = rt.metrics.Shutdown(context.Background())
	}
	rt.broker.Stop()
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
	_ = rt.store.Close()
}

// cloudAdapter builds the configured adapter. The fake keeps an empty
// in-memory fleet and exists for pipeline smoke tests.
func (rt *runtime) cloudAdapter(ctx context.Context) (cloud.Adapter, error) {
	switch rt.cfg.CloudProvider {
	case "fake":
		return cloud.NewFake(), nil
	default:
		return cloud.NewOpenStack(ctx)
	}
}

// strategyDatasource builds the metrics datasource, or nil when none is
// configured. Strategies that need telemetry refuse to run without one.
func (rt *runtime) strategyDatasource() (datasource.DataSource, error) {
	if rt.cfg.DatasourceAddr == "" {
		return nil, nil
	}
	return datasource.NewPrometheus(rt.cfg.DatasourceAddr)
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
