package service

import (
	"time"

	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
)

// Heartbeat periodically re-registers one (name, host) service row so
// the monitor keeps deriving it as ACTIVE.
type Heartbeat struct {
	store    storage.Store
	name     string
	host     string
	interval time.Duration
	stopCh   chan struct{}
}

// NewHeartbeat builds a heartbeat for the given service identity.
func NewHeartbeat(store storage.Store, name, host string, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		store:    store,
		name:     name,
		host:     host,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start registers immediately and then refreshes on the interval.
func (h *Heartbeat) Start() error {
	if _, err := h.store.RegisterService(h.name, h.host); err != nil {
		return err
	}
	go h.run()
	return nil
}

// Stop ends the refresh loop.
func (h *Heartbeat) Stop() {
	close(h.stopCh)
}

func (h *Heartbeat) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := log.WithComponent("heartbeat")
	for {
		select {
		case <-ticker.C:
			if _, err := h.store.RegisterService(h.name, h.host); err != nil {
				logger.Error().Err(err).
					Str("service", h.name).
					Str("host", h.host).
					Msg("heartbeat refresh failed")
			}
		case <-h.stopCh:
			return
		}
	}
}
