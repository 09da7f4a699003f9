package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

const staleness = 50 * time.Millisecond

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestMonitor(t *testing.T, store storage.Store, host string) (*Monitor, events.Subscriber) {
	t.Helper()
	broker := events.NewBroker(nil)
	broker.Start()
	t.Cleanup(broker.Stop)
	sub := broker.Subscribe()

	m := NewMonitor(store, broker, MonitorConfig{
		Host:      host,
		Interval:  time.Second,
		Staleness: staleness,
	})
	return m, sub
}

func drainNotifications(sub events.Subscriber) []*events.Notification {
	var out []*events.Notification
	for {
		select {
		case n := <-sub:
			out = append(out, n)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func seedContinuousAudit(t *testing.T, store storage.Store, host string) *types.Audit {
	t.Helper()
	goal := &types.Goal{Name: "server_consolidation"}
	require.NoError(t, store.CreateGoal(goal))
	strategy := &types.Strategy{Name: "basic", GoalID: goal.ID}
	require.NoError(t, store.CreateStrategy(strategy))
	audit := &types.Audit{
		Name:       "fleet-watch",
		AuditType:  types.AuditContinuous,
		State:      types.AuditOngoing,
		Interval:   60,
		GoalID:     goal.ID,
		StrategyID: &strategy.ID,
		Hostname:   host,
	}
	require.NoError(t, store.CreateAudit(audit))
	return audit
}

func TestElectLeader(t *testing.T) {
	assert.Equal(t, "", electLeader(nil))
	assert.Equal(t, "host-a", electLeader([]string{"host-c", "host-a", "host-b"}))
}

func TestStatusChangeNotification(t *testing.T) {
	store := newTestStore(t)
	m, sub := newTestMonitor(t, store, "host-a")

	_, err := store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)

	// First tick records the baseline without emitting anything.
	require.NoError(t, m.Tick(time.Now()))
	assert.Empty(t, drainNotifications(sub))

	// host-b goes stale, host-a keeps beating.
	time.Sleep(2 * staleness)
	_, err = store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)

	require.NoError(t, m.Tick(time.Now()))
	notes := drainNotifications(sub)
	require.Len(t, notes, 1)
	assert.Equal(t, events.KindService, notes[0].Kind)
	assert.Equal(t, string(types.ServiceActive), notes[0].OldState)
	assert.Equal(t, string(types.ServiceFailed), notes[0].NewState)
	assert.Equal(t, "host-b", notes[0].Payload["host"])
}

func TestLeaderReassignsAuditFromFailedHost(t *testing.T) {
	store := newTestStore(t)
	m, sub := newTestMonitor(t, store, "host-a")

	_, err := store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)
	audit := seedContinuousAudit(t, store, "host-b")

	require.NoError(t, m.Tick(time.Now()))
	drainNotifications(sub)

	time.Sleep(2 * staleness)
	_, err = store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	require.NoError(t, m.Tick(time.Now()))

	reloaded, err := store.GetAudit(audit.ID)
	require.NoError(t, err)
	assert.Equal(t, "host-a", reloaded.Hostname)
	assert.Equal(t, types.AuditOngoing, reloaded.State)

	var reassignment *events.Notification
	for _, n := range drainNotifications(sub) {
		if n.Kind == events.KindAudit {
			reassignment = n
		}
	}
	require.NotNil(t, reassignment)
	assert.Equal(t, audit.UUID, reassignment.Payload["audit_uuid"])
	assert.Equal(t, "host-a", reassignment.Payload["new_host"])
	assert.Equal(t, "host-b", reassignment.Payload["failed_host"])
	assert.Equal(t, string(types.ServiceFailed), reassignment.Payload["state"])
}

func TestNonLeaderDoesNotReassign(t *testing.T) {
	store := newTestStore(t)
	// This monitor runs on host-b; host-a is also alive and therefore
	// the leader.
	m, sub := newTestMonitor(t, store, "host-b")

	_, err := store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-c")
	require.NoError(t, err)
	audit := seedContinuousAudit(t, store, "host-c")

	require.NoError(t, m.Tick(time.Now()))
	drainNotifications(sub)

	time.Sleep(2 * staleness)
	_, err = store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)
	require.NoError(t, m.Tick(time.Now()))

	reloaded, err := store.GetAudit(audit.ID)
	require.NoError(t, err)
	assert.Equal(t, "host-c", reloaded.Hostname)
}

func TestReassignmentRoundRobin(t *testing.T) {
	store := newTestStore(t)
	m, sub := newTestMonitor(t, store, "host-a")

	_, err := store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-c")
	require.NoError(t, err)

	first := seedContinuousAudit(t, store, "host-c")
	second := &types.Audit{
		Name:       "fleet-watch-2",
		AuditType:  types.AuditContinuous,
		State:      types.AuditOngoing,
		Interval:   60,
		GoalID:     first.GoalID,
		StrategyID: first.StrategyID,
		Hostname:   "host-c",
	}
	require.NoError(t, store.CreateAudit(second))

	require.NoError(t, m.Tick(time.Now()))
	drainNotifications(sub)

	time.Sleep(2 * staleness)
	_, err = store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)
	require.NoError(t, m.Tick(time.Now()))

	hosts := make(map[string]int)
	for _, id := range []int64{first.ID, second.ID} {
		audit, err := store.GetAudit(id)
		require.NoError(t, err)
		hosts[audit.Hostname]++
	}
	// Two audits spread over the two surviving hosts.
	assert.Equal(t, map[string]int{"host-a": 1, "host-b": 1}, hosts)
}

func TestOneshotAuditsAreNotReassigned(t *testing.T) {
	store := newTestStore(t)
	m, sub := newTestMonitor(t, store, "host-a")

	_, err := store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	_, err = store.RegisterService(types.DecisionEngineName, "host-b")
	require.NoError(t, err)

	seed := seedContinuousAudit(t, store, "host-b")
	audit := &types.Audit{
		Name:       "one-off",
		AuditType:  types.AuditOneshot,
		State:      types.AuditOngoing,
		GoalID:     seed.GoalID,
		StrategyID: seed.StrategyID,
		Hostname:   "host-b",
	}
	require.NoError(t, store.CreateAudit(audit))
	// Park the continuous audit so only the oneshot is a candidate.
	seed.State = types.AuditSuspended
	_, err = store.UpdateAudit(seed)
	require.NoError(t, err)

	require.NoError(t, m.Tick(time.Now()))
	drainNotifications(sub)

	time.Sleep(2 * staleness)
	_, err = store.RegisterService(types.DecisionEngineName, "host-a")
	require.NoError(t, err)
	require.NoError(t, m.Tick(time.Now()))

	reloaded, err := store.GetAudit(audit.ID)
	require.NoError(t, err)
	assert.Equal(t, "host-b", reloaded.Hostname)
}

func TestHeartbeatRefreshesRow(t *testing.T) {
	store := newTestStore(t)

	hb := NewHeartbeat(store, types.ApplierName, "host-a", 20*time.Millisecond)
	require.NoError(t, hb.Start())
	defer hb.Stop()

	services, err := store.ListServices(&storage.ListQuery{})
	require.NoError(t, err)
	require.Len(t, services, 1)
	initial := services[0].LastSeenUp

	assert.Eventually(t, func() bool {
		services, err := store.ListServices(&storage.ListQuery{})
		if err != nil || len(services) != 1 {
			return false
		}
		return services[0].LastSeenUp.After(initial)
	}, time.Second, 10*time.Millisecond)
}
