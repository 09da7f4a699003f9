package applier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/cancel"
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/planner"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

const (
	vm1 = "11111111-1111-1111-1111-111111111111"
	vm2 = "22222222-2222-2222-2222-222222222222"
)

type fixture struct {
	applier *Applier
	store   *storage.Storage
	fleet   *cloud.Fake
	planner *planner.Planner
	audit   *types.Audit
	sub     events.Subscriber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker(nil)
	broker.Start()
	t.Cleanup(broker.Stop)
	sub := broker.Subscribe()

	goal := &types.Goal{Name: "server_consolidation"}
	require.NoError(t, store.CreateGoal(goal))
	strat := &types.Strategy{Name: "basic", GoalID: goal.ID}
	require.NoError(t, store.CreateStrategy(strat))
	audit := &types.Audit{
		Name:       "drain",
		AuditType:  types.AuditOneshot,
		State:      types.AuditOngoing,
		GoalID:     goal.ID,
		StrategyID: &strat.ID,
		Hostname:   "ctl-1",
	}
	require.NoError(t, store.CreateAudit(audit))

	fleet := cloud.NewFake()
	fleet.AddNode(cloud.ComputeNode{UUID: "n1", Hostname: "src1", State: "up", Status: cloud.ServiceEnabled})
	fleet.AddNode(cloud.ComputeNode{UUID: "n2", Hostname: "dst1", State: "up", Status: cloud.ServiceEnabled})
	fleet.AddNode(cloud.ComputeNode{UUID: "n3", Hostname: "dst2", State: "up", Status: cloud.ServiceEnabled})
	fleet.AddInstance(cloud.Instance{UUID: vm1, State: cloud.InstanceActive, Host: "src1"})
	fleet.AddInstance(cloud.Instance{UUID: vm2, State: cloud.InstanceActive, Host: "src1"})

	reg := actions.DefaultRegistry()
	app := New(store, broker, fleet, reg, Config{
		Host:          "apl-1",
		Interval:      10 * time.Millisecond,
		Workers:       2,
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
	})
	return &fixture{
		applier: app,
		store:   store,
		fleet:   fleet,
		planner: planner.New(store, reg, broker, nil),
		audit:   audit,
		sub:     sub,
	}
}

// drainSolution is the consolidation plan of the happy-path scenario:
// disable src1, move both instances away, re-enable src1.
func drainSolution() *types.Solution {
	sol := &types.Solution{}
	sol.AddAction(actions.TypeServiceState, "src1", map[string]any{"state": "disabled"})
	sol.AddAction(actions.TypeMigrate, vm1, map[string]any{
		"migration_type": "live", "source_node": "src1", "destination_node": "dst1",
	})
	sol.AddAction(actions.TypeMigrate, vm2, map[string]any{
		"migration_type": "live", "source_node": "src1", "destination_node": "dst2",
	})
	sol.AddAction(actions.TypeServiceState, "src1", map[string]any{"state": "enabled"})
	return sol
}

// pendingPlan schedules the solution and marks the plan PENDING, as an
// operator (or auto trigger) would.
func (f *fixture) pendingPlan(t *testing.T, sol *types.Solution) *types.ActionPlan {
	t.Helper()
	plan, err := f.planner.Schedule(f.audit, sol)
	require.NoError(t, err)
	plan.State = types.PlanPending
	_, err = f.store.UpdateActionPlan(plan)
	require.NoError(t, err)
	return plan
}

func (f *fixture) planActions(t *testing.T, plan *types.ActionPlan) []*types.Action {
	t.Helper()
	list, err := f.store.ListActionsByPlan(plan.ID)
	require.NoError(t, err)
	return list
}

// startOrder reads the ONGOING transitions seen by the broker, in order.
func (f *fixture) startOrder() []string {
	var order []string
	for {
		select {
		case n := <-f.sub:
			if n.Kind == events.KindAction && n.NewState == string(types.ActionOngoing) {
				order = append(order, n.UUID)
			}
		case <-time.After(100 * time.Millisecond):
			return order
		}
	}
}

func TestConsolidationHappyPath(t *testing.T) {
	f := newFixture(t)
	plan := f.pendingPlan(t, drainSolution())

	require.NoError(t, f.applier.ExecutePlan(plan, cancel.NewToken()))

	reloaded, err := f.store.GetActionPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanSucceeded, reloaded.State)
	assert.NotNil(t, reloaded.StartTime)
	assert.NotNil(t, reloaded.EndTime)

	for _, action := range f.planActions(t, plan) {
		assert.Equal(t, types.ActionSucceeded, action.State, action.ActionType)
	}

	// Fleet effects: both instances moved, src1 back enabled.
	assert.Equal(t, "dst1", f.fleet.Instance(vm1).Host)
	assert.Equal(t, "dst2", f.fleet.Instance(vm2).Host)
	assert.Equal(t, cloud.ServiceEnabled, f.fleet.Node("src1").Status)

	// Parents finish before children start: the disable is first, the
	// enable is last.
	byUUID := make(map[string]*types.Action)
	for _, action := range f.planActions(t, plan) {
		byUUID[action.UUID] = action
	}
	order := f.startOrder()
	require.Len(t, order, 4)
	assert.Equal(t, "disabled", byUUID[order[0]].InputParameters["state"])
	assert.Equal(t, "enabled", byUUID[order[3]].InputParameters["state"])
	started := make(map[string]int)
	for i, uuid := range order {
		started[uuid] = i
	}
	for _, action := range f.planActions(t, plan) {
		for _, parent := range action.Parents {
			assert.Less(t, started[parent], started[action.UUID])
		}
	}
}

func TestMigrateFailureRunsRevert(t *testing.T) {
	f := newFixture(t)
	plan := f.pendingPlan(t, drainSolution())

	// First migration succeeds, second fails permanently.
	f.fleet.QueueError("LiveMigrateInstance", nil)
	f.fleet.QueueError("LiveMigrateInstance", errors.New("migration refused"))

	require.Error(t, f.applier.ExecutePlan(plan, cancel.NewToken()))

	reloaded, err := f.store.GetActionPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanFailed, reloaded.State)

	var migrateStates []types.ActionState
	for _, action := range f.planActions(t, plan) {
		switch {
		case action.ActionType == actions.TypeMigrate:
			migrateStates = append(migrateStates, action.State)
		case action.InputParameters["state"] == "disabled":
			// Reverted after the failure.
			assert.Equal(t, types.ActionCancelled, action.State)
			assert.Equal(t, types.ReasonReverted, action.StateReason)
		case action.InputParameters["state"] == "enabled":
			// Never ran: its parents did not all succeed.
			assert.Equal(t, types.ActionCancelled, action.State)
			assert.NotEqual(t, types.ReasonReverted, action.StateReason)
		}
	}
	assert.ElementsMatch(t, []types.ActionState{types.ActionCancelled, types.ActionFailed}, migrateStates)

	// Revert symmetry: vm1 back home, src1 enabled again, vm2 never moved.
	assert.Equal(t, "src1", f.fleet.Instance(vm1).Host)
	assert.Equal(t, "src1", f.fleet.Instance(vm2).Host)
	assert.Equal(t, cloud.ServiceEnabled, f.fleet.Node("src1").Status)
}

func TestStopMissingInstanceIsIdempotent(t *testing.T) {
	f := newFixture(t)

	sol := &types.Solution{}
	sol.AddAction(actions.TypeStop, "00000000-0000-0000-0000-000000000001", nil)
	plan := f.pendingPlan(t, sol)

	require.NoError(t, f.applier.ExecutePlan(plan, cancel.NewToken()))

	reloaded, err := f.store.GetActionPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanSucceeded, reloaded.State)

	list := f.planActions(t, plan)
	require.Len(t, list, 1)
	assert.Equal(t, types.ActionSucceeded, list[0].State)
	assert.Contains(t, list[0].StateReason, "not found")
	assert.Equal(t, 0, f.fleet.CallCount("StopInstance"))
}

func TestInvalidParametersFailWithoutCloudCalls(t *testing.T) {
	f := newFixture(t)

	sol := &types.Solution{}
	sol.AddAction(actions.TypeResize, vm1, nil) // missing flavor
	plan := f.pendingPlan(t, sol)

	require.Error(t, f.applier.ExecutePlan(plan, cancel.NewToken()))

	list := f.planActions(t, plan)
	require.Len(t, list, 1)
	assert.Equal(t, types.ActionFailed, list[0].State)
	assert.Equal(t, 0, f.fleet.CallCount("GetInstance"))
	assert.Equal(t, 0, f.fleet.CallCount("ResizeInstance"))
}

func TestAbortBeforeStartCancelsPlan(t *testing.T) {
	f := newFixture(t)
	plan := f.pendingPlan(t, drainSolution())

	token := cancel.NewToken()
	token.Cancel()
	require.NoError(t, f.applier.ExecutePlan(plan, token))

	reloaded, err := f.store.GetActionPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanCancelled, reloaded.State)

	for _, action := range f.planActions(t, plan) {
		assert.Equal(t, types.ActionCancelled, action.State)
	}
	assert.Equal(t, 0, f.fleet.CallCount("LiveMigrateInstance"))
}

func TestCrossPlanParentRejected(t *testing.T) {
	f := newFixture(t)
	plan := f.pendingPlan(t, drainSolution())

	// An action depending on a UUID outside the plan poisons the graph.
	require.NoError(t, f.store.CreateAction(&types.Action{
		ActionPlanID:    plan.ID,
		ActionType:      actions.TypeNop,
		InputParameters: datatypes.JSONMap{},
		State:           types.ActionPending,
		Parents:         datatypes.JSONSlice[string]([]string{"99999999-9999-9999-9999-999999999999"}),
	}))

	require.Error(t, f.applier.ExecutePlan(plan, cancel.NewToken()))

	reloaded, err := f.store.GetActionPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanFailed, reloaded.State)
	assert.Contains(t, reloaded.StateReason, "outside the plan")
}

func TestTickRunsPendingPlans(t *testing.T) {
	f := newFixture(t)
	plan := f.pendingPlan(t, drainSolution())

	require.NoError(t, f.applier.Tick())

	assert.Eventually(t, func() bool {
		reloaded, err := f.store.GetActionPlan(plan.ID)
		return err == nil && reloaded.State == types.PlanSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	// A terminal plan is not picked up again.
	require.NoError(t, f.applier.Tick())
	time.Sleep(50 * time.Millisecond)
	reloaded, err := f.store.GetActionPlan(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanSucceeded, reloaded.State)
}

func TestOrderActionsCyclic(t *testing.T) {
	a := &types.Action{Base: types.Base{ID: 1, UUID: "aaaaaaaa-0000-0000-0000-000000000000"}, ActionType: actions.TypeNop}
	b := &types.Action{Base: types.Base{ID: 2, UUID: "bbbbbbbb-0000-0000-0000-000000000000"}, ActionType: actions.TypeNop}
	a.Parents = datatypes.JSONSlice[string]([]string{b.UUID})
	b.Parents = datatypes.JSONSlice[string]([]string{a.UUID})

	_, err := orderActions([]*types.Action{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
}
