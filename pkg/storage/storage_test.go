package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func seedGoal(t *testing.T, s *Storage, name string) *types.Goal {
	t.Helper()
	g := &types.Goal{Name: name, DisplayName: name}
	require.NoError(t, s.CreateGoal(g))
	return g
}

func seedStrategy(t *testing.T, s *Storage, goal *types.Goal, name string) *types.Strategy {
	t.Helper()
	st := &types.Strategy{Name: name, DisplayName: name, GoalID: goal.ID}
	require.NoError(t, s.CreateStrategy(st))
	return st
}

func seedAudit(t *testing.T, s *Storage, goal *types.Goal, strategy *types.Strategy) *types.Audit {
	t.Helper()
	a := &types.Audit{
		Name:       "audit",
		AuditType:  types.AuditOneshot,
		State:      types.AuditPending,
		GoalID:     goal.ID,
		StrategyID: &strategy.ID,
	}
	require.NoError(t, s.CreateAudit(a))
	return a
}

func TestCreateGeneratesUUID(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "server_consolidation")
	assert.Len(t, g.UUID, 36)

	got, err := s.GetGoalByUUID(g.UUID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
}

func TestUUIDImmutable(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "server_consolidation")

	mutated := *g
	mutated.UUID = "00000000-0000-0000-0000-000000000001"
	mutated.DisplayName = "changed"
	_, err := s.UpdateGoal(&mutated)
	assert.True(t, IsInvalid(err), "expected Invalid, got %v", err)

	// row unchanged
	got, err := s.GetGoal(g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.UUID, got.UUID)
	assert.Equal(t, g.DisplayName, got.DisplayName)
}

func TestNameUniquenessAmongLiveRows(t *testing.T) {
	s := newTestStore(t)
	first := seedGoal(t, s, "dummy")

	err := s.CreateGoal(&types.Goal{Name: "dummy"})
	assert.True(t, IsAlreadyExists(err), "expected AlreadyExists, got %v", err)

	// soft-deleting the first frees the name
	require.NoError(t, s.SoftDeleteGoal(first.ID))
	assert.NoError(t, s.CreateGoal(&types.Goal{Name: "dummy"}))
}

func TestUUIDUniquenessIncludesTombstones(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "dummy")
	require.NoError(t, s.SoftDeleteGoal(g.ID))

	err := s.CreateGoal(&types.Goal{Base: types.Base{UUID: g.UUID}, Name: "other"})
	assert.True(t, IsAlreadyExists(err))
}

func TestSoftDeleteFiltersList(t *testing.T) {
	s := newTestStore(t)
	keep := seedGoal(t, s, "keep")
	gone := seedGoal(t, s, "gone")
	require.NoError(t, s.SoftDeleteGoal(gone.ID))

	live, err := s.ListGoals(nil)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, keep.UUID, live[0].UUID)

	// deleted=true selects only tombstones
	dead, err := s.ListGoals(&ListQuery{Filters: map[string]any{"deleted": true}})
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, gone.UUID, dead[0].UUID)

	_, err = s.GetGoal(gone.ID)
	assert.True(t, IsNotFound(err))
}

func TestStrategyGoalImmutable(t *testing.T) {
	s := newTestStore(t)
	g1 := seedGoal(t, s, "goal-1")
	g2 := seedGoal(t, s, "goal-2")
	st := seedStrategy(t, s, g1, "strategy-1")

	mutated := *st
	mutated.GoalID = g2.ID
	_, err := s.UpdateStrategy(&mutated)
	assert.True(t, IsInvalid(err))
}

func TestDestroyAuditRefusedWhileReferenced(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "goal")
	st := seedStrategy(t, s, g, "strategy")
	a := seedAudit(t, s, g, st)

	plan := &types.ActionPlan{AuditID: a.ID, StrategyID: st.ID}
	require.NoError(t, s.CreateActionPlan(plan))

	err := s.DestroyAudit(a.ID)
	assert.True(t, IsReferenced(err), "expected Referenced, got %v", err)

	// audit remains
	_, err = s.GetAudit(a.ID)
	assert.NoError(t, err)

	// destroying the plan first unblocks the audit
	require.NoError(t, s.DestroyActionPlan(plan.ID))
	assert.NoError(t, s.DestroyAudit(a.ID))
}

func TestDestroyGoalRefusedWhileStrategyExists(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "goal")
	seedStrategy(t, s, g, "strategy")

	err := s.DestroyGoal(g.ID)
	assert.True(t, IsReferenced(err))
}

func TestDestroyPlanRefusedWhileActionsExist(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "goal")
	st := seedStrategy(t, s, g, "strategy")
	a := seedAudit(t, s, g, st)
	plan := &types.ActionPlan{AuditID: a.ID, StrategyID: st.ID}
	require.NoError(t, s.CreateActionPlan(plan))
	require.NoError(t, s.CreateAction(&types.Action{
		ActionPlanID: plan.ID,
		ActionType:   "nop",
		InputParameters: datatypes.JSONMap{"message": "hi"},
	}))

	err := s.DestroyActionPlan(plan.ID)
	assert.True(t, IsReferenced(err))
}

func TestEagerAuditLoadsRelations(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "goal")
	st := seedStrategy(t, s, g, "strategy")
	a := seedAudit(t, s, g, st)

	got, err := s.GetAuditEager(a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Goal)
	require.NotNil(t, got.Strategy)
	assert.Equal(t, "goal", got.Goal.Name)
	assert.Equal(t, "strategy", got.Strategy.Name)
}

func TestRegisterServiceUpserts(t *testing.T) {
	s := newTestStore(t)
	first, err := s.RegisterService(types.DecisionEngineName, "hostA")
	require.NoError(t, err)

	second, err := s.RegisterService(types.DecisionEngineName, "hostA")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.LastSeenUp.Before(first.LastSeenUp))

	services, err := s.ListServices(nil)
	require.NoError(t, err)
	assert.Len(t, services, 1)
}

func TestUpsertActionDescription(t *testing.T) {
	s := newTestStore(t)
	first, err := s.UpsertActionDescription("migrate", "Moves an instance")
	require.NoError(t, err)

	second, err := s.UpsertActionDescription("migrate", "Moves an instance between hosts")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Moves an instance between hosts", second.Description)
}

func TestSoftDeleteAuditRecordsState(t *testing.T) {
	s := newTestStore(t)
	g := seedGoal(t, s, "goal")
	st := seedStrategy(t, s, g, "strategy")
	a := seedAudit(t, s, g, st)

	require.NoError(t, s.SoftDeleteAudit(a.ID))

	dead, err := s.ListAudits(&ListQuery{Filters: map[string]any{"deleted": true}})
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, types.AuditDeleted, dead[0].State)
}
