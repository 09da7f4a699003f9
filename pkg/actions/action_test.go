package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirocco-cloud/sirocco/pkg/cloud"
)

const (
	vmUUID      = "11111111-1111-1111-1111-111111111111"
	missingUUID = "00000000-0000-0000-0000-000000000001"
	volUUID     = "22222222-2222-2222-2222-222222222222"
)

func testFleet() *cloud.Fake {
	f := cloud.NewFake()
	f.AddNode(cloud.ComputeNode{UUID: "n1", Hostname: "src1", State: "up", Status: cloud.ServiceEnabled})
	f.AddNode(cloud.ComputeNode{UUID: "n2", Hostname: "dst1", State: "up", Status: cloud.ServiceEnabled})
	f.AddInstance(cloud.Instance{
		UUID: vmUUID, Name: "web", State: cloud.InstanceActive, Host: "src1", Flavor: "m1.small",
	})
	f.AddVolume(cloud.Volume{UUID: volUUID, Status: cloud.VolumeInUse, Type: "lvm", Host: "pool1", AttachedTo: vmUUID})
	return f
}

func testCtx(f *cloud.Fake, params map[string]any) *Context {
	return &Context{
		Ctx:           context.Background(),
		Cloud:         f,
		Params:        params,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	}
}

func TestRegistryResolution(t *testing.T) {
	reg := DefaultRegistry()

	for _, typ := range []string{
		TypeMigrate, TypeResize, TypeStart, TypeStop,
		TypeServiceState, TypeVolumeMigrate, TypeNop, TypeSleep,
	} {
		a, err := reg.Get(typ)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, a.Type)
	}

	_, err := reg.Get("defragment")
	var unsupported *UnsupportedActionTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "defragment", unsupported.ActionType)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newNop()))
	assert.Error(t, reg.Register(newNop()))
}

func TestValidateParameters(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name       string
		actionType string
		params     map[string]any
		wantErr    bool
	}{
		{
			name:       "valid migrate",
			actionType: TypeMigrate,
			params: map[string]any{
				"resource_id": vmUUID, "migration_type": "live", "source_node": "src1",
			},
		},
		{
			name:       "migrate missing source_node",
			actionType: TypeMigrate,
			params:     map[string]any{"resource_id": vmUUID, "migration_type": "live"},
			wantErr:    true,
		},
		{
			name:       "migrate bad migration_type",
			actionType: TypeMigrate,
			params: map[string]any{
				"resource_id": vmUUID, "migration_type": "warm", "source_node": "src1",
			},
			wantErr: true,
		},
		{
			name:       "non-canonical uuid rejected",
			actionType: TypeStop,
			params:     map[string]any{"resource_id": "{" + vmUUID + "}"},
			wantErr:    true,
		},
		{
			name:       "service state takes hostname",
			actionType: TypeServiceState,
			params:     map[string]any{"resource_id": "src1", "state": "disabled"},
		},
		{
			name:       "sleep requires duration",
			actionType: TypeSleep,
			params:     map[string]any{},
			wantErr:    true,
		},
		{
			name:       "unknown keys rejected",
			actionType: TypeNop,
			params:     map[string]any{"massage": "hello"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := reg.Get(tt.actionType)
			require.NoError(t, err)
			err = a.ValidateParameters(tt.params)
			if tt.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.actionType, verr.ActionType)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStopIdempotentOnMissingInstance(t *testing.T) {
	f := testFleet()
	a, err := DefaultRegistry().Get(TypeStop)
	require.NoError(t, err)

	c := testCtx(f, map[string]any{"resource_id": missingUUID})

	res := a.PreCondition(c)
	assert.Equal(t, OutcomeSkip, res.Outcome)
	assert.Contains(t, res.Reason, "not found")
	assert.Equal(t, 0, f.CallCount("StopInstance"))
}

func TestStopAlreadyStopped(t *testing.T) {
	f := testFleet()
	require.NoError(t, f.StopInstance(context.Background(), vmUUID))

	a, _ := DefaultRegistry().Get(TypeStop)
	res := a.PreCondition(testCtx(f, map[string]any{"resource_id": vmUUID}))
	assert.Equal(t, OutcomeSkip, res.Outcome)
}

func TestStopExecuteAndRevert(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeStop)
	c := testCtx(f, map[string]any{"resource_id": vmUUID})

	require.Equal(t, OutcomeProceed, a.PreCondition(c).Outcome)
	require.NoError(t, a.Run(c))
	require.NoError(t, a.PostCondition(c))
	assert.Equal(t, cloud.InstanceStopped, f.Instance(vmUUID).State)

	require.NoError(t, a.RunRevert(c))
	assert.Equal(t, cloud.InstanceActive, f.Instance(vmUUID).State)
}

func TestLiveMigrateRequiresActiveInstance(t *testing.T) {
	f := testFleet()
	require.NoError(t, f.StopInstance(context.Background(), vmUUID))

	a, _ := DefaultRegistry().Get(TypeMigrate)
	c := testCtx(f, map[string]any{
		"resource_id": vmUUID, "migration_type": "live", "source_node": "src1",
	})

	res := a.PreCondition(c)
	require.Equal(t, OutcomeFail, res.Outcome)
	assert.ErrorContains(t, res.Err, "requires an active instance")

	// Cold migration accepts any state.
	c.Params["migration_type"] = "cold"
	assert.Equal(t, OutcomeProceed, a.PreCondition(c).Outcome)
}

func TestMigrateRoundTrip(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeMigrate)
	c := testCtx(f, map[string]any{
		"resource_id": vmUUID, "migration_type": "live",
		"source_node": "src1", "destination_node": "dst1",
	})

	require.Equal(t, OutcomeProceed, a.PreCondition(c).Outcome)
	require.NoError(t, a.Run(c))
	require.NoError(t, a.PostCondition(c))
	assert.Equal(t, "dst1", f.Instance(vmUUID).Host)

	require.NoError(t, a.RunRevert(c))
	assert.Equal(t, "src1", f.Instance(vmUUID).Host)

	// Reverting when already home is a no-op.
	migrations := f.CallCount("LiveMigrateInstance")
	require.NoError(t, a.RunRevert(c))
	assert.Equal(t, migrations, f.CallCount("LiveMigrateInstance"))
}

func TestMigratePostDetectsNoMove(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeMigrate)
	c := testCtx(f, map[string]any{
		"resource_id": vmUUID, "migration_type": "live", "source_node": "src1",
	})

	// Instance never moved.
	assert.ErrorContains(t, a.PostCondition(c), "still on src1")
}

func TestResizeMissingInstanceFails(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeResize)
	c := testCtx(f, map[string]any{"resource_id": missingUUID, "flavor": "m1.large"})

	res := a.PreCondition(c)
	require.Equal(t, OutcomeFail, res.Outcome)
	assert.True(t, cloud.IsNotFound(res.Err))
}

func TestResizeApplies(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeResize)
	c := testCtx(f, map[string]any{"resource_id": vmUUID, "flavor": "m1.large"})

	require.Equal(t, OutcomeProceed, a.PreCondition(c).Outcome)
	require.NoError(t, a.Run(c))
	assert.Equal(t, "m1.large", f.Instance(vmUUID).Flavor)
}

func TestServiceStateSkipAndRevert(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeServiceState)
	c := testCtx(f, map[string]any{
		"resource_id": "src1", "state": "disabled", "disabled_reason": "consolidation",
	})

	require.Equal(t, OutcomeProceed, a.PreCondition(c).Outcome)
	require.NoError(t, a.Run(c))
	assert.Equal(t, cloud.ServiceDisabled, f.Node("src1").Status)
	assert.Equal(t, "consolidation", f.Node("src1").DisabledReason)

	// Already disabled, second run skips.
	assert.Equal(t, OutcomeSkip, a.PreCondition(c).Outcome)

	require.NoError(t, a.RunRevert(c))
	assert.Equal(t, cloud.ServiceEnabled, f.Node("src1").Status)
}

func TestVolumeMigrateAttachedStateCheck(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeVolumeMigrate)
	c := testCtx(f, map[string]any{
		"resource_id": volUUID, "migration_type": "migrate", "destination_node": "pool2",
	})

	// Owning instance active, migration allowed.
	require.Equal(t, OutcomeProceed, a.PreCondition(c).Outcome)
	require.NoError(t, a.Run(c))
	assert.Equal(t, "pool2", f.Volume(volUUID).Host)

	// Owning instance shut off, migration refused.
	require.NoError(t, f.StopInstance(context.Background(), vmUUID))
	res := a.PreCondition(c)
	require.Equal(t, OutcomeFail, res.Outcome)
	assert.ErrorContains(t, res.Err, "need ACTIVE or PAUSED")
}

func TestVolumeRetype(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeVolumeMigrate)
	c := testCtx(f, map[string]any{
		"resource_id": volUUID, "migration_type": "retype", "destination_type": "ceph",
	})

	require.NoError(t, a.Run(c))
	assert.Equal(t, "ceph", f.Volume(volUUID).Type)
	assert.Equal(t, 0, f.CallCount("MigrateVolume"))
}

func TestVolumeMigrateMissingVolumeSkips(t *testing.T) {
	f := testFleet()
	a, _ := DefaultRegistry().Get(TypeVolumeMigrate)
	c := testCtx(f, map[string]any{"resource_id": missingUUID, "migration_type": "swap"})

	res := a.PreCondition(c)
	assert.Equal(t, OutcomeSkip, res.Outcome)
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	f := testFleet()
	f.QueueError("StopInstance", &cloud.TransientError{Err: context.DeadlineExceeded})

	a, _ := DefaultRegistry().Get(TypeStop)
	c := testCtx(f, map[string]any{"resource_id": vmUUID})

	require.NoError(t, a.Run(c))
	assert.Equal(t, 2, f.CallCount("StopInstance"))
}

func TestSleepAndNop(t *testing.T) {
	reg := DefaultRegistry()

	nop, _ := reg.Get(TypeNop)
	require.NoError(t, nop.Run(testCtx(cloud.NewFake(), map[string]any{"message": "hi"})))
	assert.False(t, nop.Abortable())

	sleep, _ := reg.Get(TypeSleep)
	c := testCtx(cloud.NewFake(), map[string]any{"duration": 0.01})
	start := time.Now()
	require.NoError(t, sleep.Run(c))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	// Context cancellation interrupts the wait.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = testCtx(cloud.NewFake(), map[string]any{"duration": 60})
	c.Ctx = ctx
	assert.ErrorIs(t, sleep.Run(c), context.Canceled)

	migrate, _ := reg.Get(TypeMigrate)
	assert.True(t, migrate.Abortable())
}
