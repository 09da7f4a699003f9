package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/cancel"
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/datasource"
)

// fakeDataSource answers host_cpu_usage from a fixed table.
type fakeDataSource struct {
	usage map[string]float64
}

func (f *fakeDataSource) StatisticAggregation(_ context.Context, resource string, metric datasource.Metric, _ time.Duration, _ datasource.Aggregate) (float64, error) {
	if v, ok := f.usage[resource]; ok {
		return v, nil
	}
	return 0, &datasource.NoDataError{Metric: metric, Resource: resource}
}

func consolidationFleet() *cloud.Fake {
	f := cloud.NewFake()
	f.AddNode(cloud.ComputeNode{UUID: "n1", Hostname: "src1", State: "up", Status: cloud.ServiceEnabled})
	f.AddNode(cloud.ComputeNode{UUID: "n2", Hostname: "dst1", State: "up", Status: cloud.ServiceEnabled})
	f.AddNode(cloud.ComputeNode{UUID: "n3", Hostname: "dst2", State: "up", Status: cloud.ServiceEnabled})
	f.AddInstance(cloud.Instance{UUID: "11111111-1111-1111-1111-111111111111", State: cloud.InstanceActive, Host: "src1"})
	f.AddInstance(cloud.Instance{UUID: "22222222-2222-2222-2222-222222222222", State: cloud.InstanceActive, Host: "src1"})
	return f
}

func newRequest(f *cloud.Fake, usage map[string]float64, params map[string]any) *Request {
	return &Request{
		Ctx:        context.Background(),
		Cloud:      f,
		DataSource: &fakeDataSource{usage: usage},
		Token:      cancel.NewToken(),
		Parameters: params,
	}
}

func TestRegistryResolvesShippedStrategies(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{"basic_consolidation", "dummy"}, reg.Names())

	s, err := reg.Get("dummy")
	require.NoError(t, err)
	assert.Equal(t, "dummy", s.GoalName())

	_, err = reg.Get("quantum_annealing")
	var unknown *UnknownStrategyError
	require.ErrorAs(t, err, &unknown)
}

func TestDummyStrategy(t *testing.T) {
	req := newRequest(cloud.NewFake(), nil, map[string]any{
		"message": "ping", "sleep_seconds": 2.5,
	})

	sol, err := NewDummy().Execute(req)
	require.NoError(t, err)
	require.Len(t, sol.Actions, 2)
	assert.Equal(t, actions.TypeNop, sol.Actions[0].ActionType)
	assert.Equal(t, "ping", sol.Actions[0].InputParameters["message"])
	assert.Equal(t, actions.TypeSleep, sol.Actions[1].ActionType)
	assert.Equal(t, 2.5, sol.Actions[1].InputParameters["duration"])
}

func TestDummyObservesCancellation(t *testing.T) {
	req := newRequest(cloud.NewFake(), nil, nil)
	req.Token.Cancel()

	_, err := NewDummy().Execute(req)
	assert.ErrorIs(t, err, cancel.ErrCancelled)
}

func TestConsolidationDrainsIdleNode(t *testing.T) {
	usage := map[string]float64{"src1": 5, "dst1": 60, "dst2": 40}
	req := newRequest(consolidationFleet(), usage, nil)

	sol, err := NewBasicConsolidation().Execute(req)
	require.NoError(t, err)
	require.Len(t, sol.Actions, 4)

	disable := sol.Actions[0]
	assert.Equal(t, actions.TypeServiceState, disable.ActionType)
	assert.Equal(t, "disabled", disable.InputParameters["state"])
	assert.Equal(t, "src1", disable.InputParameters["resource_id"])

	// Busiest receiver takes the first instance, then round robin.
	first := sol.Actions[1]
	second := sol.Actions[2]
	assert.Equal(t, actions.TypeMigrate, first.ActionType)
	assert.Equal(t, "dst1", first.InputParameters["destination_node"])
	assert.Equal(t, "dst2", second.InputParameters["destination_node"])
	assert.Equal(t, "src1", first.InputParameters["source_node"])

	enable := sol.Actions[3]
	assert.Equal(t, "enabled", enable.InputParameters["state"])
	assert.Equal(t, "src1", enable.InputParameters["resource_id"])

	require.Len(t, sol.Efficacy, 2)
	assert.Equal(t, "src1", sol.GlobalEfficacy["drained_node"])
}

func TestConsolidationNoDonorBelowThreshold(t *testing.T) {
	usage := map[string]float64{"src1": 50, "dst1": 60, "dst2": 40}
	req := newRequest(consolidationFleet(), usage, nil)

	sol, err := NewBasicConsolidation().Execute(req)
	require.NoError(t, err)
	assert.Empty(t, sol.Actions)
}

func TestConsolidationSkipsNodesWithoutData(t *testing.T) {
	// dst2 has no samples; the strategy must still plan with the rest.
	usage := map[string]float64{"src1": 5, "dst1": 60}
	req := newRequest(consolidationFleet(), usage, nil)

	sol, err := NewBasicConsolidation().Execute(req)
	require.NoError(t, err)
	require.Len(t, sol.Actions, 4)
	for _, a := range sol.Actions[1:3] {
		assert.Equal(t, "dst1", a.InputParameters["destination_node"])
	}
}

func TestConsolidationRespectsReceiverThreshold(t *testing.T) {
	usage := map[string]float64{"src1": 5, "dst1": 95, "dst2": 97}
	req := newRequest(consolidationFleet(), usage, nil)

	sol, err := NewBasicConsolidation().Execute(req)
	require.NoError(t, err)
	assert.Empty(t, sol.Actions)
}

func TestConsolidationObservesCancellation(t *testing.T) {
	usage := map[string]float64{"src1": 5, "dst1": 60, "dst2": 40}
	req := newRequest(consolidationFleet(), usage, nil)
	req.Token.Cancel()

	_, err := NewBasicConsolidation().Execute(req)
	assert.ErrorIs(t, err, cancel.ErrCancelled)
}
