package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/datasource"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// BasicConsolidation drains the least loaded compute node. The node's
// service is disabled so the scheduler places nothing new on it, every
// instance is live-migrated to the busiest nodes that still have
// headroom, and the service is re-enabled once the host is empty so
// operators can power it down or repurpose it at will.
type BasicConsolidation struct{}

// NewBasicConsolidation returns the consolidation strategy.
func NewBasicConsolidation() *BasicConsolidation {
	return &BasicConsolidation{}
}

func (b *BasicConsolidation) Name() string        { return "basic_consolidation" }
func (b *BasicConsolidation) DisplayName() string { return "Basic server consolidation" }
func (b *BasicConsolidation) GoalName() string    { return "server_consolidation" }

func (b *BasicConsolidation) ParametersSpec() map[string]ParameterSpec {
	return map[string]ParameterSpec{
		"period": {
			Type:        "number",
			Description: "trailing window in seconds for usage statistics",
			Default:     300.0,
		},
		"donor_threshold": {
			Type:        "number",
			Description: "cpu usage (percent) below which a node is a drain candidate",
			Default:     20.0,
		},
		"receiver_threshold": {
			Type:        "number",
			Description: "cpu usage (percent) a receiving node must stay under",
			Default:     80.0,
		},
	}
}

// nodeLoad pairs a node with its measured cpu usage.
type nodeLoad struct {
	node  cloud.ComputeNode
	usage float64
}

func (b *BasicConsolidation) Execute(req *Request) (*types.Solution, error) {
	logger := log.WithComponent("strategy").With().Str("strategy", b.Name()).Logger()

	if req.DataSource == nil {
		return nil, errors.New("basic_consolidation needs a configured datasource")
	}

	period := time.Duration(req.Float("period", 300)) * time.Second
	donorMax := req.Float("donor_threshold", 20)
	receiverMax := req.Float("receiver_threshold", 80)

	nodes, err := req.Cloud.ListComputeNodes(req.Ctx)
	if err != nil {
		return nil, err
	}

	loads := make([]nodeLoad, 0, len(nodes))
	for _, node := range nodes {
		if err := req.Token.Check(); err != nil {
			return nil, err
		}
		if node.Status != cloud.ServiceEnabled || node.State != "up" {
			continue
		}
		usage, err := req.DataSource.StatisticAggregation(req.Ctx, node.Hostname,
			datasource.HostCPUUsage, period, datasource.AggregateMean)
		if err != nil {
			var nodata *datasource.NoDataError
			if errors.As(err, &nodata) {
				logger.Warn().Str("node", node.Hostname).Msg("no usage data, skipping node")
				continue
			}
			return nil, err
		}
		loads = append(loads, nodeLoad{node: node, usage: usage})
	}
	if len(loads) < 2 {
		return &types.Solution{}, nil
	}

	// Least loaded node first; that is the drain candidate.
	sort.Slice(loads, func(i, j int) bool { return loads[i].usage < loads[j].usage })
	donor := loads[0]
	if donor.usage > donorMax {
		return &types.Solution{}, nil
	}

	instances, err := req.Cloud.ListInstances(req.Ctx, donor.node.Hostname)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return &types.Solution{}, nil
	}

	// Busiest receivers first, so load concentrates on the fewest hosts.
	receivers := make([]nodeLoad, 0, len(loads)-1)
	for _, l := range loads[1:] {
		if l.usage < receiverMax {
			receivers = append(receivers, l)
		}
	}
	sort.Slice(receivers, func(i, j int) bool { return receivers[i].usage > receivers[j].usage })
	if len(receivers) == 0 {
		return &types.Solution{}, nil
	}

	sol := &types.Solution{}
	sol.AddAction(actions.TypeServiceState, donor.node.Hostname, map[string]any{
		"state":           "disabled",
		"disabled_reason": fmt.Sprintf("drained by %s", b.Name()),
	})
	for i, inst := range instances {
		if err := req.Token.Check(); err != nil {
			return nil, err
		}
		dest := receivers[i%len(receivers)]
		sol.AddAction(actions.TypeMigrate, inst.UUID, map[string]any{
			"migration_type":   actions.MigrationLive,
			"source_node":      donor.node.Hostname,
			"destination_node": dest.node.Hostname,
		})
	}
	sol.AddAction(actions.TypeServiceState, donor.node.Hostname, map[string]any{
		"state": "enabled",
	})

	sol.Efficacy = []types.EfficacyValue{
		{Name: "released_compute_nodes", Description: "nodes emptied by the plan", Unit: "hosts", Value: 1},
		{Name: "instance_migrations", Description: "live migrations proposed", Unit: "migrations", Value: float64(len(instances))},
	}
	sol.GlobalEfficacy = map[string]any{
		"released_compute_nodes": 1,
		"drained_node":           donor.node.Hostname,
	}

	logger.Info().
		Str("donor", donor.node.Hostname).
		Int("migrations", len(instances)).
		Msg("consolidation solution built")
	return sol, nil
}
