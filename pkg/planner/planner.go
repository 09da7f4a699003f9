package planner

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/metrics"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// ReasonCyclicPlan is recorded on the audit when a solution's
// dependency graph cannot be ordered.
const ReasonCyclicPlan = "cyclic plan"

// CyclicPlanError reports a dependency cycle in a solution.
type CyclicPlanError struct {
	Cycle []string
}

func (e *CyclicPlanError) Error() string {
	return ReasonCyclicPlan
}

// DefaultWeights orders action types into the canonical serial order.
// Lower weight runs earlier. Service disables come first so migrations
// can depend on them; housekeeping types run last.
var DefaultWeights = map[string]int{
	actions.TypeServiceState:  10,
	actions.TypeMigrate:       30,
	actions.TypeVolumeMigrate: 35,
	actions.TypeResize:        40,
	actions.TypeStart:         50,
	actions.TypeStop:          55,
	actions.TypeSleep:         60,
	actions.TypeNop:           70,
}

// Planner converts solutions into action plans.
type Planner struct {
	store    storage.Store
	registry *actions.Registry
	broker   *events.Broker
	weights  map[string]int
}

// New builds a planner. A nil weights map falls back to DefaultWeights.
func New(store storage.Store, registry *actions.Registry, broker *events.Broker, weights map[string]int) *Planner {
	if weights == nil {
		weights = DefaultWeights
	}
	return &Planner{store: store, registry: registry, broker: broker, weights: weights}
}

func (p *Planner) weight(actionType string) int {
	if w, ok := p.weights[actionType]; ok {
		return w
	}
	return 100
}

// planned is one solution entry with its assigned identity and edges.
type planned struct {
	index   int
	uuid    string
	action  types.SolutionAction
	parents map[int]struct{}
}

func (pl *planned) resourceID() string {
	if v, ok := pl.action.InputParameters["resource_id"].(string); ok {
		return v
	}
	return pl.action.ResourceID
}

func (pl *planned) param(key string) string {
	if v, ok := pl.action.InputParameters[key].(string); ok {
		return v
	}
	return ""
}

// edgeRule inspects one action against everything before it in the
// solution and returns the indexes it must depend on. Each rule is an
// independent policy; their results are unioned.
type edgeRule func(current *planned, prior []*planned) []int

// migrations depend on the disable of their source host and on any
// earlier action touching the same instance.
func migrateRule(current *planned, prior []*planned) []int {
	if current.action.ActionType != actions.TypeMigrate {
		return nil
	}
	var parents []int
	source := current.param("source_node")
	for _, prev := range prior {
		if prev.action.ActionType == actions.TypeServiceState &&
			prev.param("state") == "disabled" &&
			prev.resourceID() == source {
			parents = append(parents, prev.index)
		}
		if prev.resourceID() != "" && prev.resourceID() == current.resourceID() {
			parents = append(parents, prev.index)
		}
	}
	return parents
}

// resizes depend on earlier migrations of the same instance.
func resizeRule(current *planned, prior []*planned) []int {
	if current.action.ActionType != actions.TypeResize {
		return nil
	}
	var parents []int
	for _, prev := range prior {
		if prev.action.ActionType == actions.TypeMigrate &&
			prev.resourceID() == current.resourceID() {
			parents = append(parents, prev.index)
		}
	}
	return parents
}

// volume migrations depend on any earlier action on the same volume.
func volumeRule(current *planned, prior []*planned) []int {
	if current.action.ActionType != actions.TypeVolumeMigrate {
		return nil
	}
	var parents []int
	for _, prev := range prior {
		if prev.resourceID() != "" && prev.resourceID() == current.resourceID() {
			parents = append(parents, prev.index)
		}
	}
	return parents
}

// re-enabling a host waits for every migration leaving it.
func enableRule(current *planned, prior []*planned) []int {
	if current.action.ActionType != actions.TypeServiceState ||
		current.param("state") != "enabled" {
		return nil
	}
	var parents []int
	host := current.resourceID()
	for _, prev := range prior {
		if prev.action.ActionType == actions.TypeMigrate &&
			prev.param("source_node") == host {
			parents = append(parents, prev.index)
		}
	}
	return parents
}

// power actions depend on any earlier action on the same instance.
func powerRule(current *planned, prior []*planned) []int {
	t := current.action.ActionType
	if t != actions.TypeStart && t != actions.TypeStop {
		return nil
	}
	var parents []int
	for _, prev := range prior {
		if prev.resourceID() != "" && prev.resourceID() == current.resourceID() {
			parents = append(parents, prev.index)
		}
	}
	return parents
}

var edgeRules = []edgeRule{migrateRule, resizeRule, volumeRule, enableRule, powerRule}

// computeEdges runs every rule over the solution order and merges in
// the explicit parents the strategy declared, if any.
func computeEdges(items []*planned) {
	for i, current := range items {
		for _, rule := range edgeRules {
			for _, parent := range rule(current, items[:i]) {
				if parent != current.index {
					current.parents[parent] = struct{}{}
				}
			}
		}
		for _, parent := range current.action.Parents {
			if parent >= 0 && parent < len(items) && parent != current.index {
				current.parents[parent] = struct{}{}
			}
		}
	}
}

// topoSort orders the items by Kahn's algorithm. The ready set is
// drained ascending by (weight, solution index) so equal graphs always
// serialize identically. A non-empty remainder means a cycle.
func (p *Planner) topoSort(items []*planned) ([]*planned, error) {
	indegree := make([]int, len(items))
	children := make([][]int, len(items))
	for _, it := range items {
		for parent := range it.parents {
			indegree[it.index]++
			children[parent] = append(children[parent], it.index)
		}
	}

	var ready []int
	for i := range items {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	less := func(a, b int) bool {
		wa, wb := p.weight(items[a].action.ActionType), p.weight(items[b].action.ActionType)
		if wa != wb {
			return wa < wb
		}
		return a < b
	}

	order := make([]*planned, 0, len(items))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		order = append(order, items[next])
		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(items) {
		var cycle []string
		for i, it := range items {
			if indegree[i] > 0 {
				cycle = append(cycle, it.action.ActionType)
			}
		}
		return nil, &CyclicPlanError{Cycle: cycle}
	}
	return order, nil
}

// Schedule validates the solution, computes the dependency graph and
// persists the resulting plan. On a cyclic or unsupported solution
// nothing is written and the error is returned for the audit engine to
// record.
func (p *Planner) Schedule(audit *types.Audit, solution *types.Solution) (*types.ActionPlan, error) {
	logger := log.WithAuditUUID(audit.UUID)

	items := make([]*planned, len(solution.Actions))
	for i, sa := range solution.Actions {
		if _, err := p.registry.Get(sa.ActionType); err != nil {
			metrics.PlansRejectedTotal.Inc()
			return nil, err
		}
		items[i] = &planned{
			index:   i,
			uuid:    uuid.New().String(),
			action:  sa,
			parents: make(map[int]struct{}),
		}
	}

	computeEdges(items)
	order, err := p.topoSort(items)
	if err != nil {
		metrics.PlansRejectedTotal.Inc()
		return nil, err
	}

	if audit.StrategyID == nil {
		return nil, fmt.Errorf("audit %s has no strategy", audit.UUID)
	}

	if err := p.supersedeRecommended(audit); err != nil {
		return nil, err
	}

	plan := &types.ActionPlan{
		AuditID:    audit.ID,
		StrategyID: *audit.StrategyID,
		State:      types.PlanRecommended,
		Hostname:   audit.Hostname,
	}
	if len(solution.Actions) == 0 {
		// Nothing to do is a valid outcome, surfaced as an already
		// succeeded plan.
		plan.State = types.PlanSucceeded
		plan.StateReason = "no improvement found"
	}
	if solution.GlobalEfficacy != nil {
		raw, err := marshalJSON(solution.GlobalEfficacy)
		if err != nil {
			return nil, err
		}
		plan.GlobalEfficacy = raw
	}
	if err := p.store.CreateActionPlan(plan); err != nil {
		return nil, err
	}

	for _, it := range order {
		parents := make([]string, 0, len(it.parents))
		for parent := range it.parents {
			parents = append(parents, items[parent].uuid)
		}
		sort.Strings(parents)

		action := &types.Action{
			Base:            types.Base{UUID: it.uuid},
			ActionPlanID:    plan.ID,
			ActionType:      it.action.ActionType,
			InputParameters: datatypes.JSONMap(it.action.InputParameters),
			State:           types.ActionPending,
			Parents:         datatypes.JSONSlice[string](parents),
		}
		if err := p.store.CreateAction(action); err != nil {
			return nil, err
		}
	}

	for _, ev := range solution.Efficacy {
		indicator := &types.EfficacyIndicator{
			ActionPlanID: plan.ID,
			Name:         ev.Name,
			Description:  ev.Description,
			Unit:         ev.Unit,
			Value:        ev.Value,
		}
		if ev.Data != nil {
			raw, err := marshalJSON(ev.Data)
			if err != nil {
				return nil, err
			}
			indicator.Data = raw
		}
		if err := p.store.CreateEfficacyIndicator(indicator); err != nil {
			return nil, err
		}
	}

	metrics.PlansCreatedTotal.Inc()
	if p.broker != nil {
		p.broker.Publish(&events.Notification{
			Kind:     events.KindActionPlan,
			UUID:     plan.UUID,
			NewState: string(plan.State),
			Payload:  map[string]string{"audit_uuid": audit.UUID},
		})
	}
	logger.Info().
		Str("action_plan_uuid", plan.UUID).
		Int("actions", len(order)).
		Msg("action plan recommended")
	return plan, nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// supersedeRecommended retires older unexecuted recommendations of the
// same audit so operators only ever see one actionable plan per audit.
func (p *Planner) supersedeRecommended(audit *types.Audit) error {
	plans, err := p.store.ListActionPlansByAudit(audit.ID)
	if err != nil {
		return err
	}
	for _, old := range plans {
		if old.State != types.PlanRecommended {
			continue
		}
		old.State = types.PlanSuperseded
		old.StateReason = "superseded by a newer recommendation"
		if _, err := p.store.UpdateActionPlan(old); err != nil {
			return err
		}
		if p.broker != nil {
			p.broker.Publish(&events.Notification{
				Kind:     events.KindActionPlan,
				UUID:     old.UUID,
				OldState: string(types.PlanRecommended),
				NewState: string(types.PlanSuperseded),
				Reason:   old.StateReason,
			})
		}
	}
	return nil
}
