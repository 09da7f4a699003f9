package applier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/cancel"
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/metrics"
	"github.com/sirocco-cloud/sirocco/pkg/planner"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// Config tunes one applier.
type Config struct {
	Host          string
	Interval      time.Duration
	Workers       int
	MaxRetries    int
	RetryInterval time.Duration
}

// Applier drives PENDING plans to a terminal state.
type Applier struct {
	store    storage.Store
	broker   *events.Broker
	cloud    cloud.Adapter
	registry *actions.Registry
	cfg      Config

	pool *errgroup.Group

	mu      sync.Mutex
	running map[int64]*cancel.Token // plan ID -> abort token
	stopCh  chan struct{}
}

// New wires an applier from its collaborators.
func New(store storage.Store, broker *events.Broker, adapter cloud.Adapter, registry *actions.Registry, cfg Config) *Applier {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	pool := new(errgroup.Group)
	pool.SetLimit(cfg.Workers)
	return &Applier{
		store:    store,
		broker:   broker,
		cloud:    adapter,
		registry: registry,
		cfg:      cfg,
		pool:     pool,
		running:  make(map[int64]*cancel.Token),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the pickup loop.
func (a *Applier) Start() {
	go a.run()
}

// Stop ends the loop, aborts running plans and waits for them.
func (a *Applier) Stop() {
	close(a.stopCh)
	a.mu.Lock()
	for _, tok := range a.running {
		tok.Cancel()
	}
	a.mu.Unlock()
	_ = a.pool.Wait()
}

func (a *Applier) run() {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("applier")
	for {
		select {
		case <-ticker.C:
			if err := a.Tick(); err != nil {
				logger.Error().Err(err).Msg("applier tick failed")
			}
		case <-a.stopCh:
			return
		}
	}
}

// Tick hands every newly PENDING plan to the worker pool.
func (a *Applier) Tick() error {
	plans, err := a.store.ListActionPlans(&storage.ListQuery{
		Filters: map[string]any{"state__eq": string(types.PlanPending)},
	})
	if err != nil {
		return err
	}

	for _, plan := range plans {
		a.mu.Lock()
		_, busy := a.running[plan.ID]
		if !busy {
			a.running[plan.ID] = cancel.NewToken()
		}
		a.mu.Unlock()
		if busy {
			continue
		}

		p := plan
		a.pool.Go(func() error {
			defer func() {
				a.mu.Lock()
				delete(a.running, p.ID)
				a.mu.Unlock()
			}()
			a.mu.Lock()
			token := a.running[p.ID]
			a.mu.Unlock()
			// Terminal states are recorded on the plan; the pool
			// never propagates an error.
			_ = a.ExecutePlan(p, token)
			return nil
		})
	}
	return nil
}

// Abort requests cooperative cancellation of a running plan.
func (a *Applier) Abort(planUUID string) error {
	plan, err := a.store.GetActionPlanByUUID(planUUID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	token, ok := a.running[plan.ID]
	a.mu.Unlock()
	if !ok {
		return &storage.InvalidError{Reason: fmt.Sprintf("action plan %s is not running", planUUID)}
	}
	token.Cancel()
	return nil
}

// orderActions topologically sorts the plan's actions, ties broken by
// the canonical planner weight and then database id. Parent UUIDs must
// resolve within the plan.
func orderActions(list []*types.Action) ([]*types.Action, error) {
	byUUID := make(map[string]int, len(list))
	for i, action := range list {
		byUUID[action.UUID] = i
	}

	indegree := make([]int, len(list))
	children := make([][]int, len(list))
	for i, action := range list {
		for _, parent := range action.Parents {
			j, ok := byUUID[parent]
			if !ok {
				return nil, &storage.InvalidError{
					Reason: fmt.Sprintf("action %s depends on %s outside the plan", action.UUID, parent),
				}
			}
			indegree[i]++
			children[j] = append(children[j], i)
		}
	}

	weight := func(i int) int {
		if w, ok := planner.DefaultWeights[list[i].ActionType]; ok {
			return w
		}
		return 100
	}
	less := func(x, y int) bool {
		if wx, wy := weight(x), weight(y); wx != wy {
			return wx < wy
		}
		return list[x].ID < list[y].ID
	}

	var ready []int
	for i := range list {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]*types.Action, 0, len(list))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		order = append(order, list[next])
		for _, child := range children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	if len(order) != len(list) {
		return nil, &storage.InvalidError{Reason: "action plan parent graph is cyclic"}
	}
	return order, nil
}

// ExecutePlan drives one plan to a terminal state. The returned error
// mirrors what was recorded on the plan row.
func (a *Applier) ExecutePlan(plan *types.ActionPlan, token *cancel.Token) error {
	logger := log.WithPlanUUID(plan.UUID)
	timer := metrics.NewTimer()

	now := time.Now()
	plan.StartTime = &now
	plan.Hostname = a.cfg.Host
	if err := a.setPlanState(plan, types.PlanOngoing, ""); err != nil {
		return err
	}

	list, err := a.store.ListActionsByPlan(plan.ID)
	if err != nil {
		return a.finishPlan(plan, timer, err)
	}
	order, err := orderActions(list)
	if err != nil {
		return a.finishPlan(plan, timer, err)
	}

	states := make(map[string]types.ActionState, len(order))
	var executed []*types.Action // SUCCEEDED actions that really ran
	var failed bool
	aborted := false

	for _, action := range order {
		if token != nil && token.Cancelled() {
			aborted = true
		}
		if failed || aborted {
			_ = a.setActionState(action, types.ActionCancelled, "not executed")
			states[action.UUID] = types.ActionCancelled
			continue
		}

		// A non-succeeded parent cancels the whole subtree.
		parentFailed := false
		for _, parent := range action.Parents {
			if states[parent] != types.ActionSucceeded {
				parentFailed = true
				break
			}
		}
		if parentFailed {
			_ = a.setActionState(action, types.ActionCancelled, "parent did not succeed")
			states[action.UUID] = types.ActionCancelled
			continue
		}

		ran, err := a.runAction(action, token)
		if err != nil {
			states[action.UUID] = types.ActionFailed
			failed = true
			logger.Error().Err(err).
				Str("action_uuid", action.UUID).
				Str("action_type", action.ActionType).
				Msg("action failed")
			continue
		}
		states[action.UUID] = types.ActionSucceeded
		if ran {
			executed = append(executed, action)
		}
	}

	if token != nil && token.Cancelled() {
		aborted = true
	}

	if failed || aborted {
		a.revert(executed)
		if aborted {
			return a.finishPlanState(plan, timer, types.PlanCancelled, "aborted by operator")
		}
		return a.finishPlanState(plan, timer, types.PlanFailed, "one or more actions failed")
	}
	return a.finishPlanState(plan, timer, types.PlanSucceeded, "")
}

// runAction drives one action through its hooks. The bool reports
// whether execute actually ran (skipped actions succeed without
// running and are not revert candidates).
func (a *Applier) runAction(action *types.Action, token *cancel.Token) (bool, error) {
	if err := a.setActionState(action, types.ActionOngoing, ""); err != nil {
		return false, err
	}

	def, err := a.registry.Get(action.ActionType)
	if err != nil {
		_ = a.setActionState(action, types.ActionFailed, err.Error())
		return false, err
	}

	params := map[string]any(action.InputParameters)
	if err := def.ValidateParameters(params); err != nil {
		metrics.ActionsExecutedTotal.WithLabelValues(action.ActionType, "invalid").Inc()
		_ = a.setActionState(action, types.ActionFailed, err.Error())
		return false, err
	}

	actx := &actions.Context{
		Ctx:           context.Background(),
		Cloud:         a.cloud,
		Params:        params,
		MaxRetries:    a.cfg.MaxRetries,
		RetryInterval: a.cfg.RetryInterval,
	}

	// Forward an abort to the in-flight action if it supports one.
	var abortOnce sync.Once
	if token != nil && def.Abortable() {
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if token.Cancelled() {
						abortOnce.Do(func() { _ = def.RunAbort(actx) })
						return
					}
				}
			}
		}()
	}

	switch res := def.PreCondition(actx); res.Outcome {
	case actions.OutcomeSkip:
		metrics.ActionsExecutedTotal.WithLabelValues(action.ActionType, "skipped").Inc()
		if err := a.setActionState(action, types.ActionSucceeded, res.Reason); err != nil {
			return false, err
		}
		return false, nil
	case actions.OutcomeFail:
		metrics.ActionsExecutedTotal.WithLabelValues(action.ActionType, "failed").Inc()
		_ = a.setActionState(action, types.ActionFailed, res.Err.Error())
		return false, res.Err
	}

	execErr := def.Run(actx)
	if execErr != nil && cloud.IsNotFound(execErr) && idempotentType(action.ActionType) {
		// The resource is already gone; the desired outcome holds.
		execErr = nil
	}

	// Post runs regardless of the outcome; its errors are logged only.
	if err := def.PostCondition(actx); err != nil {
		log.WithActionUUID(action.UUID).Warn().Err(err).Msg("post condition failed")
	}

	if execErr != nil {
		metrics.ActionsExecutedTotal.WithLabelValues(action.ActionType, "failed").Inc()
		_ = a.setActionState(action, types.ActionFailed, execErr.Error())
		return true, execErr
	}
	metrics.ActionsExecutedTotal.WithLabelValues(action.ActionType, "succeeded").Inc()
	if err := a.setActionState(action, types.ActionSucceeded, ""); err != nil {
		return true, err
	}
	return true, nil
}

// idempotentType reports whether a vanished resource counts as success.
func idempotentType(actionType string) bool {
	switch actionType {
	case actions.TypeMigrate, actions.TypeStop, actions.TypeStart:
		return true
	}
	return false
}

// revert undoes the executed actions in reverse execution order.
// Reverted actions are recorded CANCELLED with a reverted reason.
func (a *Applier) revert(executed []*types.Action) {
	for i := len(executed) - 1; i >= 0; i-- {
		action := executed[i]
		def, err := a.registry.Get(action.ActionType)
		if err != nil {
			continue
		}
		actx := &actions.Context{
			Ctx:           context.Background(),
			Cloud:         a.cloud,
			Params:        map[string]any(action.InputParameters),
			MaxRetries:    a.cfg.MaxRetries,
			RetryInterval: a.cfg.RetryInterval,
		}
		if err := def.RunRevert(actx); err != nil {
			log.WithActionUUID(action.UUID).Error().Err(err).Msg("revert failed")
		}
		metrics.ActionsRevertedTotal.Inc()
		_ = a.setActionState(action, types.ActionCancelled, types.ReasonReverted)
	}
}

func (a *Applier) finishPlan(plan *types.ActionPlan, timer *metrics.Timer, err error) error {
	_ = a.finishPlanState(plan, timer, types.PlanFailed, err.Error())
	return err
}

func (a *Applier) finishPlanState(plan *types.ActionPlan, timer *metrics.Timer, state types.ActionPlanState, reason string) error {
	now := time.Now()
	plan.EndTime = &now
	timer.ObserveDuration(metrics.PlanExecutionDuration)
	if err := a.setPlanState(plan, state, reason); err != nil {
		return err
	}
	if state == types.PlanFailed {
		return fmt.Errorf("action plan %s failed: %s", plan.UUID, reason)
	}
	return nil
}

func (a *Applier) setPlanState(plan *types.ActionPlan, to types.ActionPlanState, reason string) error {
	if !plan.State.CanTransition(to) {
		return &storage.InvalidError{
			Reason: fmt.Sprintf("action plan %s cannot go %s -> %s", plan.UUID, plan.State, to),
		}
	}
	old := plan.State
	plan.State = to
	plan.StateReason = reason
	if _, err := a.store.UpdateActionPlan(plan); err != nil {
		plan.State = old
		return err
	}
	a.broker.Publish(&events.Notification{
		Kind:     events.KindActionPlan,
		UUID:     plan.UUID,
		OldState: string(old),
		NewState: string(to),
		Reason:   reason,
	})
	return nil
}

func (a *Applier) setActionState(action *types.Action, to types.ActionState, reason string) error {
	if !action.State.CanTransition(to) {
		return &storage.InvalidError{
			Reason: fmt.Sprintf("action %s cannot go %s -> %s", action.UUID, action.State, to),
		}
	}
	old := action.State
	action.State = to
	action.StateReason = reason
	if _, err := a.store.UpdateAction(action); err != nil {
		action.State = old
		return err
	}
	a.broker.Publish(&events.Notification{
		Kind:     events.KindAction,
		UUID:     action.UUID,
		OldState: string(old),
		NewState: string(to),
		Reason:   reason,
	})
	return nil
}
