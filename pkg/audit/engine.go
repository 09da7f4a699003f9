package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/sirocco-cloud/sirocco/pkg/cancel"
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/datasource"
	"github.com/sirocco-cloud/sirocco/pkg/events"
	"github.com/sirocco-cloud/sirocco/pkg/log"
	"github.com/sirocco-cloud/sirocco/pkg/metrics"
	"github.com/sirocco-cloud/sirocco/pkg/planner"
	"github.com/sirocco-cloud/sirocco/pkg/storage"
	"github.com/sirocco-cloud/sirocco/pkg/strategy"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// ErrNotOwner is returned when an audit is owned by another host.
var ErrNotOwner = errors.New("audit is owned by another host")

// Config tunes one audit engine.
type Config struct {
	Host     string
	Interval time.Duration
}

// Engine runs audits owned by this host.
type Engine struct {
	store      storage.Store
	broker     *events.Broker
	cloud      cloud.Adapter
	ds         datasource.DataSource
	strategies *strategy.Registry
	planner    *planner.Planner
	cfg        Config

	mu     sync.Mutex
	tokens map[int64]*cancel.Token
	stopCh chan struct{}
}

// NewEngine wires an engine from its collaborators.
func NewEngine(store storage.Store, broker *events.Broker, adapter cloud.Adapter, ds datasource.DataSource, strategies *strategy.Registry, pl *planner.Planner, cfg Config) *Engine {
	return &Engine{
		store:      store,
		broker:     broker,
		cloud:      adapter,
		ds:         ds,
		strategies: strategies,
		planner:    pl,
		cfg:        cfg,
		tokens:     make(map[int64]*cancel.Token),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (e *Engine) Start() {
	go e.run()
}

// Stop ends the loop and cancels running audits.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tok := range e.tokens {
		tok.Cancel()
	}
}

func (e *Engine) run() {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("audit")
	for {
		select {
		case <-ticker.C:
			if err := e.Tick(time.Now()); err != nil {
				// Per-audit failures are handled inside; this only
				// trips on listing problems. The loop survives.
				logger.Error().Err(err).Msg("audit tick failed")
			}
		case <-e.stopCh:
			return
		}
	}
}

// Tick runs every due audit owned by this host.
func (e *Engine) Tick(now time.Time) error {
	audits, err := e.store.ListAudits(&storage.ListQuery{
		Filters: map[string]any{
			"hostname__eq": e.cfg.Host,
			"state__eq":    string(types.AuditPending),
		},
	})
	if err != nil {
		return err
	}

	for _, audit := range audits {
		if audit.AuditType == types.AuditContinuous &&
			audit.NextRunTime != nil && audit.NextRunTime.After(now) {
			continue
		}
		// RunAudit records its own failures on the audit row.
		_ = e.RunAudit(audit)
	}
	return nil
}

// CreateFromTemplate stamps out a new audit from a saved template. The
// audit is owned by this host and starts PENDING.
func (e *Engine) CreateFromTemplate(templateUUID string, auditType types.AuditType, interval int, autoTrigger bool, parameters map[string]any) (*types.Audit, error) {
	tpl, err := e.store.GetAuditTemplateByUUID(templateUUID)
	if err != nil {
		return nil, err
	}
	if auditType == types.AuditContinuous && interval <= 0 {
		return nil, &storage.InvalidError{Reason: "continuous audits need a positive interval"}
	}

	audit := &types.Audit{
		Name:        fmt.Sprintf("%s-%d", tpl.Name, time.Now().Unix()),
		AuditType:   auditType,
		State:       types.AuditPending,
		Parameters:  datatypes.JSONMap(parameters),
		Interval:    interval,
		GoalID:      tpl.GoalID,
		StrategyID:  tpl.StrategyID,
		Scope:       tpl.Scope,
		AutoTrigger: autoTrigger,
		Hostname:    e.cfg.Host,
	}
	if err := e.store.CreateAudit(audit); err != nil {
		return nil, err
	}
	e.notify(audit, "", "created")
	return audit, nil
}

// resolveStrategy loads the audit's strategy, falling back to the
// first registered strategy serving the audit's goal.
func (e *Engine) resolveStrategy(audit *types.Audit) (strategy.Strategy, error) {
	if audit.StrategyID != nil {
		row, err := e.store.GetStrategy(*audit.StrategyID)
		if err != nil {
			return nil, err
		}
		return e.strategies.Get(row.Name)
	}
	goal, err := e.store.GetGoal(audit.GoalID)
	if err != nil {
		return nil, err
	}
	for _, name := range e.strategies.Names() {
		s, err := e.strategies.Get(name)
		if err != nil {
			continue
		}
		if s.GoalName() == goal.Name {
			return s, nil
		}
	}
	return nil, &strategy.UnknownStrategyError{Name: "for goal " + goal.Name}
}

// RunAudit executes one audit run end to end. The returned error is
// also recorded on the audit row; callers may ignore it.
func (e *Engine) RunAudit(audit *types.Audit) error {
	if audit.Hostname != e.cfg.Host {
		return ErrNotOwner
	}

	logger := log.WithAuditUUID(audit.UUID)
	now := time.Now()
	audit.StartTime = &now
	if err := e.setState(audit, types.AuditOngoing, ""); err != nil {
		return err
	}

	strat, err := e.resolveStrategy(audit)
	if err != nil {
		return e.finishRun(audit, err)
	}

	token := cancel.NewToken()
	e.mu.Lock()
	e.tokens[audit.ID] = token
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.tokens, audit.ID)
		e.mu.Unlock()
	}()

	timer := metrics.NewTimer()
	solution, err := strat.Execute(&strategy.Request{
		Ctx:        context.Background(),
		Cloud:      e.cloud,
		DataSource: e.ds,
		Token:      token,
		Parameters: map[string]any(audit.Parameters),
	})
	timer.ObserveDuration(metrics.AuditDuration)
	if err != nil {
		return e.finishRun(audit, err)
	}

	plan, err := e.planner.Schedule(audit, solution)
	if err != nil {
		return e.finishRun(audit, err)
	}

	if audit.AutoTrigger && plan.State == types.PlanRecommended {
		plan.State = types.PlanPending
		if _, err := e.store.UpdateActionPlan(plan); err != nil {
			logger.Error().Err(err).Msg("auto trigger failed")
		} else {
			e.broker.Publish(&events.Notification{
				Kind:     events.KindActionPlan,
				UUID:     plan.UUID,
				OldState: string(types.PlanRecommended),
				NewState: string(types.PlanPending),
				Reason:   "auto trigger",
			})
		}
	}

	return e.finishRun(audit, nil)
}

// finishRun records the terminal state of one run and, for continuous
// audits, schedules the next one.
func (e *Engine) finishRun(audit *types.Audit, runErr error) error {
	now := time.Now()
	audit.EndTime = &now

	switch {
	case errors.Is(runErr, cancel.ErrCancelled):
		metrics.AuditRunsTotal.WithLabelValues("cancelled").Inc()
		_ = e.setState(audit, types.AuditCancelled, "cancelled by operator")
		return runErr
	case runErr != nil:
		metrics.AuditRunsTotal.WithLabelValues("failed").Inc()
		reason := runErr.Error()
		var cyclic *planner.CyclicPlanError
		if errors.As(runErr, &cyclic) {
			reason = planner.ReasonCyclicPlan
		}
		_ = e.setState(audit, types.AuditFailed, reason)
		return runErr
	}

	metrics.AuditRunsTotal.WithLabelValues("succeeded").Inc()
	if audit.AuditType == types.AuditContinuous {
		next := now.Add(time.Duration(audit.Interval) * time.Second)
		audit.NextRunTime = &next
		return e.setState(audit, types.AuditPending, "awaiting next run")
	}
	return e.setState(audit, types.AuditSucceeded, "")
}

// Cancel stops an audit. A pending audit is cancelled directly; a
// running one has its token flipped and the run loop records the
// terminal state.
func (e *Engine) Cancel(auditUUID string) error {
	audit, err := e.store.GetAuditByUUID(auditUUID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	token, running := e.tokens[audit.ID]
	e.mu.Unlock()
	if running {
		token.Cancel()
		return nil
	}
	return e.setState(audit, types.AuditCancelled, "cancelled by operator")
}

// Suspend parks a non-terminal audit. A running one is cancelled
// cooperatively first.
func (e *Engine) Suspend(auditUUID string) error {
	audit, err := e.store.GetAuditByUUID(auditUUID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	token, running := e.tokens[audit.ID]
	e.mu.Unlock()
	if running {
		token.Cancel()
	}
	return e.setState(audit, types.AuditSuspended, "suspended by operator")
}

// Resume returns a suspended audit to the scheduler.
func (e *Engine) Resume(auditUUID string) error {
	audit, err := e.store.GetAuditByUUID(auditUUID)
	if err != nil {
		return err
	}
	return e.setState(audit, types.AuditPending, "resumed by operator")
}

// setState validates the transition, persists it and notifies.
func (e *Engine) setState(audit *types.Audit, to types.AuditState, reason string) error {
	if !audit.State.CanTransition(to) {
		return &storage.InvalidError{
			Reason: fmt.Sprintf("audit %s cannot go %s -> %s", audit.UUID, audit.State, to),
		}
	}
	old := audit.State
	audit.State = to
	audit.StateReason = reason
	if _, err := e.store.UpdateAudit(audit); err != nil {
		audit.State = old
		return err
	}
	e.notify(audit, string(old), reason)
	return nil
}

func (e *Engine) notify(audit *types.Audit, oldState, reason string) {
	e.broker.Publish(&events.Notification{
		Kind:     events.KindAudit,
		UUID:     audit.UUID,
		OldState: oldState,
		NewState: string(audit.State),
		Reason:   reason,
		Payload:  map[string]string{"hostname": audit.Hostname},
	})
}
