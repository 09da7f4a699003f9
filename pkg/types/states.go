package types

// AuditType distinguishes one-off runs from interval-scheduled series.
type AuditType string

const (
	AuditOneshot    AuditType = "ONESHOT"
	AuditContinuous AuditType = "CONTINUOUS"
)

// AuditState is the audit lifecycle state.
type AuditState string

const (
	AuditPending   AuditState = "PENDING"
	AuditOngoing   AuditState = "ONGOING"
	AuditSucceeded AuditState = "SUCCEEDED"
	AuditFailed    AuditState = "FAILED"
	AuditCancelled AuditState = "CANCELLED"
	AuditSuspended AuditState = "SUSPENDED"
	AuditDeleted   AuditState = "DELETED"
)

// auditTransitions is the allowed transition table. Terminal states are
// sticky: they have no outgoing edges except DELETED.
var auditTransitions = map[AuditState][]AuditState{
	AuditPending:   {AuditOngoing, AuditCancelled, AuditSuspended, AuditDeleted},
	AuditOngoing:   {AuditSucceeded, AuditFailed, AuditCancelled, AuditSuspended, AuditPending, AuditDeleted},
	AuditSucceeded: {AuditDeleted},
	AuditFailed:    {AuditDeleted},
	AuditCancelled: {AuditDeleted},
	AuditSuspended: {AuditPending, AuditCancelled, AuditDeleted},
}

// CanTransition reports whether an audit may move from its current state to
// the target state.
func (s AuditState) CanTransition(to AuditState) bool {
	for _, t := range auditTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state is final for a single run. A
// CONTINUOUS audit cycles SUCCEEDED/ONGOING back to PENDING explicitly in
// the engine; that path does not go through CanTransition on SUCCEEDED.
func (s AuditState) Terminal() bool {
	switch s {
	case AuditSucceeded, AuditFailed, AuditCancelled, AuditDeleted:
		return true
	}
	return false
}

// ActionPlanState is the action plan lifecycle state.
type ActionPlanState string

const (
	PlanRecommended ActionPlanState = "RECOMMENDED"
	PlanPending     ActionPlanState = "PENDING"
	PlanOngoing     ActionPlanState = "ONGOING"
	PlanSucceeded   ActionPlanState = "SUCCEEDED"
	PlanFailed      ActionPlanState = "FAILED"
	PlanCancelled   ActionPlanState = "CANCELLED"
	PlanSuperseded  ActionPlanState = "SUPERSEDED"
	PlanDeleted     ActionPlanState = "DELETED"
)

var planTransitions = map[ActionPlanState][]ActionPlanState{
	PlanRecommended: {PlanPending, PlanCancelled, PlanSuperseded, PlanDeleted},
	PlanPending:     {PlanOngoing, PlanCancelled, PlanDeleted},
	PlanOngoing:     {PlanSucceeded, PlanFailed, PlanCancelled, PlanDeleted},
	PlanSucceeded:   {PlanDeleted},
	PlanFailed:      {PlanDeleted},
	PlanCancelled:   {PlanDeleted},
	PlanSuperseded:  {PlanDeleted},
}

// CanTransition reports whether a plan may move to the target state.
func (s ActionPlanState) CanTransition(to ActionPlanState) bool {
	for _, t := range planTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the plan state is final.
func (s ActionPlanState) Terminal() bool {
	switch s {
	case PlanSucceeded, PlanFailed, PlanCancelled, PlanSuperseded, PlanDeleted:
		return true
	}
	return false
}

// ActionState is the per-action lifecycle state.
type ActionState string

const (
	ActionPending   ActionState = "PENDING"
	ActionOngoing   ActionState = "ONGOING"
	ActionSucceeded ActionState = "SUCCEEDED"
	ActionFailed    ActionState = "FAILED"
	ActionCancelled ActionState = "CANCELLED"
	ActionDeleted   ActionState = "DELETED"
)

var actionTransitions = map[ActionState][]ActionState{
	ActionPending: {ActionOngoing, ActionCancelled, ActionDeleted},
	ActionOngoing: {ActionSucceeded, ActionFailed, ActionCancelled, ActionDeleted},
	// SUCCEEDED -> CANCELLED is the revert path: a reverted action is
	// reported as CANCELLED with a "reverted" reason.
	ActionSucceeded: {ActionCancelled, ActionDeleted},
	ActionFailed:    {ActionDeleted},
	ActionCancelled: {ActionDeleted},
}

// CanTransition reports whether an action may move to the target state.
func (s ActionState) CanTransition(to ActionState) bool {
	for _, t := range actionTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the action state is final.
func (s ActionState) Terminal() bool {
	switch s {
	case ActionSucceeded, ActionFailed, ActionCancelled, ActionDeleted:
		return true
	}
	return false
}

// ReasonReverted marks an action whose revert ran after a plan failure.
const ReasonReverted = "reverted"

// ServiceStatus is the derived liveness of a controller process.
type ServiceStatus string

const (
	ServiceActive ServiceStatus = "ACTIVE"
	ServiceFailed ServiceStatus = "FAILED"
)
