package storage

import (
	"time"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// Store is the persistence contract every component receives by
// construction. Identity lookups exist by internal id and by UUID; list
// operations take a ListQuery (operator-suffix filters, marker pagination,
// sorting). Soft delete tombstones a row; Destroy removes it permanently
// and is refused while referencing rows exist.
type Store interface {
	// Goals
	CreateGoal(goal *types.Goal) error
	GetGoal(id int64) (*types.Goal, error)
	GetGoalByUUID(uuid string) (*types.Goal, error)
	GetGoalByName(name string) (*types.Goal, error)
	ListGoals(q *ListQuery) ([]*types.Goal, error)
	UpdateGoal(goal *types.Goal) (*types.Goal, error)
	SoftDeleteGoal(id int64) error
	DestroyGoal(id int64) error

	// Strategies
	CreateStrategy(strategy *types.Strategy) error
	GetStrategy(id int64) (*types.Strategy, error)
	GetStrategyByUUID(uuid string) (*types.Strategy, error)
	GetStrategyByName(name string) (*types.Strategy, error)
	ListStrategies(q *ListQuery) ([]*types.Strategy, error)
	UpdateStrategy(strategy *types.Strategy) (*types.Strategy, error)
	SoftDeleteStrategy(id int64) error
	DestroyStrategy(id int64) error

	// Audit templates
	CreateAuditTemplate(template *types.AuditTemplate) error
	GetAuditTemplate(id int64) (*types.AuditTemplate, error)
	GetAuditTemplateByUUID(uuid string) (*types.AuditTemplate, error)
	GetAuditTemplateByName(name string) (*types.AuditTemplate, error)
	ListAuditTemplates(q *ListQuery) ([]*types.AuditTemplate, error)
	UpdateAuditTemplate(template *types.AuditTemplate) (*types.AuditTemplate, error)
	SoftDeleteAuditTemplate(id int64) error
	DestroyAuditTemplate(id int64) error

	// Audits
	CreateAudit(audit *types.Audit) error
	GetAudit(id int64) (*types.Audit, error)
	GetAuditByUUID(uuid string) (*types.Audit, error)
	GetAuditEager(id int64) (*types.Audit, error)
	ListAudits(q *ListQuery) ([]*types.Audit, error)
	UpdateAudit(audit *types.Audit) (*types.Audit, error)
	SoftDeleteAudit(id int64) error
	DestroyAudit(id int64) error

	// Action plans
	CreateActionPlan(plan *types.ActionPlan) error
	GetActionPlan(id int64) (*types.ActionPlan, error)
	GetActionPlanByUUID(uuid string) (*types.ActionPlan, error)
	ListActionPlans(q *ListQuery) ([]*types.ActionPlan, error)
	ListActionPlansByAudit(auditID int64) ([]*types.ActionPlan, error)
	UpdateActionPlan(plan *types.ActionPlan) (*types.ActionPlan, error)
	SoftDeleteActionPlan(id int64) error
	DestroyActionPlan(id int64) error

	// Actions
	CreateAction(action *types.Action) error
	GetAction(id int64) (*types.Action, error)
	GetActionByUUID(uuid string) (*types.Action, error)
	ListActions(q *ListQuery) ([]*types.Action, error)
	ListActionsByPlan(planID int64) ([]*types.Action, error)
	UpdateAction(action *types.Action) (*types.Action, error)
	SoftDeleteAction(id int64) error
	DestroyAction(id int64) error

	// Efficacy indicators
	CreateEfficacyIndicator(indicator *types.EfficacyIndicator) error
	GetEfficacyIndicator(id int64) (*types.EfficacyIndicator, error)
	GetEfficacyIndicatorByUUID(uuid string) (*types.EfficacyIndicator, error)
	ListEfficacyIndicators(q *ListQuery) ([]*types.EfficacyIndicator, error)
	UpdateEfficacyIndicator(indicator *types.EfficacyIndicator) (*types.EfficacyIndicator, error)
	SoftDeleteEfficacyIndicator(id int64) error
	DestroyEfficacyIndicator(id int64) error

	// Services
	RegisterService(name, host string) (*types.Service, error)
	GetService(id int64) (*types.Service, error)
	ListServices(q *ListQuery) ([]*types.Service, error)
	UpdateService(service *types.Service) (*types.Service, error)
	SoftDeleteService(id int64) error

	// Scoring engines
	CreateScoringEngine(engine *types.ScoringEngine) error
	GetScoringEngineByUUID(uuid string) (*types.ScoringEngine, error)
	GetScoringEngineByName(name string) (*types.ScoringEngine, error)
	ListScoringEngines(q *ListQuery) ([]*types.ScoringEngine, error)
	UpdateScoringEngine(engine *types.ScoringEngine) (*types.ScoringEngine, error)
	SoftDeleteScoringEngine(id int64) error
	DestroyScoringEngine(id int64) error

	// Action descriptions
	UpsertActionDescription(actionType, description string) (*types.ActionDescription, error)
	ListActionDescriptions(q *ListQuery) ([]*types.ActionDescription, error)

	// Maintenance
	Purge(olderThan time.Duration) error
	Close() error
}
