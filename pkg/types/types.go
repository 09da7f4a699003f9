package types

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base carries the identity and bookkeeping columns shared by every entity.
// ID is internal; UUID is the stable external identity and is immutable after
// creation. DeletedAt is the soft-delete tombstone: name uniqueness is only
// enforced among rows where it is null.
type Base struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	UUID      string         `gorm:"type:varchar(36);uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Goal is a named optimization objective (e.g. "server_consolidation").
// EfficacySpecification describes the indicators strategies for this goal
// are expected to report: a list of {name, description, unit, schema}.
type Goal struct {
	Base
	Name                  string `gorm:"type:varchar(63);index"`
	DisplayName           string `gorm:"type:varchar(255)"`
	EfficacySpecification datatypes.JSON
}

// Strategy is a named algorithm belonging to exactly one Goal. The goal
// association never changes after creation. ParametersSpec maps option name
// to its constraint (type, default, description).
type Strategy struct {
	Base
	Name           string `gorm:"type:varchar(63);index"`
	DisplayName    string `gorm:"type:varchar(255)"`
	GoalID         int64  `gorm:"index"`
	Goal           *Goal
	ParametersSpec datatypes.JSONMap
}

// AuditTemplate is a saved (goal, strategy?, scope) tuple used to stamp out
// audits. Scope is a list of filters selecting the fleet subset an audit
// will consider.
type AuditTemplate struct {
	Base
	Name        string `gorm:"type:varchar(63);index"`
	Description string `gorm:"type:varchar(255)"`
	GoalID      int64  `gorm:"index"`
	Goal        *Goal
	StrategyID  *int64 `gorm:"index"`
	Strategy    *Strategy
	Scope       datatypes.JSON
}

// Audit is one run (ONESHOT) or a scheduled series of runs (CONTINUOUS) of a
// strategy. Hostname is the controller currently owning the audit; the
// engine refuses to run audits owned by another host.
type Audit struct {
	Base
	Name        string     `gorm:"type:varchar(255);index"`
	AuditType   AuditType  `gorm:"type:varchar(20)"`
	State       AuditState `gorm:"type:varchar(20);index"`
	StateReason string     `gorm:"type:varchar(255)"`
	Parameters  datatypes.JSONMap
	Interval    int   `gorm:"default:0"` // seconds, continuous audits only
	GoalID      int64 `gorm:"index"`
	Goal        *Goal
	StrategyID  *int64 `gorm:"index"`
	Strategy    *Strategy
	Scope       datatypes.JSON
	AutoTrigger bool
	NextRunTime *time.Time
	Hostname    string `gorm:"type:varchar(255);index"`
	StartTime   *time.Time
	EndTime     *time.Time
	Force       bool
}

// ActionPlan is the persisted, dependency-ordered output of one audit run.
type ActionPlan struct {
	Base
	AuditID        int64 `gorm:"index"`
	Audit          *Audit
	StrategyID     int64 `gorm:"index"`
	Strategy       *Strategy
	State          ActionPlanState `gorm:"type:varchar(20);index"`
	StateReason    string          `gorm:"type:varchar(255)"`
	GlobalEfficacy datatypes.JSON
	Hostname       string `gorm:"type:varchar(255)"`
	StartTime      *time.Time
	EndTime        *time.Time
}

// Action is one executable step of a plan. Parents lists the UUIDs of
// actions in the same plan that must end SUCCEEDED before this one runs;
// together they form a DAG.
type Action struct {
	Base
	ActionPlanID    int64 `gorm:"index"`
	ActionPlan      *ActionPlan
	ActionType      string `gorm:"type:varchar(63);index"`
	InputParameters datatypes.JSONMap
	State           ActionState `gorm:"type:varchar(20);index"`
	StateReason     string      `gorm:"type:varchar(255)"`
	Parents         datatypes.JSONSlice[string]
}

// EfficacyIndicator is a measured value recorded against an action plan.
type EfficacyIndicator struct {
	Base
	ActionPlanID int64 `gorm:"index"`
	ActionPlan   *ActionPlan
	Name         string `gorm:"type:varchar(63)"`
	Description  string `gorm:"type:varchar(255)"`
	Unit         string `gorm:"type:varchar(63)"`
	Value        float64
	Data         datatypes.JSON
}

// Service describes one controller process. Liveness is derived, never
// stored: a service is ACTIVE iff max(LastSeenUp, UpdatedAt) is within the
// staleness threshold.
type Service struct {
	Base
	Name       string `gorm:"type:varchar(255);index"`
	Host       string `gorm:"type:varchar(255);index"`
	LastSeenUp time.Time
}

// Status derives the service liveness at the given instant.
func (s *Service) Status(now time.Time, staleness time.Duration) ServiceStatus {
	last := s.LastSeenUp
	if s.UpdatedAt.After(last) {
		last = s.UpdatedAt
	}
	if now.Sub(last) <= staleness {
		return ServiceActive
	}
	return ServiceFailed
}

// ScoringEngine is a named scoring function a strategy may consume.
// Metadata only; the engine itself lives outside the controller.
type ScoringEngine struct {
	Base
	Name        string `gorm:"type:varchar(63);index"`
	Description string `gorm:"type:varchar(255)"`
	Metainfo    string
}

// ActionDescription is a registry row describing one action type.
type ActionDescription struct {
	Base
	ActionType  string `gorm:"type:varchar(63);index"`
	Description string `gorm:"type:varchar(255)"`
}

// DecisionEngineName is the Service.Name registered by controller processes
// running the audit engine; the monitor elects its leader among them.
const DecisionEngineName = "decision-engine"

// ApplierName is the Service.Name registered by processes running the
// action execution engine.
const ApplierName = "applier"
