/*
Package types defines the persistent entities and state machines shared by
every Sirocco component.

The entity graph mirrors the audit pipeline: a Goal groups Strategies; an
AuditTemplate saves a (goal, strategy, scope) tuple; an Audit is one run or
a scheduled series of runs; each run yields an ActionPlan owning Actions and
EfficacyIndicators. Service rows describe controller processes and carry the
heartbeat the monitor derives liveness from.

State machines are expressed as transition tables with CanTransition
helpers; terminal states are sticky and components must consult the table
before writing a state change.
*/
package types
