/*
Package planner turns a strategy's Solution into a persisted Action
Plan.

Each proposed action is checked against the action registry, given a
UUID, and linked to the actions it must wait for. The dependency rules
are per-type policies: a migration waits for the service disable of
its source host, a resize waits for migrations of the same instance,
an enable waits for every migration leaving its host, and so on. The
resulting parent graph is verified acyclic by topological sort before
anything is written.

The plan is stored in state RECOMMENDED together with its actions and
efficacy indicators; earlier RECOMMENDED plans of the same audit are
marked SUPERSEDED. An empty solution is valid and persists a
SUCCEEDED plan with no actions.
*/
package planner
