/*
Package applier executes action plans.

The loop picks up plans in state PENDING and runs each one on a
bounded worker pool. Within a plan, actions run serially in the
topological order of their parent DAG, ties broken by the planner's
canonical weights; across plans nothing is ordered. An action whose
parent did not succeed is cancelled without touching the cloud.

When an action fails, every action that already succeeded is reverted
in reverse execution order and the plan ends FAILED. Abort flips the
plan's cancellation token; the engine stops at the next action
boundary, forwards the abort to the in-flight action if it supports
one, and runs the same revert phase.
*/
package applier
