/*
Package actions holds the library of executable action types.

An Action is a capability object: a JSON schema for its input
parameters plus a fixed set of hooks (pre-condition, execute,
post-condition, revert, abort). The execution engine never knows
concrete action types; it resolves them through a Registry keyed by
action_type and drives the hooks in order.

Pre-conditions return a three-way outcome. Proceed runs the action,
Skip records it as succeeded without touching the cloud (the action is
redundant, e.g. stopping an instance that is already stopped), and
Fail marks it failed before execution.

Shipped types: migrate, resize, start, stop,
change_nova_service_state, volume_migrate, nop and sleep.
*/
package actions
