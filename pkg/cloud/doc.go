/*
Package cloud defines the capability surface the action library and the
strategies consume when talking to the managed cloud.

Adapter is the contract: instance lifecycle calls, compute service
enable/disable, hypervisor lookups and volume operations. Two
implementations ship with the controller. OpenStack talks to Nova and
Cinder through gophercloud. Fake is an in-memory simulator used by the
test suites; it records every call and can be scripted to fail.

Errors follow a fixed taxonomy. Missing resources surface as typed
not-found errors so idempotent actions can treat them as success.
Transient failures (connection errors, 5xx) are wrapped in
TransientError and are the only class WithRetry will retry.
*/
package cloud
