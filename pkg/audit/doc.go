/*
Package audit schedules and runs audits on the controller that owns
them.

The engine's ticker picks up PENDING audits whose hostname matches
this process, runs the audit's strategy over the fleet and hands the
resulting solution to the planner. A ONESHOT audit ends SUCCEEDED or
FAILED; a CONTINUOUS audit cycles back to PENDING with its next run
time pushed one interval out. Audits owned by another host are never
touched, which keeps two controllers from racing on the same row
after a failover reassignment.

Cancellation is cooperative: Cancel and Suspend flip the running
audit's token and the strategy stops at its next check.
*/
package audit
