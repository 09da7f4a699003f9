/*
Package service keeps track of controller liveness.

Heartbeat refreshes this process's Service row on an interval.
Monitor derives every service's status from its last heartbeat, emits
a notification whenever a status flips, elects a leader among the
active decision-engine hosts (first hostname in lexicographic order)
and, on the leader only, moves continuous audits off hosts that just
failed.

FAILED is never stored; it is recomputed from max(last_seen_up,
updated_at) against the staleness threshold on every tick.
*/
package service
