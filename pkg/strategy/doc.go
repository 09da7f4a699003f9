/*
Package strategy hosts the optimization algorithms the audit engine
runs.

A Strategy reads the fleet through the cloud adapter and the metrics
datasource and proposes a Solution: a list of actions plus the
efficacy it expects. Strategies never touch the cloud mutably and
never persist anything; the planner owns persistence.

Long passes must call Request.Token.Check between model iterations so
a cancelled audit stops at the next boundary.
*/
package strategy
