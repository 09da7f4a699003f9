/*
Package log wraps zerolog behind a small global-logger facade.

Init configures level and output format once at process start; components
derive child loggers with WithComponent and the per-entity field helpers so
every line carries the identifiers needed to follow an audit or plan through
the pipeline.
*/
package log
