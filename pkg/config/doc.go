/*
Package config loads the controller configuration.

Resolution order is defaults, optional YAML file, SIROCCO_* environment
variables. The resulting Config is built once in cmd and passed to every
component by construction; nothing reads the environment after startup.
*/
package config
