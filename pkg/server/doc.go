// Package server provides the admin/test HTTP backend over the rules
// engine: an evaluate endpoint for proxy plugins and test harnesses, rule
// set introspection, health, and Prometheus metrics.
package server
