// Package api defines the public model and capability interfaces of the
// conveyor orchestration engine: workflow definitions (triggers, jobs,
// matrices, steps), runs and job instances with their statuses, the
// Environment capability through which work actually executes, and the
// Observer through which status transitions are reported.
//
// The engine implementation lives in internal packages; external callers
// normally use the root conveyor package, which re-exports the types
// defined here.
package api
