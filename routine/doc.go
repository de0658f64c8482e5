// Package routine defines the crossmatch routines and runs them.
//
// A routine is a named dag.Pipeline. The four built-in routines cover the
// daily Walmart to Amazon sweep (ogaster), the display sheet recheck
// (display1), our own listings (inventory) and ad hoc Walmart ids (manual).
// Further routines can be dropped in as YAML files.
//
// Runner turns a routine into a running pipeline: it takes the run lock,
// binds every stage to its operation and backing source, publishes the
// lifecycle events and stores the run report.
package routine
