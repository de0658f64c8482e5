// Package queue holds the per-stage work backlog and the sources that feed it.
//
// A Queue belongs to exactly one stage goroutine and is not safe for
// concurrent use. It is refilled from a Source when it runs low: a
// FixedSource hands over a static list once, a QuerySource re-runs a query
// every time and is considered exhausted when a refill brings nothing new.
package queue
