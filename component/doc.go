// Package component defines the lifecycle contract shared by crossmatch
// infrastructure (database, redis, event publisher, report storage) and the
// registry that starts them in order and stops them in reverse.
package component
