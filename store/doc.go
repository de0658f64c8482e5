// Package store holds the relational schema and the reads and writes the
// pipeline stages make against it.
//
// Repository writes vendor results. Queries builds the backing sources
// stages refill from: each named query returns the items a stage still has
// to process, so a stage drains once its query stops returning new items.
package store
