// Package dag describes crossmatch pipelines as directed acyclic graphs of
// stages. Each stage is one marketplace operation; an edge From -> To means
// To consumes what From persists and must not finish before From does.
//
// Pipelines are declared in YAML or registered in code, composed through
// includes, and resolved into an immutable Graph. BuildLevels groups the
// stages by dependency depth and rejects cycles and dangling edges.
package dag
