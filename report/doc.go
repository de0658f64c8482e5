// Package report writes the outcome of each run to object storage as a
// compressed JSON document, one object per run under
// <prefix>/<routine>/<date>/<run id>.json.gz.
package report
