// Package errors provides the structured error type shared by crossmatch
// packages: machine-readable codes, retryable detection, and the sentinel a
// work function returns to end its stage early.
package errors
