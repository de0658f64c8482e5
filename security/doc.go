// Package security builds client TLS settings for the broker and lock
// connections.
package security
