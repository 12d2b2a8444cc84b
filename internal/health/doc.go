// Package health holds the liveness and readiness probes served on both
// listeners.
//
// Readiness for playdrop is the AND of a shutdown gate, which fails as soon
// as drain begins, and a check that the upload root still accepts writes.
package health
