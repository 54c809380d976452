// Package health implements liveness and readiness probes.
//
// Liveness only reports that the process runs. Readiness runs every
// registered check concurrently, each bounded by the checker's timeout, and
// fails while the service is draining during shutdown.
package health
