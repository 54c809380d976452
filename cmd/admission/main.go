// Admission is a per-identity admission control service.
//
// It answers "may this identity act now, and if not, how long must it
// wait" for named policies backed by a sliding window or a cooldown limiter.
//
// Usage:
//
//	# Start the HTTP service
//	admission run --config admission.yaml
//
//	# Check a configuration file
//	admission validate --config admission.yaml
//
//	# Replay the message flow demo against a limiter
//	admission simulate --algorithm cooldown --interval 10s
//
//	# Show version information
//	admission version
package main

func main() {
	Execute()
}
