// Package generator drives the synthetic build traffic.
//
// One loop goroutine picks a random project each iteration and either starts
// a build (scheduling a deferred finish on a tracked timer) or force-finishes
// a running one. Timers are owned by the service: Stop() cancels every pending
// one, so no finish fires after shutdown, then sweeps all still-active builds
// to completion.
package generator
