// Package loadtest contains the building blocks of a load test run: stage
// profiles, virtual users, the VU scheduler and the HTTP request driver.
//
// A run is described by a Scenario. Its Profile says how many virtual users
// should be active at any moment; an executor asks the profile every tick and
// tells the VUScheduler to scale. Each VirtualUser repeats the scenario's
// Iteration, which issues requests through the shared Driver. The driver
// records every request into a metrics.Registry.
//
// Retiring a VU is cooperative: the VU finishes its current iteration,
// including any request in flight, and then exits. Iterations only observe
// context cancellation when the run hard-stops after the graceful stop
// period.
package loadtest
