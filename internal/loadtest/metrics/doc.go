// Package metrics implements the sample sink used by a load test run.
//
// Every named metric is a series with one of four types:
//
//   - Counter: cumulative sum (http_reqs, data_received). Rate is the sum per second.
//   - Gauge: last observed value with min and max (vus, vus_max).
//   - Rate: fraction of non-zero samples (http_req_failed, checks).
//   - Trend: distribution with percentiles (http_req_duration).
//
// # Thread Safety
//
// Registry is safe for concurrent use. Lookups take a read lock on the
// registry; each series serialises its own writers with a mutex, so VUs
// writing to different metrics never contend.
//
// # Percentile Accuracy
//
// Trend percentiles come from an HDR histogram with 3 significant digits.
// Any reported percentile is within 0.1% of the recorded value at that rank.
// Values are stored at 1/1000 of the metric's unit (microseconds for
// millisecond-valued Time metrics) over the range [0, 3.6e9], so Time trends
// cover up to one hour. Samples outside the range are clamped to the nearest
// bound and counted in Aggregate.Clamped. Count, sum, min, max and avg are
// tracked exactly and are not affected by clamping.
package metrics
