// Package metrics implements the lock-free counter and histogram core
// used by the service façade.
//
// # Architecture boundaries
//
// This package owns metric identity (MetricID) and storage only. It has
// no notion of export formats; exporters read Snapshot values and render
// them. Counters are stored in cache-line-padded slots and incremented
// via sync/atomic, so the hot path never takes a lock and never
// allocates. Histograms use 8 fixed buckets (≤5ms up to +Inf).
//
// # What this package must NOT do
//
//   - No I/O of any kind.
//   - No dependency on other packages in this module.
//   - No labels or dynamic metric registration: the metric set is the
//     closed enum defined here.
package metrics
