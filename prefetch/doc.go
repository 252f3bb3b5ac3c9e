// Package prefetch provides the primitives shared by the three prefetcher
// policies (epi, mana, scooby): address arithmetic, a generic
// set-associative table with LRU or FIFO ways, a circular ring used for
// history windows and successor chasing, a bounded internal queue, and the
// driver-facing interfaces a cache simulator uses to invoke a policy.
//
// # Reading Guide
//
//   - addr.go: block/page arithmetic and bit-packed helpers (wrapped
//     subtraction, saturating counters).
//   - table.go: the set-associative table primitive (§4.1) all three
//     policies' tables are built on.
//   - ring.go: the circular-history ring primitive (§4.2).
//   - queue.go: the bounded FIFO used for MANA's internal prefetch queue.
//   - driver.go: the Prefetcher interface a cache simulator invokes, and
//     the Cache interface a policy calls back into.
//
// Sub-packages epi, mana, and scooby each implement Prefetcher.
package prefetch
