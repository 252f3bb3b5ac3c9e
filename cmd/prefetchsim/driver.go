package main

import (
	"sort"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

// cacheSets and cacheWays describe the toy cache geometry the driver
// exposes to a policy via prefetch.Cache — not a real cache simulator
// (out of scope per SPEC_FULL.md §1), just enough of a stand-in to drive
// a policy's Sets()/Ways()-dependent bookkeeping (EPI's timing shadow).
const (
	cacheSets = 64
	cacheWays = 8

	// prefetchQueueCap bounds in-flight prefetches the driver will accept
	// before PrefetchLine starts returning false (§4.13).
	prefetchQueueCap = 32

	// windowSize is how many accesses the driver batches before recording
	// one hit-rate sample for the end-of-run quantile report.
	windowSize = 50
)

type pendingFill struct {
	block      uint64
	readyAt    uint64
	isPrefetch bool
}

// Driver is a minimal demo stand-in for the cache simulator SPEC_FULL.md
// explicitly places out of scope: it tracks block residency with an LRU
// cache, a bounded in-flight prefetch queue, and a fixed per-miss latency,
// just enough to exercise a prefetch.Prefetcher end to end and report hit
// rates. It does not attribute hits to prefetches: CacheOperate always
// receives wasPrefetchHit=false.
type Driver struct {
	log *logrus.Entry

	cycle   uint64
	latency uint64

	resident  *simplelru.LRU[uint64, bool]
	pending   map[uint64]bool
	inflight  []pendingFill
	prefetchQ int

	windowHits, windowAccesses int
	hitRateSamples             []float64

	stats Stats
}

// Stats is the end-of-run summary the driver prints.
type Stats struct {
	Accesses           uint64
	Hits               uint64
	Misses             uint64
	PrefetchesIssued   uint64
	PrefetchesRejected uint64
	PrefetchHits       uint64
}

// NewDriver constructs a driver with the given fixed miss latency.
func NewDriver(latency uint64, log *logrus.Logger) *Driver {
	if log == nil {
		log = logrus.New()
	}
	resident, _ := simplelru.NewLRU[uint64, bool](cacheSets*cacheWays, nil)
	return &Driver{
		log:      log.WithField("component", "driver"),
		latency:  latency,
		resident: resident,
		pending:  map[uint64]bool{},
	}
}

// PrefetchLine implements prefetch.Cache: accepts addr into the in-flight
// queue if there is room, otherwise reports the queue full (§4.13).
func (d *Driver) PrefetchLine(addr uint64, fillThisLevel bool, metadata uint32) bool {
	block := prefetch.Block(addr)
	if d.resident.Contains(block) || d.pending[block] {
		return true
	}
	if d.prefetchQ >= prefetchQueueCap {
		d.stats.PrefetchesRejected++
		return false
	}
	d.prefetchQ++
	d.pending[block] = true
	d.inflight = append(d.inflight, pendingFill{block: block, readyAt: d.cycle + d.latency, isPrefetch: true})
	d.stats.PrefetchesIssued++
	return true
}

// Cycle implements prefetch.Cache.
func (d *Driver) Cycle() uint64 { return d.cycle }

// Sets implements prefetch.Cache.
func (d *Driver) Sets() int { return cacheSets }

// Ways implements prefetch.Cache.
func (d *Driver) Ways() int { return cacheWays }

// drainReady installs every in-flight fill whose latency has elapsed,
// notifying p via CacheFill — mirroring §5's ordering, fills before the
// cycle's CycleOperate tick.
func (d *Driver) drainReady(p prefetch.Prefetcher) {
	var remaining []pendingFill
	for _, f := range d.inflight {
		if f.readyAt > d.cycle {
			remaining = append(remaining, f)
			continue
		}
		var evicted uint64
		if d.resident.Len() >= cacheSets*cacheWays {
			if k, _, ok := d.resident.GetOldest(); ok {
				evicted = prefetch.BlockAddr(k)
			}
		}
		d.resident.Add(f.block, true)
		if f.isPrefetch {
			d.prefetchQ--
			delete(d.pending, f.block)
		}
		p.CacheFill(prefetch.BlockAddr(f.block), 0, 0, f.isPrefetch, evicted, 0, d)
	}
	d.inflight = remaining
}

// Access feeds one demand access to p, advancing the driver's cycle.
func (d *Driver) Access(p prefetch.Prefetcher, addr uint64) {
	d.drainReady(p)

	block := prefetch.Block(addr)
	hit := d.resident.Contains(block)
	wasPrefetchHit := false

	d.stats.Accesses++
	d.windowAccesses++
	if hit {
		d.stats.Hits++
		d.windowHits++
		if d.pending[block] {
			// Shouldn't happen — residency and pending are disjoint — but
			// guard anyway rather than double-count.
			delete(d.pending, block)
		}
	} else {
		d.stats.Misses++
		if !d.pending[block] {
			d.pending[block] = true
			d.inflight = append(d.inflight, pendingFill{block: block, readyAt: d.cycle + d.latency})
		}
	}

	p.CacheOperate(addr, addr, hit, wasPrefetchHit, prefetch.AccessLoad, 0, d)
	p.CycleOperate(d)

	if d.windowAccesses >= windowSize {
		d.hitRateSamples = append(d.hitRateSamples, float64(d.windowHits)/float64(d.windowAccesses))
		d.windowHits, d.windowAccesses = 0, 0
	}

	d.cycle++
}

// Drain advances the driver past every still-pending fill, giving a
// trailing policy's internal queue (MANA) a chance to empty out before
// final stats are reported.
func (d *Driver) Drain(p prefetch.Prefetcher) {
	for len(d.inflight) > 0 {
		d.drainReady(p)
		p.CycleOperate(d)
		d.cycle++
	}
}

// HitRateQuantiles reports the p50/p90/p99 of the windowed hit-rate
// samples collected during the run.
func (d *Driver) HitRateQuantiles() (p50, p90, p99 float64) {
	if len(d.hitRateSamples) == 0 {
		return 0, 0, 0
	}
	sorted := append([]float64(nil), d.hitRateSamples...)
	sort.Float64s(sorted)
	return stat.Quantile(0.50, stat.Empirical, sorted, nil),
		stat.Quantile(0.90, stat.Empirical, sorted, nil),
		stat.Quantile(0.99, stat.Empirical, sorted, nil)
}
