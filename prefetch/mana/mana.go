package mana

import (
	"github.com/sirupsen/logrus"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

const (
	// StreamCount, TrackerSize, and Lookahead configure the SAB tracker
	// (§4.7).
	StreamCount = 1
	TrackerSize = 5
	Lookahead   = 3

	// SRQSize is the number of in-progress spatial regions tracked
	// before the oldest is recorded into the tables.
	SRQSize = 8

	// PrefetchQueueCap bounds the internal queue CycleOperate drains one
	// entry at a time into the real cache (§4.9).
	PrefetchQueueCap = 64

	// SupportMultipleTables enables the single→multiple promotion path
	// (§4.8). MANA without it degrades to a single one-successor-per-row
	// table.
	SupportMultipleTables = true
)

// Stats is a snapshot of the per-CPU counters the controller accumulates,
// named after the original's evaluation-only statHeadFound/statRecord/etc
// counters (§4.9).
type Stats struct {
	HeadFound         uint64
	HeadMissing       uint64
	StreamBufferHit   uint64
	Records           uint64
	EnqueuePrefetch   uint64
	PrefetchQueueFull uint64
}

// Controller implements prefetch.Prefetcher for the temporal instruction
// prefetcher (§4.7–4.9): spatial regions evicted from the SRQ are
// recorded into the MANA tables, and every newly retired block is looked
// up first against the SAB tracker and, on a miss, against the tables —
// a hit there seeds a fresh stream and triggers pointer-chased
// prefetching of the following regions.
type Controller struct {
	cpu   int
	log   *logrus.Entry
	stats Stats

	hob     *HOBPT
	tables  *Tables
	tracker *Tracker
	srq     *SRQ
	queue   *prefetch.Queue

	lastBlock uint64
	haveLast  bool
}

// New constructs a MANA controller.
func New(log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.New()
	}
	hob := NewHOBPT()
	return &Controller{
		hob:     hob,
		tables:  NewTables(hob, SupportMultipleTables),
		tracker: NewTracker(StreamCount, TrackerSize, Lookahead),
		srq:     NewSRQ(SRQSize),
		queue:   prefetch.NewQueue(PrefetchQueueCap),
		log:     log.WithField("component", "mana"),
	}
}

// Initialize implements prefetch.Prefetcher.
func (c *Controller) Initialize(cpu int) {
	c.cpu = cpu
	c.log = c.log.WithField("cpu", cpu)
	c.log.Debug("initialized")
}

// BranchOperate implements prefetch.Prefetcher; MANA does not use branch
// information.
func (c *Controller) BranchOperate(ip uint64, branchType int, target uint64) {}

// CacheOperate implements prefetch.Prefetcher (§4.9): repeated accesses
// to the same block are folded into a single retire, matching the
// original's pushRetireIn dedup against the last observed block.
func (c *Controller) CacheOperate(addr, ip uint64, cacheHit, wasPrefetchHit bool, accessType prefetch.AccessType, metadata uint32, cache prefetch.Cache) uint32 {
	block := prefetch.Block(addr)
	if c.haveLast && c.lastBlock == block {
		return metadata
	}
	c.lastBlock = block
	c.haveLast = true
	c.retire(block)
	return metadata
}

// retire is MANA's core (§4.9): look up the SABs, fall back to the
// tables on a miss, chase successors to maintain the lookahead, then
// update the SRQ with the newly observed block.
func (c *Controller) retire(block uint64) {
	rng, hit := c.tracker.Lookup(block)
	if !hit {
		if ptr, ok := c.tables.GetPtr(block); ok {
			c.stats.HeadFound++
			rng = c.tracker.Allocate(ptr)
		} else {
			c.stats.HeadMissing++
		}
	} else {
		c.stats.StreamBufferHit++
	}

	for i := 0; i < rng.Length; i++ {
		region, ok := Read(rng.Tail)
		if !ok {
			break
		}

		issuedAll := true
		for _, candidate := range region.PrefetchCandidates() {
			if c.queue.Full() {
				issuedAll = false
				break
			}
			c.queue.Push(candidate)
			c.stats.EnqueuePrefetch++
		}
		if !issuedAll {
			c.stats.PrefetchQueueFull++
			break
		}

		c.tracker.PushBack(rng, region)
		next, ok := rng.Tail.Table.Successor(rng.Tail)
		if !ok {
			break
		}
		rng.Tail = next
		rng.Stream.TailPtr = next
	}

	if victim, evicted := c.srq.Observe(block); evicted {
		c.tables.Record(victim)
		c.stats.Records++
	}
}

// CacheFill implements prefetch.Prefetcher; MANA does not use fill
// information.
func (c *Controller) CacheFill(addr uint64, set, way int, wasPrefetch bool, evictedAddr uint64, metadata uint32, cache prefetch.Cache) uint32 {
	return metadata
}

// CycleOperate implements prefetch.Prefetcher (§4.9): issue at most one
// prefetch per cycle from the head of the internal queue, popping it only
// if PrefetchLine accepts it; a rejected entry stays queued for a later
// cycle (§4.13).
func (c *Controller) CycleOperate(cache prefetch.Cache) {
	block, ok := c.queue.Peek()
	if !ok {
		return
	}
	if cache.PrefetchLine(prefetch.BlockAddr(block), true, 0) {
		c.queue.Pop()
	}
}

// FinalStats implements prefetch.Prefetcher.
func (c *Controller) FinalStats() {
	c.log.WithFields(logrus.Fields{
		"head_found":        c.stats.HeadFound,
		"head_missing":      c.stats.HeadMissing,
		"stream_buffer_hit": c.stats.StreamBufferHit,
		"records":           c.stats.Records,
		"enqueued":          c.stats.EnqueuePrefetch,
		"queue_full":        c.stats.PrefetchQueueFull,
	}).Info("final stats")
}

// Stats returns a snapshot of the controller's accumulated counters.
func (c *Controller) Stats() Stats { return c.stats }

// PrefetchHit implements prefetch.Prefetcher; MANA does not adjust
// behavior on prefetch hits.
func (c *Controller) PrefetchHit(addr, ip uint64, metadata uint32) uint32 { return metadata }

// BroadcastBW, BroadcastIPC, and BroadcastAcc implement
// prefetch.Prefetcher; MANA does not react to epoch-level feedback.
func (c *Controller) BroadcastBW(level int)  {}
func (c *Controller) BroadcastIPC(level int) {}
func (c *Controller) BroadcastAcc(level int) {}
