package epi

import (
	"github.com/sirupsen/logrus"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

const (
	triesAvailPresent    = 2
	triesAvailNotPresent = 1
)

// Stats is a snapshot of the per-CPU counters the controller accumulates
// across a run, reported by FinalStats.
type Stats struct {
	Accesses   uint64
	Misses     uint64
	Hits       uint64
	Late       uint64
	Wrong      uint64
	UsefulHist uint64
	Promotions uint64
	Evictions  uint64
}

// Controller implements prefetch.Prefetcher for the entangling
// instruction prefetcher (§4.3–4.6): a history window of recent misses
// feeds entangled-pair discovery on fill, and an entangled table drives
// both basic-block and entangled prefetch issue on every access.
type Controller struct {
	cpu   int
	log   *logrus.Entry
	stats Stats

	history   *HistoryWindow
	timing    *TimingShadow
	entangled *EntangledTable

	lastBasicBlock   uint64
	consecutiveCount uint64
	bbMergeDiff      uint64
}

// New constructs an EPI controller that will mirror a cache of the given
// set/way geometry in its timing shadow.
func New(sets, ways int, log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.New()
	}
	return &Controller{
		history:   NewHistoryWindow(0),
		timing:    NewTimingShadow(sets, ways),
		entangled: NewEntangledTable(),
		log:       log.WithField("component", "epi"),
	}
}

// Initialize implements prefetch.Prefetcher.
func (c *Controller) Initialize(cpu int) {
	c.cpu = cpu
	c.log = c.log.WithField("cpu", cpu)
	c.log.Debug("initialized")
}

// BranchOperate implements prefetch.Prefetcher; EPI does not use branch
// information.
func (c *Controller) BranchOperate(ip uint64, branchType int, target uint64) {}

// CacheOperate implements prefetch.Prefetcher (§4.6): it issues
// basic-block and entangled-successor prefetches for the triggering
// block, then updates basic-block tracking and records the access in
// the history window.
func (c *Controller) CacheOperate(addr, ip uint64, cacheHit, wasPrefetchHit bool, accessType prefetch.AccessType, metadata uint32, cache prefetch.Cache) uint32 {
	now := cache.Cycle()
	line := prefetch.Block(addr)

	if !cacheHit {
		if c.timing.CompletedRequest(line) || c.timing.Ongoing(line) {
			return metadata
		}
	} else if !c.timing.CompletedRequest(line) {
		return metadata
	}

	c.stats.Accesses++
	if !cacheHit {
		c.stats.Misses++
		if c.timing.Ongoing(line) && !c.timing.IsAccessedTiming(line) {
			c.stats.Late++
		}
	}
	if cacheHit && wasPrefetchHit {
		c.stats.Hits++
	}

	consecutive := false
	if c.lastBasicBlock+c.consecutiveCount == line {
		return metadata
	} else if c.lastBasicBlock+c.consecutiveCount+1 == line {
		c.consecutiveCount++
		consecutive = true
	}

	// Basic-block prefetches: every line the current block is known to
	// extend to, up to the recorded size. A rejected PrefetchLine ends the
	// issue burst for this access.
	issuing := true
	bbSize := c.entangled.BBSize(line)
	for i := uint8(1); i <= bbSize && issuing; i++ {
		pfLine := line + uint64(i)
		if c.timing.Ongoing(pfLine) || c.timing.CompletedRequest(pfLine) {
			continue
		}
		if cache.PrefetchLine(prefetch.BlockAddr(pfLine), true, 0) {
			c.timing.AddTiming(pfLine, 0, EntangledTableWays, now)
		} else {
			issuing = false
		}
	}

	// Entangled-successor prefetches, plus their own basic blocks.
	set, way, _, hasRow := c.entangled.Row(line)
	for _, succ := range c.entangled.Successors(line) {
		if !issuing {
			break
		}
		if succ == line || !hasRow {
			continue
		}
		succBB := c.entangled.BBSize(succ)
		for i := uint8(0); i <= succBB && issuing; i++ {
			pfLine := succ + uint64(i)
			if c.timing.Ongoing(pfLine) || c.timing.CompletedRequest(pfLine) {
				continue
			}
			if cache.PrefetchLine(prefetch.BlockAddr(pfLine), true, 0) {
				sourceWay := EntangledTableWays
				if i == 0 {
					sourceWay = way
				}
				c.timing.AddTiming(pfLine, set, sourceWay, now)
			} else {
				issuing = false
			}
		}
	}

	if !consecutive {
		maxBBSize := c.entangled.BBSize(c.lastBasicBlock)
		if c.consecutiveCount > 0 {
			if c.bbMergeDiff > 0 {
				base := c.lastBasicBlock - c.bbMergeDiff
				size := uint8(c.consecutiveCount) + uint8(c.bbMergeDiff)
				c.entangled.AddBBSize(base, size)
				c.history.SetBBSize(base, size)
			} else {
				size := c.consecutiveCount
				if uint64(maxBBSize) > size {
					size = uint64(maxBBSize)
				}
				c.entangled.AddBBSize(c.lastBasicBlock, uint8(size))
				c.history.SetBBSize(c.lastBasicBlock, uint8(size))
			}
		}
		c.consecutiveCount = 0
		c.lastBasicBlock = line
		if gap, merged := c.history.FindBBMerge(c.lastBasicBlock); merged {
			c.bbMergeDiff = gap
		} else {
			c.bbMergeDiff = 0
		}
	}

	posHist := -1
	if !consecutive && c.bbMergeDiff == 0 {
		if !c.history.FindEntry(line) {
			posHist = c.history.Add(line, now)
		} else if !cacheHit && !c.timing.OngoingAccessed(line) {
			posHist = c.history.Add(line, now)
		}
	}

	if !cacheHit && !c.timing.Ongoing(line) {
		c.timing.AddTiming(line, 0, EntangledTableWays, now)
	}
	c.timing.AccessTiming(line, posHist)

	return metadata
}

// CacheFill implements prefetch.Prefetcher (§4.6): it moves the filled
// line's shadow entry from in-flight to resident, settles confidence on
// whatever it evicted, and — if the fill was late enough to have
// incurred real latency — searches the history window for an entangled
// candidate to record.
func (c *Controller) CacheFill(addr uint64, set, way int, wasPrefetch bool, evictedAddr uint64, metadata uint32, cache prefetch.Cache) uint32 {
	now := cache.Cycle()
	line := prefetch.Block(addr)

	if evictedAddr != 0 {
		evictedLine := prefetch.Block(evictedAddr)
		sourceSet, sourceWay, accessed, ok := c.timing.InvalidateTimingCache(evictedLine)
		if ok {
			if !accessed {
				c.stats.Wrong++
			}
			if sourceWay < EntangledTableWays {
				c.entangled.UpdateConfidence(sourceSet, sourceWay, evictedLine, accessed)
				c.stats.Evictions++
			}
		}
	}

	latency, posHist, ok := c.timing.GetLatency(line, now)
	c.timing.MoveTiming(line)

	if !ok || latency == 0 {
		return metadata
	}

	inserted := false
	for i := 0; i < triesAvailPresent && !inserted; i++ {
		bere, found := c.history.GetBERE(line, posHist, latency, i)
		if !found || bere.Tag == 0 || bere.Tag == line {
			continue
		}
		if c.entangled.AvailEntangled(bere.Tag, line, false) {
			c.entangled.AddEntangled(bere.Tag, line)
			c.stats.UsefulHist++
			c.stats.Promotions++
			inserted = true
		}
	}
	if !inserted {
		for i := 0; i < triesAvailNotPresent && !inserted; i++ {
			bere, found := c.history.GetBERE(line, posHist, latency, i)
			if !found || bere.Tag == 0 || bere.Tag == line {
				continue
			}
			if c.entangled.AvailEntangled(bere.Tag, line, true) {
				c.entangled.AddEntangled(bere.Tag, line)
				c.stats.UsefulHist++
				inserted = true
			}
		}
	}
	if !inserted {
		if bere, found := c.history.GetBERE(line, posHist, latency, 0); found && bere.Tag != 0 && bere.Tag != line {
			c.entangled.AddEntangled(bere.Tag, line)
		}
	}

	return metadata
}

// CycleOperate implements prefetch.Prefetcher; EPI has no per-cycle work.
func (c *Controller) CycleOperate(cache prefetch.Cache) {}

// FinalStats implements prefetch.Prefetcher.
func (c *Controller) FinalStats() {
	c.log.WithFields(logrus.Fields{
		"accesses":    c.stats.Accesses,
		"misses":      c.stats.Misses,
		"hits":        c.stats.Hits,
		"late":        c.stats.Late,
		"wrong":       c.stats.Wrong,
		"useful_hist": c.stats.UsefulHist,
		"evictions":   c.stats.Evictions,
	}).Info("final stats")
}

// Stats returns a snapshot of the controller's accumulated counters.
func (c *Controller) Stats() Stats { return c.stats }

// PrefetchHit implements prefetch.Prefetcher; EPI does not adjust
// behavior on prefetch hits beyond the counters already tracked in
// CacheOperate.
func (c *Controller) PrefetchHit(addr, ip uint64, metadata uint32) uint32 { return metadata }

// BroadcastBW, BroadcastIPC, and BroadcastAcc implement
// prefetch.Prefetcher; EPI does not react to epoch-level feedback.
func (c *Controller) BroadcastBW(level int)  {}
func (c *Controller) BroadcastIPC(level int) {}
func (c *Controller) BroadcastAcc(level int) {}
