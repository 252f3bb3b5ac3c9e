package scooby

import (
	"github.com/sirupsen/logrus"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

// DefaultActions is the ordered stride-delta action set (§3): the delta 0
// (the last entry, index 14) means "issue no prefetch".
var DefaultActions = []int32{1, 3, 4, 5, 10, 11, 12, 22, 23, 30, 32, -1, -3, -6, 0}

// HighBWThreshold and the dynamic-degree table mirror the original's
// default knobs (§4.12, §9's page-confidence-tracker degree path).
const (
	HighBWThreshold = 4
	MaxDegree       = 6
)

var degreeConfThresholds = []int32{1, 3, 8}
var degreeTable = []int{1, 2, 4, 6}

// rewardRow holds the low- and high-bandwidth reward values for one
// outcome (§4.12's reward table).
type rewardRow struct{ low, high int32 }

var rewards = map[RewardType]rewardRow{
	RewardCorrectTimely:   {20, 20},
	RewardCorrectUntimely: {12, 12},
	RewardIncorrect:       {-8, -14},
	RewardNone:            {-4, -2},
	RewardOutOfBounds:     {-12, -12},
	RewardTrackerHit:      {-2, -2},
}

// Stats is a snapshot of the controller's accumulated counters (§4.9-style
// final_stats reporting, mirrored from the original's dump_stats).
type Stats struct {
	Accesses       uint64
	Predicted      uint64
	OutOfBounds    uint64
	TrackerHits    uint64
	RewardsDemand  uint64
	RewardsTrained uint64
	Trains         uint64
}

// Controller implements prefetch.Prefetcher for the reinforcement-learning
// data prefetcher (§4.10–4.12): every demand access rewards any pending
// tracker entry for that address, updates the per-page signature table,
// asks the learning engine for an action, and tracks + issues whatever
// prefetch that action implies.
type Controller struct {
	cpu int
	log *logrus.Entry

	st     *SignatureTable
	pt     *PrefetchTracker
	engine Engine

	bwLevel  int
	ipcLevel int
	accLevel int

	stats Stats
}

// New constructs a Scooby controller. featurewise selects which learning
// engine backs it (§4.12, §9's sum-type trait); the original defaults to
// the featurewise engine.
func New(log *logrus.Logger, featurewise bool) *Controller {
	if log == nil {
		log = logrus.New()
	}
	c := &Controller{
		st:  NewSignatureTable(),
		log: log.WithField("component", "scooby"),
	}
	if featurewise {
		c.engine = NewFeaturewiseEngine()
	} else {
		c.engine = NewBasicEngine()
	}
	c.pt = NewPrefetchTracker(c.train)
	return c
}

// Initialize implements prefetch.Prefetcher.
func (c *Controller) Initialize(cpu int) {
	c.cpu = cpu
	c.log = c.log.WithField("cpu", cpu)
	c.log.Debug("initialized")
}

// BranchOperate implements prefetch.Prefetcher; Scooby does not use branch
// information.
func (c *Controller) BranchOperate(ip uint64, branchType int, target uint64) {}

// CacheOperate implements prefetch.Prefetcher (§4.12's invoke_prefetcher):
// reward any pending tracker entry for this address, update per-page
// state, ask the engine for an action, and issue/track whatever that
// action implies.
func (c *Controller) CacheOperate(addr, ip uint64, cacheHit, wasPrefetchHit bool, accessType prefetch.AccessType, metadata uint32, cache prefetch.Cache) uint32 {
	c.stats.Accesses++
	c.reward(addr)

	page := prefetch.Page(addr)
	offset := int32((addr >> prefetch.BlockShift) & prefetch.Mask(prefetch.PageShift-prefetch.BlockShift))

	entry := c.st.Touch(page, ip, offset)

	state := &State{
		PC:        ip,
		Address:   addr,
		Page:      page,
		Offset:    offset,
		Delta:     entry.LastDelta(),
		DeltaSig:  entry.DeltaSig(),
		DeltaSig2: entry.DeltaSig2(),
		PCSig:     entry.PCSig(),
		OffsetSig: entry.OffsetSig(),
		BWLevel:   c.bwLevel,
		IsHighBW:  c.isHighBW(),
		AccLevel:  c.accLevel,
	}

	c.predict(page, offset, state, entry, cache)
	return metadata
}

// predict is §4.12's predict(): choose an action, and issue/track whatever
// prefetch it implies.
func (c *Controller) predict(page uint64, offset int32, state *State, entry *STEntry, cache prefetch.Cache) {
	action, maxToAvgQ, consensus := c.engine.ChooseAction(state, len(DefaultActions))
	delta := DefaultActions[action]

	if delta == 0 {
		c.pt.Track(NoPrefetchAddr, state, action)
		return
	}

	predictedOffset := offset + delta
	if predictedOffset < 0 || predictedOffset >= 64 {
		c.stats.OutOfBounds++
		if pte, ok := c.pt.Track(NoPrefetchAddr, state, action); ok {
			c.assignReward(pte, RewardOutOfBounds)
		}
		return
	}

	addr := (page << prefetch.PageShift) + (uint64(predictedOffset) << prefetch.BlockShift)
	pte, isNew := c.pt.Track(addr, state, action)
	if !isNew {
		c.stats.TrackerHits++
		return
	}

	pte.ConsensusVec = consensus
	issued := cache.PrefetchLine(addr, true, 0)
	c.stats.Predicted++
	entry.TrackAction(delta)
	if !issued {
		// A rejected PrefetchLine ends the issue burst.
		return
	}

	degree := c.dynDegree(entry, delta, maxToAvgQ)
	for k := 2; k <= degree; k++ {
		po := offset + int32(k)*delta
		if po < 0 || po >= 64 {
			continue
		}
		a := (page << prefetch.PageShift) + (uint64(po) << prefetch.BlockShift)
		if !cache.PrefetchLine(a, true, 0) {
			break
		}
	}
}

// dynDegree implements the page-confidence-tracker dynamic-degree path
// (§4.12, §9): the higher the confidence this page has previously issued
// `action`, the larger the degree. maxToAvgQ is accepted for interface
// symmetry with the engine's alternate signal but, matching the original's
// default configuration, unused here — the page tracker governs degree
// selection.
func (c *Controller) dynDegree(entry *STEntry, action int32, maxToAvgQ float64) int {
	_ = maxToAvgQ
	conf, found := entry.SearchAction(action)
	if !found {
		return 1
	}
	for i, threshold := range degreeConfThresholds {
		if conf <= threshold {
			return degreeTable[i]
		}
	}
	return degreeTable[len(degreeTable)-1]
}

// reward implements §4.12's demand reward(): assign correct_timely or
// correct_untimely to the oldest untouched tracker entry for addr, if any.
func (c *Controller) reward(addr uint64) {
	entries := c.pt.Search(addr, false)
	if len(entries) == 0 {
		return
	}
	e := entries[0]
	if e.HasReward {
		return
	}
	c.stats.RewardsDemand++
	if e.IsFilled {
		c.assignReward(e, RewardCorrectTimely)
	} else {
		c.assignReward(e, RewardCorrectUntimely)
	}
}

// train implements §4.11/§4.12's eviction-triggered SARSA step: ensure the
// soon-to-be-(s,a,r) entry has a reward (defaulting it if it fell out of
// the tracker without ever seeing a demand reuse), then hand both entries
// to the learning engine.
func (c *Controller) train(currEvicted, lastEvicted *PTEntry) {
	if !lastEvicted.HasReward {
		c.stats.RewardsTrained++
		if lastEvicted.Address == NoPrefetchAddr {
			c.assignReward(lastEvicted, RewardNone)
		} else {
			c.assignReward(lastEvicted, RewardIncorrect)
		}
	}

	c.stats.Trains++
	c.engine.Learn(lastEvicted.State, lastEvicted.ActionIndex, lastEvicted.Reward, currEvicted.State, currEvicted.ActionIndex, lastEvicted.ConsensusVec)
}

// assignReward implements §4.12's assign_reward: final, one-shot reward
// assignment.
func (c *Controller) assignReward(e *PTEntry, t RewardType) {
	row := rewards[t]
	r := row.low
	if c.isHighBW() {
		r = row.high
	}
	e.Reward = r
	e.RewardType = t
	e.HasReward = true
}

// CacheFill implements prefetch.Prefetcher: a prefetch landing sets its
// tracker entry's filled flag, read back by the next demand reward (§4.12's
// register_fill).
func (c *Controller) CacheFill(addr uint64, set, way int, wasPrefetch bool, evictedAddr uint64, metadata uint32, cache prefetch.Cache) uint32 {
	if wasPrefetch {
		for _, e := range c.pt.Search(addr, false) {
			e.IsFilled = true
		}
	}
	return metadata
}

// CycleOperate implements prefetch.Prefetcher; Scooby issues prefetches
// immediately from CacheOperate (§5) rather than queuing them, so there is
// nothing to drain per cycle.
func (c *Controller) CycleOperate(cache prefetch.Cache) {}

// FinalStats implements prefetch.Prefetcher.
func (c *Controller) FinalStats() {
	fields := logrus.Fields{
		"accesses":        c.stats.Accesses,
		"predicted":       c.stats.Predicted,
		"out_of_bounds":   c.stats.OutOfBounds,
		"tracker_hits":    c.stats.TrackerHits,
		"rewards_demand":  c.stats.RewardsDemand,
		"rewards_trained": c.stats.RewardsTrained,
		"trains":          c.stats.Trains,
	}
	for k, v := range c.engine.DumpStats() {
		fields[k] = v
	}
	c.log.WithFields(fields).Info("final stats")
}

// Stats returns a snapshot of the controller's accumulated counters.
func (c *Controller) Stats() Stats { return c.stats }

// PrefetchHit implements prefetch.Prefetcher (§4.12's register_prefetch_hit).
func (c *Controller) PrefetchHit(addr, ip uint64, metadata uint32) uint32 {
	for _, e := range c.pt.Search(addr, false) {
		e.PFCacheHit = true
	}
	return metadata
}

// BroadcastBW implements prefetch.Prefetcher (§4.12's update_bw).
func (c *Controller) BroadcastBW(level int) { c.bwLevel = level }

// BroadcastIPC implements prefetch.Prefetcher (§4.12's update_ipc).
func (c *Controller) BroadcastIPC(level int) { c.ipcLevel = level }

// BroadcastAcc implements prefetch.Prefetcher (§4.12's update_acc).
func (c *Controller) BroadcastAcc(level int) { c.accLevel = level }

func (c *Controller) isHighBW() bool { return c.bwLevel >= HighBWThreshold }
