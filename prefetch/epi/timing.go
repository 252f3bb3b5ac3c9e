package epi

import "github.com/prefetchsim/prefetchsim/prefetch"

const (
	// TimingMSHRSize approximates an in-flight request table the
	// prefetcher has no direct access to (§4.4): enough entries to cover
	// the prefetch and read queues plus a generous in-flight margin.
	TimingMSHRSize = 32 + 64 + 1024
	// TimingTagBits bounds the stored line tag in both shadow tables.
	TimingTagBits = 58
)

// timingMSHREntry shadows one in-flight miss: where the eventual fill
// should land (source_set/source_way into the entangled table) and
// whether anything has consumed it via AccessTiming before it completes.
type timingMSHREntry struct {
	valid      bool
	tag        uint64
	sourceSet  int
	sourceWay  int
	timestamp  uint64
	accessed   bool
	posHist    int
}

// timingCacheEntry shadows one resident cache line's provenance: which
// entangled-table row originally triggered its fill, used to decide
// whether to charge or credit that row's confidence on eviction.
type timingCacheEntry struct {
	valid     bool
	tag       uint64
	sourceSet int
	sourceWay int
	accessed  bool
}

// TimingShadow approximates the cache's MSHR and tag array (§4.4), since
// the prefetcher itself has no direct read access to either: it mirrors
// just enough state — fill provenance and first-touch tracking — to
// compute entangled-pair candidates and to decide prefetch usefulness.
type TimingShadow struct {
	mshr  []timingMSHREntry
	cache *prefetch.SetAssocTable[timingCacheEntry]
}

// NewTimingShadow builds an empty shadow sized to mirror a cache of the
// given set/way geometry.
func NewTimingShadow(sets, ways int) *TimingShadow {
	return &TimingShadow{
		mshr:  make([]timingMSHREntry, TimingMSHRSize),
		cache: prefetch.NewSetAssocTable[timingCacheEntry](sets, ways, prefetch.FIFO),
	}
}

func (t *TimingShadow) findMSHR(line uint64) int {
	tag := line & prefetch.Mask(TimingTagBits)
	for i := range t.mshr {
		if t.mshr[i].valid && t.mshr[i].tag == tag {
			return i
		}
	}
	return -1
}

func (t *TimingShadow) freeMSHR() int {
	for i := range t.mshr {
		if !t.mshr[i].valid {
			return i
		}
	}
	return -1
}

// AddTiming records a new in-flight miss for line, sourced from the
// entangled-table row (sourceSet, sourceWay) that triggered its fetch.
// A line already tracked (in flight or already resident) is left alone.
// It panics if every shadow MSHR slot is in use.
func (t *TimingShadow) AddTiming(line uint64, sourceSet, sourceWay int, now uint64) {
	if t.findMSHR(line) >= 0 {
		return
	}
	if _, _, ok := t.cache.Find(line); ok {
		return
	}
	i := t.freeMSHR()
	if i < 0 {
		panic("epi: no free timing MSHR slot")
	}
	t.mshr[i] = timingMSHREntry{
		valid:     true,
		tag:       line & prefetch.Mask(TimingTagBits),
		sourceSet: sourceSet,
		sourceWay: sourceWay,
		timestamp: now,
		accessed:  false,
		posHist:   -1,
	}
}

// InvalidateTiming drops the MSHR entry for a cancelled or redundant
// fetch of line.
func (t *TimingShadow) InvalidateTiming(line uint64) {
	if i := t.findMSHR(line); i >= 0 {
		t.mshr[i].valid = false
	}
}

// MoveTiming transitions a completed fetch of line from the in-flight
// MSHR shadow into the resident cache shadow, evicting whatever
// previously occupied that set/way (returned so the caller can settle
// that row's confidence bookkeeping).
func (t *TimingShadow) MoveTiming(line uint64) (evictedSet, evictedWay int, evictedTag uint64, hadEviction bool) {
	i := t.findMSHR(line)
	var entry timingCacheEntry
	if i < 0 {
		entry = timingCacheEntry{accessed: true, sourceWay: -1}
	} else {
		entry = timingCacheEntry{
			sourceSet: t.mshr[i].sourceSet,
			sourceWay: t.mshr[i].sourceWay,
			accessed:  t.mshr[i].accessed,
		}
		t.mshr[i].valid = false
	}
	entry.valid = true
	entry.tag = line & prefetch.Mask(TimingTagBits)
	set, way, evictedTagVal, evicted := t.cache.Insert(line, entry)
	return set, way, evictedTagVal, evicted
}

// InvalidateTimingCache drops the resident-cache shadow entry for line
// (a real eviction observed via CacheFill), returning the provenance
// recorded for it so callers can update confidence on the entangled row
// that caused the fill.
func (t *TimingShadow) InvalidateTimingCache(line uint64) (sourceSet, sourceWay int, accessed, ok bool) {
	set, way, found := t.cache.Find(line)
	if !found {
		return 0, 0, false, false
	}
	entry, _ := t.cache.Get(set, way)
	t.cache.Invalidate(set, way)
	return entry.sourceSet, entry.sourceWay, entry.accessed, true
}

// AccessTiming marks line as having been touched again while still in
// flight or resident, recording posHist the first time this happens so
// GetBERE can later look the history entry back up.
func (t *TimingShadow) AccessTiming(line uint64, posHist int) {
	if i := t.findMSHR(line); i >= 0 {
		if !t.mshr[i].accessed {
			t.mshr[i].accessed = true
			t.mshr[i].posHist = posHist
		}
		return
	}
	if set, way, ok := t.cache.Find(line); ok {
		entry, _ := t.cache.Get(set, way)
		entry.accessed = true
		t.cache.Set(set, way, entry)
	}
}

// IsAccessedTiming reports whether line (in flight or resident) has
// already been touched via AccessTiming.
func (t *TimingShadow) IsAccessedTiming(line uint64) bool {
	if i := t.findMSHR(line); i >= 0 {
		return t.mshr[i].accessed
	}
	if set, way, ok := t.cache.Find(line); ok {
		entry, _ := t.cache.Get(set, way)
		return entry.accessed
	}
	return false
}

// PosHist returns the history-window index recorded by AccessTiming for
// an in-flight line, or false if line isn't in flight or was never
// accessed while in flight.
func (t *TimingShadow) PosHist(line uint64) (int, bool) {
	i := t.findMSHR(line)
	if i < 0 || !t.mshr[i].accessed {
		return 0, false
	}
	return t.mshr[i].posHist, true
}

// CompletedRequest reports whether line is resident in the shadow cache
// (its fetch has completed and moved out of the MSHR shadow).
func (t *TimingShadow) CompletedRequest(line uint64) bool {
	_, _, ok := t.cache.Find(line)
	return ok
}

// Ongoing reports whether line has an in-flight shadow MSHR entry.
func (t *TimingShadow) Ongoing(line uint64) bool {
	return t.findMSHR(line) >= 0
}

// OngoingAccessed reports whether line is in flight and has already been
// touched via AccessTiming.
func (t *TimingShadow) OngoingAccessed(line uint64) bool {
	i := t.findMSHR(line)
	return i >= 0 && t.mshr[i].accessed
}

// timeBits bounds the wrapped MSHR timestamp (§4.4: 12 bits).
const timeBits = 12

// GetLatency returns the wrapped cycle count since AddTiming recorded
// line's in-flight request, and the history-window position recorded
// for it — only valid once AccessTiming has been called for this line.
func (t *TimingShadow) GetLatency(line uint64, now uint64) (latency uint64, posHist int, ok bool) {
	i := t.findMSHR(line)
	if i < 0 || !t.mshr[i].accessed {
		return 0, 0, false
	}
	return prefetch.WrappedDiff(now, t.mshr[i].timestamp, timeBits), t.mshr[i].posHist, true
}
