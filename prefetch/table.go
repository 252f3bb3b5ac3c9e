package prefetch

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Policy selects the replacement discipline for a SetAssocTable's ways.
type Policy int

const (
	LRU Policy = iota
	FIFO
)

// way is one physical slot in a set. Way indices are stable: a value's way
// never changes across Touch or unrelated Insert calls in the same set, so
// callers (MANA's successor rings in particular) can hold a (set, way)
// pointer into a row and have it remain valid until that specific row is
// evicted.
type way[V any] struct {
	valid bool
	tag   uint64
	value V
}

type row[V any] struct {
	ways []way[V]

	// recency maps tag -> way index and orders ways oldest-to-newest for
	// LRU policy; unused for FIFO.
	recency *lru.LRU[uint64, int]

	// fifoOrder holds way indices in insertion order for FIFO policy;
	// fifoHead is the position in fifoOrder of the next victim, and filled
	// counts the ways recorded in fifoOrder so far.
	fifoOrder []int
	fifoHead  int
	filled    int
}

// SetAssocTable is the generic set-associative table primitive of §4.1: set
// and tag are derived from a 64-bit key as `set = key & setMask`,
// `tag = key >> log2(sets)`; ways are replaced by LRU or FIFO depending on
// the configured Policy. EPI's and MANA's tables embed a *SetAssocTable.
// Scooby's tables do not: its signature table uses a simplelru.LRU
// directly, and its prefetch tracker and per-page action records are
// slices kept in insertion order.
type SetAssocTable[V any] struct {
	sets, ways int
	policy     Policy
	setMask    uint64
	tagShift   uint
	rows       []row[V]
}

// NewSetAssocTable constructs a table of the given geometry. sets must be a
// power of two.
func NewSetAssocTable[V any](sets, ways int, policy Policy) *SetAssocTable[V] {
	t := &SetAssocTable[V]{
		sets:     sets,
		ways:     ways,
		policy:   policy,
		setMask:  uint64(sets - 1),
		tagShift: Log2Ceil(sets),
		rows:     make([]row[V], sets),
	}
	for s := range t.rows {
		t.rows[s].ways = make([]way[V], ways)
		if policy == LRU {
			r, _ := lru.NewLRU[uint64, int](ways, nil)
			t.rows[s].recency = r
		} else {
			t.rows[s].fifoOrder = make([]int, ways)
		}
	}
	return t
}

func (t *SetAssocTable[V]) index(key uint64) (set int, tag uint64) {
	return int(key & t.setMask), key >> t.tagShift
}

// Find looks up key and returns its (set, way) if present.
func (t *SetAssocTable[V]) Find(key uint64) (set, wayIdx int, ok bool) {
	set, tag := t.index(key)
	r := &t.rows[set]
	for i := range r.ways {
		if r.ways[i].valid && r.ways[i].tag == tag {
			return set, i, true
		}
	}
	return set, 0, false
}

// Get returns the value stored at (set, way) and whether that slot is valid.
func (t *SetAssocTable[V]) Get(set, wayIdx int) (V, bool) {
	w := t.rows[set].ways[wayIdx]
	return w.value, w.valid
}

// Set overwrites the value at an already-valid (set, way) in place, without
// touching replacement metadata.
func (t *SetAssocTable[V]) Set(set, wayIdx int, value V) {
	t.rows[set].ways[wayIdx].value = value
}

// Tag returns the tag stored at (set, way).
func (t *SetAssocTable[V]) Tag(set, wayIdx int) uint64 {
	return t.rows[set].ways[wayIdx].tag
}

// Touch promotes (set, way) to MRU under LRU policy; a no-op under FIFO.
func (t *SetAssocTable[V]) Touch(set, wayIdx int) {
	r := &t.rows[set]
	if t.policy != LRU || !r.ways[wayIdx].valid {
		return
	}
	r.recency.Get(r.ways[wayIdx].tag)
}

// Insert stores value under key, evicting a way per the configured policy
// if the set is full. It returns the (set, way) the value now occupies,
// and, if an occupant was evicted, its tag and true.
func (t *SetAssocTable[V]) Insert(key uint64, value V) (set, wayIdx int, evictedTag uint64, evicted bool) {
	set, tag := t.index(key)
	r := &t.rows[set]

	for i := range r.ways {
		if !r.ways[i].valid {
			r.ways[i] = way[V]{valid: true, tag: tag, value: value}
			t.onFill(set, i, tag)
			return set, i, 0, false
		}
	}

	switch t.policy {
	case LRU:
		victimTag, _, _ := r.recency.GetOldest()
		victimWay, _ := t.findWayForTag(set, victimTag)
		evictedTag = victimTag
		r.recency.Remove(victimTag)
		r.ways[victimWay] = way[V]{valid: true, tag: tag, value: value}
		r.recency.Add(tag, victimWay)
		return set, victimWay, evictedTag, true
	default: // FIFO
		victimWay := r.fifoOrder[r.fifoHead]
		evictedTag = r.ways[victimWay].tag
		r.ways[victimWay] = way[V]{valid: true, tag: tag, value: value}
		r.fifoOrder[r.fifoHead] = victimWay
		r.fifoHead = (r.fifoHead + 1) % len(r.fifoOrder)
		return set, victimWay, evictedTag, true
	}
}

// InsertAt forces value into a specific way, bypassing eviction selection.
// Used by EPI's entangled-table allocation, which picks its own victim way
// (preferring one whose confidences are all below threshold) before
// calling InsertAt.
func (t *SetAssocTable[V]) InsertAt(key uint64, wayIdx int, value V) {
	set, tag := t.index(key)
	r := &t.rows[set]
	wasValid := r.ways[wayIdx].valid
	oldTag := r.ways[wayIdx].tag
	r.ways[wayIdx] = way[V]{valid: true, tag: tag, value: value}
	if t.policy == LRU {
		if wasValid {
			r.recency.Remove(oldTag)
		}
		r.recency.Add(tag, wayIdx)
	}
}

// MoveWay relocates the occupant of (set, fromWay) to (set, toWay),
// preserving its tag and value and clearing fromWay. Used by EPI's
// entangled table to proactively compact a set before allocating a new
// row at its FIFO pointer (§4.5): a way with no confident successors is
// more useful empty than the FIFO pointer's way, which may still hold a
// recorded basic-block size.
func (t *SetAssocTable[V]) MoveWay(set, fromWay, toWay int) {
	if fromWay == toWay {
		return
	}
	r := &t.rows[set]
	occupant := r.ways[fromWay]
	r.ways[toWay] = occupant
	r.ways[fromWay] = way[V]{}
	if t.policy == LRU && occupant.valid {
		r.recency.Remove(occupant.tag)
		r.recency.Add(occupant.tag, toWay)
	}
}

// Invalidate clears (set, way).
func (t *SetAssocTable[V]) Invalidate(set, wayIdx int) {
	r := &t.rows[set]
	if t.policy == LRU && r.ways[wayIdx].valid {
		r.recency.Remove(r.ways[wayIdx].tag)
	}
	r.ways[wayIdx] = way[V]{}
}

func (t *SetAssocTable[V]) onFill(set, wayIdx int, tag uint64) {
	r := &t.rows[set]
	if t.policy == LRU {
		r.recency.Add(tag, wayIdx)
		return
	}
	for i := 0; i < r.filled; i++ {
		if r.fifoOrder[i] == wayIdx {
			return
		}
	}
	r.fifoOrder[r.filled] = wayIdx
	r.filled++
	if r.filled == len(r.fifoOrder) {
		r.fifoHead = 0
	}
}

func (t *SetAssocTable[V]) findWayForTag(set int, tag uint64) (int, bool) {
	r := &t.rows[set]
	for i := range r.ways {
		if r.ways[i].valid && r.ways[i].tag == tag {
			return i, true
		}
	}
	return 0, false
}

// Sets returns the number of sets.
func (t *SetAssocTable[V]) Sets() int { return t.sets }

// Ways returns the number of ways per set.
func (t *SetAssocTable[V]) Ways() int { return t.ways }
