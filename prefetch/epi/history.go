package epi

import "github.com/prefetchsim/prefetchsim/prefetch"

const (
	// HistoryEntries is the history window's ring capacity (§3).
	HistoryEntries = 32
	// HistoryTagBits bounds the stored tag width (§3: 58 bits).
	HistoryTagBits = 58
	// TimeDiffBits bounds the wrapped time-diff field (§3: 20 bits).
	TimeDiffBits = 20
	// TimeDiffOverflow is 2^20, the point at which Add must insert filler
	// entries to keep time_diff from wrapping silently (§4.3).
	TimeDiffOverflow = uint64(1) << TimeDiffBits
	// BBMergeScanDepth bounds FindBBMerge's backward scan (§4.3: "at most 6").
	BBMergeScanDepth = 6
	// BBSizeBits bounds the stored basic-block size field (§3: 6 bits).
	BBSizeBits = 6
)

// HistEntry is the history window's ring cell (§3): a triggering tag, the
// wrapped time elapsed since the previous entry, and the basic-block size
// recorded for that tag at the time it was (or became) a block head.
type HistEntry struct {
	Tag      uint64
	TimeDiff uint64
	BBSize   uint8
}

// HistoryWindow is the ring of (tag, time_diff, bb_size) entries described
// in §3 and §4.3: a fixed-size ring plus a head_time scalar tracking the
// absolute cycle of the most recently added entry.
type HistoryWindow struct {
	ring     *prefetch.Ring[HistEntry]
	headTime uint64
}

// NewHistoryWindow constructs an empty window whose head_time starts at
// the given cycle.
func NewHistoryWindow(now uint64) *HistoryWindow {
	return &HistoryWindow{ring: prefetch.NewRing[HistEntry](HistoryEntries), headTime: now}
}

// Add records block at the current cycle now, returning the ring index the
// entry was written to — this index is what the caller stores as pos_hist.
// Per §4.3: if too much time has elapsed since head_time, zero-tag filler
// entries are inserted first so that no single time_diff field would need
// to represent 2^20 or more cycles.
func (h *HistoryWindow) Add(block uint64, now uint64) int {
	for now-h.headTime >= TimeDiffOverflow {
		h.ring.Add(HistEntry{Tag: 0, TimeDiff: TimeDiffOverflow - 1, BBSize: 0})
		h.headTime += TimeDiffOverflow - 1
	}
	idx := h.ring.Add(HistEntry{
		Tag:      block & prefetch.Mask(HistoryTagBits),
		TimeDiff: prefetch.WrappedDiff(now, h.headTime, TimeDiffBits),
		BBSize:   0,
	})
	h.headTime = now
	return idx
}

// SetBBSize records the basic-block size for the most recent entry whose
// tag equals block (mirrors the original's "find then set" update path —
// bb_size is discovered after the entry is inserted, once the basic block
// it starts has finished growing).
func (h *HistoryWindow) SetBBSize(block uint64, bbSize uint8) {
	tag := block & prefetch.Mask(HistoryTagBits)
	for back := 0; back < h.ring.Active(); back++ {
		e, ok := h.ring.At(back)
		if !ok {
			continue
		}
		if e.Tag == tag {
			e.BBSize = bbSize
			h.overrideAt(back, e)
			return
		}
	}
}

// FindEntry reports whether block's tag is already present anywhere in
// the window (it can legitimately appear more than once, if the line
// was evicted and refetched in between).
func (h *HistoryWindow) FindEntry(block uint64) bool {
	tag := block & prefetch.Mask(HistoryTagBits)
	for back := 0; back < h.ring.Active(); back++ {
		e, ok := h.ring.At(back)
		if ok && e.Tag == tag {
			return true
		}
	}
	return false
}

// overrideAt rewrites the ring cell `back` positions behind the tail.
// Ring.Override only rewrites the most recent cell (back == 0); history
// bb_size updates can target older entries, so those go through the
// raw-index Ring.SetAtIndex.
func (h *HistoryWindow) overrideAt(back int, e HistEntry) {
	if back == 0 {
		h.ring.Override(e)
		return
	}
	idx := h.ring.PrevIndex(h.ring.Head())
	for i := 0; i < back; i++ {
		idx = h.ring.PrevIndex(idx)
	}
	h.overrideIndex(idx, e)
}

func (h *HistoryWindow) overrideIndex(idx int, e HistEntry) {
	h.ring.SetAtIndex(idx, e)
}

// FindBBMerge scans backward at most BBMergeScanDepth entries for an
// earlier block whose recorded basic block has since grown to cover
// block; it returns the gap (block - earlier tag) and true, or (0, false)
// if no such entry exists within the scan depth. Per §9's documented
// source ambiguity, "no merge found" is represented as (0, false) rather
// than an assertion failure.
func (h *HistoryWindow) FindBBMerge(block uint64) (gap uint64, merged bool) {
	tag := block & prefetch.Mask(HistoryTagBits)
	depth := BBMergeScanDepth
	if depth > h.ring.Active() {
		depth = h.ring.Active()
	}
	for back := 0; back < depth; back++ {
		e, ok := h.ring.At(back)
		if !ok {
			break
		}
		if tag > e.Tag && tag-e.Tag <= uint64(e.BBSize) {
			return tag - e.Tag, true
		}
	}
	return 0, false
}

// GetBERE implements §4.3's entangled-candidate search: starting at the
// predecessor of pos_hist, walk backward accumulating time_diffs, and
// return the first earlier entry whose accumulated time from block is at
// least latency — the k-th such candidate when skip=k. If block's own tag
// reappears before a candidate is found, the search returns false: the
// line was evicted and re-fetched in between, so no entangle is recorded.
func (h *HistoryWindow) GetBERE(block uint64, posHist int, latency uint64, skip int) (HistEntry, bool) {
	tag := block & prefetch.Mask(HistoryTagBits)
	if tag == 0 {
		return HistEntry{}, false
	}
	pe, ok := h.ring.AtIndex(posHist)
	if !ok || pe.Tag != tag {
		return HistEntry{}, false
	}

	skipped := 0
	acc := pe.TimeDiff
	// first is the most recently written index (the cell just behind the
	// one the ring will overwrite next); the backward walk stops when it
	// wraps around to it.
	first := h.ring.PrevIndex(h.ring.Head())
	for i := h.ring.PrevIndex(posHist); i != first; i = h.ring.PrevIndex(i) {
		e, ok := h.ring.AtIndex(i)
		if !ok {
			break
		}
		if e.Tag == tag {
			return HistEntry{}, false
		}
		if e.Tag != 0 && acc >= latency {
			if skipped == skip {
				return e, true
			}
			skipped++
		}
		acc += e.TimeDiff
	}
	return HistEntry{}, false
}

// HeadTime returns the absolute cycle of the most recently added entry.
func (h *HistoryWindow) HeadTime() uint64 { return h.headTime }
