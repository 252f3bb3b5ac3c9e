package scooby

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Signature-table tuning (§3, §4.10).
const (
	SignatureTableSize = 64
	MaxOffsets         = 5
	MaxDeltas          = 5
	ActionTrackerSize  = 2
)

// actionRecord is one entry of a page's action tracker: how many times a
// given stride has been the one actually issued from this page, used to
// pick a dynamic prefetch degree (§4.12's "per-page action confidence
// tracker").
type actionRecord struct {
	action     int32
	confidence int32
}

// STEntry is one signature-table row (§3, §4.10): a page's recent offset
// and delta history, the rolling signatures hashed from them, and the
// action tracker used for dynamic-degree selection.
type STEntry struct {
	Page         uint64
	lastPC       uint64
	lastOffset   int32
	haveOffset   bool
	offsets      []int32
	deltas       []int32
	deltaSig     uint32
	deltaSig2    uint32
	pcSig        uint32
	offsetSig    uint32
	actions      []actionRecord
}

// NewSTEntry starts a fresh row for page, seeded by the access that
// triggered its allocation.
func NewSTEntry(page uint64, pc uint64, offset int32) *STEntry {
	e := &STEntry{Page: page}
	e.Update(page, pc, offset)
	return e
}

// xorShiftFold rolls value into the running signature h the way the
// original's per-field hash does: shift-xor mixing so recent values
// dominate without discarding older ones entirely.
func xorShiftFold(h uint32, value uint32) uint32 {
	h ^= value
	h ^= h << 13
	h ^= h >> 7
	h ^= h << 17
	return h
}

// Update records a new access to this page (§4.10): pushes the offset and,
// once a previous offset is known, the delta between them, onto their
// bounded histories, and folds both into the rolling signatures.
func (e *STEntry) Update(page uint64, pc uint64, offset int32) {
	e.lastPC = pc

	if e.haveOffset {
		delta := offset - e.lastOffset
		e.deltas = pushBounded(e.deltas, delta, MaxDeltas)
		e.deltaSig = xorShiftFold(e.deltaSig, uint32(delta))
		e.deltaSig2 = xorShiftFold(e.deltaSig2, e.deltaSig)
	}
	e.offsets = pushBounded(e.offsets, offset, MaxOffsets)
	e.offsetSig = xorShiftFold(e.offsetSig, uint32(offset))
	e.pcSig = xorShiftFold(e.pcSig, uint32(pc))

	e.lastOffset = offset
	e.haveOffset = true
}

func pushBounded(hist []int32, v int32, max int) []int32 {
	hist = append(hist, v)
	if len(hist) > max {
		hist = hist[len(hist)-max:]
	}
	return hist
}

// LastDelta returns the most recently recorded delta, or 0 if none yet.
func (e *STEntry) LastDelta() int32 {
	if len(e.deltas) == 0 {
		return 0
	}
	return e.deltas[len(e.deltas)-1]
}

func (e *STEntry) DeltaSig() uint32  { return e.deltaSig }
func (e *STEntry) DeltaSig2() uint32 { return e.deltaSig2 }
func (e *STEntry) PCSig() uint32     { return e.pcSig }
func (e *STEntry) OffsetSig() uint32 { return e.offsetSig }

// TrackAction records that action was the stride actually issued from this
// page (§4.10, called after a prefetch is newly tracked), bumping its
// confidence counter or evicting the oldest-inserted record to make room
// for a new one (a confidence bump does not change a record's age).
func (e *STEntry) TrackAction(action int32) {
	for i := range e.actions {
		if e.actions[i].action == action {
			e.actions[i].confidence++
			return
		}
	}
	rec := actionRecord{action: action, confidence: 1}
	if len(e.actions) >= ActionTrackerSize {
		e.actions = e.actions[1:]
	}
	e.actions = append(e.actions, rec)
}

// SearchAction reports the confidence recorded for action, if tracked.
func (e *STEntry) SearchAction(action int32) (confidence int32, found bool) {
	for _, rec := range e.actions {
		if rec.action == action {
			return rec.confidence, true
		}
	}
	return 0, false
}

// SignatureTable is the bounded per-page history (§4.10): up to
// SignatureTableSize pages, LRU-replaced, backed by the same
// simplelru.LRU the rest of this tree uses for bounded-LRU-keyed-by-value
// tables (prefetch.SetAssocTable's ways, MANA's HOBPT, the demo driver's
// resident-block cache).
type SignatureTable struct {
	entries *lru.LRU[uint64, *STEntry]
}

// NewSignatureTable constructs an empty table.
func NewSignatureTable() *SignatureTable {
	entries, _ := lru.NewLRU[uint64, *STEntry](SignatureTableSize, nil)
	return &SignatureTable{entries: entries}
}

// Lookup finds page's entry without reordering.
func (t *SignatureTable) Lookup(page uint64) (*STEntry, bool) {
	return t.entries.Peek(page)
}

// Touch records an access to page, updating its entry and promoting it to
// MRU if present, or allocating a fresh entry (evicting the LRU one if the
// table is full) otherwise.
func (t *SignatureTable) Touch(page uint64, pc uint64, offset int32) *STEntry {
	if e, ok := t.entries.Get(page); ok {
		e.Update(page, pc, offset)
		return e
	}

	e := NewSTEntry(page, pc, offset)
	t.entries.Add(page, e)
	return e
}
