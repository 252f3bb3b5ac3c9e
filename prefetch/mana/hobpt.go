package mana

import "github.com/prefetchsim/prefetchsim/prefetch"

const (
	// HOBPTSets is the number of sets in the shared high-order-bit-pattern
	// table (§4.8).
	HOBPTSets = 128
	// HOBPTWays is the associativity of the HOBPT.
	HOBPTWays = 8
)

// HOBPT is the table both MANA tables share to avoid storing a full tag
// per row (§4.8): a row records only an index into this table, and the
// table reconstructs the full high-order-bit pattern from (set, way) —
// exactly the addressing scheme prefetch.SetAssocTable already implements,
// so HOBPT is a thin wrapper rather than a hand-rolled structure.
type HOBPT struct {
	table *prefetch.SetAssocTable[struct{}]
}

// NewHOBPT constructs an empty HOBPT.
func NewHOBPT() *HOBPT {
	return &HOBPT{table: prefetch.NewSetAssocTable[struct{}](HOBPTSets, HOBPTWays, prefetch.LRU)}
}

// Find returns the (set, way) pattern resolves to, inserting it as a new
// entry (evicting the LRU way in its set) if it wasn't already present.
func (h *HOBPT) Find(pattern uint64) (set, way int) {
	set, way, ok := h.table.Find(pattern)
	if ok {
		h.table.Touch(set, way)
		return set, way
	}
	set, way, _, _ = h.table.Insert(pattern, struct{}{})
	return set, way
}

// Get reconstructs the full pattern stored at (set, way). Get(Find(p))
// always equals p, since set and way alone are sufficient to recover the
// pattern's low bits (the set index) and high bits (the stored tag).
func (h *HOBPT) Get(set, way int) uint64 {
	tag := h.table.Tag(set, way)
	return (tag << prefetch.Log2Ceil(HOBPTSets)) | uint64(set)
}
