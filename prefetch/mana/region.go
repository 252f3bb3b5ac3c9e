package mana

import "github.com/bits-and-blooms/bitset"

const (
	// RegionSize is the number of blocks a spatial region's footprint can
	// record (§3).
	RegionSize = 8
	// RegionBackward and RegionForward bound the floated region's extent
	// around its trigger block: RegionBackward blocks behind, RegionForward
	// ahead (§4.7 — the floated variant is the only one this module
	// implements; the original's fixed-region alternative was evaluated
	// and rejected by its own authors for lower speedup).
	RegionBackward = 0
	RegionForward  = 8
)

// Region is a floated spatial region (§3, §4.7): a trigger block plus a
// footprint recording which of the blocks around it have been observed.
// The trigger block itself is never given a footprint bit — it is always
// implicitly "observed" — so RegionForward bits cover trigger+1..+8 and
// any RegionBackward bits (unused in the default configuration) would
// cover trigger-1..-RegionBackward.
type Region struct {
	Base     uint64
	footprint *bitset.BitSet
}

// NewRegion starts a region triggered by base.
func NewRegion(base uint64) *Region {
	return &Region{Base: base, footprint: bitset.New(RegionSize)}
}

// index maps a block to its footprint bit, mirroring getIndex: forward
// blocks occupy 0..RegionForward-1 (block-base-1), backward blocks
// occupy RegionForward..RegionForward+RegionBackward-1 counting out from
// the base, and the base itself has no bit (explicit reports false).
func index(base, block uint64) (bit int, explicit bool) {
	diff := int64(block) - int64(base)
	switch {
	case diff > 0:
		return int(diff) - 1, true
	case diff < 0:
		return RegionForward + int(-diff) - 1, true
	default:
		return 0, false
	}
}

// InRange reports whether block falls within the region's covered span,
// and whether it has already been observed (prefetched) within it.
func (r *Region) InRange(block uint64) (inRange, observed bool) {
	lo := r.Base - RegionBackward
	hi := r.Base + RegionForward
	if block < lo || block > hi {
		return false, false
	}
	bit, explicit := index(r.Base, block)
	if !explicit {
		return true, true
	}
	return true, r.footprint.Test(uint(bit))
}

// Observe records that block (already known to be in range) has been
// accessed, setting its footprint bit. Observing the trigger block itself
// is a no-op — it has no dedicated bit.
func (r *Region) Observe(block uint64) {
	bit, explicit := index(r.Base, block)
	if explicit {
		r.footprint.Set(uint(bit))
	}
}

// Footprint returns the raw footprint bitmap, for storage in a MANA table
// row.
func (r *Region) Footprint() *bitset.BitSet { return r.footprint }

// RegionFromFootprint reconstructs a Region from a stored base and
// footprint, for rows read back out of a MANA table.
func RegionFromFootprint(base uint64, footprint *bitset.BitSet) *Region {
	if footprint == nil {
		footprint = bitset.New(RegionSize)
	}
	return &Region{Base: base, footprint: footprint}
}

// PrefetchCandidates returns every block the region's trigger and
// footprint identify as worth prefetching: the trigger block itself,
// then every forward block whose bit is set, then every backward block
// whose bit is set (§4.7).
func (r *Region) PrefetchCandidates() []uint64 {
	candidates := make([]uint64, 0, RegionSize+1)
	candidates = append(candidates, r.Base)
	for i := 0; i < RegionForward; i++ {
		if r.footprint.Test(uint(i)) {
			candidates = append(candidates, r.Base+uint64(i)+1)
		}
	}
	for i := 0; i < RegionBackward; i++ {
		if r.footprint.Test(uint(RegionForward + i)) {
			candidates = append(candidates, r.Base-uint64(i)-1)
		}
	}
	return candidates
}
