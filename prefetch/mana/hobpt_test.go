package mana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHOBPT_GetOfFindRoundTrips(t *testing.T) {
	h := NewHOBPT()

	patterns := []uint64{0x1, 0xABCDEF, 0x7F, 0x3000000}
	for _, p := range patterns {
		set, way := h.Find(p)
		assert.Equal(t, p, h.Get(set, way))
	}
}

func TestHOBPT_RepeatedFindReturnsSamePosition(t *testing.T) {
	h := NewHOBPT()

	set1, way1 := h.Find(0x42)
	set2, way2 := h.Find(0x42)
	assert.Equal(t, set1, set2)
	assert.Equal(t, way1, way2)
}

func TestHOBPT_EvictsLRUWayWhenSetFull(t *testing.T) {
	h := NewHOBPT()
	shift := prefetchLog2Sets()

	type pos struct{ set, way int }
	var first pos
	for i := 0; i < HOBPTWays; i++ {
		set, way := h.Find(uint64(i) << shift)
		if i == 0 {
			first = pos{set, way}
		}
	}
	before := h.Get(first.set, first.way)

	// a ninth distinct pattern in the same set forces an LRU eviction —
	// the oldest (tag 0, never re-touched) should be the victim.
	h.Find(uint64(HOBPTWays) << shift)

	after := h.Get(first.set, first.way)
	assert.NotEqual(t, before, after)
}

func prefetchLog2Sets() uint {
	k := uint(0)
	for (1 << k) < HOBPTSets {
		k++
	}
	return k
}
