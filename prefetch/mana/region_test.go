package mana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegion_TriggerBlockIsImplicitlyObserved(t *testing.T) {
	r := NewRegion(1000)

	inRange, observed := r.InRange(1000)
	assert.True(t, inRange)
	assert.True(t, observed)
}

func TestRegion_ForwardBlockUnobservedUntilSet(t *testing.T) {
	r := NewRegion(1000)

	inRange, observed := r.InRange(1003)
	assert.True(t, inRange)
	assert.False(t, observed)

	r.Observe(1003)
	inRange, observed = r.InRange(1003)
	assert.True(t, inRange)
	assert.True(t, observed)
}

func TestRegion_BlockBeyondForwardExtentIsOutOfRange(t *testing.T) {
	r := NewRegion(1000)

	inRange, observed := r.InRange(1000 + RegionForward + 1)
	assert.False(t, inRange)
	assert.False(t, observed)
}

func TestRegion_BlockBehindBaseIsOutOfRangeByDefault(t *testing.T) {
	r := NewRegion(1000)

	// RegionBackward is 0 in the default configuration, so nothing
	// behind the trigger block is ever in range.
	inRange, _ := r.InRange(999)
	assert.False(t, inRange)
}

func TestRegion_PrefetchCandidatesIncludesTriggerAndObservedForwardBlocks(t *testing.T) {
	r := NewRegion(1000)
	r.Observe(1002)
	r.Observe(1005)

	candidates := r.PrefetchCandidates()
	assert.Equal(t, []uint64{1000, 1002, 1005}, candidates)
}

func TestRegionFromFootprint_PreservesObservedBits(t *testing.T) {
	r := NewRegion(2000)
	r.Observe(2001)

	rebuilt := RegionFromFootprint(r.Base, r.Footprint())
	inRange, observed := rebuilt.InRange(2001)
	assert.True(t, inRange)
	assert.True(t, observed)
}
