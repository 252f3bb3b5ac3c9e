package mana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSRQ_ExtendsRegionAlreadyInRange(t *testing.T) {
	s := NewSRQ(4)
	// Seed region 1 explicitly so we know its extent, then observe a
	// forward block that falls inside it.
	s.regions[0] = NewRegion(1000)

	victim, evicted := s.Observe(1002)
	assert.False(t, evicted)
	assert.Nil(t, victim)

	inRange, observed := s.regions[0].InRange(1002)
	assert.True(t, inRange)
	assert.True(t, observed)
}

func TestSRQ_EvictsOldestWhenNoRegionCovers(t *testing.T) {
	s := NewSRQ(2)
	first := s.regions[0]

	// Neither seeded region (bases 1, 2) covers this far-away block.
	victim, evicted := s.Observe(1_000_000)
	assert.True(t, evicted)
	assert.Same(t, first, victim)

	// The freed slot now tracks the new block.
	assert.Equal(t, uint64(1_000_000), s.regions[len(s.regions)-1].Base)
}

func TestTracker_LookupMissesOnEmptyStreams(t *testing.T) {
	tr := NewTracker(1, 5, 3)
	_, hit := tr.Lookup(123)
	assert.False(t, hit)
}

func TestTracker_AllocateThenLookupHitsObservedBlock(t *testing.T) {
	tr := NewTracker(1, 5, 3)
	ptr := TablePtr{} // dummy, not dereferenced by Allocate itself
	rng := tr.Allocate(ptr)
	assert.Equal(t, 3, rng.Length)

	region := NewRegion(2000)
	region.Observe(2001)
	tr.PushBack(rng, region)

	hitRng, hit := tr.Lookup(2001)
	assert.True(t, hit)
	assert.Equal(t, rng.Stream, hitRng.Stream)
}
