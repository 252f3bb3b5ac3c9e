package scooby

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefetchTracker_TrackReturnsNewForFreshAddress(t *testing.T) {
	pt := NewPrefetchTracker(func(curr, last *PTEntry) {})

	entry, isNew := pt.Track(0x1000, &State{}, 0)
	assert.True(t, isNew)
	assert.NotNil(t, entry)
}

func TestPrefetchTracker_TrackRejectsAlreadyTrackedAddress(t *testing.T) {
	pt := NewPrefetchTracker(func(curr, last *PTEntry) {})

	pt.Track(0x1000, &State{}, 0)
	entry, isNew := pt.Track(0x1000, &State{}, 1)
	assert.False(t, isNew)
	assert.Nil(t, entry)
}

func TestPrefetchTracker_SearchAllFindsEveryMatch(t *testing.T) {
	pt := NewPrefetchTracker(func(curr, last *PTEntry) {})
	pt.Track(NoPrefetchAddr, &State{}, 0)
	pt.Track(NoPrefetchAddr, &State{}, 1)

	all := pt.Search(NoPrefetchAddr, true)
	assert.Len(t, all, 2)

	oldest := pt.Search(NoPrefetchAddr, false)
	assert.Len(t, oldest, 1)
}

func TestPrefetchTracker_NoPrefetchAddrBypassesDedup(t *testing.T) {
	pt := NewPrefetchTracker(func(curr, last *PTEntry) {})

	first, isNew := pt.Track(NoPrefetchAddr, &State{}, 0)
	assert.True(t, isNew)
	second, isNew := pt.Track(NoPrefetchAddr, &State{}, 1)
	assert.True(t, isNew, "NoPrefetchAddr must not be single-tracked like a real address")
	assert.NotSame(t, first, second)
}

func TestPrefetchTracker_EvictionTrainsOncePriorEntryExists(t *testing.T) {
	var trained []*PTEntry
	pt := NewPrefetchTracker(func(curr, last *PTEntry) {
		trained = append(trained, curr, last)
	})

	for i := 0; i < PrefetchTrackerSize; i++ {
		pt.Track(uint64(i+1), &State{}, 0)
	}
	assert.Nil(t, trained, "no eviction yet — tracker is exactly full, not over")

	// This next Track evicts entry 1 (the first eviction, no prior lastEvicted
	// to pair it with yet).
	pt.Track(uint64(PrefetchTrackerSize+1), &State{}, 0)
	assert.Nil(t, trained)

	// The eviction after that pairs the two.
	pt.Track(uint64(PrefetchTrackerSize+2), &State{}, 0)
	assert.Len(t, trained, 2)
}
