package epi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryWindow_AddTracksTimeDiffFromHead(t *testing.T) {
	h := NewHistoryWindow(100)
	h.Add(0x1000, 110)
	e, ok := h.ring.At(0)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), e.TimeDiff)
	assert.Equal(t, uint64(110), h.HeadTime())
}

func TestHistoryWindow_AddInsertsFillerOnLargeGap(t *testing.T) {
	h := NewHistoryWindow(0)
	// a gap bigger than the overflow window must not silently wrap
	h.Add(0x2000, TimeDiffOverflow+5)
	assert.True(t, h.ring.Active() >= 2)
}

func TestHistoryWindow_SetBBSizeUpdatesMatchingTag(t *testing.T) {
	h := NewHistoryWindow(0)
	h.Add(0x3000, 5)
	h.Add(0x4000, 9)
	h.SetBBSize(0x3000, 4)
	e, ok := h.ring.At(1)
	assert.True(t, ok)
	assert.Equal(t, uint8(4), e.BBSize)
}

func TestHistoryWindow_FindBBMergeWithinScanDepth(t *testing.T) {
	h := NewHistoryWindow(0)
	h.Add(0x1000, 1)
	h.SetBBSize(0x1000, 3)
	h.Add(0x5000, 2)
	gap, merged := h.FindBBMerge(0x1002)
	assert.True(t, merged)
	assert.Equal(t, uint64(2), gap)
}

func TestHistoryWindow_FindBBMergeNoCandidate(t *testing.T) {
	h := NewHistoryWindow(0)
	h.Add(0x1000, 1)
	_, merged := h.FindBBMerge(0x9000)
	assert.False(t, merged)
}

func TestHistoryWindow_GetBERE_FindsEarlierCandidatePastLatency(t *testing.T) {
	h := NewHistoryWindow(0)
	h.Add(0x1000, 0)               // idx 0
	h.Add(0x2000, 50)              // idx 1, time_diff 50
	posHist := h.Add(0x3000, 60)   // idx 2, time_diff 10
	e, ok := h.GetBERE(0x3000, posHist, 5, 0)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x2000)&((uint64(1)<<HistoryTagBits)-1), e.Tag)
}

func TestHistoryWindow_GetBERE_AbortsOnRepeatedTag(t *testing.T) {
	h := NewHistoryWindow(0)
	h.Add(0x1000, 0)
	h.Add(0x1000, 50)
	posHist := h.Add(0x1000, 60)
	_, ok := h.GetBERE(0x1000, posHist, 10, 0)
	assert.False(t, ok)
}

func TestHistoryWindow_GetBERE_WrongPosHistTagFails(t *testing.T) {
	h := NewHistoryWindow(0)
	posHist := h.Add(0x1000, 0)
	h.Add(0x2000, 5)
	_, ok := h.GetBERE(0x3000, posHist, 1, 0)
	assert.False(t, ok)
}
