package prefetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAssocTable_LRU_EvictsLeastRecentlyUsed(t *testing.T) {
	// GIVEN a 1-set, 2-way LRU table
	tbl := NewSetAssocTable[int](1, 2, LRU)

	set, way, _, evicted := tbl.Insert(0x10, 1)
	require.False(t, evicted)
	tbl.Touch(set, way)

	_, _, _, evicted = tbl.Insert(0x20, 2)
	require.False(t, evicted)

	// WHEN touching 0x10 (making 0x20 the LRU), then inserting a third key
	s1, w1, _ := tbl.Find(0x10)
	tbl.Touch(s1, w1)

	_, _, evictedTag, evicted := tbl.Insert(0x30, 3)

	// THEN 0x20's tag was evicted, not 0x10's
	require.True(t, evicted)
	assert.Equal(t, tbl.Get0x20Tag(), evictedTag)
	_, _, ok := tbl.Find(0x10)
	assert.True(t, ok, "0x10 must survive eviction")
}

// Get0x20Tag is a tiny test helper exposing the tag math for 0x20 in a
// 1-set table (tag = key >> log2(sets)).
func (t *SetAssocTable[V]) Get0x20Tag() uint64 { return uint64(0x20) >> t.tagShift }

func TestSetAssocTable_FIFO_EvictsInInsertionOrder(t *testing.T) {
	// GIVEN a 1-set, 2-way FIFO table, filled then touched (touch is a
	// no-op under FIFO)
	tbl := NewSetAssocTable[string](1, 2, FIFO)
	tbl.Insert(0x1, "a")
	tbl.Insert(0x2, "b")
	if s, w, ok := tbl.Find(0x1); ok {
		tbl.Touch(s, w)
	}

	// WHEN a third key is inserted
	_, _, evictedTag, evicted := tbl.Insert(0x3, "c")

	// THEN the first-inserted key (0x1) is evicted regardless of touch
	require.True(t, evicted)
	assert.Equal(t, uint64(0x1)>>tbl.tagShift, evictedTag)
}

func TestSetAssocTable_DistinctTagsPerSet(t *testing.T) {
	// Universal invariant (§8): within a set, way indices hold distinct
	// tags.
	tbl := NewSetAssocTable[int](4, 4, LRU)
	keys := []uint64{0x100, 0x200, 0x300, 0x400, 0x500}
	for i, k := range keys {
		tbl.Insert(k, i)
	}
	for s := 0; s < tbl.Sets(); s++ {
		seen := map[uint64]bool{}
		for w := 0; w < tbl.Ways(); w++ {
			if _, ok := tbl.Get(s, w); ok {
				tag := tbl.Tag(s, w)
				assert.False(t, seen[tag], "duplicate tag %d in set %d", tag, s)
				seen[tag] = true
			}
		}
	}
}

func TestSetAssocTable_InsertAt_Forced(t *testing.T) {
	tbl := NewSetAssocTable[int](1, 2, FIFO)
	tbl.InsertAt(0x10, 1, 42)
	v, ok := tbl.Get(0, 1)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, uint64(0x10), tbl.Tag(0, 1))
}

func TestSetAssocTable_Invalidate(t *testing.T) {
	tbl := NewSetAssocTable[int](1, 1, LRU)
	tbl.Insert(0x10, 1)
	tbl.Invalidate(0, 0)
	_, ok := tbl.Get(0, 0)
	assert.False(t, ok)
	_, _, ok2 := tbl.Find(0x10)
	assert.False(t, ok2)
}
