package mana

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

const (
	// SingleTableSets, SingleTableWays, SingleTableHistorySize configure
	// MANA_TABLE (single) (§4.8): one recorded successor per row.
	SingleTableSets          = 4096
	SingleTableWays          = 4
	SingleTableHistorySize   = 1
	SinglePartialTagShift    = 2

	// MultipleTableSets, MultipleTableWays, MultipleTableHistorySize
	// configure MANA_TABLE (multiple): rows promoted from the single table
	// once they gain a second, distinct successor get up to four.
	MultipleTableSets        = 1024
	MultipleTableWays        = 4
	MultipleTableHistorySize = 4
)

// MultiplePartialTagShift mirrors MANA_TABLE_MULTIPLE_TAG_DOMAIN: enough
// bits to cover whatever the single table's partial tag and set index
// together addressed, minus the multiple table's own (larger) set index.
var MultiplePartialTagShift = int64(prefetch.Log2Ceil(SingleTableSets)) + SinglePartialTagShift - int64(prefetch.Log2Ceil(MultipleTableSets))

// TablePtr identifies one row of one Table — the successor-pointer type
// chased through CIRCULAR_HISTORY rings and held by a stream's tail
// pointer (§4.7, §4.8). A nil Table marks an invalid/absent pointer.
type TablePtr struct {
	Set   int
	Way   int
	Table *Table
}

// Valid reports whether p names a real row.
func (p TablePtr) Valid() bool { return p.Table != nil }

// Row is one MANA table entry (§4.8): a partial tag plus an HOBPT index
// that together reconstruct the full trigger block, the region's
// footprint, and a successor ring (capacity 1 in the single table,
// 4 in the multiple table).
type Row struct {
	PartialTag uint64
	HOBSet     int
	HOBWay     int
	Footprint  *bitset.BitSet
	Successors *prefetch.Ring[TablePtr]
}

// Table is one MANA table (single or multiple) — a set-associative table
// of Rows under LRU replacement, reconstructing each row's full tag from
// a partial tag plus a shared HOBPT lookup rather than storing the tag
// in full (§4.8). Lookups use the embedded SetAssocTable's own tag match
// directly (set/tag derive from the trigger block exactly as the HOBPT
// reconstruction would reproduce it — the partial-tag/HOBPT split is a
// storage-cost modeling detail, not a different matching rule), while
// blockAt genuinely exercises HOBPT.Get to recover a row's address when
// no caller already holds it (the promotion path, which only has a
// (set, way) pointer to work from).
type Table struct {
	sets, ways int
	setMask    uint64
	setBits    uint
	tagShift   int64
	tagDomain  uint64

	historySize    int
	hasSecondTable bool
	hob            *HOBPT
	table          *prefetch.SetAssocTable[Row]
	other          *Table

	lastInserted       TablePtr
	secondLastInserted TablePtr
}

// NewTable constructs one MANA table.
func NewTable(sets, ways, historySize int, tagShift int64, hob *HOBPT, hasSecondTable bool) *Table {
	shiftMag := tagShift
	if shiftMag < 0 {
		shiftMag = -shiftMag
	}
	return &Table{
		sets:           sets,
		ways:           ways,
		setMask:        uint64(sets - 1),
		setBits:        prefetch.Log2Ceil(sets),
		tagShift:       tagShift,
		tagDomain:      uint64(1) << uint(shiftMag),
		historySize:    historySize,
		hasSecondTable: hasSecondTable,
		hob:            hob,
		table:          prefetch.NewSetAssocTable[Row](sets, ways, prefetch.LRU),
	}
}

// hobIndex computes where tag's high-order bits belong in the shared
// HOBPT, per §4.8's two tag-width regimes.
func (t *Table) hobIndex(block, tag uint64) (set, way int) {
	if t.tagShift >= 0 {
		return t.hob.Find(tag >> uint(t.tagShift))
	}
	shift := uint(-t.tagShift)
	pattern := (tag << shift) + ((block & t.setMask) >> (t.setBits - shift))
	return t.hob.Find(pattern)
}

// blockAt reconstructs the full trigger block stored at (set, way) from
// its partial tag and HOBPT index.
func (t *Table) blockAt(set, way int) uint64 {
	row, _ := t.table.Get(set, way)
	pattern := t.hob.Get(row.HOBSet, row.HOBWay)
	var tag uint64
	if t.tagShift >= 0 {
		tag = (pattern << uint(t.tagShift)) + row.PartialTag
	} else {
		tag = pattern >> uint(-t.tagShift)
	}
	return (tag << t.setBits) | uint64(set)
}

// Record records the spatial region evicted from the SRQ (§4.7's
// record(StreamEntry&)): a hit refreshes the row's footprint in place, a
// miss allocates a new row. Per the original's documented refusal,
// regions whose base block number is below 64 (base &^ 63 == 0) are
// never recorded. Returns true on a hit (row already existed), false on
// a fresh insert or a refused region.
func (t *Table) Record(region *Region) bool {
	block := region.Base
	if block & ^uint64(63) == 0 {
		return false
	}

	if set, way, found := t.table.Find(block); found {
		row, _ := t.table.Get(set, way)
		row.Footprint = region.Footprint()
		t.table.Set(set, way, row)
		t.table.Touch(set, way)
		t.afterRecord(TablePtr{Set: set, Way: way, Table: t})
		return true
	}

	tag := block >> t.setBits
	hobSet, hobWay := t.hobIndex(block, tag)
	row := Row{
		PartialTag: tag % t.tagDomain,
		HOBSet:     hobSet,
		HOBWay:     hobWay,
		Footprint:  region.Footprint(),
		Successors: prefetch.NewRing[TablePtr](t.historySize),
	}
	set, way, _, _ := t.table.Insert(block, row)
	t.afterRecord(TablePtr{Set: set, Way: way, Table: t})
	return false
}

// afterRecord updates whichever row was last recorded (across both
// tables, tracked jointly) to point its successor at nx, promoting it to
// the multiple table first if it has just gained a second, distinct
// successor (§4.8).
func (t *Table) afterRecord(nx TablePtr) {
	li := t.lastInserted
	if li.Table != nil {
		liRow, _ := li.Table.table.Get(li.Set, li.Way)
		if li.Table.hasSecondTable {
			if _, already := liRow.Successors.Find(nx); !already && liRow.Successors.Active() > 0 {
				li.Table.other.promoteFrom(li, nx)
				return
			}
		}
		liRow.Successors.Add(nx)
		li.Table.table.Set(li.Set, li.Way, liRow)
	}
	t.setInserted(nx)
}

// promoteFrom moves the row at li (living in the single table) into t
// (the multiple table) because li has just acquired a second successor
// the single table's one-entry history can't hold, then records that
// second successor. It panics if li no longer names a valid row.
func (t *Table) promoteFrom(li, nx TablePtr) {
	if _, valid := li.Table.table.Get(li.Set, li.Way); !valid {
		panic("mana: row being promoted is missing from its source table")
	}
	block := li.Table.blockAt(li.Set, li.Way)
	if _, _, found := t.table.Find(block); found {
		return
	}

	liRow, _ := li.Table.table.Get(li.Set, li.Way)
	tag := block >> t.setBits
	row := Row{
		PartialTag: tag % t.tagDomain,
		HOBSet:     liRow.HOBSet,
		HOBWay:     liRow.HOBWay,
		Footprint:  liRow.Footprint,
		Successors: liRow.Successors,
	}
	set, way, _, _ := t.table.Insert(block, row)
	li.Table.table.Invalidate(li.Set, li.Way)

	promoted := TablePtr{Set: set, Way: way, Table: t}

	if t.secondLastInserted.Table != nil {
		secondRow, _ := t.secondLastInserted.Table.table.Get(t.secondLastInserted.Set, t.secondLastInserted.Way)
		secondRow.Successors.Override(promoted)
		t.secondLastInserted.Table.table.Set(t.secondLastInserted.Set, t.secondLastInserted.Way, secondRow)
	}

	row.Successors.Resize(t.historySize)
	row.Successors.Add(nx)
	t.table.Set(set, way, row)

	t.setInserted(nx)
}

// setInserted records nx as the most recently inserted row, kept in sync
// across both tables so either can resolve the other's last insertion.
func (t *Table) setInserted(nx TablePtr) {
	t.secondLastInserted = t.lastInserted
	t.lastInserted = nx
	if t.other != nil {
		t.other.lastInserted = t.lastInserted
		t.other.secondLastInserted = t.secondLastInserted
	}
}

// GetPtr resolves block to its row, if any is recorded, promoting it to
// MRU.
func (t *Table) GetPtr(block uint64) (TablePtr, bool) {
	set, way, ok := t.table.Find(block)
	if !ok {
		return TablePtr{}, false
	}
	t.table.Touch(set, way)
	return TablePtr{Set: set, Way: way, Table: t}, true
}

// FastLookup reports whether block has a row, without promoting it.
func (t *Table) FastLookup(block uint64) bool {
	_, _, ok := t.table.Find(block)
	return ok
}

// Successor chases ptr's row to the successor CIRCULAR_HISTORY would
// predict (§4.2's Ring.Predict).
func (t *Table) Successor(ptr TablePtr) (TablePtr, bool) {
	row, _ := t.table.Get(ptr.Set, ptr.Way)
	return row.Successors.Predict()
}

// Read reconstructs the spatial region stored at ptr.
func Read(ptr TablePtr) (*Region, bool) {
	if ptr.Table == nil {
		return nil, false
	}
	base := ptr.Table.blockAt(ptr.Set, ptr.Way)
	row, _ := ptr.Table.table.Get(ptr.Set, ptr.Way)
	return RegionFromFootprint(base, row.Footprint), true
}

// Tables is the two-table manager of §4.8: a fast-path lookup against
// the multiple table (if enabled) falls back to the single table, both
// for recording new regions and for resolving a trigger address.
type Tables struct {
	Single          *Table
	Multiple        *Table
	supportMultiple bool
}

// NewTables constructs the single table and, if supportMultiple, the
// multiple table wired to share its HOBPT and to promote rows into each
// other.
func NewTables(hob *HOBPT, supportMultiple bool) *Tables {
	single := NewTable(SingleTableSets, SingleTableWays, SingleTableHistorySize, SinglePartialTagShift, hob, supportMultiple)
	tbls := &Tables{Single: single, supportMultiple: supportMultiple}
	if supportMultiple {
		multiple := NewTable(MultipleTableSets, MultipleTableWays, MultipleTableHistorySize, MultiplePartialTagShift, hob, false)
		single.other = multiple
		multiple.other = single
		tbls.Multiple = multiple
	}
	return tbls
}

// Record records region in whichever table is appropriate.
func (m *Tables) Record(region *Region) bool {
	if m.supportMultiple && m.Multiple.FastLookup(region.Base) {
		return m.Multiple.Record(region)
	}
	return m.Single.Record(region)
}

// GetPtr resolves block to a row in either table, single table first.
func (m *Tables) GetPtr(block uint64) (TablePtr, bool) {
	if ptr, ok := m.Single.GetPtr(block); ok {
		return ptr, true
	}
	if m.supportMultiple {
		return m.Multiple.GetPtr(block)
	}
	return TablePtr{}, false
}
