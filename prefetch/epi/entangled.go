package epi

import "github.com/prefetchsim/prefetchsim/prefetch"

const (
	// EntangledTableSets is the number of sets in the entangled table
	// (§4.5: 256, indexed by an 8-bit hash).
	EntangledTableSets = 256
	// EntangledTableWays is the associativity of the entangled table.
	EntangledTableWays = 16
	// MaxSuccessors is the number of successor slots a row carries,
	// equal to the number of compression formats (§4.5).
	MaxSuccessors = 6
	// ConfidenceMax is the saturating counter ceiling for a successor
	// slot's confidence.
	ConfidenceMax = 3
	// ConfidenceThreshold is the minimum confidence for a slot to count
	// as a live successor.
	ConfidenceThreshold = 1
)

// successorFormats are the bit-shift amounts the six compression
// formats use (§4.5): format i keeps the low successorFormats[i-1] bits
// of the successor address and reconstructs the rest from the
// triggering line, coarsest (format 1) to finest (format 6).
var successorFormats = [MaxSuccessors]uint{58, 28, 18, 13, 10, 8}

func formatShift(format int) uint {
	return successorFormats[format-1]
}

// extendFormat reconstructs a full successor address from a triggering
// line and a compressed successor value stored under format.
func extendFormat(line, compressed uint64, format int) uint64 {
	shift := formatShift(format)
	return (line &^ prefetch.Mask(shift)) | (compressed & prefetch.Mask(shift))
}

// compressFormat keeps only the low bits of successor that format's
// shift preserves.
func compressFormat(successor uint64, format int) uint64 {
	return successor & prefetch.Mask(formatShift(format))
}

// bestFormat returns the finest (most-compressed) format whose
// reconstruction of successor from line is exact — the smallest format
// number is coarsest, so the search runs from the finest format down.
// It panics if not even the coarsest format covers the pair.
func bestFormat(line, successor uint64) int {
	for f := MaxSuccessors; f >= 1; f-- {
		if line>>formatShift(f) == successor>>formatShift(f) {
			return f
		}
	}
	panic("epi: no successor format covers line and successor")
}

func hashLine(line uint64) uint64 {
	return line ^ (line >> 2) ^ (line >> 5)
}

// EntangledRow is one entangled-table entry (§4.5): a single compression
// format shared by all of its successor slots, a confidence counter per
// slot, and the largest basic-block size observed starting at this line.
type EntangledRow struct {
	Format      int
	Successors  [MaxSuccessors]uint64
	Confidence  [MaxSuccessors]uint8
	BBSize      uint8
}

func newEntangledRow() EntangledRow {
	return EntangledRow{Format: 1}
}

// EntangledTable is the set-associative table of §4.5, storing compressed
// multi-successor rows with a per-set FIFO allocation pointer that tries
// to reuse an already-unused way before evicting useful information.
type EntangledTable struct {
	table   *prefetch.SetAssocTable[EntangledRow]
	fifoPtr []int
}

// NewEntangledTable constructs an empty entangled table.
func NewEntangledTable() *EntangledTable {
	return &EntangledTable{
		table:   prefetch.NewSetAssocTable[EntangledRow](EntangledTableSets, EntangledTableWays, prefetch.FIFO),
		fifoPtr: make([]int, EntangledTableSets),
	}
}

func (e *EntangledTable) findWay(line uint64) (set, way int, ok bool) {
	return e.table.Find(hashLine(line))
}

// rowHasLiveSuccessor reports whether way in set holds any successor at
// or above ConfidenceThreshold.
func (e *EntangledTable) rowHasLiveSuccessor(set, way int) bool {
	row, valid := e.table.Get(set, way)
	if !valid {
		return false
	}
	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] >= ConfidenceThreshold {
			return true
		}
	}
	return false
}

// reallocateFifoSlot tries to find a better way than the current FIFO
// pointer to sacrifice for the next allocation, preferring a way with
// no live successors and, among those, one that also carries no
// recorded basic-block size — mirroring the original's two-level
// "free_with_size" preference (§4.5).
func (e *EntangledTable) reallocateFifoSlot(set int) {
	way := e.fifoPtr[set]
	row, _ := e.table.Get(set, way)
	if !e.rowHasLiveSuccessor(set, way) && row.BBSize == 0 {
		return
	}

	freeWay := way
	freeWithSize := false
	for i := (way + 1) % EntangledTableWays; i != way; i = (i + 1) % EntangledTableWays {
		if e.rowHasLiveSuccessor(set, i) {
			continue
		}
		candidate, _ := e.table.Get(set, i)
		if freeWay == way {
			freeWay = i
			freeWithSize = candidate.BBSize != 0
		} else if freeWithSize && candidate.BBSize == 0 {
			freeWay = i
			freeWithSize = false
			break
		}
	}

	if freeWay != way && (!freeWithSize || !e.rowHasLiveSuccessor(set, way)) {
		e.table.MoveWay(set, way, freeWay)
	}
}

// allocateWay finds line's existing row, or allocates a fresh one at the
// set's FIFO pointer (after trying to reclaim a better slot first),
// advancing the pointer.
func (e *EntangledTable) allocateWay(line uint64) (set, way int) {
	set, way, ok := e.findWay(line)
	if ok {
		return set, way
	}
	set = int(hashLine(line) % EntangledTableSets)
	e.reallocateFifoSlot(set)
	way = e.fifoPtr[set]
	e.table.InsertAt(hashLine(line), way, newEntangledRow())
	e.fifoPtr[set] = (way + 1) % EntangledTableWays
	return set, way
}

// AddEntangled records that line was followed by successor (§4.5): if an
// existing slot already encodes successor under the row's format its
// confidence is refreshed to max; otherwise a new slot is allocated,
// evicting the lowest-confidence slot if the row's format can no longer
// cover every live successor's natural format, downgrading (coarsening)
// the row's format and recompressing its survivors when eviction isn't
// needed.
func (e *EntangledTable) AddEntangled(line, successor uint64) {
	set, way := e.allocateWay(line)
	row, _ := e.table.Get(set, way)

	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] >= ConfidenceThreshold && extendFormat(line, row.Successors[k], row.Format) == successor {
			row.Confidence[k] = ConfidenceMax
			e.table.Set(set, way, row)
			return
		}
	}

	newFormat := bestFormat(line, successor)

	for {
		minFormat := newFormat
		numValid := 1
		minValue := uint8(ConfidenceMax + 1)
		minPos := 0
		for k := 0; k < MaxSuccessors; k++ {
			if row.Confidence[k] < ConfidenceThreshold {
				continue
			}
			numValid++
			fk := bestFormat(line, extendFormat(line, row.Successors[k], row.Format))
			if fk < minFormat {
				minFormat = fk
			}
			if row.Confidence[k] < minValue {
				minValue = row.Confidence[k]
				minPos = k
			}
		}
		if numValid > minFormat {
			row.Confidence[minPos] = 0
			continue
		}
		for k := 0; k < MaxSuccessors; k++ {
			if row.Confidence[k] >= ConfidenceThreshold {
				row.Successors[k] = compressFormat(extendFormat(line, row.Successors[k], row.Format), minFormat)
			}
		}
		row.Format = minFormat
		break
	}

	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] < ConfidenceThreshold {
			row.Successors[k] = compressFormat(successor, row.Format)
			row.Confidence[k] = ConfidenceMax
			break
		}
	}
	e.table.Set(set, way, row)
}

// AddBBSize records bbSize as line's basic-block size if it's larger
// than what's already stored, allocating a row if line has none yet.
func (e *EntangledTable) AddBBSize(line uint64, bbSize uint8) {
	set, way := e.allocateWay(line)
	row, _ := e.table.Get(set, way)
	if bbSize > row.BBSize {
		row.BBSize = bbSize
		e.table.Set(set, way, row)
	}
}

// Successors returns every live (confidence >= ConfidenceThreshold)
// successor address recorded for line.
func (e *EntangledTable) Successors(line uint64) []uint64 {
	set, way, ok := e.findWay(line)
	if !ok {
		return nil
	}
	row, _ := e.table.Get(set, way)
	out := make([]uint64, 0, MaxSuccessors)
	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] >= ConfidenceThreshold {
			out = append(out, extendFormat(line, row.Successors[k], row.Format))
		}
	}
	return out
}

// BBSize returns the basic-block size recorded for line, or 0 if line
// has no row.
func (e *EntangledTable) BBSize(line uint64) uint8 {
	set, way, ok := e.findWay(line)
	if !ok {
		return 0
	}
	row, _ := e.table.Get(set, way)
	return row.BBSize
}

// UpdateConfidence adjusts the confidence of the successor slot on
// (set, way) that matches successor (compressed under the row's current
// format), incrementing on a hit and decrementing on a miss; it is a
// no-op if no slot matches.
func (e *EntangledTable) UpdateConfidence(set, way int, successor uint64, hit bool) {
	row, valid := e.table.Get(set, way)
	if !valid {
		return
	}
	target := compressFormat(successor, row.Format)
	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] < ConfidenceThreshold || row.Successors[k] != target {
			continue
		}
		if hit {
			row.Confidence[k] = prefetch.SatIncr(row.Confidence[k], ConfidenceMax)
		} else {
			row.Confidence[k] = prefetch.SatDecr(row.Confidence[k])
		}
		e.table.Set(set, way, row)
		return
	}
}

// AvailEntangled reports whether line's row has room to add successor
// without evicting a currently-live slot: either successor is already
// recorded, or the row (including successor) can still be expressed
// with at most as many live slots as its natural format allows. When
// line has no row at all, insertNotPresent is returned directly — the
// caller decides whether "would need a fresh row" counts as available.
func (e *EntangledTable) AvailEntangled(line, successor uint64, insertNotPresent bool) bool {
	set, way, ok := e.findWay(line)
	if !ok {
		return insertNotPresent
	}
	row, _ := e.table.Get(set, way)

	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] >= ConfidenceThreshold && extendFormat(line, row.Successors[k], row.Format) == successor {
			return true
		}
	}

	minFormat := bestFormat(line, successor)
	numValid := 1
	for k := 0; k < MaxSuccessors; k++ {
		if row.Confidence[k] < ConfidenceThreshold {
			continue
		}
		numValid++
		fk := bestFormat(line, extendFormat(line, row.Successors[k], row.Format))
		if fk < minFormat {
			minFormat = fk
		}
	}
	return numValid <= minFormat
}

// Row returns the stored row and way coordinates for line, for callers
// (the EPI controller) that need to hold a stable (set, way) pointer
// across a fill for later UpdateConfidence calls.
func (e *EntangledTable) Row(line uint64) (set, way int, row EntangledRow, ok bool) {
	set, way, ok = e.findWay(line)
	if !ok {
		return 0, 0, EntangledRow{}, false
	}
	row, _ = e.table.Get(set, way)
	return set, way, row, true
}
