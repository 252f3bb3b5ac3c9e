package mana

// Stream is one Stream Address Buffer entry (§4.7): a sliding window of
// the last TrackerSize spatial regions prefetched along this stream, plus
// the table pointer chasing produces the next one from.
type Stream struct {
	TailPtr TablePtr
	Entries []*Region
}

func newStream(size int) *Stream {
	return &Stream{Entries: make([]*Region, size)}
}

// LookaheadRange is a chase request (§4.7's Range): chase Tail forward
// Length times to keep this stream's SAB the configured lookahead ahead
// of the fetch stream.
type LookaheadRange struct {
	Stream *Stream
	Tail   TablePtr
	Length int
}

// Tracker is the set of SABs (§4.7): StreamCount streams of TrackerSize
// regions each, replaced LRU, chased Lookahead regions ahead of whatever
// triggered them.
type Tracker struct {
	streams     []*Stream
	trackerSize int
	lookahead   int
}

// NewTracker constructs a tracker with streamCount empty streams.
func NewTracker(streamCount, trackerSize, lookahead int) *Tracker {
	t := &Tracker{trackerSize: trackerSize, lookahead: lookahead}
	for i := 0; i < streamCount; i++ {
		t.streams = append(t.streams, newStream(trackerSize))
	}
	return t
}

// promote moves streams[i] to the front, preserving the order of the rest.
func (t *Tracker) promote(i int) {
	s := t.streams[i]
	copy(t.streams[1:i+1], t.streams[:i])
	t.streams[0] = s
}

// Lookup reports whether block has already been observed inside one of
// the tracked streams' regions (§4.7: inRange AND already prefetched —
// a region that merely covers block but hasn't recorded it yet is not a
// stream hit). On a hit, the matching stream is promoted to MRU and the
// returned range says how many further regions must be chased to
// maintain the lookahead.
func (t *Tracker) Lookup(block uint64) (rng LookaheadRange, hit bool) {
	for si, s := range t.streams {
		for n, region := range s.Entries {
			if region == nil {
				continue
			}
			inRange, observed := region.InRange(block)
			if !inRange || !observed {
				continue
			}
			t.promote(si)
			length := t.lookahead - (t.trackerSize - n)
			if length < 0 {
				length = 0
			}
			return LookaheadRange{Stream: s, Tail: s.TailPtr, Length: length}, true
		}
	}
	return LookaheadRange{}, false
}

// PushBack appends region to rng's stream, dropping its oldest entry.
func (t *Tracker) PushBack(rng LookaheadRange, region *Region) {
	s := rng.Stream
	s.Entries = append(s.Entries[1:], region)
}

// Allocate evicts the LRU stream, reseeds it to chase ptr, and promotes
// it to MRU.
func (t *Tracker) Allocate(ptr TablePtr) LookaheadRange {
	victim := t.streams[len(t.streams)-1]
	victim.Entries = make([]*Region, t.trackerSize)
	victim.TailPtr = ptr
	copy(t.streams[1:], t.streams[:len(t.streams)-1])
	t.streams[0] = victim
	return LookaheadRange{Stream: victim, Tail: ptr, Length: t.lookahead}
}

// SRQ is the fixed-size FIFO of spatial regions still under construction
// (§4.7): a newly observed block extends whichever region already covers
// it; otherwise the oldest region is evicted (for the caller to record
// into the tables) to make room for a fresh one anchored at the new
// block.
type SRQ struct {
	regions []*Region
}

// NewSRQ constructs an SRQ of the given size, seeded with dummy regions
// exactly as the original does (trigger addresses 1..size, never
// matched by a real block).
func NewSRQ(size int) *SRQ {
	s := &SRQ{regions: make([]*Region, size)}
	for i := range s.regions {
		s.regions[i] = NewRegion(uint64(i + 1))
	}
	return s
}

// Observe extends whichever region covers block and returns (nil, false).
// If none does, it evicts the oldest region — returned for the caller to
// record — and starts tracking block in a fresh one.
func (s *SRQ) Observe(block uint64) (evicted *Region, evictedOK bool) {
	for _, r := range s.regions {
		if inRange, _ := r.InRange(block); inRange {
			r.Observe(block)
			return nil, false
		}
	}
	victim := s.regions[0]
	s.regions = append(s.regions[1:], NewRegion(block))
	return victim, true
}
