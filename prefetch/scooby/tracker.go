package scooby

// PrefetchTrackerSize bounds the in-flight prefetch FIFO (§3, §4.11).
const PrefetchTrackerSize = 256

// NoPrefetchAddr is the sentinel tracked in place of a real address when the
// policy chooses not to prefetch, or when an issued prefetch falls outside
// the page — it can never collide with a real block address (§4.11).
const NoPrefetchAddr = 0xdeadbeef

// RewardType names which of §4.12's reward table rows applies to a tracker
// entry once its outcome is known.
type RewardType int

const (
	RewardNone RewardType = iota
	RewardIncorrect
	RewardCorrectUntimely
	RewardCorrectTimely
	RewardOutOfBounds
	RewardTrackerHit
)

// PTEntry is one prefetch-tracker record (§3, §4.11): the state and action
// that produced it, its outcome flags, and the reward assigned to it
// exactly once before it is freed.
type PTEntry struct {
	Address      uint64
	State        *State
	ActionIndex  int
	IsFilled     bool
	PFCacheHit   bool
	HasReward    bool
	Reward       int32
	RewardType   RewardType
	ConsensusVec []bool
}

// PrefetchTracker is the FIFO of in-flight prefetches (§3, §4.11): tracking
// a new address appends a record; evicting the oldest triggers onEvict with
// the newly-evicted record and whatever record was evicted just before it,
// which is exactly the (s',a') / (s,a,r) pair a SARSA update needs.
type PrefetchTracker struct {
	entries     []*PTEntry
	lastEvicted *PTEntry
	onEvict     func(currEvicted, lastEvicted *PTEntry)
}

// NewPrefetchTracker constructs an empty tracker. onEvict is called once
// for every eviction after the first, matching the original's inability to
// train before a second entry exists to supply (s',a').
func NewPrefetchTracker(onEvict func(currEvicted, lastEvicted *PTEntry)) *PrefetchTracker {
	return &PrefetchTracker{onEvict: onEvict}
}

// Search returns the tracked entries for addr. all=false stops at the
// first (oldest) match, matching search_pt's default "search_all=false".
func (t *PrefetchTracker) Search(addr uint64, all bool) []*PTEntry {
	var found []*PTEntry
	for _, e := range t.entries {
		if e.Address == addr {
			found = append(found, e)
			if !all {
				break
			}
		}
	}
	return found
}

// Track records a new in-flight prefetch for addr/state/action, unless addr
// is already tracked (single-tracking — §3's "at most one in-flight
// prefetch per (state,action) pair... unless track multiple is set", and
// this port does not enable track-multiple, matching the original's
// default knob). The dedup check is skipped for NoPrefetchAddr: every
// no-prefetch/out-of-bounds decision still needs its own tracker entry to
// be rewarded and trained on, not just the first one in flight. Returns
// the new entry and true iff addr wasn't already tracked.
func (t *PrefetchTracker) Track(addr uint64, state *State, action int) (*PTEntry, bool) {
	if addr != NoPrefetchAddr {
		if existing := t.Search(addr, false); len(existing) > 0 {
			return nil, false
		}
	}

	if len(t.entries) >= PrefetchTrackerSize {
		victim := t.entries[0]
		t.entries = t.entries[1:]
		if t.lastEvicted != nil {
			t.onEvict(victim, t.lastEvicted)
		}
		t.lastEvicted = victim
	}

	e := &PTEntry{Address: addr, State: state, ActionIndex: action}
	t.entries = append(t.entries, e)
	return e, true
}
