package scooby

import "github.com/prefetchsim/prefetchsim/prefetch"

// MaxStates bounds the basic learning engine's dense state index (§4.12).
const MaxStates = 1024

// State is the feature vector captured at the moment a prefetch decision is
// made (§4.12): {PC, page, offset, last delta, 4 signature features,
// bandwidth level, is_high_bw, cache-access level}. It is attached to the
// prefetch-tracker entry the decision produced, and read back unchanged at
// training time.
type State struct {
	PC      uint64
	Address uint64
	Page    uint64
	Offset  int32

	Delta        int32
	DeltaSig     uint32
	DeltaSig2    uint32
	PCSig        uint32
	OffsetSig    uint32

	BWLevel  int
	IsHighBW bool
	AccLevel int
}

// Value hashes the state down to a dense index in [0, MaxStates) for the
// basic learning engine's Q-table (§4.12's scooby_state_type == basic).
// Folding every field except Address through XOR keeps distinct feature combinations from
// trivially colliding while staying cheap enough to call on every access.
func (s *State) Value() uint32 {
	h := uint32(s.PC) ^ uint32(s.Page)*2654435761 ^ uint32(s.Offset)<<6
	h ^= uint32(s.Delta) << 10
	h ^= s.DeltaSig ^ (s.DeltaSig2 << 1) ^ (s.PCSig << 2) ^ (s.OffsetSig << 3)
	h ^= uint32(s.BWLevel) << 16
	if s.IsHighBW {
		h ^= 1 << 20
	}
	h ^= uint32(s.AccLevel) << 22
	return h % MaxStates
}

// featureValue extracts the scalar a given feature index trains on, for the
// featurewise engine's per-feature tile coding (§4.12). Feature 0 is the
// local delta signature and feature 1 is the offset — the two the original
// enables by default (`le_featurewise_active_features = {0, 10}`,
// renumbered here to a small contiguous set since this port only wires the
// features it can ground in a concrete signal).
func (s *State) featureValue(feature int) uint32 {
	switch feature {
	case FeatureDeltaSig:
		return s.DeltaSig
	case FeatureOffset:
		return uint32(s.Offset) & uint32(prefetch.Mask(6))
	default:
		return 0
	}
}

// Feature indices for the featurewise engine (§4.12).
const (
	FeatureDeltaSig = 0
	FeatureOffset   = 1
)
