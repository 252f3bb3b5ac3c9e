package scooby

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Learning-engine tuning (§4.12, §9's knob defaults).
const (
	Alpha = 0.006508802942367162
	Gamma = 0.556300959940946
	Epsilon = 0.0018228444309622588
	Seed    = 200

	// FeatureTiles bounds each featurewise table's per-feature state
	// dimension — analogous to MaxStates for the basic engine but much
	// smaller, since a feature is one scalar rather than the whole state.
	FeatureTiles = 128
)

// Engine is the learning-engine trait §9 calls out to replace the
// original's two-engine inheritance with a sum type behind one interface:
// choose an action for a state, learn from an observed transition, and
// report a stats snapshot.
type Engine interface {
	ChooseAction(state *State, numActions int) (action int, maxToAvgQ float64, consensus []bool)
	Learn(s *State, action int, reward int32, sNext *State, actionNext int, consensus []bool)
	DumpStats() map[string]float64
}

// BasicEngine is the dense Q-table engine (§3, §4.12): one row per state
// index in [0, MaxStates), one column per action, backed by gonum's
// mat.Dense rather than a hand-rolled 2D slice.
type BasicEngine struct {
	q         *mat.Dense
	numStates int
	rng       *rand.Rand
	updates   uint64
}

// NewBasicEngine constructs a zero-initialized Q-table.
func NewBasicEngine() *BasicEngine {
	return &BasicEngine{
		q:         mat.NewDense(MaxStates, len(DefaultActions), nil),
		numStates: MaxStates,
		rng:       rand.New(rand.NewSource(Seed)),
	}
}

// ChooseAction implements Engine via ε-greedy selection over the state's
// dense Q-row (§4.12).
func (e *BasicEngine) ChooseAction(state *State, numActions int) (int, float64, []bool) {
	s := int(state.Value())
	if e.rng.Float64() < Epsilon {
		return e.rng.Intn(numActions), 1.0, nil
	}
	best, bestQ := 0, e.q.At(s, 0)
	for a := 1; a < numActions; a++ {
		if v := e.q.At(s, a); v > bestQ {
			best, bestQ = a, v
		}
	}
	return best, 1.0, nil
}

// Learn implements Engine's SARSA update (§4.12):
// Q(s,a) += alpha * (r + gamma*Q(s',a') - Q(s,a)).
func (e *BasicEngine) Learn(s *State, action int, reward int32, sNext *State, actionNext int, _ []bool) {
	si, sni := int(s.Value()), int(sNext.Value())
	cur := e.q.At(si, action)
	next := e.q.At(sni, actionNext)
	td := float64(reward) + Gamma*next - cur
	e.q.Set(si, action, cur+Alpha*td)
	e.updates++
}

// DumpStats implements Engine.
func (e *BasicEngine) DumpStats() map[string]float64 {
	return map[string]float64{"scooby_basic_updates": float64(e.updates)}
}

// featureTable is one feature's tile-coded weight table plus its (static)
// contribution weight.
type featureTable struct {
	feature int
	weight  float64
	q       *mat.Dense
}

func tileCode(value uint32) int {
	return int(value) % FeatureTiles
}

// FeaturewiseEngine sums several per-feature tile-coded Q-tables, each
// voting on the action with a fixed weight (§4.12): `Q = Σ_f w_f ·
// Q_f(tileCode_f(state), action)`. The default feature set — delta
// signature and offset — mirrors the original's
// `le_featurewise_active_features = {0, 10}` (renumbered to this port's
// small concrete feature set, §9).
type FeaturewiseEngine struct {
	tables  []featureTable
	rng     *rand.Rand
	updates uint64
}

// NewFeaturewiseEngine constructs the default two-feature engine.
func NewFeaturewiseEngine() *FeaturewiseEngine {
	mkTable := func(feature int) featureTable {
		return featureTable{feature: feature, weight: 1.0, q: mat.NewDense(FeatureTiles, len(DefaultActions), nil)}
	}
	return &FeaturewiseEngine{
		tables: []featureTable{mkTable(FeatureDeltaSig), mkTable(FeatureOffset)},
		rng:    rand.New(rand.NewSource(Seed)),
	}
}

// combinedQ returns the weighted-sum Q-vector over all actions, plus each
// feature's own per-action Q (for consensus computation).
func (e *FeaturewiseEngine) combinedQ(state *State, numActions int) (total []float64, perFeature [][]float64) {
	total = make([]float64, numActions)
	perFeature = make([][]float64, len(e.tables))
	for fi, ft := range e.tables {
		idx := tileCode(state.featureValue(ft.feature))
		row := make([]float64, numActions)
		for a := 0; a < numActions; a++ {
			row[a] = ft.q.At(idx, a)
			total[a] += ft.weight * row[a]
		}
		perFeature[fi] = row
	}
	return total, perFeature
}

// ChooseAction implements Engine (§4.12): ε-greedy over the combined
// Q-vector, plus max-to-average-Q ratio (used for dynamic degree) and a
// consensus bitvector recording which features' own argmax agreed with the
// chosen action (used for selective-update training).
func (e *FeaturewiseEngine) ChooseAction(state *State, numActions int) (int, float64, []bool) {
	total, perFeature := e.combinedQ(state, numActions)

	var action int
	if e.rng.Float64() < Epsilon {
		action = e.rng.Intn(numActions)
	} else {
		best, bestQ := 0, total[0]
		for a := 1; a < numActions; a++ {
			if total[a] > bestQ {
				best, bestQ = a, total[a]
			}
		}
		action = best
	}

	sum := 0.0
	for _, v := range total {
		sum += v
	}
	avg := sum / float64(numActions)
	ratio := 1.0
	if avg != 0 {
		ratio = total[action] / avg
	}

	consensus := make([]bool, len(e.tables))
	for fi, row := range perFeature {
		best := 0
		for a := 1; a < len(row); a++ {
			if row[a] > row[best] {
				best = a
			}
		}
		consensus[fi] = best == action
	}

	return action, ratio, consensus
}

// Learn implements Engine's SARSA update, applied to every feature table —
// or, when consensus is non-nil and a feature disagreed with the action
// taken, skipped for that feature (`le_featurewise_selective_update`).
func (e *FeaturewiseEngine) Learn(s *State, action int, reward int32, sNext *State, actionNext int, consensus []bool) {
	for fi, ft := range e.tables {
		if consensus != nil && fi < len(consensus) && !consensus[fi] {
			continue
		}
		idx := tileCode(s.featureValue(ft.feature))
		idxNext := tileCode(sNext.featureValue(ft.feature))
		cur := ft.q.At(idx, action)
		next := ft.q.At(idxNext, actionNext)
		td := float64(reward) + Gamma*next - cur
		ft.q.Set(idx, action, cur+Alpha*td)
	}
	e.updates++
}

// DumpStats implements Engine.
func (e *FeaturewiseEngine) DumpStats() map[string]float64 {
	return map[string]float64{"scooby_featurewise_updates": float64(e.updates)}
}
