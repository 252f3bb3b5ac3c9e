package scooby

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

// fakeCache is a minimal prefetch.Cache stand-in recording every issued
// prefetch address.
type fakeCache struct {
	cycle  uint64
	issued []uint64
}

func (f *fakeCache) PrefetchLine(addr uint64, fillThisLevel bool, metadata uint32) bool {
	f.issued = append(f.issued, addr)
	return true
}

func (f *fakeCache) Cycle() uint64 { return f.cycle }
func (f *fakeCache) Sets() int     { return 64 }
func (f *fakeCache) Ways() int     { return 8 }

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// fixedActionEngine always returns the same action, for deterministic
// control over which branch of predict() a test exercises.
type fixedActionEngine struct{ action int }

func (f fixedActionEngine) ChooseAction(*State, int) (int, float64, []bool) { return f.action, 1.0, nil }
func (f fixedActionEngine) Learn(*State, int, int32, *State, int, []bool)   {}
func (f fixedActionEngine) DumpStats() map[string]float64                  { return nil }

func TestController_ActionZeroEmitsNoPrefetch(t *testing.T) {
	c := New(discardLogger(), false)
	c.Initialize(0)
	// Action index 14 is delta 0 ("no prefetch") in DefaultActions.
	c.engine = fixedActionEngine{action: 14}
	cache := &fakeCache{}

	c.CacheOperate(0x10000, 0x400, false, false, prefetch.AccessLoad, 0, cache)

	assert.Empty(t, cache.issued)
	assert.Len(t, c.pt.entries, 1)
	assert.Equal(t, uint64(NoPrefetchAddr), c.pt.entries[0].Address)
}

func TestController_RewardAssignedExactlyOnceOnDemandHit(t *testing.T) {
	c := New(discardLogger(), false)
	c.Initialize(0)
	cache := &fakeCache{}

	addr := uint64(0x2000)
	pte, _ := c.pt.Track(addr, &State{}, 0)
	c.CacheFill(addr, 0, 0, true, 0, 0, cache)
	assert.True(t, pte.IsFilled)

	c.reward(addr)
	assert.True(t, pte.HasReward)
	assert.Equal(t, RewardCorrectTimely, pte.RewardType)

	// A second demand to the same address must not reward it again.
	pte.Reward = 999
	c.reward(addr)
	assert.Equal(t, int32(999), pte.Reward)
}

func TestController_FinalStatsDoesNotPanic(t *testing.T) {
	c := New(discardLogger(), true)
	c.Initialize(0)
	assert.NotPanics(t, func() { c.FinalStats() })
}

func TestController_BroadcastUpdatesLevels(t *testing.T) {
	c := New(discardLogger(), false)
	c.Initialize(0)

	c.BroadcastBW(5)
	assert.True(t, c.isHighBW())
	c.BroadcastIPC(2)
	c.BroadcastAcc(1)
	assert.Equal(t, 1, c.accLevel)
}

func TestController_DynDegreeFollowsPageConfidence(t *testing.T) {
	c := New(discardLogger(), false)
	entry := NewSTEntry(0x1, 0x400, 0)

	assert.Equal(t, 1, c.dynDegree(entry, 4, 1.0), "untracked action defaults to degree 1")

	for i := 0; i < 2; i++ {
		entry.TrackAction(4)
	}
	assert.Equal(t, 2, c.dynDegree(entry, 4, 1.0))
}
