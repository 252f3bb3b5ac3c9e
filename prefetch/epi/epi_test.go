package epi

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/prefetchsim/prefetchsim/prefetch"
)

// fakeCache is a minimal prefetch.Cache stand-in: it records every
// requested prefetch and lets the test drive a logical clock.
type fakeCache struct {
	cycle       uint64
	issued      []uint64
	sets, ways  int
	rejectAfter int
}

func newFakeCache(sets, ways int) *fakeCache {
	return &fakeCache{sets: sets, ways: ways, rejectAfter: -1}
}

func (f *fakeCache) PrefetchLine(addr uint64, fillThisLevel bool, metadata uint32) bool {
	if f.rejectAfter >= 0 && len(f.issued) >= f.rejectAfter {
		return false
	}
	f.issued = append(f.issued, addr)
	return true
}

func (f *fakeCache) Cycle() uint64 { return f.cycle }
func (f *fakeCache) Sets() int     { return f.sets }
func (f *fakeCache) Ways() int     { return f.ways }

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestController_CacheOperateTracksAccessStats(t *testing.T) {
	c := New(64, 8, discardLogger())
	c.Initialize(0)
	cache := newFakeCache(64, 8)

	c.CacheOperate(0x1000, 0, false, false, prefetch.AccessLoad, 0, cache)
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Accesses)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestController_CacheOperateSkipsDuplicateOngoingMiss(t *testing.T) {
	c := New(64, 8, discardLogger())
	c.Initialize(0)
	cache := newFakeCache(64, 8)

	c.CacheOperate(0x1000, 0, false, false, prefetch.AccessLoad, 0, cache)
	c.CacheOperate(0x1000, 0, false, false, prefetch.AccessLoad, 0, cache)
	assert.Equal(t, uint64(1), c.Stats().Accesses)
}

func TestController_FillMovesTimingToCacheShadow(t *testing.T) {
	c := New(64, 8, discardLogger())
	c.Initialize(0)
	cache := newFakeCache(64, 8)

	// A miss on 0x1000 starts an in-flight shadow entry.
	c.CacheOperate(0x1000, 0, false, false, prefetch.AccessLoad, 0, cache)
	cache.cycle = 50
	// A second, later miss gets recorded in history and access-timed too.
	c.CacheOperate(0x2000, 0, false, false, prefetch.AccessLoad, 0, cache)
	cache.cycle = 120
	c.CacheFill(0x1000, 0, 0, false, 0, 0, cache)

	// Filling should have moved the shadow entry out of the MSHR.
	assert.True(t, c.timing.CompletedRequest(prefetch.Block(0x1000)))
}

func TestController_FinalStatsDoesNotPanic(t *testing.T) {
	c := New(64, 8, discardLogger())
	c.Initialize(0)
	assert.NotPanics(t, func() { c.FinalStats() })
}

func TestController_BroadcastAndPrefetchHitAreNoops(t *testing.T) {
	c := New(64, 8, discardLogger())
	c.Initialize(0)
	assert.Equal(t, uint32(7), c.PrefetchHit(0x1000, 0, 7))
	assert.NotPanics(t, func() {
		c.BroadcastBW(0)
		c.BroadcastIPC(0)
		c.BroadcastAcc(0)
	})
}
