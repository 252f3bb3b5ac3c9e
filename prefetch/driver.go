package prefetch

// AccessType enumerates the demand-access kinds a driver may report. EPI
// and MANA ignore everything but the address; Scooby featurizes load vs.
// store for its state vector.
type AccessType int

const (
	AccessLoad AccessType = iota
	AccessStore
	AccessPrefetch
)

// Cache is the collaborator every policy calls back into (§5, §6): the
// bounded issue primitive, and read-only access to the driver's current
// cycle and geometry. No locks are required — there is never a concurrent
// mutator (§5).
type Cache interface {
	// PrefetchLine requests that addr be prefetched, optionally filling
	// directly into this cache level. Returns false if the driver's
	// prefetch queue is full; a false return aborts the current issue
	// burst (§4.13).
	PrefetchLine(addr uint64, fillThisLevel bool, metadata uint32) bool

	// Cycle returns the driver's current logical cycle.
	Cycle() uint64

	// Sets and Ways describe the real cache's geometry, used by EPI's
	// timing shadow to mirror it exactly (§4.4).
	Sets() int
	Ways() int
}

// Prefetcher is the exact entry-point shape a cache driver invokes, in
// program order, per §6. Every policy package (epi, mana, scooby)
// implements this for a single CPU; a driver running N CPUs constructs N
// disjoint instances (§5).
type Prefetcher interface {
	// Initialize is called once before any other entry point.
	Initialize(cpu int)

	// BranchOperate is called at every branch. EPI and MANA ignore it;
	// it exists so the same driver loop can invoke all three policies
	// uniformly.
	BranchOperate(ip uint64, branchType int, target uint64)

	// CacheOperate is called on every demand access and returns the
	// (possibly unchanged) metadata to propagate through the cache
	// hierarchy. cache is the calling level's callback collaborator —
	// policies use it to issue prefetches and read the current cycle.
	CacheOperate(addr, ip uint64, cacheHit, wasPrefetchHit bool, accessType AccessType, metadata uint32, cache Cache) uint32

	// CacheFill is called when a line is installed.
	CacheFill(addr uint64, set, way int, wasPrefetch bool, evictedAddr uint64, metadata uint32, cache Cache) uint32

	// CycleOperate is called exactly once per cycle, after all of that
	// cycle's CacheOperate/CacheFill calls (§5's ordering invariant).
	CycleOperate(cache Cache)

	// FinalStats is called once at the end of a run.
	FinalStats()

	// PrefetchHit is called on a hit against a line a prefetch brought in.
	// Only Scooby uses it for reward assignment; EPI and MANA no-op.
	PrefetchHit(addr, ip uint64, metadata uint32) uint32

	// BroadcastBW, BroadcastIPC, and BroadcastAcc deliver epoch-level
	// bandwidth, IPC, and cache-accuracy updates. Only Scooby uses them.
	BroadcastBW(level int)
	BroadcastIPC(level int)
	BroadcastAcc(level int)
}
