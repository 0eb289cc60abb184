package sim

// Engine-wide constants fixed by the wire/hash contract — these must match
// bit-for-bit across every peer and are never configurable.
const (
	MaxEntities     = 10000
	IndexBits       = 20
	GenerationBits  = 12
	MaxGeneration   = 4095
	IndexMask       = uint32(1)<<IndexBits - 1
	LocalEntityBit  = uint32(0x40000000)
	FPShift         = 16
	FPOne     FP    = 1 << FPShift
	FPPi      FP    = 205887
	FP2Pi     FP    = 411775
	FPHalfPi  FP    = 102944
	sinLUTEntries   = 257 // covers [0, pi/2] inclusive

	// TargetEntitiesPerPartition and DefaultSendersPerPartition are the
	// numbers spec 4.9/4.10 fix. NumPartitions divides by the
	// TargetEntitiesPerPartition constant, not SimulationConfig's copy, so
	// every peer uses the same divisor regardless of local config; the
	// number of senders per partition is read from
	// SimulationConfig.SendersPerPartition, whose default equals
	// DefaultSendersPerPartition.
	TargetEntitiesPerPartition = 30
	DefaultSendersPerPartition = 2
	PartitionSeedBase   uint32 = 0x12345678
	MaxCatchupFrames           = 200
)

// xxhash32 prime constants, as given by spec section 6 (these are the
// canonical xxHash32 primes).
const (
	xxPrime1 uint32 = 2654435761
	xxPrime2 uint32 = 2246822519
	xxPrime3 uint32 = 3266489917
	xxPrime4 uint32 = 668265263
	xxPrime5 uint32 = 374761393
)

// SimulationConfig groups the tunables spec.md leaves as bare numeric
// constants (rollback depth, hash history window, catchup cap, partition
// sizing) into one configuration object, the way vamplite's WorldConfig /
// DefaultWorldConfig groups ECS tunables.
type SimulationConfig struct {
	MaxEntities                int
	RollbackFrames             int
	HashHistoryWindow          int
	CatchupCap                 int
	SendersPerPartition        int
	TargetEntitiesPerPartition int
}

// DefaultSimulationConfig returns the constants named in spec.md section 6.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		MaxEntities:                MaxEntities,
		RollbackFrames:             60,
		HashHistoryWindow:          10,
		CatchupCap:                 200,
		SendersPerPartition:        2,
		TargetEntitiesPerPartition: 30,
	}
}

// Priority constants give the scheduler's raw numeric `order` field
// conventional names, modeled on vamplite's Priority constants. They are
// pure convenience — ties still break by insertion order regardless of
// which of these (or any other int) a caller passes.
type Priority int

const (
	PriorityFirst   Priority = -1000
	PriorityNormal  Priority = 0
	PriorityLast    Priority = 1000
)
