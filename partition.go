package sim

import "sort"

// DegradationTier classifies how much partition coverage a client actually
// received for a frame (spec 4.10).
type DegradationTier int

const (
	TierNormal DegradationTier = iota
	TierDegraded
	TierMinimal
	TierSkip
)

func (t DegradationTier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierDegraded:
		return "degraded"
	case TierMinimal:
		return "minimal"
	case TierSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// DegradationTierFor computes the tier from (received/total,
// trustedSenders/totalSenders) per spec 4.10's thresholds.
func DegradationTierFor(received, total, trustedSenders, totalSenders int) DegradationTier {
	if total <= 0 {
		return TierSkip
	}
	allReceived := received == total
	allTrusted := totalSenders == 0 || trustedSenders == totalSenders
	if allReceived && allTrusted {
		return TierNormal
	}
	ratio := float64(received) / float64(total)
	switch {
	case ratio > 0.75:
		return TierDegraded
	case ratio > 0.25:
		return TierMinimal
	default:
		return TierSkip
	}
}

// xorshift32Step advances a bare 32-bit xorshift state one step (spec
// 4.10: "derive next seed by one xorshift32 step" between successive
// weighted draws for the same partition).
func xorshift32Step(x uint32) uint32 {
	if x == 0 {
		x = 1
	}
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return x
}

func clampReliability(r int) int {
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// weightedPick performs spec 4.10's single weighted draw over
// lexicographically-sorted candidate clients: cumulative-weight scan,
// threshold = (seed mod 2^16) * total_weight / 2^16 in 64-bit fixed point,
// returns the smallest index whose cumulative weight exceeds the
// threshold. Ties (none possible with strict '>') fall to sorted order by
// construction.
func weightedPick(candidates []string, reliability map[string]int, seed uint32) int {
	var total uint64
	weights := make([]uint64, len(candidates))
	for i, c := range candidates {
		w := uint64(clampReliability(reliability[c])+1) << 16
		weights[i] = w
		total += w
	}
	if total == 0 {
		return 0
	}
	threshold := (uint64(seed%(1<<16)) * total) >> 16

	var cum uint64
	for i, w := range weights {
		cum += w
		if cum > threshold {
			return i
		}
	}
	return len(candidates) - 1
}

// PlanPartitionSenders deterministically assigns up to sendersPerPartition
// distinct clients to each of numPartitions partitions for frame, via
// weighted sampling seeded from PartitionSeedBase (spec 4.10). The result
// maps partition index to an ordered list of assigned client IDs.
func PlanPartitionSenders(clients []string, reliability map[string]int, frame int64, numPartitions, sendersPerPartition int) map[int][]string {
	sorted := append([]string(nil), clients...)
	sort.Strings(sorted)

	assignment := make(map[int][]string, numPartitions)
	want := sendersPerPartition
	if want > len(sorted) {
		want = len(sorted)
	}

	for p := 0; p < numPartitions; p++ {
		seed := xxhash32Combine(xxhash32Combine(PartitionSeedBase, uint32(frame)), uint32(p))
		remaining := append([]string(nil), sorted...)
		var picked []string
		for len(picked) < want && len(remaining) > 0 {
			idx := weightedPick(remaining, reliability, seed)
			picked = append(picked, remaining[idx])
			remaining = append(remaining[:idx], remaining[idx+1:]...)
			seed = xorshift32Step(seed)
		}
		assignment[p] = picked
	}
	return assignment
}

// ClientPartitions returns the sorted list of partition indices assignment
// assigns to clientID across every partition (the inverse view a client
// uses to know which delta shards it must emit).
func ClientPartitions(assignment map[int][]string, clientID string) []int {
	var out []int
	for p, clients := range assignment {
		for _, c := range clients {
			if c == clientID {
				out = append(out, p)
				break
			}
		}
	}
	sort.Ints(out)
	return out
}
