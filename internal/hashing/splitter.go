package hashing

import "github.com/99souls/flagengine/internal/dto"

// Algo selects which hash family backs Bucket/Treatment.
type Algo int

const (
	AlgoLegacy Algo = dto.AlgoLegacy
	AlgoMurmur Algo = dto.AlgoMurmur
)

// ControlTreatment is returned whenever a flag has no applicable partitions.
const ControlTreatment = "control"

// hash dispatches to the hash family selected by algo.
func hash(key string, seed int64, algo Algo) uint32 {
	s := uint32(seed)
	if algo == AlgoLegacy {
		return LegacyHash(key, s)
	}
	return Murmur3x86_32([]byte(key), s)
}

// Bucket maps (key, seed, algo) onto [1, 100].
func Bucket(key string, seed int64, algo Algo) int {
	h := hash(key, seed, algo)
	// h is unsigned; take the value mod 100, matching the documented
	// "absolute value mod 100" contract for hashes that are always non-negative here.
	return int(h%100) + 1
}

// Treatment picks the partition a bucket falls into. CONTROL is returned when
// partitions is empty; a single 100%-covering partition short-circuits the
// bucket computation entirely.
func Treatment(key string, seed int64, partitions []dto.Partition, algo Algo) string {
	if len(partitions) == 0 {
		return ControlTreatment
	}
	if len(partitions) == 1 && partitions[0].Size == 100 {
		return partitions[0].Treatment
	}

	bucket := Bucket(key, seed, algo)
	accum := 0
	for _, p := range partitions {
		accum += p.Size
		if bucket <= accum {
			return p.Treatment
		}
	}
	// Sizes should sum to 100 (invariant enforced at parse time); fall back to
	// the last partition rather than CONTROL if rounding ever leaves a gap.
	return partitions[len(partitions)-1].Treatment
}
