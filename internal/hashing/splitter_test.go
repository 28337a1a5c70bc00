package hashing

import (
	"testing"

	"github.com/99souls/flagengine/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketInRange(t *testing.T) {
	for _, key := range []string{"user-1", "user-42", "", "a-very-long-matching-key-value"} {
		for _, algo := range []Algo{AlgoLegacy, AlgoMurmur} {
			b := Bucket(key, 123, algo)
			require.GreaterOrEqual(t, b, 1)
			require.LessOrEqual(t, b, 100)
		}
	}
}

func TestTreatmentEmptyPartitionsIsControl(t *testing.T) {
	got := Treatment("user-1", 1, nil, AlgoMurmur)
	assert.Equal(t, ControlTreatment, got)
}

func TestTreatmentSinglePartitionFastPath(t *testing.T) {
	parts := []dto.Partition{{Treatment: "on", Size: 100}}
	got := Treatment("anything", 999, parts, AlgoMurmur)
	assert.Equal(t, "on", got)
}

func TestTreatmentDeterministic(t *testing.T) {
	parts := []dto.Partition{{Treatment: "on", Size: 60}, {Treatment: "off", Size: 40}}
	first := Treatment("user-42", 123, parts, AlgoMurmur)
	for i := 0; i < 50; i++ {
		got := Treatment("user-42", 123, parts, AlgoMurmur)
		require.Equal(t, first, got)
	}
}

func TestMurmur3KnownVector(t *testing.T) {
	// Reference vector: murmur3_32("", seed=0) == 0.
	assert.Equal(t, uint32(0), Murmur3x86_32([]byte(""), 0))
}
