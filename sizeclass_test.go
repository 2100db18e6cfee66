package segheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeClassesIncreasing(t *testing.T) {
	classes := SizeClasses()
	require.True(t, len(classes) > 1)
	for i := 1; i < len(classes); i++ {
		require.Greater(t, classes[i].BlockSize, classes[i-1].BlockSize)
	}
}

func TestSizeClassLookupIdempotence(t *testing.T) {
	classes := SizeClasses()
	var prevBlockSize int64
	for c, sc := range classes {
		for size := prevBlockSize + 1; size <= sc.BlockSize; size++ {
			require.Equalf(t, c, classOf(size), "size %d", size)
		}
		prevBlockSize = sc.BlockSize
	}
}

func TestSizeClassCapacityFitsSlab(t *testing.T) {
	for _, sc := range SizeClasses() {
		slabBytes := int64(sc.SlabPages) * pageSize
		require.LessOrEqual(t, sc.SlabMetadataSize+sc.SlabCapacity*sc.BlockSize, slabBytes)
		require.Greater(t, sc.SlabCapacity, int64(0))
	}
}

func TestClassOfZero(t *testing.T) {
	require.Equal(t, 0, classOf(0))
}
