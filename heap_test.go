package segheap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func headerOf(ptr unsafe.Pointer) *pageDescriptor {
	return descriptorOfIn(segmentOf(ptr), ptr)
}

func largeHeaderOf(ptr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr) - uintptr(largeSlabHeaderSize))
}

// S1 (single small).
func TestScenarioSingleSmall(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	p := h.Allocate(32)
	require.NotNil(t, p)
	require.Zero(t, uintptr(p)%32)
	require.Equal(t, pageSmallSlab, headerOf(p).status)

	h.Free(p)
}

// S2 (small refill).
func TestScenarioSmallRefill(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	capacity := sizeClassInfoAt(classOf(32)).slabCapacity

	ptrs := make([]unsafe.Pointer, capacity+1)
	for i := range ptrs {
		ptrs[i] = h.Allocate(32)
		require.NotNil(t, ptrs[i])
	}

	headerOfSmall := func(p unsafe.Pointer) unsafe.Pointer {
		return headerOf(p).slabPtr
	}
	first := headerOfSmall(ptrs[0])
	for i := int64(1); i < capacity; i++ {
		require.Equal(t, first, headerOfSmall(ptrs[i]))
	}
	require.NotEqual(t, first, headerOfSmall(ptrs[capacity]))

	for _, p := range ptrs {
		h.Free(p)
	}

	ptrs2 := make([]unsafe.Pointer, capacity+1)
	headers := map[unsafe.Pointer]bool{}
	for i := range ptrs2 {
		ptrs2[i] = h.Allocate(32)
		require.NotNil(t, ptrs2[i])
		headers[headerOfSmall(ptrs2[i])] = true
	}
	require.LessOrEqual(t, len(headers), 2)
	for _, p := range ptrs2 {
		h.Free(p)
	}
}

// S3 (large split & reuse).
func TestScenarioLargeSplitReuse(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	a := h.Allocate(maxSmallObjectSize + 1)
	require.NotNil(t, a)
	b := h.Allocate(maxSmallObjectSize + 1)
	require.NotNil(t, b)

	h.Free(a)
	c := h.Allocate(maxSmallObjectSize + 1)
	require.Equal(t, a, c)
}

// S4 (coalesce both neighbors).
func TestScenarioCoalesceBothNeighbors(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	sizeA := int64(3)*pageSize - largeSlabHeaderSize
	sizeB := int64(5)*pageSize - largeSlabHeaderSize
	sizeC := int64(7)*pageSize - largeSlabHeaderSize

	a := h.Allocate(sizeA)
	b := h.Allocate(sizeB)
	c := h.Allocate(sizeC)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)

	pagesA := uint16(ceilDiv(largeSlabHeaderSize+sizeA, pageSize))
	pagesB := uint16(ceilDiv(largeSlabHeaderSize+sizeB, pageSize))
	pagesC := uint16(ceilDiv(largeSlabHeaderSize+sizeC, pageSize))

	hdrA := largeHeaderOf(a)
	runPages := uint16(pagesPerSegment) - uint16(metadataPages)
	tail := runPages - pagesA - pagesB - pagesC

	h.Free(a)
	h.Free(c)
	h.Free(b)

	total := pagesA + pagesB + pagesC + tail
	require.Equal(t, (*largeSlabHeader)(hdrA), h.ladder[total-1])
	require.Equal(t, total, h.ladder[total-1].pages)
}

// S5 (huge).
func TestScenarioHuge(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	p := h.Allocate(segmentSize + 1)
	require.NotNil(t, p)
	require.Equal(t, pageHugeSlab, segmentOf(p).descriptors[0].status)

	h.Free(p)

	q := h.Allocate(segmentSize + 1)
	require.NotNil(t, q)
	require.NotEqual(t, segmentOf(p), segmentOf(q))
	h.Free(q)
}

// S6 (free null).
func TestScenarioFreeNull(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	require.NotPanics(t, func() { h.Free(nil) })
}

func TestAllocateZeroReturnsNil(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	require.Nil(t, h.Allocate(0))
}

func TestStatsTrackAllocated(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	p := h.Allocate(64)
	require.NotNil(t, p)
	st := h.Stats()
	require.Equal(t, int64(64), st.Allocated)
	require.Equal(t, 1, st.Segments)
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := NewHeap(nil)
	p := h.Allocate(64)
	require.NotNil(t, p)
	h.Release()
	require.NotPanics(t, func() { h.Release() })
}
