package segheap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestSlab(t *testing.T, class int) (*smallSlabHeader, sizeClassInfo) {
	t.Helper()
	info := sizeClassInfoAt(class)
	buf := make([]byte, int64(info.slabPages)*pageSize)
	header := (*smallSlabHeader)(unsafe.Pointer(&buf[0]))
	header.classID = uint16(class)
	header.prev, header.next = nil, nil
	header.initFreeBitmap(info)
	return header, info
}

func TestSmallSlabAllocateFreeAll(t *testing.T) {
	header, info := newTestSlab(t, 0)
	require.True(t, header.isEmpty(info))

	seen := map[uintptr]bool{}
	ptrs := make([]unsafe.Pointer, 0, info.slabCapacity)
	for i := int64(0); i < info.slabCapacity; i++ {
		require.False(t, header.isFull())
		ptr := header.allocateBlock(info)
		require.NotNil(t, ptr)
		addr := uintptr(ptr)
		require.False(t, seen[addr], "block returned twice")
		seen[addr] = true
		require.Zero(t, addr%uintptr(info.blockSize))
		ptrs = append(ptrs, ptr)
	}
	require.True(t, header.isFull())
	require.Equal(t, uint16(0), header.freeCount)

	for _, ptr := range ptrs {
		header.freeBlock(info, ptr)
	}
	require.True(t, header.isEmpty(info))
}

func TestSmallSlabBitmapMatchesFreeCount(t *testing.T) {
	header, info := newTestSlab(t, 2)
	words := header.bitmapWords(wordCount(info.slabCapacity))

	popcount := func() int64 {
		var n int64
		for _, w := range words {
			for w != 0 {
				n += int64(w & 1)
				w >>= 1
			}
		}
		return n
	}
	require.Equal(t, info.slabCapacity, popcount())

	a := header.allocateBlock(info)
	b := header.allocateBlock(info)
	require.Equal(t, info.slabCapacity-2, popcount())
	require.Equal(t, uint16(info.slabCapacity-2), header.freeCount)

	header.freeBlock(info, a)
	header.freeBlock(info, b)
	require.Equal(t, info.slabCapacity, popcount())
}
