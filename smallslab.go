package segheap

import (
	"math/bits"
	"unsafe"
)

// smallSlabHeader sits at the first byte of every small-object slab.
// Immediately after it, at unsafe.Sizeof(smallSlabHeader{}) bytes from
// the header, lives the slab's free bitmap: one set bit per free block;
// the blocks themselves start at slabMetadataSize bytes from the
// header, past the bitmap. There is no Go field for
// that bitmap — it is addressed directly with unsafe.Slice the same
// way the runtime addresses its own out-of-line bitmaps, because its
// length is a per-size-class constant, not something every slab's type
// can carry.
//
// prev/next thread the slab onto its size class's cache list while the
// slab has at least one free block; a slab made full by an allocation
// is unlinked (next and prev both nil) until a Free on one of its
// blocks gives it room again.
type smallSlabHeader struct {
	prev, next *smallSlabHeader
	freeCount  uint16
	classID    uint16
}

const smallSlabHeaderSize = int64(unsafe.Sizeof(smallSlabHeader{}))

func (sh *smallSlabHeader) bitmapWords(n int64) []uint64 {
	return unsafe.Slice((*uint64)(unsafe.Add(unsafe.Pointer(sh), smallSlabHeaderSize)), int(n))
}

func (sh *smallSlabHeader) isFull() bool {
	return sh.freeCount == 0
}

func (sh *smallSlabHeader) isEmpty(info sizeClassInfo) bool {
	return int64(sh.freeCount) == info.slabCapacity
}

func (sh *smallSlabHeader) blockBase(info sizeClassInfo) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(sh), info.slabMetadataSize)
}

// initFreeBitmap marks every block in a freshly carved slab free.
func (sh *smallSlabHeader) initFreeBitmap(info sizeClassInfo) {
	words := sh.bitmapWords(wordCount(info.slabCapacity))
	for i := range words {
		words[i] = ^uint64(0)
	}
	if rem := info.slabCapacity % 64; rem != 0 {
		words[len(words)-1] = (uint64(1) << uint(rem)) - 1
	}
	sh.freeCount = uint16(info.slabCapacity)
}

// allocateBlock finds the first free block via a find-first-set scan
// of the bitmap (math/bits.TrailingZeros64 standing in for the ffsll
// this pattern is traditionally built on), clears its bit, and returns
// its address. Callers must not call this on a full slab.
func (sh *smallSlabHeader) allocateBlock(info sizeClassInfo) unsafe.Pointer {
	words := sh.bitmapWords(wordCount(info.slabCapacity))
	for i, w := range words {
		if w == 0 {
			continue
		}
		bit := bits.TrailingZeros64(w)
		words[i] = w &^ (uint64(1) << uint(bit))
		sh.freeCount--
		idx := int64(i*64 + bit)
		return unsafe.Add(sh.blockBase(info), idx*info.blockSize)
	}
	return nil
}

// freeBlock returns a previously allocated block to the slab. In debug
// builds it asserts the pointer lands exactly on a block boundary and
// that the block was not already free.
func (sh *smallSlabHeader) freeBlock(info sizeClassInfo, ptr unsafe.Pointer) {
	offset := uintptr(ptr) - uintptr(sh.blockBase(info))
	assertf(int64(offset)%info.blockSize == 0, "segheap: misaligned free of small block")
	idx := int64(offset) / info.blockSize
	assertf(idx >= 0 && idx < info.slabCapacity, "segheap: free of out-of-range small block")

	words := sh.bitmapWords(wordCount(info.slabCapacity))
	wi, bi := idx/64, uint(idx%64)
	assertf(words[wi]&(uint64(1)<<bi) == 0, "segheap: double free of small block")
	words[wi] |= uint64(1) << bi
	sh.freeCount++
}
