package segheap

import "sync"

// maxSmallObjectSize is the largest request routed through the small
// path; anything bigger goes to the large-slab ladder or, past
// hugeThreshold, to its own segment.
const maxSmallObjectSize = 256 * 1024

// maxSizeClasses bounds the size-class table the same way the
// generating schedule is expected to stay under it; initSizeClasses
// panics if the schedule ever produces more.
const maxSizeClasses = 128

// sizeClassInfo is the derived, process-wide description of one small
// size class: how big its blocks are, how many pages back one of its
// slabs, how many blocks fit in a slab of that many pages, and how
// many of those bytes are bitmap/header overhead rather than blocks.
type sizeClassInfo struct {
	blockSize        int64
	slabPages        uint16
	slabCapacity      int64
	slabMetadataSize int64
}

var (
	sizeClassOnce   sync.Once
	sizeClassTable  []sizeClassInfo
	sizeClassLookup [maxSmallObjectSize + 1]uint8
)

func ensureSizeClasses() {
	sizeClassOnce.Do(initSizeClasses)
}

// initSizeClasses builds the size-class schedule and the byte-to-class
// lookup table. The block-size growth schedule and the slab-pages
// heuristic below are not arbitrary: they are carried over unchanged
// from the allocator's own reference schedule so that callers tuning
// around known size classes see the sizes they expect.
func initSizeClasses() {
	var classes []sizeClassInfo

	blockSize := int64(8)
	for blockSize <= maxSmallObjectSize {
		classes = append(classes, deriveSizeClass(blockSize))

		switch {
		case blockSize < 128:
			blockSize += 8
		case blockSize < 256:
			blockSize += 16
		case blockSize < 512:
			blockSize += 32
		case blockSize < 1024:
			blockSize += 64
		case blockSize < 4096:
			blockSize += 256
		case blockSize < 16384:
			blockSize += 1024
		case blockSize < 65536:
			blockSize += 4096
		default:
			blockSize += 16384
		}
	}

	if len(classes) > maxSizeClasses {
		panic("segheap: size-class schedule exceeds maxSizeClasses")
	}
	sizeClassTable = classes

	currentClass := 0
	for size := 1; size <= maxSmallObjectSize; size++ {
		if int64(size) > sizeClassTable[currentClass].blockSize {
			currentClass++
		}
		sizeClassLookup[size] = uint8(currentClass)
	}
}

// deriveSizeClass computes the slab geometry for one block size: how
// many pages a slab of this class should span, and, from that, how
// many blocks actually fit once the header and its trailing bitmap are
// accounted for.
func deriveSizeClass(blockSize int64) sizeClassInfo {
	const maxAllowedPages = pagesPerSegment / 2

	minPages := ceilDiv(blockSize*8, pageSize)

	var suggested int64
	switch {
	case blockSize <= 1024:
		suggested = 16
	case blockSize <= 64*1024:
		suggested = ceilDiv(blockSize*8, pageSize)
	default:
		suggested = ceilDiv(blockSize*2, pageSize)
	}

	pages := suggested
	if pages < minPages {
		pages = minPages
	}
	if pages > maxAllowedPages {
		pages = maxAllowedPages
	}

	slabTotalSize := pages * pageSize

	// Blocks start at a page-aligned slab base plus metadataSize, so
	// rounding metadataSize to the block size's largest power-of-two
	// divisor (capped at a page) keeps every block at that alignment.
	align := int64(blockAlignment)
	if natural := blockSize & -blockSize; natural > align {
		align = natural
	}
	if align > pageSize {
		align = pageSize
	}

	capacity := slabTotalSize / blockSize
	for capacity > 0 {
		metadataSize := alignUp(smallSlabHeaderSize+wordCount(capacity)*8, align)
		if metadataSize+capacity*blockSize <= slabTotalSize {
			return sizeClassInfo{
				blockSize:        blockSize,
				slabPages:        uint16(pages),
				slabCapacity:     capacity,
				slabMetadataSize: metadataSize,
			}
		}
		capacity--
	}
	panic("segheap: size class has no room for even one block")
}

// classOf returns the size-class index for a small-path request. size
// must be in [0, maxSmallObjectSize]; callers route anything larger to
// the large or huge paths before calling classOf.
func classOf(size int64) int {
	ensureSizeClasses()
	if size == 0 {
		return 0
	}
	return int(sizeClassLookup[size])
}

func sizeClassInfoAt(class int) sizeClassInfo {
	ensureSizeClasses()
	return sizeClassTable[class]
}

func numSizeClasses() int {
	ensureSizeClasses()
	return len(sizeClassTable)
}

// SizeClass is the exported view of one small-object size class, for
// diagnostics (see cmd/segstat) and tests; it is a copy, not a handle
// into the live table.
type SizeClass struct {
	BlockSize        int64
	SlabPages        uint16
	SlabCapacity     int64
	SlabMetadataSize int64
}

// SizeClasses returns every size class this process will route small
// allocations through, smallest block size first.
func SizeClasses() []SizeClass {
	ensureSizeClasses()
	out := make([]SizeClass, len(sizeClassTable))
	for i, c := range sizeClassTable {
		out[i] = SizeClass{
			BlockSize:        c.blockSize,
			SlabPages:        c.slabPages,
			SlabCapacity:     c.slabCapacity,
			SlabMetadataSize: c.slabMetadataSize,
		}
	}
	return out
}
