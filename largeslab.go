package segheap

import "unsafe"

// largeSlabHeader sits at the first byte of every multi-page run this
// heap manages above the small-object threshold, whether the run is
// currently allocated to a caller or sitting free on the page ladder.
// While free, next threads the run onto Heap.ladder[pages-1]; while
// allocated, next is unused and pages records the run's length so Free
// knows how many pages to hand back.
type largeSlabHeader struct {
	next  *largeSlabHeader
	pages uint16
}

const largeSlabHeaderSize = int64(unsafe.Sizeof(largeSlabHeader{}))
