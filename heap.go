package segheap

import (
	"sync"
	"unsafe"

	s "github.com/bnclabs/gosettings"
	"github.com/bnclabs/segheap/api"
)

// Heap is a single thread's allocator: every segment it maps, every
// slab carved from those segments, and the free-page ladder they rejoin
// are private to this Heap. A single mutex guards the whole structure
// for the full duration of Allocate, Free and Release — this package
// deliberately does not implement a remote-free queue or any other
// scheme for a block to be freed by a goroutine other than the one
// that owns the Heap it came from; see DESIGN.md for why.
type Heap struct {
	mu sync.Mutex

	released bool
	zerofill bool

	slabCaches [maxSizeClasses]smallSlabHeader
	ladder     [pagesPerSegment]*largeSlabHeader

	activeSegments *segment
	hugeSegments   *segment

	allocated int64
}

var _ api.Allocator = (*Heap)(nil)

// NewHeap constructs a Heap. A nil settings argument is equivalent to
// Defaultsettings().
func NewHeap(settings s.Settings) *Heap {
	if settings == nil {
		settings = Defaultsettings()
	} else {
		settings = Defaultsettings().Mixin(settings)
	}

	h := &Heap{zerofill: settings.Bool("zerofill")}
	for i := range h.slabCaches {
		h.slabCaches[i].prev = &h.slabCaches[i]
		h.slabCaches[i].next = &h.slabCaches[i]
		h.slabCaches[i].classID = uint16(i)
	}
	return h
}

// Allocate implements api.Allocator.
func (h *Heap) Allocate(size int64) unsafe.Pointer {
	if size <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		errorf("segheap: Allocate on released heap")
		return nil
	}

	var ptr unsafe.Pointer
	var blockSize int64
	switch {
	case size > hugeThreshold:
		ptr = h.allocateHuge(size)
		blockSize = alignUp(segmentHeaderSize+size, pageSize) - segmentHeaderSize
	case size > maxSmallObjectSize:
		ptr = h.allocateLarge(size)
		blockSize = ceilDiv(largeSlabHeaderSize+size, pageSize)*pageSize - largeSlabHeaderSize
	default:
		ptr = h.allocateSmall(size)
		blockSize = sizeClassInfoAt(classOf(size)).blockSize
	}
	if ptr != nil {
		h.allocated += blockSize
	}
	return ptr
}

// Free implements api.Allocator.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		errorf("segheap: Free on released heap")
		return
	}

	seg := segmentOf(ptr)
	if seg.descriptors[0].status == pageHugeSlab {
		h.allocated -= seg.length - segmentHeaderSize
		h.freeHuge(seg)
		return
	}

	desc := descriptorOfIn(seg, ptr)
	switch desc.status {
	case pageLargeSlab:
		h.allocated -= int64((*largeSlabHeader)(desc.slabPtr).pages)*pageSize - largeSlabHeaderSize
		h.freeLarge(desc)
	case pageSmallSlab:
		h.allocated -= sizeClassInfoAt(int((*smallSlabHeader)(desc.slabPtr).classID)).blockSize
		h.freeSmall(desc, ptr)
	default:
		errorf("segheap: Free of invalid pointer")
	}
}

// Release implements api.Allocator: it tears the heap down, returning
// every segment — ordinary and huge — to the OS. After Release, every
// pointer this Heap ever produced is dangling.
func (h *Heap) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return
	}
	for seg := h.activeSegments; seg != nil; {
		next := seg.next
		if err := destroySegment(seg); err != nil {
			warnf("segheap: Release: %v", err)
		}
		seg = next
	}
	for seg := h.hugeSegments; seg != nil; {
		next := seg.next
		if err := destroySegment(seg); err != nil {
			warnf("segheap: Release: %v", err)
		}
		seg = next
	}
	h.activeSegments, h.hugeSegments = nil, nil
	h.released = true
}

// Stats implements api.Allocator.
func (h *Heap) Stats() api.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var st api.Stats
	for seg := h.activeSegments; seg != nil; seg = seg.next {
		st.Capacity += seg.length
		st.Overhead += segmentHeaderSize
		st.Segments++
	}
	for seg := h.hugeSegments; seg != nil; seg = seg.next {
		st.Capacity += seg.length
		st.Overhead += segmentHeaderSize
		st.HugeSegments++
	}
	st.Allocated = h.allocated
	return st
}

// --- huge path ---------------------------------------------------------

func (h *Heap) allocateHuge(size int64) unsafe.Pointer {
	length := alignUp(segmentHeaderSize+size, pageSize)
	seg, err := createSegment(length)
	if err != nil {
		warnf("segheap: allocateHuge(%d): %v", size, err)
		return nil
	}
	seg.descriptors[0].status = pageHugeSlab
	seg.descriptors[0].slabPtr = unsafe.Pointer(seg)
	seg.ownerHeap = h
	seg.pushFront(&h.hugeSegments)

	ptr := unsafe.Add(unsafe.Pointer(seg), segmentHeaderSize)
	if h.zerofill {
		poisonFill(ptr, size)
	}
	return ptr
}

func (h *Heap) freeHuge(seg *segment) {
	seg.unlink(&h.hugeSegments)
	if err := destroySegment(seg); err != nil {
		warnf("segheap: freeHuge: %v", err)
	}
}

// --- large path ---------------------------------------------------------

func (h *Heap) allocateLarge(size int64) unsafe.Pointer {
	numPages := ceilDiv(largeSlabHeaderSize+size, pageSize)
	runStart := h.acquirePages(uint16(numPages))
	if runStart == nil {
		return nil
	}

	seg := segmentOf(runStart)
	startIdx := pageIndexOf(seg, runStart)
	for i := int64(0); i < numPages; i++ {
		d := seg.descriptorAt(startIdx + int(i))
		d.status = pageLargeSlab
		d.slabPtr = runStart
	}

	header := (*largeSlabHeader)(runStart)
	header.pages = uint16(numPages)
	header.next = nil

	ptr := unsafe.Add(runStart, largeSlabHeaderSize)
	if h.zerofill {
		poisonFill(ptr, size)
	}
	return ptr
}

func (h *Heap) freeLarge(desc *pageDescriptor) {
	header := (*largeSlabHeader)(desc.slabPtr)
	h.releasePages(unsafe.Pointer(header), header.pages)
}

// --- small path ---------------------------------------------------------

func (h *Heap) allocateSmall(size int64) unsafe.Pointer {
	class := classOf(size)
	info := sizeClassInfoAt(class)
	cache := &h.slabCaches[class]

	slab := cache.next
	if slab == cache {
		slab = h.newSmallSlab(class, info)
		if slab == nil {
			return nil
		}
		slab.linkAfter(cache)
	}

	ptr := slab.allocateBlock(info)
	if slab.isFull() {
		slab.unlink()
	}
	if h.zerofill {
		poisonFill(ptr, info.blockSize)
	}
	return ptr
}

func (h *Heap) newSmallSlab(class int, info sizeClassInfo) *smallSlabHeader {
	runStart := h.acquirePages(info.slabPages)
	if runStart == nil {
		return nil
	}

	seg := segmentOf(runStart)
	startIdx := pageIndexOf(seg, runStart)
	header := (*smallSlabHeader)(runStart)
	header.classID = uint16(class)
	header.prev, header.next = nil, nil
	header.initFreeBitmap(info)

	for i := 0; i < int(info.slabPages); i++ {
		d := seg.descriptorAt(startIdx + i)
		d.status = pageSmallSlab
		d.slabPtr = runStart
	}
	return header
}

func (h *Heap) freeSmall(desc *pageDescriptor, ptr unsafe.Pointer) {
	header := (*smallSlabHeader)(desc.slabPtr)
	info := sizeClassInfoAt(int(header.classID))

	wasFull := header.isFull()
	header.freeBlock(info, ptr)

	switch {
	case header.isEmpty(info):
		if header.isLinked() {
			header.unlink()
		}
		h.releasePages(unsafe.Pointer(header), info.slabPages)
	case wasFull:
		header.linkAfter(&h.slabCaches[header.classID])
	}
}

// isLinked reports whether a slab is currently threaded onto its size
// class's cache list. A slab unlinked because it became full always
// has next == nil, prev == nil; linkAfter/unlink maintain that.
func (sh *smallSlabHeader) isLinked() bool {
	return sh.next != nil
}

func (sh *smallSlabHeader) linkAfter(cache *smallSlabHeader) {
	sh.next = cache.next
	sh.prev = cache
	cache.next.prev = sh
	cache.next = sh
}

func (sh *smallSlabHeader) unlink() {
	sh.prev.next = sh.next
	sh.next.prev = sh.prev
	sh.next, sh.prev = nil, nil
}

// --- free-page ladder ---------------------------------------------------

// acquirePages returns a pointer to n contiguous free pages, reusing a
// run from the ladder when one is available (exact match first,
// otherwise the smallest run that is still big enough, split in two)
// and mapping a fresh segment only when the ladder has nothing of use.
// The returned run's page descriptors still say pageFree: the caller
// is responsible for rewriting them to whatever it is about to store
// there.
func (h *Heap) acquirePages(n uint16) unsafe.Pointer {
	if int(n) > pagesPerSegment-int(metadataPages) {
		errorf("segheap: acquirePages(%d) exceeds segment capacity", n)
		return nil
	}

	if head := h.ladder[n-1]; head != nil {
		h.ladder[n-1] = head.next
		return unsafe.Pointer(head)
	}

	for k := int(n); k < pagesPerSegment; k++ {
		if head := h.ladder[k]; head != nil {
			h.ladder[k] = head.next
			return h.splitRun(unsafe.Pointer(head), uint16(k+1), n)
		}
	}

	seg, err := createSegment(segmentSize)
	if err != nil {
		warnf("segheap: acquirePages(%d): new segment: %v", n, err)
		return nil
	}
	seg.ownerHeap = h
	seg.pushFront(&h.activeSegments)

	runPages := uint16(pagesPerSegment) - uint16(metadataPages)
	runStart := addrAtPage(seg, int(metadataPages))
	h.initializeAsFreeSlab(runStart, runPages)
	return h.splitRun(runStart, runPages, n)
}

// splitRun keeps the first n pages of a runPages-page free run for the
// caller and, if any pages are left over, reinitializes them as a
// fresh free run and prepends it to the ladder.
func (h *Heap) splitRun(runStart unsafe.Pointer, runPages, n uint16) unsafe.Pointer {
	if runPages == n {
		return runStart
	}
	remainderStart := unsafe.Add(runStart, int(n)*pageSize)
	remainderPages := runPages - n
	header := h.initializeAsFreeSlab(remainderStart, remainderPages)
	h.prependToLadder(header, remainderPages)
	return runStart
}

// releasePages returns an n-page run to the ladder, first coalescing it
// with any immediately adjacent free run within the same segment.
// Coalescing never crosses a segment boundary and never reaches back
// into the segment's own metadata pages.
func (h *Heap) releasePages(ptr unsafe.Pointer, n uint16) {
	seg := segmentOf(ptr)
	startIdx := pageIndexOf(seg, ptr)

	if nextIdx := startIdx + int(n); nextIdx < pagesPerSegment {
		if nd := seg.descriptorAt(nextIdx); nd.status == pageFree {
			next := (*largeSlabHeader)(nd.slabPtr)
			h.removeFromLadder(next, next.pages)
			n += next.pages
		}
	}

	if prevIdx := startIdx - 1; prevIdx >= int(metadataPages) {
		if pd := seg.descriptorAt(prevIdx); pd.status == pageFree {
			prev := (*largeSlabHeader)(pd.slabPtr)
			h.removeFromLadder(prev, prev.pages)
			n += prev.pages
			ptr = unsafe.Pointer(prev)
		}
	}

	header := h.initializeAsFreeSlab(ptr, n)
	h.prependToLadder(header, n)
}

// initializeAsFreeSlab is the sole writer of free-run page descriptors:
// every page of the run, not just its first, gets slabPtr set to the
// run's own start. That uniformity is what lets releasePages trust a
// single neighboring descriptor without needing to know whether the
// neighbor it read happens to be the first page of its run.
func (h *Heap) initializeAsFreeSlab(ptr unsafe.Pointer, n uint16) *largeSlabHeader {
	seg := segmentOf(ptr)
	startIdx := pageIndexOf(seg, ptr)
	for i := 0; i < int(n); i++ {
		d := seg.descriptorAt(startIdx + i)
		d.status = pageFree
		d.slabPtr = ptr
	}
	header := (*largeSlabHeader)(ptr)
	header.pages = n
	header.next = nil
	return header
}

func (h *Heap) prependToLadder(header *largeSlabHeader, n uint16) {
	header.next = h.ladder[n-1]
	h.ladder[n-1] = header
}

// removeFromLadder unlinks header from ladder[pages-1]. The ladder is
// singly linked, so this is a linear scan; free runs that need
// unlinking this way are rare compared to the ones popped straight off
// a list head in acquirePages.
func (h *Heap) removeFromLadder(header *largeSlabHeader, pages uint16) {
	idx := pages - 1
	if h.ladder[idx] == header {
		h.ladder[idx] = header.next
		return
	}
	for cur := h.ladder[idx]; cur != nil; cur = cur.next {
		if cur.next == header {
			cur.next = header.next
			return
		}
	}
}
