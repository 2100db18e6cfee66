package segheap

import (
	"unsafe"

	"github.com/bnclabs/segheap/internal/sysmem"
)

// pageSize and segmentSize are the two fixed granularities the whole
// allocator is built from: every OS mapping is carved into segmentSize
// aligned segments, and every segment's metadata is indexed one entry
// per pageSize page.
const (
	pageSize       = 4096
	segmentSize    = 2 * 1024 * 1024
	pagesPerSegment = segmentSize / pageSize
)

// pageStatus tags what a page inside a segment currently holds. It is
// the single switch every pointer-to-metadata lookup dispatches on.
type pageStatus uint8

const (
	pageFree pageStatus = iota
	pageMetadata
	pageSmallSlab
	pageLargeSlab
	pageHugeSlab
)

// pageDescriptor is one entry of a segment's page array. For pages
// belonging to a small or large slab, or to a free run, slabPtr is the
// address of that slab's (or run's) header — identically for every
// page of the slab, which is what lets any interior pointer recover
// its owning structure in O(1) without walking anything.
type pageDescriptor struct {
	status  pageStatus
	slabPtr unsafe.Pointer
}

// segment is the header placed at the start of every segmentSize (or,
// for a huge allocation, larger) aligned OS mapping. Ordinary segments
// are threaded onto Heap.activeSegments; huge segments onto
// Heap.hugeSegments; both lists are doubly linked so Free can unlink
// in O(1).
type segment struct {
	next, prev *segment
	ownerHeap  *Heap
	length     int64
	descriptors [pagesPerSegment]pageDescriptor
}

// segmentHeaderSize and metadataPages are derived once, at compile
// time, from the layout above: unsafe.Sizeof a fixed-size struct is a
// Go constant expression, so there is no runtime initialization here
// to race or forget.
const (
	segmentHeaderSize = int64(unsafe.Sizeof(segment{}))
	metadataPages     = (segmentHeaderSize + pageSize - 1) / pageSize
)

// hugeThreshold is the largest request the large-slab ladder can serve:
// every non-metadata page of one segment, less the large-slab header
// that sits in front of the caller's bytes. Anything bigger gets a
// segment of its own sized to fit exactly.
const hugeThreshold = (pagesPerSegment-metadataPages)*pageSize - largeSlabHeaderSize

// createSegment acquires an S-aligned OS mapping of exactly length
// bytes (length must already be a multiple of pageSize) and places a
// zeroed segment header at its start. It over-maps by just under one
// segment's worth of slack to guarantee an aligned offset exists, then
// trims the unaligned head and tail back to the OS.
func createSegment(length int64) (*segment, error) {
	mapSize := int(length) + segmentSize - pageSize

	raw, err := sysmem.MapAnonymous(mapSize)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + segmentSize - 1) &^ (segmentSize - 1)

	if headTrim := aligned - base; headTrim > 0 {
		if err := sysmem.Unmap(byteSliceAt(base, int(headTrim))); err != nil {
			return nil, err
		}
	}
	tailStart := aligned + uintptr(length)
	mapEnd := base + uintptr(mapSize)
	if tailTrim := mapEnd - tailStart; tailTrim > 0 {
		if err := sysmem.Unmap(byteSliceAt(tailStart, int(tailTrim))); err != nil {
			return nil, err
		}
	}

	seg := (*segment)(unsafe.Pointer(aligned))
	seg.length = length
	for i := int64(0); i < metadataPages; i++ {
		seg.descriptors[i] = pageDescriptor{status: pageMetadata, slabPtr: unsafe.Pointer(seg)}
	}
	return seg, nil
}

// destroySegment returns a segment's entire mapping to the OS. Callers
// must have already unlinked it from whichever list it was on.
func destroySegment(seg *segment) error {
	return sysmem.Unmap(byteSliceAt(uintptr(unsafe.Pointer(seg)), int(seg.length)))
}

func byteSliceAt(addr uintptr, length int) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}

// segmentOf recovers the owning segment of any pointer inside it by
// masking to the segment's alignment; this is the O(1) step every
// Free call starts with.
func segmentOf(ptr unsafe.Pointer) *segment {
	addr := uintptr(ptr) &^ uintptr(segmentSize-1)
	return (*segment)(unsafe.Pointer(addr))
}

func pageIndexOf(seg *segment, ptr unsafe.Pointer) int {
	return int((uintptr(ptr) - uintptr(unsafe.Pointer(seg))) / pageSize)
}

func addrAtPage(seg *segment, index int) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(seg), index*pageSize)
}

func (seg *segment) descriptorAt(index int) *pageDescriptor {
	return &seg.descriptors[index]
}

// descriptorOfIn is descriptorAt keyed by pointer rather than index;
// it is the lookup behind every Free call.
func descriptorOfIn(seg *segment, ptr unsafe.Pointer) *pageDescriptor {
	return &seg.descriptors[pageIndexOf(seg, ptr)]
}

func (seg *segment) unlink(head **segment) {
	if seg.prev != nil {
		seg.prev.next = seg.next
	} else {
		*head = seg.next
	}
	if seg.next != nil {
		seg.next.prev = seg.prev
	}
	seg.next, seg.prev = nil, nil
}

func (seg *segment) pushFront(head **segment) {
	seg.next = *head
	seg.prev = nil
	if *head != nil {
		(*head).prev = seg
	}
	*head = seg
}
