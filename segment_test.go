package segheap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCreateSegmentAligned(t *testing.T) {
	seg, err := createSegment(segmentSize)
	require.NoError(t, err)
	defer destroySegment(seg)

	addr := uintptr(unsafe.Pointer(seg))
	require.Zero(t, addr%segmentSize)
	require.Equal(t, int64(segmentSize), seg.length)

	for i := int64(0); i < metadataPages; i++ {
		require.Equal(t, pageMetadata, seg.descriptors[i].status)
	}
}

func TestSegmentOfRecoversHeader(t *testing.T) {
	seg, err := createSegment(segmentSize)
	require.NoError(t, err)
	defer destroySegment(seg)

	interior := addrAtPage(seg, 10)
	require.Equal(t, seg, segmentOf(interior))

	lastByte := unsafe.Add(unsafe.Pointer(seg), segmentSize-1)
	require.Equal(t, seg, segmentOf(lastByte))
}

func TestPageIndexOf(t *testing.T) {
	seg, err := createSegment(segmentSize)
	require.NoError(t, err)
	defer destroySegment(seg)

	require.Equal(t, 5, pageIndexOf(seg, addrAtPage(seg, 5)))
}
