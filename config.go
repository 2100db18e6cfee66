package segheap

import (
	s "github.com/bnclabs/gosettings"
	"github.com/cloudfoundry/gosigar"
)

// Settings configurable parameters for a Heap.
//
// "zerofill" (bool, default: true in a debug build, false otherwise)
//		Overwrite every block with a fixed pattern before handing it
//		out (poison in debug builds, zero in production builds).
//		Strictly a debugging aid: no operation in this package depends
//		on a block's prior contents for correctness.
func Defaultsettings() s.Settings {
	return s.Settings{
		"zerofill": debugBuild,
	}
}

// Sysmem reports the host's total and free physical memory, the same
// way this package's surrounding components size their default
// capacities. segheap itself imposes no capacity ceiling — a Heap
// grows by one segment at a time for as long as the OS will hand them
// out — but cmd/segstat uses this to print a sanity-check figure.
func Sysmem() (total, free uint64, err error) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, 0, err
	}
	return mem.Total, mem.Free, nil
}
