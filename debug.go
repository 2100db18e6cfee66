//go:build debug

package segheap

import (
	"fmt"
	"unsafe"
)

const debugBuild = true

// assertf panics on a violated invariant. It exists at all so that the
// bitmap and bookkeeping assertions in the small-slab code cost nothing in a production build but still catch
// double-frees and corruption in a debug one.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// poisonFill overwrites a freshly carved block with a non-zero pattern
// so that use of stale, unfreed data shows up immediately instead of
// silently reading as zero.
func poisonFill(ptr unsafe.Pointer, size int64) {
	b := unsafe.Slice((*byte)(ptr), int(size))
	for i := range b {
		b[i] = 0xfe
	}
}
