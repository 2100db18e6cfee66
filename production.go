//go:build !debug

package segheap

import "unsafe"

const debugBuild = false

func assertf(cond bool, format string, args ...interface{}) {}

// poisonFill is the production build's zero-fill counterpart to the
// debug build's poison pattern; it exists so Heap.zerofill can mean
// "overwrite before handing out" regardless of build.
func poisonFill(ptr unsafe.Pointer, size int64) {
	b := unsafe.Slice((*byte)(ptr), int(size))
	for i := range b {
		b[i] = 0
	}
}
