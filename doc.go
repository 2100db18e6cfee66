// Package segheap implements a thread-caching, segment-and-slab
// dynamic memory allocator in the tradition of mimalloc and tcmalloc:
// fixed 2 MiB segments acquired from the OS carry a dense page
// descriptor array that turns any interior pointer into O(1) metadata
// lookup, and a per-thread Heap routes allocations into small
// (bitmap-freelist slabs), large (multi-page runs on a free-page
// ladder) and huge (one segment per object) regimes.
//
//   - Every Heap method holds the Heap's single mutex for its whole
//     duration, so calls from several goroutines are serialized (see
//     Heap's doc comment for the locking model this package implements
//     versus the finer-grained schemes it deliberately does not).
//   - Memory obtained from the OS is never returned until either the
//     owning segment becomes entirely free (ordinary segments rejoin
//     the free-page ladder, not the OS) or the whole Heap is Released.
//   - Blocks returned by Heap.Allocate are always aligned: on the small
//     path to the largest power of two dividing the size class's block
//     size (the block size itself for power-of-two classes), capped at
//     a page; to a page on the large and huge paths.
package segheap
