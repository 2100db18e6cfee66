// Command segstat prints the process-wide small-object size-class
// table and, with -churn, drives a scratch Heap through a batch of
// allocate/free cycles to report live utilization.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"unsafe"

	"github.com/bnclabs/segheap"
	"github.com/dustin/go-humanize"
)

var options struct {
	churn   int
	sysinfo bool
}

func argParse() {
	flag.IntVar(&options.churn, "churn", 0,
		"allocate and free this many random-sized blocks, then report heap stats")
	flag.BoolVar(&options.sysinfo, "sysinfo", false,
		"print host memory before the size-class table")
	flag.Parse()
}

func main() {
	argParse()
	if options.sysinfo {
		tellsysmem()
	}
	tellsizeclasses()
	if options.churn > 0 {
		tellchurn(options.churn)
	}
}

func tellsysmem() {
	total, free, err := segheap.Sysmem()
	if err != nil {
		fmt.Printf("sysmem: %v\n", err)
		return
	}
	fmt.Printf("host memory: %s total, %s free\n",
		humanize.Bytes(total), humanize.Bytes(free))
}

func tellsizeclasses() {
	classes := segheap.SizeClasses()
	fmt.Printf("%d size classes\n", len(classes))
	for i, c := range classes {
		util := float64(c.SlabCapacity*c.BlockSize) / float64(int64(c.SlabPages)*4096)
		fmt.Printf("class %3d: block %8s, slab %3d pages, capacity %5d blocks, metadata %s, fill %.1f%%\n",
			i, humanize.Bytes(uint64(c.BlockSize)), c.SlabPages, c.SlabCapacity,
			humanize.Bytes(uint64(c.SlabMetadataSize)), util*100)
	}
}

func tellchurn(n int) {
	h := segheap.NewHeap(nil)
	defer h.Release()

	live := make([]unsafe.Pointer, 0, n)
	for i := 0; i < n; i++ {
		size := int64(1 + rand.Intn(512*1024))
		ptr := h.Allocate(size)
		if ptr == nil {
			continue
		}
		live = append(live, ptr)
		if len(live) > 64 && rand.Intn(2) == 0 {
			j := rand.Intn(len(live))
			h.Free(live[j])
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}
	for _, ptr := range live {
		h.Free(ptr)
	}

	st := h.Stats()
	fmt.Printf("churn %d: capacity %s, allocated %s, overhead %s, segments %d, huge %d, utilization %.2f%%\n",
		n, humanize.Bytes(uint64(st.Capacity)), humanize.Bytes(uint64(st.Allocated)),
		humanize.Bytes(uint64(st.Overhead)), st.Segments, st.HugeSegments, st.Utilization()*100)
}
