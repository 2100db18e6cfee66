// Package sysmem is the OS page-mapping collaborator described (but
// not specified) by the allocator core: anonymous, private, read-write
// memory acquisition and release. It is intentionally the thinnest
// possible wrapper so the core's segment logic owns every interesting
// invariant (alignment, trimming, lifecycle).
package sysmem

// MapAnonymous requests an anonymous, private, read-write mapping of
// at least length bytes at an OS-chosen address. The returned slice's
// length equals the mapped length; its address has no alignment
// guarantee beyond whatever the OS page size provides.
func MapAnonymous(length int) ([]byte, error) {
	return mapAnonymous(length)
}

// Unmap releases a mapping, or any page-aligned sub-slice of one,
// previously returned by MapAnonymous. Safe to call on a sub-slice
// produced by re-slicing the original mapping (used by segment
// creation to trim unaligned head/tail regions).
func Unmap(b []byte) error {
	return unmap(b)
}
