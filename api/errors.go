package api

import "errors"

// ErrOutOfMemory names the condition of the OS mapping collaborator
// failing to satisfy a segment request. The segheap Heap neither
// returns nor logs this value: Allocate's contract is pointer-or-nil,
// so on a failed mapping it logs the mapping error itself at warn
// level and returns nil.
var ErrOutOfMemory = errors.New("segheap: out of memory")

// ErrReleased names the condition of an operation attempted against a
// heap whose Release has already run. The segheap Heap does not return
// it: on a released heap Allocate logs and returns nil, and Free logs
// and does nothing.
var ErrReleased = errors.New("segheap: heap released")
