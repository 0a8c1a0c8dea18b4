/*
 * Copyright (c) 2021-present unTill Pro, Ltd.
 */

package rc

import (
	"unsafe"
)

// Handle is a non-owning address of an object living in the foreign runtime's heap
// nil is never valid for a live wrapper
type Handle unsafe.Pointer

// PoolToken identifies a runtime-level autorelease pool
type PoolToken uintptr

// noCopy makes `go vet` report wrappers copied by value: a copy would duplicate the claim
// must be the first field so that it does not add padding
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Retained is a shared pointer: the holder has exactly one retain count claim on the object
// other Retained pointers to the same object may exist, so only read access is granted
// the zero value is an empty pointer, unsafe.Sizeof(Retained[T]{}) equals the size of a pointer
type Retained[T any] struct {
	_   noCopy
	ptr *T
}

// Owned is an exclusive pointer: no other Retained or Owned pointer to the same object exists
// grants both read and write access
type Owned[T any] struct {
	_   noCopy
	ptr *T
}

type poolState uint8

const (
	poolActive poolState = iota
	poolDrained
)

// AutoreleasePool is a scope that releases every handle autoreleased within it on Drain()
// pools nest strictly: the innermost one is drained first
// a pool belongs to the goroutine that created it
type AutoreleasePool struct {
	token   PoolToken
	state   poolState
	pending int
	goid    uint64
	parent  *AutoreleasePool
	child   *AutoreleasePool
}

type claimKind uint8

const (
	claimRetained claimKind = iota
	claimOwned
)

// claimInfo is the debug-mode record of the wrappers alive for a handle
type claimInfo struct {
	retained int
	owned    bool
	sites    []string
}

type stackFrame struct {
	fn   string
	file string
	line int
}

type stackTrace []stackFrame
