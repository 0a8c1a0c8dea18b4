/*
 * Copyright (c) 2020-present unTill Pro, Ltd.
 */

package rc

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/zeebo/xxh3"
)

var hasherPool = sync.Pool{New: func() any { return xxh3.New() }}

// Adopt wraps a handle that already carries a +1 retain count, the runtime is not called
// the claim is taken over and will be given back by Release()
// caller must guarantee:
// - the handle is non-nil, aligned and points to a live initialized T
// - the +1 claim is not represented by any other wrapper
// - no Owned pointer to the same object exists
func Adopt[T any](h Handle) Retained[T] {
	if h == nil {
		panic("rc: nil handle")
	}
	trackClaim(h, claimRetained)
	adoptCounter.Inc()
	return Retained[T]{ptr: (*T)(unsafe.Pointer(h))}
}

// RetainHandle retains the handle and wraps the new claim
// caller must guarantee the handle points to a live initialized T and no Owned pointer to the same object exists
//
// e.g. this is illegal:
//
//	owned := NewOwned[T](h)
//	retained := RetainHandle[T](owned.Pointer())
//	owned.Get().Field = 1 // mutated while retained.Get() is alive
func RetainHandle[T any](h Handle) Retained[T] {
	if h == nil {
		panic("rc: nil handle")
	}
	mustSameHandle(h, getRuntime().Retain(h), "retain")
	trackClaim(h, claimRetained)
	retainCounter.Inc()
	return Retained[T]{ptr: (*T)(unsafe.Pointer(h))}
}

// RetainAutoreleasedReturn claims a handle returned autoreleased by a foreign method
// equivalent to RetainHandle() unless the runtime implements IRetainAutoreleasedReturner
func RetainAutoreleasedReturn[T any](h Handle) Retained[T] {
	rr, ok := getRuntime().(IRetainAutoreleasedReturner)
	if !ok {
		return RetainHandle[T](h)
	}
	if h == nil {
		panic("rc: nil handle")
	}
	mustSameHandle(h, rr.RetainAutoreleasedReturnValue(h), "retain autoreleased return value")
	trackClaim(h, claimRetained)
	retainCounter.Inc()
	return Retained[T]{ptr: (*T)(unsafe.Pointer(h))}
}

// RetainAndAutorelease is RetainHandle[T](h).Autorelease(pool) using the combined runtime primitive if there is one
// the returned object must not be used after the pool is drained
func RetainAndAutorelease[T any](h Handle, pool *AutoreleasePool) *T {
	if h == nil {
		panic("rc: nil handle")
	}
	pool.mustBeInnermost()
	ra, ok := getRuntime().(IRetainAutoreleaser)
	if !ok {
		r := RetainHandle[T](h)
		return r.Autorelease(pool)
	}
	assertNotOwned(h)
	mustSameHandle(h, ra.RetainAutorelease(h), "retain and autorelease")
	retainCounter.Inc()
	autoreleaseCounter.Inc()
	pool.pending++
	return (*T)(unsafe.Pointer(h))
}

// RetainAndAutoreleaseReturn is RetainHandle[T](h).AutoreleaseReturn(pool) using the combined runtime primitive if there is one
func RetainAndAutoreleaseReturn[T any](h Handle, pool *AutoreleasePool) *T {
	if h == nil {
		panic("rc: nil handle")
	}
	pool.mustBeInnermost()
	ra, ok := getRuntime().(IRetainAutoreleaseReturner)
	if !ok {
		r := RetainHandle[T](h)
		return r.AutoreleaseReturn(pool)
	}
	assertNotOwned(h)
	mustSameHandle(h, ra.RetainAutoreleaseReturnValue(h), "retain and autorelease return value")
	retainCounter.Inc()
	autoreleaseCounter.Inc()
	pool.pending++
	return (*T)(unsafe.Pointer(h))
}

// Send moves the claim out of r so that it could be handed to another goroutine
// compiles only if *T is Shareable
func Send[T any, P interface {
	*T
	Shareable
}](r *Retained[T]) Retained[T] {
	return r.Move()
}

// Get returns the object. It must be treated as read-only: other Retained pointers to it may exist
// valid until Release()
func (r *Retained[T]) Get() *T {
	if r.ptr == nil {
		panic("rc: use of empty or released Retained")
	}
	return r.ptr
}

// IsZero reports whether r holds no claim
func (r *Retained[T]) IsZero() bool {
	return r.ptr == nil
}

// Pointer returns the raw handle. The claim is still held by r
func (r *Retained[T]) Pointer() Handle {
	return Handle(unsafe.Pointer(r.ptr))
}

// Clone makes an independent claim on the same object, i.e. increases the object's retain count
func (r *Retained[T]) Clone() Retained[T] {
	return RetainHandle[T](Handle(unsafe.Pointer(r.Get())))
}

// Move transfers the claim to the returned pointer, r becomes empty
func (r *Retained[T]) Move() Retained[T] {
	return Retained[T]{ptr: r.take()}
}

// Release gives the claim back to the runtime
// panics if released already
func (r *Retained[T]) Release() {
	h := Handle(unsafe.Pointer(r.take()))
	untrackClaim(h, claimRetained)
	releaseCounter.Inc()
	getRuntime().Release(h)
}

// Autorelease hands the claim over to the pool: the object will be released when the pool is drained
// the returned object is read-only and must not be used after pool.Drain()
// pool must be the innermost active pool, otherwise the object would be released earlier than pool is drained
func (r *Retained[T]) Autorelease(pool *AutoreleasePool) *T {
	pool.mustBeInnermost()
	ptr := r.take()
	h := Handle(unsafe.Pointer(ptr))
	untrackClaim(h, claimRetained)
	mustSameHandle(h, getRuntime().Autorelease(h), "autorelease")
	autoreleaseCounter.Inc()
	pool.pending++
	return ptr
}

// AutoreleaseReturn is Autorelease() for values that are about to be returned to a foreign caller
// uses IAutoreleaseReturner if the runtime implements it
func (r *Retained[T]) AutoreleaseReturn(pool *AutoreleasePool) *T {
	ar, ok := getRuntime().(IAutoreleaseReturner)
	if !ok {
		return r.Autorelease(pool)
	}
	pool.mustBeInnermost()
	ptr := r.take()
	h := Handle(unsafe.Pointer(ptr))
	untrackClaim(h, claimRetained)
	mustSameHandle(h, ar.AutoreleaseReturnValue(h), "autorelease return value")
	autoreleaseCounter.Inc()
	pool.pending++
	return ptr
}

// RetainCount asks the runtime for the object's retain count
// false if the runtime does not implement IRetainCounter
// for tests and investigations only
func (r *Retained[T]) RetainCount() (uint64, bool) {
	rc, ok := getRuntime().(IRetainCounter)
	if !ok {
		return 0, false
	}
	return rc.RetainCount(Handle(unsafe.Pointer(r.Get())))
}

// Equal compares the objects, not the handles
// *T's Equal(*T) is used if exists, otherwise T values are compared by ==. Panics if T is not comparable
func (r *Retained[T]) Equal(other *Retained[T]) bool {
	a, b := r.Get(), other.Get()
	if eq, ok := any(a).(Equaler[T]); ok {
		return eq.Equal(b)
	}
	return any(*a) == any(*b)
}

// Compare orders the objects by *T's Compare(*T)
// panics if *T does not implement Comparer
func (r *Retained[T]) Compare(other *Retained[T]) int {
	a, b := r.Get(), other.Get()
	cmp, ok := any(a).(Comparer[T])
	if !ok {
		panic(fmt.Sprintf("rc: %T does not implement Compare", a))
	}
	return cmp.Compare(b)
}

// Hash hashes the object by *T's WriteHash()
// panics if *T does not implement Hashable
func (r *Retained[T]) Hash() uint64 {
	ptr := r.Get()
	hashable, ok := any(ptr).(Hashable)
	if !ok {
		panic(fmt.Sprintf("rc: %T does not implement WriteHash", ptr))
	}
	h := hasherPool.Get().(*xxh3.Hasher)
	defer hasherPool.Put(h)
	h.Reset()
	hashable.WriteHash(h)
	return h.Sum64()
}

func (r *Retained[T]) String() string {
	if r.ptr == nil {
		return "<nil>"
	}
	if s, ok := any(r.ptr).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(*r.ptr)
}

func (r *Retained[T]) take() *T {
	ptr := r.ptr
	if ptr == nil {
		panic("rc: already released")
	}
	r.ptr = nil
	return ptr
}

// NewOwned wraps a handle that carries the only claim on the object, the runtime is not called
// caller must guarantee:
// - the handle is non-nil, aligned and points to a live initialized T
// - the handle has +1 retain count and no other Retained or Owned pointer to the object exists
// - the object is not read or written through any other reference while the Owned pointer exists
func NewOwned[T any](h Handle) Owned[T] {
	if h == nil {
		panic("rc: nil handle")
	}
	trackClaim(h, claimOwned)
	adoptCounter.Inc()
	return Owned[T]{ptr: (*T)(unsafe.Pointer(h))}
}

// Get returns the object for reading and writing
// valid until Release() or IntoRetained()
func (o *Owned[T]) Get() *T {
	if o.ptr == nil {
		panic("rc: use of empty or released Owned")
	}
	return o.ptr
}

func (o *Owned[T]) IsZero() bool {
	return o.ptr == nil
}

// Pointer returns the raw handle. Creating another wrapper from it while o exists breaks exclusivity
func (o *Owned[T]) Pointer() Handle {
	return Handle(unsafe.Pointer(o.ptr))
}

// Move transfers the claim to the returned pointer, o becomes empty
// the pointee's thread affinity still applies
func (o *Owned[T]) Move() Owned[T] {
	return Owned[T]{ptr: o.take()}
}

// Release gives the claim back to the runtime
// panics if released already
func (o *Owned[T]) Release() {
	h := Handle(unsafe.Pointer(o.take()))
	untrackClaim(h, claimOwned)
	releaseCounter.Inc()
	getRuntime().Release(h)
}

// IntoRetained narrows the exclusive claim to a shared one, the runtime is not called
// o becomes empty. There is no way back from Retained to Owned
func (o *Owned[T]) IntoRetained() Retained[T] {
	ptr := o.take()
	narrowClaim(Handle(unsafe.Pointer(ptr)))
	return Retained[T]{ptr: ptr}
}

func (o *Owned[T]) take() *T {
	ptr := o.ptr
	if ptr == nil {
		panic("rc: already released")
	}
	o.ptr = nil
	return ptr
}

func mustSameHandle(expected, actual Handle, op string) {
	if expected != actual {
		panic(fmt.Sprintf("rc: runtime %s returned %p for %p", op, actual, expected))
	}
}
