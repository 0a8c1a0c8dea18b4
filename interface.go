/*
 * Copyright (c) 2023-present unTill Pro, Ltd. and Contributors
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */

package rc

import "github.com/zeebo/xxh3"

// IRuntime is the set of primitives the foreign reference-counting runtime must provide
// none of the methods may fail. A runtime that can not keep this promise must panic, see AutoreleasePool.Drain()
// set the process-wide implementation by SetRuntime()
type IRuntime interface {
	// Retain increments the reference count and returns the same handle
	Retain(h Handle) Handle

	// Release decrements the reference count, the object may be destroyed at zero
	Release(h Handle)

	// Autorelease registers the handle with the innermost active pool of the current thread
	Autorelease(h Handle) Handle

	// PushPool opens a new innermost pool on the current thread
	PushPool() PoolToken

	// PopPool releases every handle registered since the pool identified by token was pushed
	// pools pushed after token are popped as well, innermost first
	PopPool(token PoolToken)
}

// IRetainCounter is optionally implemented by IRuntime
// for verification only, must not be used for correctness logic
type IRetainCounter interface {
	// RetainCount returns false if the handle does not identify a live object
	RetainCount(h Handle) (count uint64, ok bool)
}

// IRetainAutoreleaser is optionally implemented by runtimes that have a combined retain+autorelease primitive
type IRetainAutoreleaser interface {
	RetainAutorelease(h Handle) Handle
}

// IRetainAutoreleasedReturner is optionally implemented by runtimes that can claim an autoreleased return value cheaper than Retain
type IRetainAutoreleasedReturner interface {
	RetainAutoreleasedReturnValue(h Handle) Handle
}

// IAutoreleaseReturner is optionally implemented by runtimes that can autorelease a return value cheaper than Autorelease
type IAutoreleaseReturner interface {
	AutoreleaseReturnValue(h Handle) Handle
}

// IRetainAutoreleaseReturner is optionally implemented by runtimes that retain and autorelease a return value in one call
type IRetainAutoreleaseReturner interface {
	RetainAutoreleaseReturnValue(h Handle) Handle
}

// Shareable marks pointee types whose Retained pointers may be handed to another goroutine. See Send()
// both guarantees are required: a claim released on another goroutine runs the pointee's deallocation there
type Shareable interface {
	// SafeForConcurrentRead says the object may be read from several goroutines at once
	SafeForConcurrentRead()

	// SafeForConcurrentClaims says retain and release may happen on any goroutine
	SafeForConcurrentClaims()
}

// Equaler is optionally implemented by *T to define Retained[T].Equal()
type Equaler[T any] interface {
	Equal(other *T) bool
}

// Comparer is optionally implemented by *T to define Retained[T].Compare()
type Comparer[T any] interface {
	Compare(other *T) int
}

// Hashable is optionally implemented by *T to define Retained[T].Hash()
type Hashable interface {
	WriteHash(h *xxh3.Hasher)
}
