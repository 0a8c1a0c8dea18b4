/*
 * Copyright (c) 2023-present unTill Pro, Ltd. and Contributors
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */

package rc

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/exp/slices"
)

// StubOp is a primitive call recorded by RuntimeStub
type StubOp uint8

const (
	StubRetain StubOp = iota
	StubRelease
	StubAutorelease
	StubDealloc
	StubPushPool
	StubPopPool
)

func (op StubOp) String() string {
	switch op {
	case StubRetain:
		return "retain"
	case StubRelease:
		return "release"
	case StubAutorelease:
		return "autorelease"
	case StubDealloc:
		return "dealloc"
	case StubPushPool:
		return "push"
	case StubPopPool:
		return "pop"
	default:
		return "?"
	}
}

// StubEvent is a recorded primitive call. Handle is nil for pool operations
type StubEvent struct {
	Op     StubOp
	Handle Handle
	Token  PoolToken
}

type stubObject struct {
	count uint64
	obj   any
}

type stubPool struct {
	token   PoolToken
	handles []Handle
}

// RuntimeStub is an in-process IRuntime and IRetainCounter: objects live in the Go heap, retain counts in a map
// records every primitive call, see Events()
// useful in tests and investigations
type RuntimeStub struct {
	mu        sync.Mutex
	objects   map[Handle]*stubObject
	pools     []stubPool
	lastToken PoolToken
	events    []StubEvent
}

// NewRuntimeStub creates a runtime with no objects and no pools
func NewRuntimeStub() *RuntimeStub {
	return &RuntimeStub{objects: map[Handle]*stubObject{}}
}

// StubAlloc allocates a copy of v within the stub runtime. The returned handle carries +1 retain count
// when the count reaches zero the object is deallocated: its Dealloc() is called if exists
func StubAlloc[T any](s *RuntimeStub, v T) Handle {
	obj := new(T)
	*obj = v
	h := Handle(unsafe.Pointer(obj))
	s.mu.Lock()
	s.objects[h] = &stubObject{count: 1, obj: obj}
	s.mu.Unlock()
	return h
}

// StubDispatch calls f on the object as a foreign method would do: no wrapper is involved and nothing is checked
// it is the raw escape hatch that can mutate an object other pointers only read
func StubDispatch[T any](s *RuntimeStub, h Handle, f func(obj *T)) {
	s.mu.Lock()
	o, ok := s.objects[h]
	s.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("rc stub: dispatch to deallocated object %p", h))
	}
	f(o.obj.(*T))
}

func (s *RuntimeStub) Retain(h Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.mustGet(h, StubRetain)
	o.count++
	s.events = append(s.events, StubEvent{Op: StubRetain, Handle: h})
	return h
}

func (s *RuntimeStub) Release(h Handle) {
	s.mu.Lock()
	o, ok := s.objects[h]
	if !ok {
		s.mu.Unlock()
		panic(fmt.Sprintf("rc stub: %s of deallocated object %p", StubRelease, h))
	}
	o.count--
	s.events = append(s.events, StubEvent{Op: StubRelease, Handle: h})
	if o.count > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.objects, h)
	s.events = append(s.events, StubEvent{Op: StubDealloc, Handle: h})
	s.mu.Unlock()
	if d, ok := o.obj.(interface{ Dealloc() }); ok {
		d.Dealloc()
	}
}

func (s *RuntimeStub) Autorelease(h Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustGet(h, StubAutorelease)
	if len(s.pools) == 0 {
		panic(fmt.Sprintf("rc stub: %p autoreleased with no pool in place", h))
	}
	top := &s.pools[len(s.pools)-1]
	top.handles = append(top.handles, h)
	s.events = append(s.events, StubEvent{Op: StubAutorelease, Handle: h})
	return h
}

func (s *RuntimeStub) PushPool() PoolToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastToken++
	s.pools = append(s.pools, stubPool{token: s.lastToken})
	s.events = append(s.events, StubEvent{Op: StubPushPool, Token: s.lastToken})
	return s.lastToken
}

// PopPool pops the pool and every pool pushed after it, innermost first
// handles of a pool are released in the order they were autoreleased
func (s *RuntimeStub) PopPool(token PoolToken) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.pools, func(p stubPool) bool { return p.token == token })
	if idx < 0 {
		s.mu.Unlock()
		panic(fmt.Sprintf("rc stub: pop of unknown pool %d", token))
	}
	popped := slices.Clone(s.pools[idx:])
	s.pools = s.pools[:idx]
	s.mu.Unlock()

	for i := len(popped) - 1; i >= 0; i-- {
		for _, h := range popped[i].handles {
			s.Release(h)
		}
		s.mu.Lock()
		s.events = append(s.events, StubEvent{Op: StubPopPool, Token: popped[i].token})
		s.mu.Unlock()
	}
}

// RetainCount returns false if the object is deallocated
func (s *RuntimeStub) RetainCount(h Handle) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[h]
	if !ok {
		return 0, false
	}
	return o.count, true
}

// Live returns the amount of not deallocated objects
func (s *RuntimeStub) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Events returns a copy of the recorded primitive calls
func (s *RuntimeStub) Events() []StubEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Count returns how many times op was called
func (s *RuntimeStub) Count(op StubOp) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := 0
	for _, e := range s.events {
		if e.Op == op {
			res++
		}
	}
	return res
}

func (s *RuntimeStub) ResetEvents() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

// mustGet must be called under s.mu
func (s *RuntimeStub) mustGet(h Handle, op StubOp) *stubObject {
	o, ok := s.objects[h]
	if !ok {
		panic(fmt.Sprintf("rc stub: %s of deallocated object %p", op, h))
	}
	return o
}
