/*
 * Copyright (c) 2023-present unTill Pro, Ltd. and Contributors
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */

package rc

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

var (
	poolsMu sync.Mutex
	// innermost active pool per goroutine
	innermostPools = map[uint64]*AutoreleasePool{}
)

// NewAutoreleasePool pushes a new pool
// if the current goroutine has an active pool already then the new pool is nested into the innermost one
// and is drained when that one is drained
// runtime pools are per-thread so the current goroutine is locked to its OS thread until Drain()
// prefer AutoreleasePoolScope() which drains on every exit path
func NewAutoreleasePool() *AutoreleasePool {
	return push(nil)
}

// AutoreleasePoolScope runs f within a new pool and drains the pool on return, including panics
func AutoreleasePoolScope(f func(pool *AutoreleasePool)) {
	pool := NewAutoreleasePool()
	defer pool.drainActive()
	f(pool)
}

// NewNested pushes a pool nested into p
// p must be the innermost active pool of the current goroutine
func (p *AutoreleasePool) NewNested() *AutoreleasePool {
	p.mustBeInnermost()
	return push(p)
}

// Scope runs f within a pool nested into p and drains the nested pool on return, including panics
func (p *AutoreleasePool) Scope(f func(inner *AutoreleasePool)) {
	inner := p.NewNested()
	defer inner.drainActive()
	f(inner)
}

// IsDrained reports whether the pool is drained already
func (p *AutoreleasePool) IsDrained() bool {
	return p.state == poolDrained
}

// Drain releases every handle autoreleased into the pool
// nested pools that are still active are drained first, innermost first
// objects returned by Retained.Autorelease(p) must not be used after that
// must be called by the goroutine that created the pool: that is the goroutine locked to the pool's thread
// panics if drained already: create a new pool instead
// a runtime failure during the drain is fatal, see SetLogger()
func (p *AutoreleasePool) Drain() {
	if p.state == poolDrained {
		panic("rc: autorelease pool already drained")
	}
	if goid := currentGoroutineID(); goid != p.goid {
		panic(fmt.Sprintf("rc: autorelease pool of goroutine %d drained by goroutine %d", p.goid, goid))
	}
	if p.child != nil {
		p.child.Drain()
	}
	defer runtime.UnlockOSThread()
	p.state = poolDrained
	p.unlink()
	p.pop()
	poolDrainCounter.Inc()
	Logger().Debug("autorelease pool drained", zap.Uintptr("token", uintptr(p.token)), zap.Int("released", p.pending))
}

func (p *AutoreleasePool) drainActive() {
	if p.state == poolActive {
		p.Drain()
	}
}

func (p *AutoreleasePool) pop() {
	defer func() {
		if r := recover(); r != nil {
			// over-retained objects would have no owner, nothing can be done at this level
			Logger().Fatal("autorelease pool drain failed",
				zap.Uintptr("token", uintptr(p.token)), zap.Int("pending", p.pending), zap.Any("cause", r))
		}
	}()
	getRuntime().PopPool(p.token)
}

// unlink makes the parent the innermost pool again
func (p *AutoreleasePool) unlink() {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	if p.parent == nil {
		delete(innermostPools, p.goid)
		return
	}
	p.parent.child = nil
	innermostPools[p.goid] = p.parent
}

func (p *AutoreleasePool) mustBeInnermost() {
	switch {
	case p.state == poolDrained:
		panic("rc: autorelease pool already drained")
	case p.child != nil:
		panic("rc: autorelease pool is not the innermost one")
	}
}

// push links the new pool under parent or, if parent is nil, under the goroutine's innermost pool
func push(parent *AutoreleasePool) *AutoreleasePool {
	rt := getRuntime()
	goid := currentGoroutineID()
	if parent != nil && parent.goid != goid {
		panic(fmt.Sprintf("rc: autorelease pool of goroutine %d nested by goroutine %d", parent.goid, goid))
	}
	runtime.LockOSThread()
	p := &AutoreleasePool{
		token: rt.PushPool(),
		goid:  goid,
	}
	poolsMu.Lock()
	if parent == nil {
		parent = innermostPools[goid]
	}
	if parent != nil {
		parent.child = p
		p.parent = parent
	}
	innermostPools[goid] = p
	poolsMu.Unlock()
	poolPushCounter.Inc()
	Logger().Debug("autorelease pool pushed", zap.Uintptr("token", uintptr(p.token)), zap.Bool("nested", parent != nil))
	return p
}

// currentGoroutineID parses "goroutine N [status]:" header of the current goroutine stack
func currentGoroutineID() uint64 {
	var buf [64]byte
	b := bytes.TrimPrefix(buf[:runtime.Stack(buf[:], false)], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("rc: can not get goroutine id: %v", err))
	}
	return id
}
