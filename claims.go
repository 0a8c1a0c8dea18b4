/*
 * Copyright (c) 2020-present unTill Pro, Ltd.
 */

package rc

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

var (
	m            sync.Mutex = sync.Mutex{}
	isDebug      atomic.Bool
	claimsInUse  atomic.Int64
	claims       map[Handle]*claimInfo = map[Handle]*claimInfo{}
	claimAmounts map[string]int        = map[string]int{}
)

func (st stackTrace) string() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, sf := range st {
		fmt.Fprintf(buf, "%s\n\t%s:%d\n", sf.fn, sf.file, sf.line)
	}
	return buf.String()
}

func trackClaim(h Handle, kind claimKind) {
	if isDebug.Load() {
		st := getStackTrace().string()
		m.Lock()
		info := claims[h]
		if info == nil {
			info = &claimInfo{}
			claims[h] = info
		}
		switch {
		case info.owned:
			m.Unlock()
			panic(fmt.Sprintf("rc: %p is exclusively owned", h))
		case kind == claimOwned && info.retained > 0:
			m.Unlock()
			panic(fmt.Sprintf("rc: %p has %d Retained pointers, can not own it exclusively", h, info.retained))
		}
		if kind == claimOwned {
			info.owned = true
		} else {
			info.retained++
		}
		info.sites = append(info.sites, st)
		claimAmounts[st]++
		m.Unlock()
	}
	claimsInUse.Add(1)
}

func untrackClaim(h Handle, kind claimKind) {
	claimsInUse.Add(-1)
	if !isDebug.Load() {
		return
	}
	m.Lock()
	defer m.Unlock()
	info := claims[h]
	if info == nil {
		// claimed while debug mode was off
		return
	}
	if kind == claimOwned {
		info.owned = false
	} else if info.retained > 0 {
		info.retained--
	}
	// a wrapper does not remember where it was made, the latest site of the handle is dropped
	// so amounts per handle are exact while a site may be reported for a sibling wrapper of the same handle
	if last := len(info.sites) - 1; last >= 0 {
		claimAmounts[info.sites[last]]--
		info.sites = info.sites[:last]
	}
	if !info.owned && info.retained == 0 {
		delete(claims, h)
	}
}

// narrowClaim turns the exclusive claim into a shared one, the amount of claims is not changed
func narrowClaim(h Handle) {
	if !isDebug.Load() {
		return
	}
	m.Lock()
	if info := claims[h]; info != nil && info.owned {
		info.owned = false
		info.retained++
	}
	m.Unlock()
}

// assertNotOwned is for claims that bypass the wrappers, e.g. straight into a pool
func assertNotOwned(h Handle) {
	if !isDebug.Load() {
		return
	}
	m.Lock()
	info := claims[h]
	owned := info != nil && info.owned
	m.Unlock()
	if owned {
		panic(fmt.Sprintf("rc: %p is exclusively owned", h))
	}
}

func getNonReleased() map[string]int {
	m.Lock()
	res := map[string]int{}
	for k, v := range claimAmounts {
		if v > 0 {
			res[k] = v
		}
	}
	m.Unlock()
	return res
}

func getStackTrace() stackTrace {
	pc := make([]uintptr, 100) // can't estimate
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	st := stackTrace{}
	for {
		frame, more := frames.Next()
		st = append(st, stackFrame{
			fn:   frame.Function,
			file: frame.File,
			line: frame.Line,
		})
		if !more {
			break
		}
	}
	return st
}
