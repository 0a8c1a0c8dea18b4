/*
 * Copyright (c) 2023-present unTill Pro, Ltd. and Contributors
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */

package rc

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type runtimeRef struct {
	IRuntime
}

var (
	currentRuntime atomic.Pointer[runtimeRef]
	logger         *zap.Logger
	loggerOnce     sync.Once
)

// SetRuntime sets the foreign runtime all the wrappers call into
// must be called before any wrapper is created. nil unsets the runtime
func SetRuntime(rt IRuntime) {
	if rt == nil {
		currentRuntime.Store(nil)
		return
	}
	currentRuntime.Store(&runtimeRef{IRuntime: rt})
}

func getRuntime() IRuntime {
	ref := currentRuntime.Load()
	if ref == nil {
		panic("rc: runtime is not set, call SetRuntime() first")
	}
	return ref.IRuntime
}

// Logger returns the package logger
// no-op logger by default
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the package logger
// note: a failed pool drain is reported by Fatal(), i.e. the logger's fatal hook decides how the process ends
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerOnce.Do(func() {})
	logger = l
}

// GetClaimsInUse returns the amount of claims held by live Retained and Owned pointers
// claims handed over to autorelease pools are not counted
// useful in tests
func GetClaimsInUse() int64 {
	return claimsInUse.Load()
}

// PrintNonReleased prints stacktraces that explains where non-released claims were made
// note: debug mode must be turned on by `rc.SetDebug(true)` call
// note: amounts per object are exact but when an object has several claims the reported site could be
// where another claim on the same object was made, e.g. Adopt() instead of Clone()
func PrintNonReleased(w io.Writer) {
	nr := getNonReleased()
	if len(nr) == 0 {
		return
	}
	Logger().Warn("claims made but not released", zap.Int("sites", len(nr)))
	fmt.Fprintln(w, "claims made but not released:")
	for st, amount := range nr {
		st = "\t" + strings.ReplaceAll(st, "\n", "\n\t")
		st = st[:len(st)-1]
		fmt.Fprintf(w, "%d not released claimed at:\n%s", amount, st)
	}
}

// SetDebug switches debug mode. In debug mode the package tracks:
// - amounts of non-released claims per each claim source code point, see PrintNonReleased()
// - wrappers per handle: creating a Retained for an Owned object or an Owned for a retained object panics
// claims made while debug mode was off are not tracked
// useful for investigations only, decreases performance
func SetDebug(debug bool) {
	isDebug.Store(debug)
	if !debug {
		m.Lock()
		claims = map[Handle]*claimInfo{}
		claimAmounts = map[string]int{}
		m.Unlock()
	}
}
