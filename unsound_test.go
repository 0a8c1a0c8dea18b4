/*
 * Copyright (c) 2023-present unTill Pro, Ltd. and Contributors
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */

package rc

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnsound_MutationThroughDispatch(t *testing.T) {
	stub := setupStub(t)
	obj := Adopt[testObject](StubAlloc(stub, testObject{A: 42}))
	defer obj.Release()

	// read-only view into the object
	a := &obj.Get().A

	// problem: a foreign method mutates the object although the caller has a shared claim only
	// (solution: never dispatch mutating methods through a handle held by Retained, use Owned)
	StubDispatch(stub, obj.Pointer(), func(o *testObject) {
		o.A++
	})

	// problem: the view has changed under the reader and there is no error here
	// the contract is violated by the raw dispatch call, not by any call of Retained or Owned
	require.Equal(t, int32(43), *a)
}

func TestUnsound_NoWayFromRetainedToOwned(t *testing.T) {
	ownedType := reflect.TypeOf(Owned[testObject]{})
	ownedPtrType := reflect.TypeOf(&Owned[testObject]{})
	retainedPtrType := reflect.TypeOf(&Retained[testObject]{})
	for i := 0; i < retainedPtrType.NumMethod(); i++ {
		method := retainedPtrType.Method(i)
		for j := 0; j < method.Type.NumOut(); j++ {
			out := method.Type.Out(j)
			require.NotEqual(t, ownedType, out, method.Name)
			require.NotEqual(t, ownedPtrType, out, method.Name)
		}
	}
}

func TestUnsound_MixingClaimsInDebugMode(t *testing.T) {
	require := require.New(t)
	stub := setupStub(t)
	SetDebug(true)
	defer SetDebug(false)

	owned := NewOwned[testObject](StubAlloc(stub, testObject{}))

	// another claim would make a read-only view while the object is writable through owned
	require.Panics(func() { Adopt[testObject](owned.Pointer()) })
	require.Panics(func() { NewOwned[testObject](owned.Pointer()) })
	require.Panics(func() {
		AutoreleasePoolScope(func(pool *AutoreleasePool) {
			SetRuntime(&fastPathRuntime{RuntimeStub: stub})
			RetainAndAutorelease[testObject](owned.Pointer(), pool)
		})
	})
	SetRuntime(stub)
	require.Equal(int64(1), GetClaimsInUse())

	// narrowing makes more shared claims legal
	retained := owned.IntoRetained()
	cloned := RetainHandle[testObject](retained.Pointer())
	require.Panics(func() { NewOwned[testObject](retained.Pointer()) })

	cloned.Release()
	retained.Release()
	require.Zero(stub.Live())
	require.Zero(GetClaimsInUse())
}
