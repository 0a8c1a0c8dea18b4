package rc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type deallocObject struct {
	dealloced *bool
}

func (o *deallocObject) Dealloc() {
	*o.dealloced = true
}

func TestStub_Lifecycle(t *testing.T) {
	require := require.New(t)
	stub := NewRuntimeStub()

	dealloced := false
	h := StubAlloc(stub, deallocObject{dealloced: &dealloced})
	require.Equal(1, stub.Live())

	require.Equal(h, stub.Retain(h))
	count, ok := stub.RetainCount(h)
	require.True(ok)
	require.Equal(uint64(2), count)

	stub.Release(h)
	require.False(dealloced)
	stub.Release(h)
	require.True(dealloced)
	require.Zero(stub.Live())

	require.Panics(func() { stub.Retain(h) })
	require.Panics(func() { stub.Release(h) })
	require.Panics(func() { StubDispatch(stub, h, func(*deallocObject) {}) })

	ops := []StubOp{}
	for _, e := range stub.Events() {
		ops = append(ops, e.Op)
	}
	require.Equal([]StubOp{StubRetain, StubRelease, StubRelease, StubDealloc}, ops)
	require.Equal("dealloc", StubDealloc.String())

	stub.ResetEvents()
	require.Empty(stub.Events())
}

func TestStub_Pools(t *testing.T) {
	require := require.New(t)
	stub := NewRuntimeStub()
	h := StubAlloc(stub, testObject{})

	// no pool in place
	require.Panics(func() { stub.Autorelease(h) })

	outer := stub.PushPool()
	stub.Retain(h)
	stub.Autorelease(h)
	inner := stub.PushPool()
	require.NotEqual(outer, inner)
	stub.Retain(h)
	stub.Autorelease(h)

	// popping the outer pool pops the inner one as well
	stub.PopPool(outer)
	count, _ := stub.RetainCount(h)
	require.Equal(uint64(1), count)
	require.Equal(2, stub.Count(StubPopPool))
	require.Panics(func() { stub.PopPool(inner) })

	stub.Release(h)
	require.Zero(stub.Live())
}
