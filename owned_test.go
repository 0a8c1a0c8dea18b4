package rc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicUsage_Owned(t *testing.T) {
	require := require.New(t)
	stub := setupStub(t)

	// freshly allocated object has no other references so it could be owned exclusively
	h := StubAlloc(stub, testObject{A: 1})
	owned := NewOwned[testObject](h)
	require.Zero(stub.Count(StubRetain))
	require.Equal(int64(1), GetClaimsInUse())

	// exclusive claim grants write access
	owned.Get().A = 2
	require.Equal(int32(2), owned.Get().A)
	require.Equal(h, owned.Pointer())

	owned.Release()
	require.Zero(stub.Live())
	require.True(owned.IsZero())

	// unable to release twice
	require.Panics(func() { owned.Release() })
	require.Panics(func() { owned.Get() })
	require.Panics(func() { NewOwned[testObject](nil) })
	require.Zero(GetClaimsInUse())
}

func TestOwned_IntoRetained(t *testing.T) {
	require := require.New(t)
	stub := setupStub(t)

	h := StubAlloc(stub, testObject{A: 1})
	owned := NewOwned[testObject](h)
	owned.Get().A = 10

	// narrowing is free: the same +1 claim becomes a shared one
	retained := owned.IntoRetained()
	require.Zero(stub.Count(StubRetain))
	require.True(owned.IsZero())
	require.Equal(int64(1), GetClaimsInUse())
	count, _ := retained.RetainCount()
	require.Equal(uint64(1), count)
	require.Equal(int32(10), retained.Get().A)

	// owned pointer can not be used anymore
	require.Panics(func() { owned.IntoRetained() })
	require.Panics(func() { owned.Release() })

	cloned := retained.Clone()
	retained.Release()
	cloned.Release()
	require.Zero(stub.Live())
	require.Zero(GetClaimsInUse())
}

func TestOwned_Move(t *testing.T) {
	require := require.New(t)
	stub := setupStub(t)

	owned := NewOwned[testObject](StubAlloc(stub, testObject{}))
	moved := owned.Move()
	require.True(owned.IsZero())
	moved.Get().A = 5
	require.Equal(int32(5), moved.Get().A)

	moved.Release()
	require.Zero(stub.Count(StubRetain))
	require.Equal(1, stub.Count(StubRelease))
	require.Zero(stub.Live())
	require.Zero(GetClaimsInUse())
}

func BenchmarkOwned(b *testing.B) {
	stub := setupStub(b)
	b.Run("basic", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			owned := NewOwned[testObject](StubAlloc(stub, testObject{}))
			owned.Release()
		}
	})
}
