package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRegistryMissingIsDefiniteAbsence(t *testing.T) {
	reg := MapRegistry{}
	_, found, err := reg.Lookup("nope")
	require.NoError(t, err)
	assert.False(t, found)
}

type countingRegistry struct {
	calls int
	rec BlockRecord
}

func (c *countingRegistry) Lookup(blockID string) (BlockRecord, bool, error) {
	c.calls++
	return c.rec, true, nil
}

func TestCachingLookupHitsCache(t *testing.T) {
	inner := &countingRegistry{rec: BlockRecord{ID: "b1", Language: "python"}}
	cached := NewCachingLookup(inner, time.Minute)

	_, _, err := cached.Lookup("b1")
	require.NoError(t, err)
	_, _, err = cached.Lookup("b1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "second lookup must hit the cache, not the inner registry")
}

func TestCachingLookupExpires(t *testing.T) {
	inner := &countingRegistry{rec: BlockRecord{ID: "b1"}}
	cached := NewCachingLookup(inner, time.Millisecond)
	fakeNow := time.Now()
	cached.now = func() time.Time { return fakeNow }

	_, _, _ = cached.Lookup("b1")
	fakeNow = fakeNow.Add(time.Second)
	_, _, _ = cached.Lookup("b1")

	assert.Equal(t, 2, inner.calls)
}

func TestModuleResolverRejectsRelativePaths(t *testing.T) {
	r := NewModuleResolver()
	err := r.Register("./relative/path", "/tmp")
	assert.Error(t, err)
}

func TestModuleResolverRoundTrip(t *testing.T) {
	r := NewModuleResolver()
	require.NoError(t, r.Register("github.com/example/mod", "/srv/mod"))

	root, err := r.Resolve("github.com/example/mod")
	require.NoError(t, err)
	assert.Equal(t, "/srv/mod", root)
}

func TestModuleResolverUnregisteredFails(t *testing.T) {
	r := NewModuleResolver()
	_, err := r.Resolve("github.com/example/unregistered")
	assert.Error(t, err)
}
