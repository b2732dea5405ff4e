package genarena

import (
	"testing"

	"github.com/loopmesh/qbipc/api"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	a := New[string]()
	h := a.Put("hello")
	v, err := a.Get(h)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	require.Equal(t, 1, a.Len())
}

func TestDeleteInvalidatesHandle(t *testing.T) {
	a := New[string]()
	h := a.Put("hello")
	require.NoError(t, a.Delete(h))
	require.Zero(t, a.Len())

	_, err := a.Get(h)
	require.ErrorIs(t, err, api.ErrBadHandle)
	require.ErrorIs(t, a.Delete(h), api.ErrBadHandle)
}

func TestReusedSlotRejectsStaleHandle(t *testing.T) {
	a := New[string]()
	h1 := a.Put("first")
	require.NoError(t, a.Delete(h1))

	h2 := a.Put("second")
	require.Equal(t, h1.Index, h2.Index, "slot should be recycled")
	require.NotEqual(t, h1.Generation, h2.Generation)

	_, err := a.Get(h1)
	require.ErrorIs(t, err, api.ErrBadHandle)

	v, err := a.Get(h2)
	require.NoError(t, err)
	require.Equal(t, "second", v)
}

func TestGetOutOfRangeHandle(t *testing.T) {
	a := New[string]()
	_, err := a.Get(Handle{Index: 99})
	require.ErrorIs(t, err, api.ErrBadHandle)
}
