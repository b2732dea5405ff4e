package dump

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/loopmesh/qbipc/ring"
	"github.com/loopmesh/qbipc/ring/notify"
	"github.com/stretchr/testify/require"
)

func TestInspectRecoversCommittedChunks(t *testing.T) {
	name := filepath.Join(t.TempDir(), "dump-ring")
	r, err := ring.Open(name, 4096, ring.Options{Flags: ring.Create, Notifier: notify.KindNone})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.ChunkWrite([]byte("alpha")))
	require.NoError(t, r.ChunkWrite([]byte("bravo")))

	var buf bytes.Buffer
	require.NoError(t, r.WriteToFile(&buf))

	chunks, err := Inspect(&buf)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "alpha", string(chunks[0].Payload))
	require.Equal(t, "bravo", string(chunks[1].Payload))
}

func TestInspectEmptyRing(t *testing.T) {
	name := filepath.Join(t.TempDir(), "dump-empty")
	r, err := ring.Open(name, 4096, ring.Options{Flags: ring.Create, Notifier: notify.KindNone})
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	require.NoError(t, r.WriteToFile(&buf))

	chunks, err := Inspect(&buf)
	require.NoError(t, err)
	require.Empty(t, chunks)
}
