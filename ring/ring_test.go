package ring

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/loopmesh/qbipc/api"
	"github.com/loopmesh/qbipc/ring/dump"
	"github.com/loopmesh/qbipc/ring/notify"
	"github.com/stretchr/testify/require"
)

func openTestRing(t *testing.T, bytes int) *Ring {
	t.Helper()
	name := filepath.Join(t.TempDir(), fmt.Sprintf("ring-%s", t.Name()))
	r, err := Open(name, bytes, Options{Flags: Create, Notifier: notify.KindNone})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestChunkWriteRead(t *testing.T) {
	r := openTestRing(t, 4096)

	require.NoError(t, r.ChunkWrite([]byte("hello")))
	require.NoError(t, r.ChunkWrite([]byte("world!")))

	buf := make([]byte, 64)
	n, err := r.ChunkRead(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	n, err = r.ChunkRead(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "world!", string(buf[:n]))
}

func TestChunkReadEmptyReturnsNoMessage(t *testing.T) {
	r := openTestRing(t, 4096)
	buf := make([]byte, 16)
	_, err := r.ChunkRead(buf, 0)
	require.ErrorIs(t, err, api.ErrNoMessage)
}

func TestChunkReadBufferTooSmall(t *testing.T) {
	r := openTestRing(t, 4096)
	require.NoError(t, r.ChunkWrite([]byte("a longer payload than the buffer")))

	small := make([]byte, 4)
	_, err := r.ChunkRead(small, 0)
	require.ErrorIs(t, err, api.ErrBufferTooSmall)
}

func TestChunkAllocWithoutOverwriteBlocksWhenFull(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ring-full")
	r, err := Open(name, 64, Options{Flags: Create, Notifier: notify.KindNone})
	require.NoError(t, err)
	defer r.Close()

	payload := make([]byte, 8)
	var wrote int
	for {
		if err := r.ChunkWrite(payload); err != nil {
			require.ErrorIs(t, err, api.ErrWouldBlock)
			break
		}
		wrote++
		require.Less(t, wrote, 1000, "ring never reported full")
	}
}

func TestChunkAllocOverwriteReclaimsOldest(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ring-overwrite")
	r, err := Open(name, 64, Options{Flags: Create | Overwrite, Notifier: notify.KindNone})
	require.NoError(t, err)
	defer r.Close()

	// 1000 chunks of 4 words each overflow the 1024-word ring many times
	// over: the oldest are reclaimed and the newest is read last.
	const writes = 1000
	payload := make([]byte, 8)
	for i := 0; i < writes; i++ {
		binary.LittleEndian.PutUint32(payload, uint32(i))
		require.NoError(t, r.ChunkWrite(payload))
	}

	buf := make([]byte, 16)
	n, err := r.ChunkRead(buf, 0)
	require.NoError(t, err)
	require.Greater(t, binary.LittleEndian.Uint32(buf[:n]), uint32(0))
	last := binary.LittleEndian.Uint32(buf[:n])
	for {
		if n, err = r.ChunkRead(buf, 0); err != nil {
			require.ErrorIs(t, err, api.ErrNoMessage)
			break
		}
		last = binary.LittleEndian.Uint32(buf[:n])
	}
	require.Equal(t, uint32(writes-1), last)
}

func TestSpaceAccounting(t *testing.T) {
	r := openTestRing(t, 4096)
	free0 := r.SpaceFree()
	require.Zero(t, r.SpaceUsed())

	require.NoError(t, r.ChunkWrite([]byte("12345678")))
	require.Greater(t, r.SpaceUsed(), 0)
	require.Less(t, r.SpaceFree(), free0)

	buf := make([]byte, 16)
	_, err := r.ChunkRead(buf, 0)
	require.NoError(t, err)
	require.Zero(t, r.SpaceUsed())
	require.Equal(t, free0, r.SpaceFree())
}

func TestWriteToFileRoundTripsThroughDump(t *testing.T) {
	r := openTestRing(t, 4096)
	require.NoError(t, r.ChunkWrite([]byte("one")))
	require.NoError(t, r.ChunkWrite([]byte("two")))

	// Peek plus reclaim consumes "one", so the dump holds only "two".
	_, err := r.ChunkPeek(0)
	require.NoError(t, err)
	require.NoError(t, r.ChunkReclaim())

	var buf fakeBuffer
	require.NoError(t, r.WriteToFile(&buf))
	require.NotEmpty(t, buf.data)

	chunks, err := dump.Inspect(bytes.NewReader(buf.data))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "two", string(chunks[0].Payload))
}

func TestAttachAdoptsCreatorsSysvSemaphore(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ring-sysvsem")
	owner, err := Open(name, 4096, Options{Flags: Create, Notifier: notify.KindSysvSem})
	require.NoError(t, err)
	defer owner.Close()

	attached, err := Open(name, 4096, Options{})
	require.NoError(t, err)
	defer attached.Close()

	require.NoError(t, owner.ChunkWrite([]byte("adopted")))
	buf := make([]byte, 16)
	n, err := attached.ChunkRead(buf, 1000)
	require.NoError(t, err)
	require.Equal(t, "adopted", string(buf[:n]))
}

func TestAttachRejectsEventfdWithoutOutOfBandFD(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ring-eventfd")
	owner, err := Open(name, 4096, Options{Flags: Create, Notifier: notify.KindEventfd})
	require.NoError(t, err)
	defer owner.Close()

	_, err = Open(name, 4096, Options{})
	require.Error(t, err)
}

// fakeBuffer is a minimal io.Writer sink.
type fakeBuffer struct{ data []byte }

func (b *fakeBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
