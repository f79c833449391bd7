package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/stretchr/testify/require"
)

func writeTestContainer(t *testing.T, header Header, n int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "run.ghostline")

	w, err := Create(path, header)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		f := frame.New(
			[]byte(fmt.Sprintf("request-%d", i)),
			[]byte(fmt.Sprintf("response-%d", i)),
			uint64(10+i),
			uint64(1700000000000+i),
		)
		require.NoError(t, w.Append(f))
	}
	require.NoError(t, w.Finish())
	return path
}

func TestReadFrameCount(t *testing.T) {
	path := writeTestContainer(t, Header{StartedAt: 1700000000000}, 3)
	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()
	require.Equal(t, 3, reader.FrameCount())
}

func TestReadAllFrames(t *testing.T) {
	path := writeTestContainer(t, Header{StartedAt: 1700000000000}, 3)
	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	for i := 0; i < 3; i++ {
		f, err := reader.GetFrame(i)
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("request-%d", i)), f.RequestBytes)
	}
}

func TestLookupByHashWorks(t *testing.T) {
	path := writeTestContainer(t, Header{StartedAt: 1700000000000}, 3)
	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	expectedHash := frame.HashRequest([]byte("request-1"))
	f, ok, err := reader.LookupByHash(expectedHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("request-1"), f.RequestBytes)
}

func TestLookupByHashNotFound(t *testing.T) {
	path := writeTestContainer(t, Header{StartedAt: 1700000000000}, 3)
	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	_, ok, err := reader.LookupByHash([32]byte{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHeaderOptionalFieldsRoundTrip(t *testing.T) {
	sha := [20]byte{1, 2, 3}
	parent := [32]byte{4, 5, 6}
	step := uint32(7)
	header := Header{StartedAt: 42, GitSHA: &sha, ParentRunID: &parent, ForkAtStep: &step}

	path := writeTestContainer(t, header, 1)
	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, uint64(42), reader.Header.StartedAt)
	require.NotNil(t, reader.Header.GitSHA)
	require.Equal(t, sha, *reader.Header.GitSHA)
	require.NotNil(t, reader.Header.ParentRunID)
	require.Equal(t, parent, *reader.Header.ParentRunID)
	require.NotNil(t, reader.Header.ForkAtStep)
	require.Equal(t, step, *reader.Header.ForkAtStep)
}

func TestOpenRejectsIndexOffsetBeforeHeader(t *testing.T) {
	path := writeTestContainer(t, Header{StartedAt: 1700000000000}, 2)
	corruptIndexEntryOffset(t, path, 0)

	_, err := Open(path)
	require.ErrorIs(t, err, ErrMalformedIndex)
}

func TestOpenRejectsIndexOffsetPastIndexStart(t *testing.T) {
	path := writeTestContainer(t, Header{StartedAt: 1700000000000}, 2)

	info, err := os.Stat(path)
	require.NoError(t, err)
	corruptIndexEntryOffset(t, path, uint64(info.Size()))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrMalformedIndex)
}

// corruptIndexEntryOffset rewrites the first index entry's stored offset to
// the given value, simulating a corrupted or hostile container footer.
func corruptIndexEntryOffset(t *testing.T, path string, offset uint64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(-8, io.SeekEnd)
	require.NoError(t, err)
	var buf [8]byte
	_, err = io.ReadFull(f, buf[:])
	require.NoError(t, err)
	indexOffset := binary.LittleEndian.Uint64(buf[:])

	// First index entry: 32-byte hash followed by the 8-byte offset.
	_, err = f.Seek(int64(indexOffset)+32, io.SeekStart)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(buf[:], offset)
	_, err = f.Write(buf[:])
	require.NoError(t, err)
}

func TestOpenRejectsInvalidMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ghostline")
	require.NoError(t, os.WriteFile(path, []byte("NOTVALID"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
}
