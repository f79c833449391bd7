package container

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

func TestWriteAndVerifyStructure(t *testing.T) {
	buf := &bytes.Buffer{}
	w, err := NewWriter(nopCloser{buf}, Header{StartedAt: 1700000000000})
	require.NoError(t, err)

	f := frame.New([]byte("req"), []byte("res"), 10, 1700000000000)
	require.NoError(t, w.Append(f))
	require.NoError(t, w.Append(f))
	require.Equal(t, 2, w.FrameCount())
	require.NoError(t, w.Finish())

	data := buf.Bytes()
	require.Equal(t, Magic[:], data[:8])

	length := len(data)
	indexOffset := leUint64(data[length-8:])
	entryCount := leUint32(data[length-12 : length-8])
	require.Equal(t, uint32(2), entryCount)
	require.Greater(t, indexOffset, uint64(0))
	require.Less(t, indexOffset, uint64(length))
}

func TestCreateRejectsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.ghostline")

	w, err := Create(path, Header{StartedAt: 1})
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	_, err = Create(path, Header{StartedAt: 1})
	require.Error(t, err)
}

func TestWriterRoundTripsThroughReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.ghostline")

	w, err := Create(path, Header{StartedAt: 1700000000000})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		f := frame.New(
			[]byte(fmt.Sprintf("request-%d", i)),
			[]byte(fmt.Sprintf("response-%d", i)),
			uint64(10+i),
			uint64(1700000000000+i),
		)
		require.NoError(t, w.Append(f))
	}
	require.NoError(t, w.Finish())

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	require.Equal(t, 3, reader.FrameCount())
	for i := 0; i < 3; i++ {
		f, err := reader.GetFrame(i)
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("request-%d", i)), f.RequestBytes)
		require.Equal(t, []byte(fmt.Sprintf("response-%d", i)), f.ResponseBytes)
		require.Equal(t, uint64(10+i), f.LatencyMS)
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leUint32(b []byte) uint32 {
	var v uint32
	for i := 3; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}
