package fork

import (
	"path/filepath"
	"testing"

	"github.com/JOBOYA/ghostline/internal/container"
	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/stretchr/testify/require"
)

func writeSourceContainer(t *testing.T, frames ...frame.Frame) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.ghostline")
	w, err := container.Create(path, container.Header{StartedAt: 5000})
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, w.Append(f))
	}
	require.NoError(t, w.Finish())
	return path
}

func TestRunForksPrefixOfFrames(t *testing.T) {
	frames := []frame.Frame{
		frame.New([]byte("one"), []byte("r1"), 1, 1000),
		frame.New([]byte("two"), []byte("r2"), 2, 2000),
		frame.New([]byte("three"), []byte("r3"), 3, 3000),
	}
	srcPath := writeSourceContainer(t, frames...)
	dstPath := filepath.Join(t.TempDir(), "forked.ghostline")

	require.NoError(t, Run(srcPath, dstPath, 1))

	dst, err := container.Open(dstPath)
	require.NoError(t, err)
	defer dst.Close()

	require.Equal(t, 2, dst.FrameCount())
	require.Equal(t, uint64(5000), dst.Header.StartedAt)
	require.NotNil(t, dst.Header.ForkAtStep)
	require.Equal(t, uint32(1), *dst.Header.ForkAtStep)
	require.NotNil(t, dst.Header.ParentRunID)

	expectedParent := ParentRunID(5000, frames[0].RequestHash)
	require.Equal(t, expectedParent, *dst.Header.ParentRunID)

	f0, err := dst.GetFrame(0)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), f0.RequestBytes)

	f1, err := dst.GetFrame(1)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), f1.RequestBytes)
}

func TestRunRejectsStepOutOfRange(t *testing.T) {
	frames := []frame.Frame{frame.New([]byte("only"), []byte("r"), 1, 1000)}
	srcPath := writeSourceContainer(t, frames...)
	dstPath := filepath.Join(t.TempDir(), "forked.ghostline")

	err := Run(srcPath, dstPath, 5)
	require.ErrorIs(t, err, ErrStepOutOfRange)
}

func TestParentRunIDIsDeterministic(t *testing.T) {
	hash := frame.HashRequest([]byte("payload"))
	a := ParentRunID(1234, hash)
	b := ParentRunID(1234, hash)
	require.Equal(t, a, b)

	c := ParentRunID(5678, hash)
	require.NotEqual(t, a, c)
}
