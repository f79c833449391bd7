package container

import (
	"io"
	"os"
	"sync"

	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/klauspost/compress/zstd"
)

// Writer appends frames to a container and finalizes it with a hash index.
//
// Binary layout: [Header] [len:u32][zstd frame 0] ... [len:u32][zstd frame N]
// [index entries: (hash[32] offset[8]) * count] [count:u32] [index_offset:u64]
type Writer struct {
	mu           sync.Mutex
	w            io.WriteCloser
	encoder      *zstd.Encoder
	index        []IndexEntry
	bytesWritten uint64
	closed       bool
}

// Create opens path for writing and writes the container header.
func Create(path string, header Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, header)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter wraps any WriteCloser as a container writer, immediately writing the header.
func NewWriter(w io.WriteCloser, header Header) (*Writer, error) {
	if err := writeHeader(w, header); err != nil {
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	return &Writer{
		w:            w,
		encoder:      encoder,
		bytesWritten: header.EncodedSize(),
	}, nil
}

// Append compresses and writes a frame, recording its offset in the index.
func (cw *Writer) Append(f frame.Frame) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return errClosed
	}

	packed, err := f.Encode()
	if err != nil {
		return err
	}
	compressed := cw.encoder.EncodeAll(packed, make([]byte, 0, len(packed)))

	offset := cw.bytesWritten
	if err := writeUint32(cw.w, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := cw.w.Write(compressed); err != nil {
		return err
	}
	cw.bytesWritten += 4 + uint64(len(compressed))

	cw.index = append(cw.index, IndexEntry{RequestHash: f.RequestHash, Offset: offset})
	return nil
}

// FrameCount reports how many frames have been appended so far.
func (cw *Writer) FrameCount() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return len(cw.index)
}

// Finish writes the index, entry count and index offset, then closes the
// underlying writer. The writer must not be used after Finish returns.
func (cw *Writer) Finish() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return errClosed
	}
	cw.closed = true
	defer cw.encoder.Close()

	indexOffset := cw.bytesWritten
	for _, entry := range cw.index {
		if _, err := cw.w.Write(entry.RequestHash[:]); err != nil {
			return err
		}
		if err := writeUint64(cw.w, entry.Offset); err != nil {
			return err
		}
	}
	if err := writeUint32(cw.w, uint32(len(cw.index))); err != nil {
		return err
	}
	if err := writeUint64(cw.w, indexOffset); err != nil {
		return err
	}
	return cw.w.Close()
}

var errClosed = writerClosedError{}

type writerClosedError struct{}

func (writerClosedError) Error() string { return "container: writer already finished" }
