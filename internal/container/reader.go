package container

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JOBOYA/ghostline/internal/frame"
	"github.com/klauspost/compress/zstd"
)

// ErrFrameOutOfBounds is returned by GetFrame when the index is invalid.
var ErrFrameOutOfBounds = errors.New("container: frame index out of bounds")

// Reader provides random access to frames in a finalized container.
type Reader struct {
	r       io.ReadSeekCloser
	decoder *zstd.Decoder
	Header  Header
	index   []IndexEntry
}

// Open reads and parses the container at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := FromReadSeekCloser(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return reader, nil
}

// ReadSeekCloser is the minimal interface a container source must satisfy.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// FromReadSeekCloser parses a container from an arbitrary seekable source,
// following the 9-step layout: magic, version, started_at, optional fields,
// then the index read back-to-front via the trailing offset/count pair.
func FromReadSeekCloser(r ReadSeekCloser) (*Reader, error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	// 1.- Seek to the final 8 bytes to recover the index offset.
	if _, err := r.Seek(-8, io.SeekEnd); err != nil {
		return nil, err
	}
	indexOffset, err := readUint64(r)
	if err != nil {
		return nil, err
	}

	// 2.- The 4 bytes immediately before that hold the entry count.
	if _, err := r.Seek(-12, io.SeekEnd); err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	// 3.- Seek to the index and read every (hash, offset) entry.
	if _, err := r.Seek(int64(indexOffset), io.SeekStart); err != nil {
		return nil, err
	}
	headerEnd := header.EncodedSize()
	index := make([]IndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var entry IndexEntry
		if _, err := io.ReadFull(r, entry.RequestHash[:]); err != nil {
			return nil, err
		}
		offset, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		if offset < headerEnd || offset >= indexOffset {
			return nil, fmt.Errorf("%w: entry %d offset %d, want [%d, %d)", ErrMalformedIndex, i, offset, headerEnd, indexOffset)
		}
		entry.Offset = offset
		index = append(index, entry)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Reader{r: r, decoder: decoder, Header: header, index: index}, nil
}

// FrameCount returns the number of frames recorded in the container.
func (cr *Reader) FrameCount() int {
	return len(cr.index)
}

// IndexEntries returns a defensive copy of the container's frame index.
func (cr *Reader) IndexEntries() []IndexEntry {
	out := make([]IndexEntry, len(cr.index))
	copy(out, cr.index)
	return out
}

// GetFrame decodes and returns the frame at the given index position.
func (cr *Reader) GetFrame(index int) (frame.Frame, error) {
	if index < 0 || index >= len(cr.index) {
		return frame.Frame{}, ErrFrameOutOfBounds
	}
	entry := cr.index[index]
	if _, err := cr.r.Seek(int64(entry.Offset), io.SeekStart); err != nil {
		return frame.Frame{}, err
	}
	length, err := readUint32(cr.r)
	if err != nil {
		return frame.Frame{}, err
	}
	compressed := make([]byte, length)
	if _, err := io.ReadFull(cr.r, compressed); err != nil {
		return frame.Frame{}, err
	}
	decompressed, err := cr.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return frame.Frame{}, err
	}
	if len(decompressed) > MaxDecompressedFrameSize {
		return frame.Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(decompressed))
	}
	return frame.Decode(decompressed)
}

// LookupByHash scans the index for a frame whose request hash matches, returning
// the first match in index order. When the container was written with duplicate
// request hashes, this is whichever frame the writer's caller appended first.
func (cr *Reader) LookupByHash(hash [32]byte) (frame.Frame, bool, error) {
	for i, entry := range cr.index {
		if entry.RequestHash == hash {
			f, err := cr.GetFrame(i)
			return f, err == nil, err
		}
	}
	return frame.Frame{}, false, nil
}

// Close releases the underlying file handle and decoder resources.
func (cr *Reader) Close() error {
	cr.decoder.Close()
	return cr.r.Close()
}
