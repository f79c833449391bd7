// Package container implements ghostline's on-disk container format: a
// sequence of zstd-compressed, MessagePack-encoded frames preceded by a
// small header and followed by a hash-indexed footer, enabling O(1) seeks
// to any captured frame by position and lookup by request hash through a
// linear scan of the in-memory index.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a ghostline container file.
var Magic = [8]byte{'G', 'H', 'S', 'T', 'L', 'I', 'N', 'E'}

// FormatVersion is the only container format version this package writes and reads.
const FormatVersion uint32 = 1

// MaxDecompressedFrameSize bounds how large a single decompressed frame blob
// may be, guarding against corrupted or hostile length-prefixed data.
const MaxDecompressedFrameSize = 10 * 1024 * 1024

// ErrInvalidMagic is returned when a source does not begin with Magic.
var ErrInvalidMagic = errors.New("container: invalid magic bytes")

// ErrUnsupportedVersion is returned when the format version is not FormatVersion.
var ErrUnsupportedVersion = errors.New("container: unsupported format version")

// ErrFrameTooLarge is returned when a decompressed frame blob exceeds MaxDecompressedFrameSize.
var ErrFrameTooLarge = errors.New("container: decompressed frame exceeds maximum size")

// ErrMalformedIndex is returned when a parsed index entry's offset does not
// point into the frame-blob region of the container, between the end of the
// header and the start of the index itself.
var ErrMalformedIndex = errors.New("container: malformed index entry offset")

// Header is the metadata written at the start of every container file.
//
// Binary layout (all integers little-endian):
//
//	magic[8] version[4] started_at[8]
//	has_git_sha[1] git_sha[20]?
//	has_parent_run_id[1] parent_run_id[32]?
//	has_fork_at_step[1] fork_at_step[4]?
type Header struct {
	StartedAt   uint64
	GitSHA      *[20]byte
	ParentRunID *[32]byte
	ForkAtStep  *uint32
}

// EncodedSize returns the number of bytes writeHeader emits for this header.
func (h Header) EncodedSize() uint64 {
	size := uint64(8 + 4 + 8 + 1) // magic + version + started_at + has_git_sha flag
	if h.GitSHA != nil {
		size += 20
	}
	size += 1 // has_parent_run_id flag
	if h.ParentRunID != nil {
		size += 32
	}
	size += 1 // has_fork_at_step flag
	if h.ForkAtStep != nil {
		size += 4
	}
	return size
}

func writeHeader(w io.Writer, h Header) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	if err := writeUint32(w, FormatVersion); err != nil {
		return err
	}
	if err := writeUint64(w, h.StartedAt); err != nil {
		return err
	}
	if err := writeOptionalBytes(w, optionalSlice(h.GitSHA)); err != nil {
		return err
	}
	if err := writeOptionalBytes(w, optionalSlice(h.ParentRunID)); err != nil {
		return err
	}
	if h.ForkAtStep == nil {
		_, err := w.Write([]byte{0})
		if err != nil {
			return err
		}
		return nil
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return writeUint32(w, *h.ForkAtStep)
}

func readHeader(r io.Reader) (Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, err
	}
	if magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	version, err := readUint32(r)
	if err != nil {
		return Header{}, err
	}
	if version != FormatVersion {
		return Header{}, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	startedAt, err := readUint64(r)
	if err != nil {
		return Header{}, err
	}
	gitSHA, err := readOptional20(r)
	if err != nil {
		return Header{}, err
	}
	parentRunID, err := readOptional32(r)
	if err != nil {
		return Header{}, err
	}
	forkAtStep, err := readOptionalUint32(r)
	if err != nil {
		return Header{}, err
	}
	return Header{
		StartedAt:   startedAt,
		GitSHA:      gitSHA,
		ParentRunID: parentRunID,
		ForkAtStep:  forkAtStep,
	}, nil
}

// IndexEntry maps a frame's request hash to its byte offset within the container.
type IndexEntry struct {
	RequestHash [32]byte
	Offset      uint64
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func optionalSlice(b interface{}) []byte {
	switch v := b.(type) {
	case *[20]byte:
		if v == nil {
			return nil
		}
		return v[:]
	case *[32]byte:
		if v == nil {
			return nil
		}
		return v[:]
	default:
		return nil
	}
}

func writeOptionalBytes(w io.Writer, b []byte) error {
	if b == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readOptional20(r io.Reader) (*[20]byte, error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	if flag[0] == 0 {
		return nil, nil
	}
	var out [20]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return nil, err
	}
	return &out, nil
}

func readOptional32(r io.Reader) (*[32]byte, error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	if flag[0] == 0 {
		return nil, nil
	}
	var out [32]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return nil, err
	}
	return &out, nil
}

func readOptionalUint32(r io.Reader) (*uint32, error) {
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	if flag[0] == 0 {
		return nil, nil
	}
	v, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
