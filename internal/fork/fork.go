// Package fork implements ghostline's fork operation: branching a new
// container from a prefix of an existing run so exploration can continue
// from any recorded step without mutating the original recording.
package fork

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/JOBOYA/ghostline/internal/container"
)

// ErrStepOutOfRange is returned when the requested fork step is not a valid
// index into the source container.
var ErrStepOutOfRange = errors.New("fork: step is out of range for source container")

// Run forks srcPath at step k (inclusive) into a new container at dstPath.
// The new container carries frames [0..=k], a parent_run_id derived from the
// source's started_at and first frame hash, and fork_at_step set to k.
func Run(srcPath, dstPath string, step int) error {
	src, err := container.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	count := src.FrameCount()
	if step < 0 || step >= count {
		return fmt.Errorf("%w: step %d, frame count %d", ErrStepOutOfRange, step, count)
	}

	first, err := src.GetFrame(0)
	if err != nil {
		return err
	}
	parentRunID := ParentRunID(src.Header.StartedAt, first.RequestHash)
	forkAtStep := uint32(step)

	header := container.Header{
		StartedAt:   src.Header.StartedAt,
		GitSHA:      src.Header.GitSHA,
		ParentRunID: &parentRunID,
		ForkAtStep:  &forkAtStep,
	}

	dst, err := container.Create(dstPath, header)
	if err != nil {
		return err
	}
	for i := 0; i <= step; i++ {
		f, err := src.GetFrame(i)
		if err != nil {
			_ = dst.Finish()
			return err
		}
		if err := dst.Append(f); err != nil {
			_ = dst.Finish()
			return err
		}
	}
	return dst.Finish()
}

// ParentRunID computes the identifier a forked container records to link it
// back to the run it branched from: SHA-256(started_at_LE || first_request_hash).
func ParentRunID(startedAt uint64, firstRequestHash [32]byte) [32]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], startedAt)
	h := sha256.New()
	h.Write(buf[:])
	h.Write(firstRequestHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
