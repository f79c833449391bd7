// Package frame defines the unit of capture ghostline writes to and reads
// from a container: a single request/response pair plus the metadata
// needed to replay it.
package frame

import (
	"crypto/sha256"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame is a single captured request/response exchange.
type Frame struct {
	// RequestHash is the SHA-256 digest of RequestBytes.
	RequestHash [32]byte `msgpack:"request_hash"`
	// RequestBytes holds the raw request payload as it was captured.
	RequestBytes []byte `msgpack:"request_bytes"`
	// ResponseBytes holds the raw response payload as it was captured.
	ResponseBytes []byte `msgpack:"response_bytes"`
	// LatencyMS is the round-trip latency observed while recording, in milliseconds.
	LatencyMS uint64 `msgpack:"latency_ms"`
	// Timestamp is the Unix time in milliseconds when the frame was captured.
	Timestamp uint64 `msgpack:"timestamp"`
}

// New builds a Frame, computing RequestHash from requestBytes.
func New(requestBytes, responseBytes []byte, latencyMS, timestamp uint64) Frame {
	return Frame{
		RequestHash:   HashRequest(requestBytes),
		RequestBytes:  requestBytes,
		ResponseBytes: responseBytes,
		LatencyMS:     latencyMS,
		Timestamp:     timestamp,
	}
}

// HashRequest computes the SHA-256 digest of the given request bytes.
func HashRequest(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Encode serializes the frame to MessagePack bytes.
func (f Frame) Encode() ([]byte, error) {
	return msgpack.Marshal(f)
}

// Decode parses a Frame from MessagePack bytes.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
