// Package codec implements the pluggable block-compressor interface used
// by the archive format, plus the default LZ4 adapter.
//
// The adapter is intentionally block-oriented, not stream-oriented: each
// block compresses independently of its neighbors, which is what lets
// the reader zero-copy a stored-uncompressed block straight out of the
// mapped view and skip whole blocks on seek without decoding anything
// before them.
package codec

import "fmt"

// ID selects a codec by the compression bit stored in a manifest entry's
// flags field.
type ID uint16

const (
	// LZ4 is the default and only codec this package requires.
	LZ4 ID = 1 << 0
)

// Codec compresses and decompresses individual blocks.
type Codec interface {
	// CompressBlock compresses input into dst, which must have at least
	// CompressBound(len(input)) bytes of capacity. It returns the number of
	// bytes written to dst and whether the result is smaller than input
	// (compressed); callers that get compressed == false must fall back to
	// storing input verbatim (the zero-copy passthrough case).
	CompressBlock(input []byte, dst []byte) (n int, compressed bool, err error)

	// DecompressBlock decompresses input (produced by CompressBlock) into
	// dst, which must be at least as large as the original block. It
	// returns the number of bytes written.
	DecompressBlock(input []byte, dst []byte) (n int, err error)

	// CompressBound returns an upper bound on the compressed size of a
	// block of the given uncompressed size, for sizing dst buffers.
	CompressBound(n int) int
}

// ErrCodecFailed wraps a codec's own reported failure.
type ErrCodecFailed struct {
	Op  string
	Err error
}

func (e *ErrCodecFailed) Error() string { return fmt.Sprintf("codec: %s: %v", e.Op, e.Err) }
func (e *ErrCodecFailed) Unwrap() error { return e.Err }

// ErrOutputTooSmall is returned when dst cannot hold the result.
type ErrOutputTooSmall struct {
	Op string
}

func (e *ErrOutputTooSmall) Error() string { return "codec: " + e.Op + ": output buffer too small" }

// ForID returns the Codec implementation for a manifest entry's
// compression bits. Only LZ4 is defined; any other bit combination is
// rejected by the caller before ForID is reached.
func ForID(id ID) (Codec, error) {
	switch id {
	case LZ4:
		return &lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("codec: unsupported codec id %#x", id)
	}
}
