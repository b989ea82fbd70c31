package codec

import (
	"github.com/pierrec/lz4/v4"
)

// lz4Codec is the default codec adapter, backed by the pure-Go block API of
// github.com/pierrec/lz4/v4. A fresh instance should be created per
// EntryStream/writer so that the hash table used by CompressBlock is never
// shared across concurrent callers (the one thing in this package that
// isn't stateless).
type lz4Codec struct {
	hashTable []int
}

func (c *lz4Codec) CompressBlock(input, dst []byte) (int, bool, error) {
	if c.hashTable == nil {
		c.hashTable = make([]int, 1<<16)
	}
	n, err := lz4.CompressBlock(input, dst, c.hashTable)
	if err != nil {
		return 0, false, &ErrCodecFailed{Op: "compress", Err: err}
	}
	if n == 0 || n >= len(input) {
		// Incompressible, or the compressor declined (n==0 is pierrec's
		// convention for "would not have shrunk"): store verbatim.
		return 0, false, nil
	}
	return n, true, nil
}

func (c *lz4Codec) DecompressBlock(input, dst []byte) (int, error) {
	n, err := lz4.UncompressBlock(input, dst)
	if err != nil {
		return 0, &ErrCodecFailed{Op: "decompress", Err: err}
	}
	return n, nil
}

func (c *lz4Codec) CompressBound(n int) int {
	return lz4.CompressBlockBound(n)
}

// New returns a fresh LZ4 Codec instance. Exported for callers (the
// writer) that need one compressor per independent session, since
// concurrent callers must not share mutable codec state.
func New() Codec { return &lz4Codec{} }
