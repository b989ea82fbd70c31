package yaaf

import (
	"io"

	"github.com/leanderb/yaaf/internal/codec"
	"github.com/leanderb/yaaf/internal/view"
)

// EntryStream decodes one open entry's blocks on demand. It holds a
// one-block cache and supports absolute seeking by skipping whole blocks
// without decoding them, since every block except possibly the last
// decodes to exactly BlockSize bytes of logical data; a forward relative
// seek past the cached block decodes the blocks it passes.
//
// An EntryStream borrows its parent Archive's view and must not outlive it;
// it is not safe for concurrent use by multiple goroutines, but independent
// EntryStreams from the same Archive may be used concurrently because each
// owns its own codec state.
type EntryStream struct {
	v     *view.View
	codec codec.Codec

	bodyStart int64 // offset of the first block header, just past the file header

	// compressedSize is the span of block headers+payloads+end-marker
	// starting at bodyStart: the manifest entry's declared compressed size
	// minus the file header that precedes bodyStart.
	compressedSize   int64
	uncompressedSize int64

	bytesReadCompressed int64
	bytesDecoded        int64

	cache           []byte
	cacheReadOffset int64
	scratch         [BlockSize]byte

	closed  bool
	onClose func()
}

// Read implements io.Reader. It returns fewer bytes than len(p) only at
// EOF, per Go's io.Reader convention; Tell and EOF are exposed separately
// for callers that want the count and the termination state apart.
func (s *EntryStream) Read(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if s.cacheExhausted() {
			if err := s.decodeNextBlock(); err != nil {
				return written, err
			}
			if len(s.cache) == 0 {
				break // EOF
			}
		}
		n := copy(p[written:], s.cache[s.cacheReadOffset:])
		s.cacheReadOffset += int64(n)
		written += n
	}
	if written == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return written, nil
}

func (s *EntryStream) cacheExhausted() bool {
	return s.cacheReadOffset >= int64(len(s.cache))
}

// decodeNextBlock reads and, if necessary, decompresses the next block
// into the cache.
func (s *EntryStream) decodeNextBlock() error {
	if s.bytesReadCompressed >= s.compressedSize {
		// Already past the end marker: nothing of this entry is left to read.
		s.cache = nil
		s.cacheReadOffset = 0
		return nil
	}
	var hdr [blockHeaderSize]byte
	if _, err := s.v.ReadAt(hdr[:], s.bodyStart+s.bytesReadCompressed); err != nil {
		return wrapErr(KindIO, "read block header", err)
	}
	s.bytesReadCompressed += blockHeaderSize

	packed := byteOrder.Uint32(hdr[:4])
	size := packed &^ compressedBit
	if size == 0 {
		s.cache = nil
		s.cacheReadOffset = 0
		return nil // end marker: EOF
	}
	compressed := packed&compressedBit != 0

	payload, err := s.v.Slice(s.bodyStart+s.bytesReadCompressed, int64(size))
	if err != nil {
		return wrapErr(KindIO, "read block payload", err)
	}

	if compressed {
		n, err := s.codec.DecompressBlock(payload, s.scratch[:])
		if err != nil {
			return wrapErr(KindCodecFailed, "decode block", err)
		}
		s.cache = s.scratch[:n]
	} else {
		// Zero-copy passthrough: payload already aliases the view's backing
		// array (the mapped file, or the caller's buffer), not a copy.
		s.cache = payload
	}
	s.bytesReadCompressed += int64(size)
	s.cacheReadOffset = 0
	s.bytesDecoded += int64(len(s.cache))
	return nil
}

// Whence values, matching io.Seeker.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Seek repositions the stream. SeekStart and SeekCurrent follow io.Seeker
// semantics; SeekEnd moves to the end of the entry and ignores offset.
func (s *EntryStream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case SeekEnd:
		s.bytesReadCompressed = s.compressedSize
		s.bytesDecoded = s.uncompressedSize
		s.cache = nil
		s.cacheReadOffset = 0
		return s.Tell(), nil

	case SeekCurrent:
		cur := s.Tell()
		if offset < 0 {
			// Negative offset that stays within the current cache: adjust in place.
			if -offset <= s.cacheReadOffset {
				s.cacheReadOffset += offset
				return s.Tell(), nil
			}
			return s.seekAbsolute(cur + offset)
		}
		// Positive offset that stays within the current cache: advance in place.
		if s.cacheReadOffset+offset <= int64(len(s.cache)) {
			s.cacheReadOffset += offset
			return s.Tell(), nil
		}
		return s.seekForward(cur + offset)

	default: // SeekStart
		return s.seekAbsolute(offset)
	}
}

// seekAbsolute restarts decoding from the beginning of the entry and skips
// whole blocks, by header only (no decompression), until the target
// logical offset's block is reached; only that one block is decoded. This
// is what keeps the cost of each skipped block constant: every block
// but the last decodes to exactly BlockSize bytes, so skipping
// ahead only needs each header's declared payload size.
func (s *EntryStream) seekAbsolute(offset int64) (int64, error) {
	if offset < 0 {
		return 0, newErr(KindSeekInvalid, "negative absolute seek")
	}
	if offset > s.uncompressedSize {
		offset = s.uncompressedSize // clamp to EOF
	}

	s.bytesReadCompressed = 0
	s.bytesDecoded = 0
	s.cache = nil
	s.cacheReadOffset = 0

	targetBlock := offset / BlockSize
	for b := int64(0); b < targetBlock; b++ {
		size, err := s.skipBlockHeader()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			return s.Tell(), nil // shorter than expected: stop at what exists
		}
		s.bytesDecoded += BlockSize
	}

	if offset == s.uncompressedSize {
		s.bytesReadCompressed = s.compressedSize
		s.bytesDecoded = s.uncompressedSize
		return s.Tell(), nil
	}

	if err := s.decodeNextBlock(); err != nil {
		return 0, err
	}
	s.cacheReadOffset = offset % BlockSize
	return s.Tell(), nil
}

// skipBlockHeader reads the block header at the current compressed cursor
// and advances past its payload without decompressing it, returning the
// payload size (0 at the end marker).
func (s *EntryStream) skipBlockHeader() (uint32, error) {
	var hdr [blockHeaderSize]byte
	if _, err := s.v.ReadAt(hdr[:], s.bodyStart+s.bytesReadCompressed); err != nil {
		return 0, wrapErr(KindIO, "read block header", err)
	}
	s.bytesReadCompressed += blockHeaderSize

	size := byteOrder.Uint32(hdr[:4]) &^ compressedBit
	if size == 0 {
		return 0, nil
	}
	s.bytesReadCompressed += int64(size)
	return size, nil
}

// seekForward skips forward from the current compressed position by
// decoding (and discarding) blocks until the target is within range.
func (s *EntryStream) seekForward(target int64) (int64, error) {
	for {
		blockStart := s.bytesDecoded - int64(len(s.cache))
		if len(s.cache) > 0 && target >= blockStart && target <= s.bytesDecoded {
			s.cacheReadOffset = target - blockStart
			return s.Tell(), nil
		}
		if err := s.decodeNextBlock(); err != nil {
			return 0, err
		}
		if s.cache == nil {
			return s.Tell(), nil // EOF before reaching target
		}
	}
}

// EOF reports whether the stream has been fully consumed.
func (s *EntryStream) EOF() bool {
	return s.bytesReadCompressed >= s.compressedSize && s.cacheReadOffset >= int64(len(s.cache))
}

// Tell returns the current absolute logical offset.
func (s *EntryStream) Tell() int64 {
	return s.bytesDecoded - (int64(len(s.cache)) - s.cacheReadOffset)
}

// Close releases the stream's hold on its parent archive's view.
func (s *EntryStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
