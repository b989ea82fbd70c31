package yaaf

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/leanderb/yaaf/internal/codec"
	"github.com/leanderb/yaaf/internal/xhash"
)

// WriteEntry describes one file to be packed into an archive: its
// archive-relative name, last-modification time, declared uncompressed
// size, and a reader that yields exactly that many bytes.
type WriteEntry struct {
	Name    string
	ModTime time.Time
	Size    int64
	Source  io.Reader
	Extra   []byte
}

// Write packs entries into sink, a sequential, seekable sink that also
// reports its current position. Entries with Size == 0 are silently
// dropped: the reader does not require representation of empty files by
// this format.
func Write(sink io.WriteSeeker, entries []WriteEntry) error {
	live := make([]WriteEntry, 0, len(entries))
	for _, e := range entries {
		if e.Size == 0 {
			continue
		}
		live = append(live, e)
	}
	if len(live) == 0 {
		return newErr(KindWriterNoEntries, "no entries to write")
	}

	for _, e := range live {
		if len(e.Name)+1 > 65535 {
			return newErr(KindWriterNameTooLong, e.Name)
		}
		if e.Size > MaxFileSize {
			return newErr(KindWriterSizeExceeded, e.Name)
		}
	}

	sort.Slice(live, func(i, j int) bool {
		return strings.ToLower(live[i].Name) < strings.ToLower(live[j].Name)
	})

	built := make([]rawManifestEntry, len(live))
	extras := make([][]byte, len(live))
	names := make([]string, len(live))

	for i, e := range live {
		off, err := sink.Seek(0, io.SeekCurrent)
		if err != nil {
			return wrapErr(KindIO, "tell sink", err)
		}

		var hdr [fileHeaderSize]byte
		byteOrder.PutUint32(hdr[:], fileHeaderMagic)
		if _, err := sink.Write(hdr[:]); err != nil {
			return wrapErr(KindIO, "write file header", err)
		}

		sizeCompressedBody := int64(fileHeaderSize)
		fileHash := xhash.New(0)
		c := codec.New()
		buf := make([]byte, BlockSize)
		bound := c.CompressBound(BlockSize)
		compBuf := make([]byte, bound)

		remaining := e.Size
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			if _, err := io.ReadFull(e.Source, buf[:n]); err != nil {
				return wrapErr(KindIO, "read source", err)
			}
			remaining -= n
			fileHash.Write(buf[:n])

			packedSize, payload, err := compressOrStore(c, buf[:n], compBuf)
			if err != nil {
				return err
			}

			var bh [blockHeaderSize]byte
			byteOrder.PutUint32(bh[:4], packedSize)
			byteOrder.PutUint32(bh[4:], xhash.Sum(payload, 0))
			if _, err := sink.Write(bh[:]); err != nil {
				return wrapErr(KindIO, "write block header", err)
			}
			if _, err := sink.Write(payload); err != nil {
				return wrapErr(KindIO, "write block payload", err)
			}
			sizeCompressedBody += blockHeaderSize + int64(len(payload))

			if pos, err := sink.Seek(0, io.SeekCurrent); err == nil && pos > MaxArchiveSize {
				return newErr(KindWriterSizeExceeded, "projected archive size exceeds MaxArchiveSize")
			}
		}

		var end [blockHeaderSize]byte // all-zero end-of-blocks marker
		if _, err := sink.Write(end[:]); err != nil {
			return wrapErr(KindIO, "write end marker", err)
		}
		sizeCompressedBody += blockHeaderSize

		dt, err := packDateTime(e.ModTime)
		if err != nil {
			return err
		}

		built[i] = rawManifestEntry{
			Magic:            manifestEntryMagic,
			SizeCompressed:   uint32(sizeCompressedBody),
			SizeUncompressed: uint32(e.Size),
			FileHash:         fileHash.Digest(),
			NameHash:         xhash.NameHash(e.Name),
			Offset:           uint32(off),
			LastModDateTime:  dt,
			ExtraLen:         uint16(len(e.Extra)),
			NameLen:          uint16(len(e.Name) + 1),
			Flags:            flagLZ4,
		}
		extras[i] = e.Extra
		names[i] = e.Name
	}

	tableStart, err := sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapErr(KindIO, "tell sink", err)
	}

	tableHash := xhash.New(0)
	tableWriter := io.MultiWriter(sink, hashWriter{tableHash})
	for i := range built {
		var buf [manifestEntrySize]byte
		encodeManifestEntry(buf[:], &built[i])
		if _, err := tableWriter.Write(buf[:]); err != nil {
			return wrapErr(KindIO, "write manifest entry", err)
		}
		if _, err := tableWriter.Write(extras[i]); err != nil {
			return wrapErr(KindIO, "write extra", err)
		}
		if _, err := tableWriter.Write(append([]byte(names[i]), 0)); err != nil {
			return wrapErr(KindIO, "write name", err)
		}
	}

	tableEnd, err := sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return wrapErr(KindIO, "tell sink", err)
	}
	manifestEntriesSize := tableEnd - tableStart

	trailer := rawTrailer{
		Magic:               manifestMagic,
		VersionBuilt:        implementationVersion,
		VersionRequired:     versionRequiredMin,
		NEntries:            uint32(len(built)),
		ManifestEntriesSize: uint32(manifestEntriesSize),
		EntriesHash:         tableHash.Digest(),
	}
	var tb [manifestTrailerSize]byte
	encodeTrailer(tb[:], &trailer)
	if _, err := sink.Write(tb[:]); err != nil {
		return wrapErr(KindIO, "write trailer", err)
	}

	if final, err := sink.Seek(0, io.SeekCurrent); err == nil && final > MaxArchiveSize {
		return newErr(KindWriterSizeExceeded, "archive size exceeds MaxArchiveSize")
	}
	return nil
}

// compressOrStore compresses block into compBuf via c; if compression
// didn't shrink the block, it returns the original block with the
// compressed bit clear (the uncompressed passthrough case).
func compressOrStore(c codec.Codec, block []byte, compBuf []byte) (packedSize uint32, payload []byte, err error) {
	n, compressed, err := c.CompressBlock(block, compBuf)
	if err != nil {
		return 0, nil, wrapErr(KindCodecFailed, "compress block", err)
	}
	if !compressed {
		return uint32(len(block)), block, nil
	}
	return uint32(n) | compressedBit, compBuf[:n], nil
}

type hashWriter struct{ h *xhash.Hash32 }

func (w hashWriter) Write(p []byte) (int, error) { return w.h.Write(p) }

func encodeManifestEntry(b []byte, e *rawManifestEntry) {
	byteOrder.PutUint32(b[0:], e.Magic)
	byteOrder.PutUint32(b[4:], e.SizeCompressed)
	byteOrder.PutUint32(b[8:], e.SizeUncompressed)
	byteOrder.PutUint32(b[12:], e.FileHash)
	byteOrder.PutUint32(b[16:], e.NameHash)
	byteOrder.PutUint32(b[20:], e.Offset)
	copy(b[24:30], e.LastModDateTime[:])
	byteOrder.PutUint16(b[30:], e.ExtraLen)
	byteOrder.PutUint16(b[32:], e.NameLen)
	byteOrder.PutUint16(b[34:], e.Flags)
	byteOrder.PutUint16(b[36:], e.Unused)
}

func encodeTrailer(b []byte, t *rawTrailer) {
	byteOrder.PutUint32(b[0:], t.Magic)
	byteOrder.PutUint16(b[4:], t.VersionBuilt)
	byteOrder.PutUint16(b[6:], t.VersionRequired)
	byteOrder.PutUint32(b[8:], t.NEntries)
	byteOrder.PutUint32(b[12:], t.ManifestEntriesSize)
	byteOrder.PutUint32(b[16:], t.EntriesHash)
	byteOrder.PutUint32(b[20:], t.Flags)
}
