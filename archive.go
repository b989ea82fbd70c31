package yaaf

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"time"

	"github.com/leanderb/yaaf/internal/codec"
	"github.com/leanderb/yaaf/internal/view"
	"github.com/leanderb/yaaf/internal/xhash"
)

// Entry describes one logical file recorded in an archive's manifest. Its
// fields are decoded once at Open time from the manifest entry table; the
// entry is referenced thereafter by index into Archive.entries, never by
// raw pointer into the mapped view.
type Entry struct {
	Name             string
	NameHash         uint32
	SizeCompressed   uint32
	SizeUncompressed uint32
	FileHash         uint32
	Offset           uint32 // absolute offset of the entry body (file header)
	ModTime          time.Time
	Flags            uint16
	Extra            []byte
}

// FileInfo is the public, read-only view of an Entry returned by Stat.
type FileInfo struct {
	Name             string
	ModTime          time.Time
	SizeCompressed   int64
	SizeUncompressed int64
	Extra            []byte
}

// Archive is a parsed, in-memory index over a YAAF byte-range view. It owns
// the view for its lifetime; Close releases it. Archive is not re-entrant:
// operations on one Archive (and the EntryStreams it produces) must be
// serialized by the caller, though multiple independent Archives may be
// opened over the same file concurrently.
type Archive struct {
	v          *view.View
	closeOwned bool

	trailer rawTrailer
	entries []Entry
	index   map[uint32][]int32 // nameHash -> indices into entries

	openStreams int
}

// Open memory-maps path and parses it as a YAAF archive.
func Open(path string) (*Archive, error) {
	v, err := view.Open(path)
	if err != nil {
		return nil, wrapErr(KindIO, "open archive", err)
	}
	a, err := Parse(v)
	if err != nil {
		v.Close()
		return nil, err
	}
	a.closeOwned = true
	return a, nil
}

// OpenBuffer parses an already-loaded archive image from memory.
func OpenBuffer(b []byte) (*Archive, error) {
	return Parse(view.FromBuffer(b, false))
}

// Parse validates and indexes a byte-range view as a YAAF archive. It
// validates the trailer, the entry table, and each entry in turn.
func Parse(v *view.View) (*Archive, error) {
	size := v.Size()
	if size < manifestTrailerSize {
		return nil, newErr(KindFormatTooShort, "archive shorter than trailer")
	}

	tb, err := v.Slice(size-manifestTrailerSize, manifestTrailerSize)
	if err != nil {
		return nil, wrapErr(KindIO, "read trailer", err)
	}
	var tr rawTrailer
	if err := binary.Read(sliceReader(tb), byteOrder, &tr); err != nil {
		return nil, wrapErr(KindIO, "decode trailer", err)
	}
	if tr.Magic != manifestMagic {
		return nil, newErr(KindFormatBadMagic, "bad trailer magic")
	}
	if tr.VersionRequired > implementationVersion || tr.VersionRequired < oldestSupportedVersion {
		return nil, newErr(KindFormatUnsupportedVersion, "archive requires an unsupported version")
	}

	entriesSize := int64(tr.ManifestEntriesSize)
	tableStart := size - manifestTrailerSize - entriesSize
	if tableStart < 0 {
		return nil, newErr(KindFormatTruncated, "entry table size exceeds archive size")
	}

	tableBytes, err := v.Slice(tableStart, entriesSize)
	if err != nil {
		return nil, wrapErr(KindIO, "read entry table", err)
	}
	if xhash.Sum(tableBytes, 0) != tr.EntriesHash {
		return nil, newErr(KindFormatCorruptIndex, "entry table hash mismatch")
	}

	a := &Archive{
		v:       v,
		trailer: tr,
		entries: make([]Entry, 0, tr.NEntries),
		index:   make(map[uint32][]int32, int(float64(tr.NEntries)/0.75)+1),
	}

	cursor := int64(0)
	for i := uint32(0); i < tr.NEntries; i++ {
		if cursor+manifestEntrySize > int64(len(tableBytes)) {
			return nil, newErr(KindFormatTruncated, "entry table ended mid-record")
		}
		var raw rawManifestEntry
		if err := binary.Read(sliceReader(tableBytes[cursor:cursor+manifestEntrySize]), byteOrder, &raw); err != nil {
			return nil, wrapErr(KindIO, "decode manifest entry", err)
		}
		if raw.Magic != manifestEntryMagic {
			return nil, newErr(KindFormatBadMagic, "bad manifest entry magic")
		}
		if raw.Flags&supportedCompressions == 0 {
			return nil, newErr(KindFormatUnsupportedCodec, "manifest entry uses an unsupported codec")
		}
		cursor += manifestEntrySize

		extraEnd := cursor + int64(raw.ExtraLen)
		nameEnd := extraEnd + int64(raw.NameLen)
		if nameEnd > int64(len(tableBytes)) {
			return nil, newErr(KindFormatTruncated, "entry extra/name ran past the table")
		}
		extra := append([]byte(nil), tableBytes[cursor:extraEnd]...)
		nameBytes := tableBytes[extraEnd:nameEnd]
		name := string(trimNUL(nameBytes))
		cursor = nameEnd

		e := Entry{
			Name:             name,
			NameHash:         raw.NameHash,
			SizeCompressed:   raw.SizeCompressed,
			SizeUncompressed: raw.SizeUncompressed,
			FileHash:         raw.FileHash,
			Offset:           raw.Offset,
			ModTime:          unpackDateTime(raw.LastModDateTime),
			Flags:            raw.Flags,
			Extra:            extra,
		}
		idx := int32(len(a.entries))
		a.entries = append(a.entries, e)
		a.index[raw.NameHash] = append(a.index[raw.NameHash], idx)
	}

	return a, nil
}

func trimNUL(b []byte) []byte {
	if i := indexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func sliceReader(b []byte) io.Reader { return bytes.NewReader(b) }

// lookup resolves name to an *Entry via the case-insensitive name index.
func (a *Archive) lookup(name string) (*Entry, bool) {
	h := xhash.NameHash(name)
	for _, idx := range a.index[h] {
		e := &a.entries[idx]
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return nil, false
}

// Contains reports whether name exists in the archive (case-insensitive).
func (a *Archive) Contains(name string) bool {
	_, ok := a.lookup(name)
	return ok
}

// Stat returns file metadata for name, or a KindNotFound error.
func (a *Archive) Stat(name string) (FileInfo, error) {
	e, ok := a.lookup(name)
	if !ok {
		return FileInfo{}, newErr(KindNotFound, name)
	}
	return FileInfo{
		Name:             e.Name,
		ModTime:          e.ModTime,
		SizeCompressed:   int64(e.SizeCompressed),
		SizeUncompressed: int64(e.SizeUncompressed),
		Extra:            e.Extra,
	}, nil
}

// ListAll returns every name in the archive, in unspecified order.
func (a *Archive) ListAll() []string {
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.Name
	}
	return names
}

// ListDir returns the names of entries under prefix. prefix=="." lists
// top-level entries (no '/' in the name); otherwise it lists every entry
// whose name begins with prefix followed by a '/', including entries in
// nested subdirectories.
func (a *Archive) ListDir(prefix string) []string {
	var out []string
	if prefix == "." {
		for _, e := range a.entries {
			if !strings.Contains(e.Name, "/") {
				out = append(out, e.Name)
			}
		}
		return out
	}

	withSlash := prefix
	if !strings.HasSuffix(withSlash, "/") {
		withSlash += "/"
	}
	for _, e := range a.entries {
		if strings.HasPrefix(e.Name, withSlash) {
			out = append(out, e.Name)
		}
	}
	return out
}

// Open opens name for reading and returns a fresh EntryStream. The stream
// borrows the archive's view and must be closed before the Archive itself
// is closed.
func (a *Archive) Open(name string) (*EntryStream, error) {
	e, ok := a.lookup(name)
	if !ok {
		return nil, newErr(KindNotFound, name)
	}
	return a.openEntry(e)
}

func (a *Archive) openEntry(e *Entry) (*EntryStream, error) {
	var hdr [fileHeaderSize]byte
	if _, err := a.v.ReadAt(hdr[:], int64(e.Offset)); err != nil {
		return nil, wrapErr(KindIO, "read file header", err)
	}
	if byteOrder.Uint32(hdr[:]) != fileHeaderMagic {
		return nil, newErr(KindFormatBadMagic, "bad file header magic")
	}

	c, err := codec.ForID(codec.ID(e.Flags & supportedCompressions))
	if err != nil {
		return nil, wrapErr(KindFormatUnsupportedCodec, "open entry", err)
	}

	a.openStreams++
	es := &EntryStream{
		v:                a.v,
		codec:            c,
		bodyStart:        int64(e.Offset) + fileHeaderSize,
		compressedSize:   int64(e.SizeCompressed) - fileHeaderSize,
		uncompressedSize: int64(e.SizeUncompressed),
		onClose:          func() { a.openStreams-- },
	}
	return es, nil
}

// CheckEntry verifies the block hashes and cumulative file hash of a single
// entry without exposing its decoded bytes to the caller.
func (a *Archive) CheckEntry(e *Entry) error {
	c, err := codec.ForID(codec.ID(e.Flags & supportedCompressions))
	if err != nil {
		return wrapErr(KindFormatUnsupportedCodec, "check entry", err)
	}

	fileHash := xhash.New(0)
	scratch := make([]byte, BlockSize)
	pos := int64(e.Offset) + fileHeaderSize
	for {
		var hb [blockHeaderSize]byte
		if _, err := a.v.ReadAt(hb[:], pos); err != nil {
			return wrapErr(KindIO, "read block header", err)
		}
		pos += blockHeaderSize

		packed := byteOrder.Uint32(hb[:4])
		blockHash := byteOrder.Uint32(hb[4:])
		size := packed &^ compressedBit
		if size == 0 {
			break // end marker
		}
		compressed := packed&compressedBit != 0

		payload, err := a.v.Slice(pos, int64(size))
		if err != nil {
			return wrapErr(KindIO, "read block payload", err)
		}
		pos += int64(size)

		if xhash.Sum(payload, 0) != blockHash {
			return newErr(KindIntegrityBlockHash, e.Name)
		}

		if compressed {
			n, err := c.DecompressBlock(payload, scratch)
			if err != nil {
				return wrapErr(KindCodecFailed, "check entry", err)
			}
			fileHash.Write(scratch[:n])
		} else {
			fileHash.Write(payload)
		}
	}

	if fileHash.Digest() != e.FileHash {
		return newErr(KindIntegrityFileHash, e.Name)
	}
	return nil
}

// Check verifies every entry in the archive, stopping at the first
// failure.
func (a *Archive) Check() error {
	for i := range a.entries {
		if err := a.CheckEntry(&a.entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the archive's underlying view. The caller must ensure no
// EntryStream produced by this Archive is still open.
func (a *Archive) Close() error {
	if a.openStreams > 0 {
		return newErr(KindIO, "close archive: entry streams still open")
	}
	if a.closeOwned {
		return a.v.Close()
	}
	return nil
}
