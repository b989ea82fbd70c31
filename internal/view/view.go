// Package view implements the byte-range view over an archive: a scoped,
// read-only acquisition of the archive's bytes, backed by a memory map
// when opened from a path, or by a caller-supplied buffer.
package view

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// View is a read-only, stable byte range backed directly by a []byte: the
// mapped pages themselves for a file-backed View, or the caller's own
// buffer for a buffer-backed one. Slice hands out sub-slices of that
// backing array rather than copying, so a stored (uncompressed) block read
// through Slice aliases the mapped file instead of landing in a fresh
// heap buffer.
type View struct {
	data  []byte
	owned bool // whether Close should unmap/release the underlying resource
	f     *os.File
}

// Open memory-maps the file at path and returns a View over its full
// contents. Fails with a wrapped IO error if path is not a regular,
// readable file or cannot be mapped.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}
	size := fi.Size()
	if size == 0 {
		f.Close()
		return nil, &IOError{Op: "mmap", Path: path, Err: io.ErrUnexpectedEOF}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "mmap", Path: path, Err: err}
	}
	return &View{data: data, owned: true, f: f}, nil
}

// FromBuffer wraps an already-loaded byte slice as a View. No mapping
// occurs, and Close is a no-op: the slice's lifetime is managed by the
// Go runtime regardless of own, which is accepted only so callers that
// do track buffer ownership themselves have a place to record the
// intent.
func FromBuffer(b []byte, own bool) *View {
	return &View{data: b, owned: own}
}

// Size returns the number of bytes in the view.
func (v *View) Size() int64 { return int64(len(v.data)) }

// ReadAt implements io.ReaderAt, copying into p per the interface's
// contract.
func (v *View) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(v.data)) {
		return 0, io.EOF
	}
	n := copy(p, v.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Slice returns the bytes in [off, off+n) as a sub-slice of the view's
// backing array — the mapped pages themselves for a file-backed View, or
// the caller's buffer for a buffer-backed one. No copy is made: the
// returned slice aliases memory the view does not own exclusively (for a
// file-backed View, the OS page cache), so callers must treat it as
// read-only.
func (v *View) Slice(off, n int64) ([]byte, error) {
	if off < 0 || n < 0 || off+n > int64(len(v.data)) {
		return nil, io.ErrUnexpectedEOF
	}
	return v.data[off : off+n : off+n], nil
}

// Close releases the mapping, if any. Safe to call on a buffer-backed View.
func (v *View) Close() error {
	if !v.owned {
		return nil
	}
	var err error
	if v.f != nil {
		err = unix.Munmap(v.data)
		if cerr := v.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// IOError wraps a failure at the OS boundary while acquiring a View.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return "view: " + e.Op + " " + e.Path + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }
