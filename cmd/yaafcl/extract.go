package main

import (
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/leanderb/yaaf"
)

const extractArchiveHelp = `yaafcl extract-archive [-flags] <archive> <destdir>

Extract every entry in an archive to destdir, recreating directories as
needed.
`

func cmdExtractArchive(args []string) error {
	fset := flag.NewFlagSet("extract-archive", flag.ExitOnError)
	var (
		overwrite = fset.Bool("f", false, "overwrite existing files")
		verbose   = fset.Bool("v", false, "log each entry as it is extracted")
	)
	fset.Usage = usage(fset, extractArchiveHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		return xerrors.Errorf("syntax: extract-archive <archive> <destdir>")
	}
	archivePath, destDir := fset.Arg(0), fset.Arg(1)

	a, err := yaaf.Open(archivePath)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range a.ListAll() {
		if err := extractOne(a, name, filepath.Join(destDir, filepath.FromSlash(name)), *overwrite, *verbose); err != nil {
			return xerrors.Errorf("extracting %s: %w", name, err)
		}
	}
	return nil
}

const extractFileHelp = `yaafcl extract-file [-flags] <archive> <name> [<dest>]

Extract a single entry. With no dest argument, writes to stdout.
`

func cmdExtractFile(args []string) error {
	fset := flag.NewFlagSet("extract-file", flag.ExitOnError)
	overwrite := fset.Bool("f", false, "overwrite an existing dest file")
	fset.Usage = usage(fset, extractFileHelp)
	fset.Parse(args)
	if fset.NArg() != 2 && fset.NArg() != 3 {
		return xerrors.Errorf("syntax: extract-file <archive> <name> [<dest>]")
	}
	archivePath, name := fset.Arg(0), fset.Arg(1)

	a, err := yaaf.Open(archivePath)
	if err != nil {
		return err
	}
	defer a.Close()

	if fset.NArg() == 2 {
		es, err := a.Open(name)
		if err != nil {
			return err
		}
		defer es.Close()
		_, err = io.Copy(os.Stdout, es)
		return err
	}
	return extractOne(a, name, fset.Arg(2), *overwrite, false)
}

func extractOne(a *yaaf.Archive, name, dest string, overwrite, verbose bool) error {
	fi, err := a.Stat(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	out, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return xerrors.Errorf("%s already exists (pass -f to overwrite)", dest)
		}
		return err
	}
	defer out.Close()

	es, err := a.Open(name)
	if err != nil {
		return err
	}
	defer es.Close()

	if verbose {
		log.Printf("extracting %s -> %s (%d bytes)", name, dest, fi.SizeUncompressed)
	}
	if _, err := io.Copy(out, es); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	times := []unix.Timespec{
		unix.NsecToTimespec(fi.ModTime.UnixNano()),
		unix.NsecToTimespec(fi.ModTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dest, times, 0); err != nil && !strings.Contains(err.Error(), "not supported") {
		return xerrors.Errorf("setting mtime on %s: %w", dest, err)
	}
	return nil
}
