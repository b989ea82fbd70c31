package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"github.com/leanderb/yaaf"
)

const createHelp = `yaafcl create [-flags] -o <archive> <path> [<path>…]

Pack one or more files (or, with -r, entire directory trees) into a new
archive. Names inside the archive are stored relative to the given paths.

Example:
  % yaafcl create -o assets.yaaf -r ./assets
`

func cmdCreate(args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	var (
		out       = fset.String("o", "", "path to write the archive to")
		recursive = fset.Bool("r", false, "recurse into directories")
		verbose   = fset.Bool("v", isatty.IsTerminal(os.Stderr.Fd()), "log each entry as it is packed")
	)
	fset.Usage = usage(fset, createHelp)
	fset.Parse(args)

	if *out == "" || fset.NArg() == 0 {
		return xerrors.Errorf("syntax: create -o <archive> <path> [<path>…]")
	}

	var entries []yaaf.WriteEntry
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	addFile := func(path, name string) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		opened = append(opened, f)
		if *verbose {
			log.Printf("packing %s as %s (%d bytes)", path, name, st.Size())
		}
		entries = append(entries, yaaf.WriteEntry{
			Name:    filepath.ToSlash(name),
			ModTime: st.ModTime(),
			Size:    st.Size(),
			Source:  f,
		})
		return nil
	}

	for _, root := range fset.Args() {
		info, err := os.Stat(root)
		if err != nil {
			return xerrors.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if err := addFile(root, filepath.Base(root)); err != nil {
				return err
			}
			continue
		}
		if !*recursive {
			return xerrors.Errorf("%s is a directory; pass -r to recurse into it", root)
		}
		if err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			return addFile(path, rel)
		}); err != nil {
			return xerrors.Errorf("walking %s: %w", root, err)
		}
	}

	sink, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := yaaf.Write(sink, entries); err != nil {
		return xerrors.Errorf("writing %s: %w", *out, err)
	}
	return sink.Close()
}
