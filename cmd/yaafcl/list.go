package main

import (
	"flag"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/leanderb/yaaf"
)

const listAllHelp = `yaafcl list-all <archive>

List every entry in an archive, one name per line.
`

func cmdListAll(args []string) error {
	fset := flag.NewFlagSet("list-all", flag.ExitOnError)
	fset.Usage = usage(fset, listAllHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: list-all <archive>")
	}

	a, err := yaaf.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range a.ListAll() {
		fmt.Println(name)
	}
	return nil
}

const listDirHelp = `yaafcl list-dir <archive> <prefix>

List entries under prefix, including those in nested directories (use "."
for the top level, which lists only entries with no directory part).
`

func cmdListDir(args []string) error {
	fset := flag.NewFlagSet("list-dir", flag.ExitOnError)
	fset.Usage = usage(fset, listDirHelp)
	fset.Parse(args)
	if fset.NArg() != 2 {
		return xerrors.Errorf("syntax: list-dir <archive> <prefix>")
	}

	a, err := yaaf.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range a.ListDir(fset.Arg(1)) {
		fmt.Println(name)
	}
	return nil
}
