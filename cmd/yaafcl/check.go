package main

import (
	"flag"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/leanderb/yaaf"
)

const checkHelp = `yaafcl check <archive>

Verify every entry's block and file integrity hashes, and the manifest
entry table's own hash. Exits non-zero on the first mismatch found.
`

func cmdCheck(args []string) error {
	fset := flag.NewFlagSet("check", flag.ExitOnError)
	fset.Usage = usage(fset, checkHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: check <archive>")
	}

	a, err := yaaf.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Check(); err != nil {
		return xerrors.Errorf("integrity check failed: %w", err)
	}
	fmt.Printf("%s: OK (%d entries)\n", fset.Arg(0), len(a.ListAll()))
	return nil
}
