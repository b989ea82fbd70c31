// Command yaafcl creates, lists, checks, and extracts yaaf archives.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"golang.org/x/xerrors"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

func main() {
	if err := funcmain(); err != nil {
		if *debug {
			fmt.Fprintf(os.Stderr, "yaafcl: %+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "yaafcl: %v\n", err)
		}
		os.Exit(1)
	}
}

type cmd struct {
	fn   func(args []string) error
	help string
}

func funcmain() error {
	flag.Parse()

	verbs := map[string]cmd{
		"create":          {cmdCreate, createHelp},
		"list-all":        {cmdListAll, listAllHelp},
		"list-dir":        {cmdListDir, listDirHelp},
		"extract-archive": {cmdExtractArchive, extractArchiveHelp},
		"extract-file":    {cmdExtractFile, extractFileHelp},
		"check":           {cmdCheck, checkHelp},
	}

	args := flag.Args()
	if len(args) == 0 {
		printTopLevelUsage(verbs)
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	if verb == "help" {
		if len(rest) != 1 {
			printTopLevelUsage(verbs)
			os.Exit(2)
		}
		v, ok := verbs[rest[0]]
		if !ok {
			return xerrors.Errorf("unknown command %q", rest[0])
		}
		fmt.Fprintln(os.Stderr, v.help)
		return nil
	}

	v, ok := verbs[verb]
	if !ok {
		printTopLevelUsage(verbs)
		os.Exit(2)
	}
	if err := v.fn(rest); err != nil {
		return xerrors.Errorf("%s: %w", verb, err)
	}
	return nil
}

func printTopLevelUsage(verbs map[string]cmd) {
	fmt.Fprintf(os.Stderr, "yaafcl [-flags] <command> [-flags] <args>\n\n")
	fmt.Fprintf(os.Stderr, "To get help on any command, use yaafcl help <command>.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	names := make([]string, 0, len(verbs))
	for name := range verbs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "\t%-16s - see 'yaafcl help %s'\n", name, name)
	}
}
