package main

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// cliFlags holds all command-line options.
type cliFlags struct {
	config  string
	repo    string
	out     string
	device  string
	offline bool
	workers int
	quiet   bool
	verbose bool
	version bool
}

// parseFlags parses args (excluding the program name).
func parseFlags(args []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("repo2pdf", flag.ContinueOnError)

	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVarP(&f.repo, "repo", "r", ".", "repository root to compose")
	fs.StringVarP(&f.out, "out", "o", "repo2pdf-out", "output directory")
	fs.StringVarP(&f.device, "device", "d", "", "device preset: desktop, kindle7, tablet, mobile")
	fs.BoolVar(&f.offline, "offline", false, "serve emoji assets from cache only")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel file workers (0 = auto)")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show processing detail")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: repo2pdf [flags]\n\nCompose a repository into a rendering-safe Markdown document.\n\nFlags:\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f, nil
}
