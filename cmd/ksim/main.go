//go:build !tinygo

// Command ksim runs the kernel self-test sequence on the virtual clock.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"

	"tickos/internal/logging"
	"tickos/internal/selftest"
)

type writerLogger struct{ w io.Writer }

func (l writerLogger) WriteLineString(s string) { fmt.Fprintln(l.w, s) }

func (l writerLogger) WriteLineBytes(b []byte) {
	_, _ = l.w.Write(b)
	_, _ = l.w.Write([]byte{'\n'})
}

func main() {
	var runPattern string
	var logLevel string
	var list bool
	flag.StringVar(&runPattern, "run", "", "Only run cases whose name matches this regexp.")
	flag.StringVar(&logLevel, "log-level", "warning", "Kernel log level (debug, info, warning, err, ...).")
	flag.BoolVar(&list, "list", false, "List cases and exit.")
	flag.Parse()

	if list {
		for _, c := range selftest.Cases {
			fmt.Println(c.Name)
		}
		return
	}

	failed, err := run(context.Background(), os.Stdout, runPattern, logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, runPattern, logLevel string) (int, error) {
	lvl, err := logging.ParseLevel(logLevel)
	if err != nil {
		return 0, err
	}
	opts := selftest.Options{
		Log: logging.New(writerLogger{w: out}, logging.Options{Level: lvl}),
	}
	if runPattern != "" {
		re, err := regexp.Compile(runPattern)
		if err != nil {
			return 0, fmt.Errorf("bad -run pattern: %w", err)
		}
		opts.Filter = re
	}

	results := selftest.Run(ctx, selftest.Cases, opts)
	if len(results) == 0 {
		return 0, fmt.Errorf("no cases match %q", runPattern)
	}
	failed := 0
	for _, r := range results {
		fmt.Fprintln(out, r)
		if !r.Passed() {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(out, "FAIL (%d of %d)\n", failed, len(results))
	} else {
		fmt.Fprintf(out, "ok (%d cases)\n", len(results))
	}
	return failed, nil
}
