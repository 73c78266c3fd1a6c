// Command repcrec runs a replicated-copies transaction manager against
// a script of operations, one per line, printing read results,
// transaction outcomes, and dump snapshots to stdout.
//
// Grounded on original_source/src/dba.py's driver loop (open input,
// call tm.execute(op) in a loop until it returns false) with flag
// parsing and structured logging layered on per the teacher's cmd-style
// entry points (c.f. github.com/Johniel/gorelly's example.go, the
// closest thing it has to a driver).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/example/repcrec/internal/coordinator"
	"github.com/example/repcrec/ioformat"
)

func main() {
	var input string
	var logLevel string
	pflag.StringVarP(&input, "input", "i", "", "path to the operation script (default: stdin)")
	pflag.StringVar(&logLevel, "log-level", "warn", "audit log level: debug, info, warn, error")
	pflag.Parse()

	logger := logrus.StandardLogger()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repcrec: invalid --log-level %q: %v\n", logLevel, err)
		os.Exit(2)
	}
	logger.SetLevel(level)

	in := os.Stdin
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "repcrec: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	if err := run(in, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "repcrec: %v\n", err)
		os.Exit(1)
	}
}

func run(in *os.File, out *os.File, logger *logrus.Logger) error {
	parser := ioformat.NewParser(in)
	sink := ioformat.NewConsoleSink(out)
	tm := coordinator.New(sink)

	exhausted := false
	for {
		if exhausted {
			if !tm.Execute(nil) {
				return nil
			}
			continue
		}

		op, line, err := parser.Next()
		if err != nil && line == "" {
			exhausted = true
			continue
		}
		if err != nil {
			logger.WithError(err).Warn("skipping malformed operation")
			continue
		}
		if !tm.Execute(op) {
			return nil
		}
	}
}
