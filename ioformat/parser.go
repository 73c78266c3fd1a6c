// Package ioformat is the external collaborator that turns input text
// into ops.Operation values and renders the coordinator's Sink events
// back out — the parts original_source/src/io.py and inout.py folded
// into one IO class, split here the way the teacher splits a concern
// into its own narrow package (c.f. github.com/Johniel/gorelly/catalog,
// a single-concern package with its own sentinel errors).
package ioformat

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/example/repcrec/internal/ops"
	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// ErrMalformedLine is the sentinel every parse error wraps; Next returns
// the offending line's text alongside the error.
var ErrMalformedLine = errors.New("malformed operation")

var lineRE = regexp.MustCompile(`^\s*([A-Za-z]+)\s*\(\s*([^)]*)\s*\)\s*$`)

// Parser reads operations one line at a time from an input stream,
// skipping blank lines and lines beginning with "//" or "#" as
// comments — the original input format has no comment syntax, but
// real-world test scripts tend to grow one.
type Parser struct {
	scanner *bufio.Scanner
}

// NewParser wraps r as a Parser.
func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Next returns the next operation, or (nil, "", io.EOF) once the
// input is exhausted. A malformed line is reported as an error wrapping
// ErrMalformedLine with the raw line text; callers that want
// log-and-skip behavior (SPEC_FULL.md's malformed-op handling) can
// choose to call Next again rather than stop.
func (p *Parser) Next() (ops.Operation, string, error) {
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		op, err := parseLine(line)
		return op, line, err
	}
	if err := p.scanner.Err(); err != nil {
		return nil, "", errors.Wrap(err, "reading input")
	}
	return nil, "", io.EOF
}

func parseLine(line string) (ops.Operation, error) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.Wrapf(ErrMalformedLine, "%q", line)
	}
	name, args := m[1], splitArgs(m[2])

	switch name {
	case "begin":
		t, err := parseTxnArg(args, 0)
		if err != nil {
			return nil, err
		}
		return ops.Begin{Txn: t}, nil
	case "beginRO":
		t, err := parseTxnArg(args, 0)
		if err != nil {
			return nil, err
		}
		return ops.BeginRO{Txn: t}, nil
	case "R":
		t, err := parseTxnArg(args, 0)
		if err != nil {
			return nil, err
		}
		v, err := parseVarArg(args, 1)
		if err != nil {
			return nil, err
		}
		return ops.Read{Txn: t, Var: v}, nil
	case "W":
		t, err := parseTxnArg(args, 0)
		if err != nil {
			return nil, err
		}
		v, err := parseVarArg(args, 1)
		if err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, errors.Wrapf(ErrMalformedLine, "%q: missing value", line)
		}
		value, err := strconv.Atoi(strings.TrimSpace(args[2]))
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedLine, "%q: bad value", line)
		}
		return ops.Write{Txn: t, Var: v, Value: value}, nil
	case "end":
		t, err := parseTxnArg(args, 0)
		if err != nil {
			return nil, err
		}
		return ops.End{Txn: t}, nil
	case "fail":
		s, err := parseSiteArg(args, 0)
		if err != nil {
			return nil, err
		}
		return ops.Fail{Site: s}, nil
	case "recover":
		s, err := parseSiteArg(args, 0)
		if err != nil {
			return nil, err
		}
		return ops.Recover{Site: s}, nil
	case "dump":
		return ops.Dump{}, nil
	default:
		return nil, errors.Wrapf(ErrMalformedLine, "%q: unknown operation %q", line, name)
	}
}

func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseTxnArg(args []string, i int) (txn.ID, error) {
	n, err := tailInt(args, i, "T")
	return txn.ID(n), err
}

func parseVarArg(args []string, i int) (topology.VarID, error) {
	n, err := tailInt(args, i, "x")
	return topology.VarID(n), err
}

func parseSiteArg(args []string, i int) (topology.SiteID, error) {
	if i >= len(args) {
		return 0, errors.Wrapf(ErrMalformedLine, "missing site argument")
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedLine, "bad site argument %q", args[i])
	}
	return topology.SiteID(n), nil
}

// tailInt parses an argument of the form prefix+digits (e.g. "T1",
// "x7"), returning the digit tail as an int.
func tailInt(args []string, i int, prefix string) (int, error) {
	if i >= len(args) {
		return 0, errors.Wrapf(ErrMalformedLine, "missing %s-prefixed argument", prefix)
	}
	arg := args[i]
	if !strings.HasPrefix(arg, prefix) {
		return 0, errors.Wrapf(ErrMalformedLine, "expected %s-prefixed argument, got %q", prefix, arg)
	}
	n, err := strconv.Atoi(arg[len(prefix):])
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedLine, "bad %s-prefixed argument %q", prefix, arg)
	}
	return n, nil
}
