package ioformat

import (
	"fmt"
	"io"
	"sort"

	"github.com/example/repcrec/internal/topology"
	"github.com/example/repcrec/internal/txn"
)

// ConsoleSink renders coordinator events as text, grounded on
// original_source/src/inout.py's print_var/report_transaction/dump
// (the "xN: value", "Transaction TN can commit: bool", and per-site
// dump layout are kept verbatim; only the Go plumbing around them is
// new).
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink wraps w as a ConsoleSink.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// PrintVar implements ops.Sink.
func (c *ConsoleSink) PrintVar(v topology.VarID, value int) {
	fmt.Fprintf(c.w, "x%d: %d\n", v, value)
}

// ReportTransaction implements ops.Sink.
func (c *ConsoleSink) ReportTransaction(t txn.ID, committed bool) {
	fmt.Fprintf(c.w, "Transaction T%d can commit: %t\n", t, committed)
}

// DumpSnapshot implements ops.Sink, grouping variables by site in
// ascending site then variable order, matching dba.py's expected
// output ordering for test scripts.
func (c *ConsoleSink) DumpSnapshot(snapshot map[topology.SiteID]map[topology.VarID]int) {
	sites := make([]topology.SiteID, 0, len(snapshot))
	for s := range snapshot {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	for _, s := range sites {
		fmt.Fprintf(c.w, "site %d - ", s)
		vars := snapshot[s]
		ids := make([]topology.VarID, 0, len(vars))
		for v := range vars {
			ids = append(ids, v)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, v := range ids {
			fmt.Fprintf(c.w, "x%d: %d, ", v, vars[v])
		}
		fmt.Fprint(c.w, "\n")
	}
}
