// Deadlock detection: ported from github.com/Johniel/gorelly's
// transaction/lock.go hasDeadlock/dfsDeadlock (the White/Gray/Black DFS
// shape, and its doc comments explaining why both a visited set and a
// recursion-stack set are needed), generalized from that file's
// two-transaction check into a full-graph cycle search, and extended
// with original_source/src/transaction_manager.py's youngest-victim
// resolution, since the teacher's version only ever reports whether a
// deadlock exists and leaves resolution to its caller.
package coordinator

import "github.com/example/repcrec/internal/txn"

// color is a transaction's DFS state: White (unvisited), Gray (on the
// current recursion stack), or Black (fully explored with no cycle
// found through it). A back-edge to a Gray node is a cycle; a forward
// or cross edge to a Black node is not — Black alone, without the
// separate Gray set, cannot tell the two apart.
type color int

const (
	white color = iota
	gray
	black
)

// resolveDeadlock finds at most one cycle in the wait-for graph per
// call and aborts its youngest member. A tick that leaves another cycle
// standing picks it up on the next call to resolveDeadlock, mirroring
// the Python original's _resolve_deadlock — a single _detect_cycle/
// _abort_youngest pair, not a loop to a fixed point.
func (tm *TransactionManager) resolveDeadlock() {
	cycle := tm.detectCycle()
	if cycle == nil {
		return
	}
	victim := youngest(cycle, tm.transactions)
	tm.abortTransaction(victim)
}

// detectCycle runs a DFS from every transaction, in deterministic id
// order, and returns the first cycle found as the sequence of
// transaction ids from the back-edge's target to its source, or nil if
// the graph is acyclic.
func (tm *TransactionManager) detectCycle() []txn.ID {
	colors := make(map[txn.ID]color)
	var stack []txn.ID

	var cycle []txn.ID
	var visit func(t txn.ID) bool
	visit = func(t txn.ID) bool {
		colors[t] = gray
		stack = append(stack, t)
		for _, next := range sortedNeighbors(tm.waitForGraph[t]) {
			switch colors[next] {
			case gray:
				cycle = cutCycle(stack, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			case black:
			}
		}
		colors[t] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for _, t := range sortedTxnIDs(tm.waitForGraph) {
		if colors[t] == white {
			if visit(t) {
				return cycle
			}
		}
	}
	return nil
}

// cutCycle returns the suffix of stack starting at target — the
// members of the cycle just closed by the back-edge into target.
func cutCycle(stack []txn.ID, target txn.ID) []txn.ID {
	for i, t := range stack {
		if t == target {
			out := make([]txn.ID, len(stack)-i)
			copy(out, stack[i:])
			return out
		}
	}
	return nil
}

// youngest picks the victim per spec: the cycle member with the
// largest start tick (the most recently begun transaction), breaking
// ties by the largest transaction id.
func youngest(cycle []txn.ID, transactions map[txn.ID]*txn.Transaction) txn.ID {
	victim := cycle[0]
	for _, candidate := range cycle[1:] {
		v, c := transactions[victim], transactions[candidate]
		if c.StartTick > v.StartTick || (c.StartTick == v.StartTick && candidate > victim) {
			victim = candidate
		}
	}
	return victim
}
