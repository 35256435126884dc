// Package bdd implements the reduced ordered binary decision diagram kernel
// consumed by the rest of dpverify. No mature ecosystem BDD library for Go
// exists, so this package hand-rolls the minimal kernel dpverify's symbolic
// packet-space analysis assumes as a building block: a fixed variable set,
// hash-consed nodes, and and/or/not/and_not/is_false over them.
package bdd

import "fmt"

// Node is a single ROBDD node. Terminal nodes have Var == terminalVar; Low
// and High are nil for terminals, with Value carrying the constant.
type Node struct {
	Var   int32
	Value bool // meaningful only when Var == terminalVar
	Low   *Node
	High  *Node
}

const terminalVar = -1

func (n *Node) isTerminal() bool { return n.Var == terminalVar }

// Kernel owns the fixed variable set and the hash-consing node table. A
// Kernel is safe for concurrent use: all mutation happens under a single
// mutex guarding the node table, and nodes are immutable once built, so
// reads of already-built nodes never race.
type Kernel struct {
	nvars int

	mu    chan struct{} // binary semaphore; see lock/unlock below
	table map[nodeKey]*Node

	falseNode *Node
	trueNode  *Node
}

type nodeKey struct {
	v         int32
	low, high *Node
}

// New builds a kernel with nvars boolean variables x1..xN (1-indexed in the
// public API).
func New(nvars int) *Kernel {
	k := &Kernel{
		nvars: nvars,
		mu:    make(chan struct{}, 1),
		table: make(map[nodeKey]*Node),
	}
	k.mu <- struct{}{}
	k.falseNode = &Node{Var: terminalVar, Value: false}
	k.trueNode = &Node{Var: terminalVar, Value: true}
	return k
}

func (k *Kernel) lock()   { <-k.mu }
func (k *Kernel) unlock() { k.mu <- struct{}{} }

// NumVars returns the fixed variable count the kernel was initialized with.
func (k *Kernel) NumVars() int { return k.nvars }

// MakeFalse returns the bottom BDD (⊥).
func (k *Kernel) MakeFalse() *Node { return k.falseNode }

// MakeTrue returns the top BDD (⊤).
func (k *Kernel) MakeTrue() *Node { return k.trueNode }

// mkNode returns the hash-consed node for (v, low, high), collapsing the
// redundant test low == high per ROBDD reduction rules.
func (k *Kernel) mkNode(v int32, low, high *Node) *Node {
	if low == high {
		return low
	}
	key := nodeKey{v: v, low: low, high: high}
	k.lock()
	defer k.unlock()
	if n, ok := k.table[key]; ok {
		return n
	}
	n := &Node{Var: v, Low: low, High: high}
	k.table[key] = n
	return n
}

// Var returns the BDD for the literal x_v (1-indexed), true for that
// variable and false otherwise.
func (k *Kernel) Var(v int) *Node {
	return k.mkNode(int32(v), k.falseNode, k.trueNode)
}

// NotVar returns the BDD for ¬x_v.
func (k *Kernel) NotVar(v int) *Node {
	return k.mkNode(int32(v), k.trueNode, k.falseNode)
}

// And returns a ∧ b.
func (k *Kernel) And(a, b *Node) *Node {
	return k.apply(a, b, func(x, y bool) bool { return x && y })
}

// Or returns a ∨ b.
func (k *Kernel) Or(a, b *Node) *Node {
	return k.apply(a, b, func(x, y bool) bool { return x || y })
}

// AndNot returns a ∧ ¬b.
func (k *Kernel) AndNot(a, b *Node) *Node {
	return k.And(a, k.Not(b))
}

// Not returns ¬a.
func (k *Kernel) Not(a *Node) *Node {
	if a.isTerminal() {
		if a.Value {
			return k.falseNode
		}
		return k.trueNode
	}
	return k.mkNode(a.Var, k.Not(a.Low), k.Not(a.High))
}

// IsFalse reports whether a is the bottom BDD.
func (k *Kernel) IsFalse(a *Node) bool {
	return a.isTerminal() && !a.Value
}

// IsTrue reports whether a is the top BDD.
func (k *Kernel) IsTrue(a *Node) bool {
	return a.isTerminal() && a.Value
}

// apply is the standard recursive Shannon-expansion combinator shared by
// And/Or. It has no memo table of its own: all memoization for the BDDs
// dpverify actually constructs lives one layer up, in the layered cache
// (internal/cache), which is keyed by canonical-table ids rather than by
// BDD pointers directly.
func (k *Kernel) apply(a, b *Node, op func(bool, bool) bool) *Node {
	if a.isTerminal() && b.isTerminal() {
		if op(a.Value, b.Value) {
			return k.trueNode
		}
		return k.falseNode
	}

	var topVar int32
	switch {
	case a.isTerminal():
		topVar = b.Var
	case b.isTerminal():
		topVar = a.Var
	case a.Var <= b.Var:
		topVar = a.Var
	default:
		topVar = b.Var
	}

	lowA, highA := branch(a, topVar)
	lowB, highB := branch(b, topVar)

	return k.mkNode(topVar, k.apply(lowA, lowB, op), k.apply(highA, highB, op))
}

func branch(n *Node, topVar int32) (low, high *Node) {
	if n.isTerminal() || n.Var != topVar {
		return n, n
	}
	return n.Low, n.High
}

// String renders a compact debug form; not used on any hot path.
func (n *Node) String() string {
	if n.isTerminal() {
		if n.Value {
			return "T"
		}
		return "F"
	}
	return fmt.Sprintf("x%d?(%s,%s)", n.Var, n.High, n.Low)
}
