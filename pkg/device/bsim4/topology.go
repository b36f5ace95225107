package bsim4

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

// node is a conceptual unknown of the device. Physics and assembly address
// nodes conceptually; Topology routes them to physical positions.
type node int

const (
	nodeD   node = iota // external drain
	nodeG               // external gate
	nodeS               // external source
	nodeB               // external body
	nodeDP              // drain prime
	nodeGP              // gate prime
	nodeGM              // gate mid
	nodeSP              // source prime
	nodeBP              // body prime
	nodeDB              // drain side body
	nodeSB              // source side body
	nodeQ               // NQS charge
	nodeIDS             // drain-source initial condition branch
	nodeIGS             // gate-source initial condition branch
	nodeIBS             // body-source initial condition branch
	numNodes
)

var nodeNames = [numNodes]string{
	"d", "g", "s", "b", "dp", "gp", "gm", "sp", "bp", "db", "sb", "q", "ids", "igs", "ibs",
}

func (n node) String() string { return nodeNames[n] }

// conceptualStamp is the maximal stamp: for each row, the columns it may
// couple to.
var conceptualStamp = [numNodes][]node{
	nodeD:   {nodeD, nodeDP, nodeGP, nodeBP, nodeIDS},
	nodeG:   {nodeG, nodeDP, nodeGP, nodeGM, nodeSP, nodeBP, nodeIGS},
	nodeS:   {nodeS, nodeSP, nodeGP, nodeBP, nodeIDS, nodeIGS, nodeIBS},
	nodeB:   {nodeB, nodeBP, nodeDB, nodeSB, nodeIBS},
	nodeDP:  {nodeD, nodeDP, nodeGP, nodeGM, nodeSP, nodeBP, nodeDB, nodeQ},
	nodeGP:  {nodeG, nodeDP, nodeGP, nodeGM, nodeSP, nodeBP, nodeQ},
	nodeGM:  {nodeG, nodeDP, nodeGP, nodeGM, nodeSP, nodeBP},
	nodeSP:  {nodeS, nodeDP, nodeGP, nodeGM, nodeSP, nodeBP, nodeSB, nodeQ},
	nodeBP:  {nodeB, nodeDP, nodeGP, nodeGM, nodeSP, nodeBP, nodeDB, nodeSB, nodeQ},
	nodeDB:  {nodeB, nodeDP, nodeBP, nodeDB},
	nodeSB:  {nodeB, nodeSP, nodeBP, nodeSB},
	nodeQ:   {nodeDP, nodeGP, nodeSP, nodeBP, nodeQ},
	nodeIDS: {nodeD, nodeS, nodeIDS},
	nodeIGS: {nodeG, nodeS, nodeIGS},
	nodeIBS: {nodeB, nodeS, nodeIBS},
}

type BodyNetwork int

const (
	BodyNone         BodyNetwork = iota // bp, db, sb collapse onto b
	BodyFull                            // all five body resistors
	BodyPrimeOnly                       // db, sb collapse onto bp
	BodyJunctionOnly                    // bp collapses onto b
)

type GateNetwork int

const (
	GateNone        GateNetwork = iota
	GateLinear                  // rgateMod 1
	GateNonlinear               // rgateMod 2
	GateTwoResistor             // rgateMod 3
)

// ICBranch selects the initial-condition branch equations.
type ICBranch uint8

const (
	ICVDS ICBranch = 1 << iota
	ICVGS
	ICVBS
)

// NodeSet describes which optional unknowns an instance carries.
type NodeSet struct {
	Body      BodyNetwork
	Gate      GateNetwork
	DrainRes  bool
	SourceRes bool
	NQS       bool
	IC        ICBranch
}

func (ns NodeSet) String() string {
	body := [...]string{"none", "full", "prime", "junction"}
	gate := [...]string{"none", "linear", "nonlinear", "two"}
	return fmt.Sprintf("body=%s gate=%s rd=%t rs=%t nqs=%t ic=%03b",
		body[ns.Body], gate[ns.Gate], ns.DrainRes, ns.SourceRes, ns.NQS, ns.IC)
}

// merges lists (child, parent) pairs for every disabled optional node.
func (ns NodeSet) merges() [][2]node {
	var list [][2]node
	if !ns.DrainRes {
		list = append(list, [2]node{nodeDP, nodeD})
	}
	if !ns.SourceRes {
		list = append(list, [2]node{nodeSP, nodeS})
	}
	switch ns.Gate {
	case GateNone:
		list = append(list, [2]node{nodeGP, nodeG}, [2]node{nodeGM, nodeG})
	case GateLinear, GateNonlinear:
		list = append(list, [2]node{nodeGM, nodeGP})
	}
	switch ns.Body {
	case BodyNone:
		list = append(list, [2]node{nodeBP, nodeB}, [2]node{nodeDB, nodeB}, [2]node{nodeSB, nodeB})
	case BodyPrimeOnly:
		list = append(list, [2]node{nodeDB, nodeBP}, [2]node{nodeSB, nodeBP})
	case BodyJunctionOnly:
		list = append(list, [2]node{nodeBP, nodeB})
	}
	return list
}

// Topology is the immutable stamp of one NodeSet. rowMap sends every
// conceptual node to its physical row; colMap sends every conceptual edge
// (r, c) to its index in the physical row's column list.
type Topology struct {
	NodeSet NodeSet

	present [numNodes]bool
	rowMap  [numNodes]int
	colMap  [numNodes][numNodes]int
	rep     []node  // physical row -> representative conceptual node
	stamp   [][]int // physical row -> physical columns, ascending
}

func BuildTopology(ns NodeSet) *Topology {
	t := &Topology{NodeSet: ns}

	var parent [numNodes]node
	for n := node(0); n < numNodes; n++ {
		parent[n] = n
		t.present[n] = n <= nodeSB
		t.rowMap[n] = -1
		for c := range t.colMap[n] {
			t.colMap[n][c] = -1
		}
	}
	t.present[nodeQ] = ns.NQS
	t.present[nodeIDS] = ns.IC&ICVDS != 0
	t.present[nodeIGS] = ns.IC&ICVGS != 0
	t.present[nodeIBS] = ns.IC&ICVBS != 0

	for _, mg := range ns.merges() {
		parent[mg[0]] = mg[1]
	}
	root := func(n node) node {
		for parent[n] != n {
			n = parent[n]
		}
		return n
	}

	for n := node(0); n < numNodes; n++ {
		if t.present[n] && root(n) == n {
			t.rowMap[n] = len(t.rep)
			t.rep = append(t.rep, n)
		}
	}
	for n := node(0); n < numNodes; n++ {
		if t.present[n] {
			t.rowMap[n] = t.rowMap[root(n)]
		}
	}

	cols := make([]map[int]bool, len(t.rep))
	for i := range cols {
		cols[i] = make(map[int]bool)
	}
	for r := node(0); r < numNodes; r++ {
		if !t.present[r] {
			continue
		}
		for _, c := range conceptualStamp[r] {
			if t.present[c] {
				cols[t.rowMap[r]][t.rowMap[c]] = true
			}
		}
	}

	t.stamp = make([][]int, len(t.rep))
	for i, set := range cols {
		row := make([]int, 0, len(set))
		for c := range set {
			row = append(row, c)
		}
		sort.Ints(row)
		t.stamp[i] = row
	}

	for r := node(0); r < numNodes; r++ {
		if !t.present[r] {
			continue
		}
		pr := t.rowMap[r]
		for _, c := range conceptualStamp[r] {
			if t.present[c] {
				t.colMap[r][c] = sort.SearchInts(t.stamp[pr], t.rowMap[c])
			}
		}
	}
	return t
}

// Size is the number of physical unknowns, external terminals included.
func (t *Topology) Size() int { return len(t.rep) }

// NumInternal is the number of unknowns the device adds to the circuit.
func (t *Topology) NumInternal() int { return len(t.rep) - 4 }

// InternalNames names the device's own unknowns in physical order.
func (t *Topology) InternalNames() []string {
	names := make([]string, 0, t.NumInternal())
	for _, n := range t.rep[4:] {
		names = append(names, n.String())
	}
	return names
}

func (t *Topology) Present(n node) bool { return t.present[n] }

// Row returns the physical row of a conceptual node, or -1.
func (t *Topology) Row(n node) int { return t.rowMap[n] }

// Pos returns the physical (row, column index) of a conceptual edge. ok is
// false when the edge is not part of the stamp.
func (t *Topology) Pos(r, c node) (row, k int, ok bool) {
	if !t.present[r] || !t.present[c] {
		return -1, -1, false
	}
	k = t.colMap[r][c]
	return t.rowMap[r], k, k >= 0
}

// Stamp returns the physical column lists. Callers must not modify it.
func (t *Topology) Stamp() [][]int { return t.stamp }

// Slots resolves every physical stamp position once. global maps each
// physical row to its circuit unknown (0 for ground).
func (t *Topology) Slots(m matrix.SlotMatrix, global []int) ([][]matrix.Slot, error) {
	if len(global) != len(t.rep) {
		return nil, fmt.Errorf("topology %s: %d unknowns, got %d", t.NodeSet, len(t.rep), len(global))
	}
	slots := make([][]matrix.Slot, len(t.stamp))
	for r, row := range t.stamp {
		slots[r] = make([]matrix.Slot, len(row))
		for k, c := range row {
			slots[r][k] = m.Slot(global[r], global[c])
		}
	}
	return slots, nil
}

func (t *Topology) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", t.NodeSet)
	for r, row := range t.stamp {
		names := make([]string, len(row))
		for k, c := range row {
			names[k] = t.rep[c].String()
		}
		fmt.Fprintf(&sb, "  %-3s: %s\n", t.rep[r], strings.Join(names, " "))
	}
	return sb.String()
}
