package bsim4

import (
	"math/bits"
	"testing"

	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

func allNodeSets() []NodeSet {
	var out []NodeSet
	for body := BodyNone; body <= BodyJunctionOnly; body++ {
		for gate := GateNone; gate <= GateTwoResistor; gate++ {
			for mask := 0; mask < 8; mask++ {
				for ic := ICBranch(0); ic < 8; ic++ {
					out = append(out, NodeSet{
						Body:      body,
						Gate:      gate,
						DrainRes:  mask&1 != 0,
						SourceRes: mask&2 != 0,
						NQS:       mask&4 != 0,
						IC:        ic,
					})
				}
			}
		}
	}
	return out
}

func expectedSize(ns NodeSet) int {
	n := 4 + bits.OnesCount8(uint8(ns.IC))
	if ns.DrainRes {
		n++
	}
	if ns.SourceRes {
		n++
	}
	if ns.NQS {
		n++
	}
	switch ns.Gate {
	case GateLinear, GateNonlinear:
		n++
	case GateTwoResistor:
		n += 2
	}
	switch ns.Body {
	case BodyFull:
		n += 3
	case BodyPrimeOnly:
		n++
	case BodyJunctionOnly:
		n += 2
	}
	return n
}

func TestTopologyRemapIsTotalAndOnto(t *testing.T) {
	t.Parallel()
	for _, ns := range allNodeSets() {
		topo := BuildTopology(ns)
		size := topo.Size()
		if size != expectedSize(ns) {
			t.Fatalf("%s: size %d, want %d", ns, size, expectedSize(ns))
		}
		for k, n := range []node{nodeD, nodeG, nodeS, nodeB} {
			if topo.Row(n) != k {
				t.Fatalf("%s: terminal %s on row %d, want %d", ns, n, topo.Row(n), k)
			}
		}

		rowHit := make([]bool, size)
		slotHit := make([][]bool, size)
		for r, cols := range topo.Stamp() {
			slotHit[r] = make([]bool, len(cols))
			for k := 1; k < len(cols); k++ {
				if cols[k] <= cols[k-1] {
					t.Fatalf("%s: row %d columns not ascending: %v", ns, r, cols)
				}
			}
		}

		for r := node(0); r < numNodes; r++ {
			if !topo.Present(r) {
				if topo.Row(r) != -1 {
					t.Fatalf("%s: absent node %s mapped to row %d", ns, r, topo.Row(r))
				}
				continue
			}
			pr := topo.Row(r)
			if pr < 0 || pr >= size {
				t.Fatalf("%s: node %s mapped out of range: %d", ns, r, pr)
			}
			rowHit[pr] = true
			for _, c := range conceptualStamp[r] {
				row, k, ok := topo.Pos(r, c)
				if !topo.Present(c) {
					if ok {
						t.Fatalf("%s: edge (%s,%s) to an absent node has a slot", ns, r, c)
					}
					continue
				}
				if !ok || row != pr {
					t.Fatalf("%s: edge (%s,%s) not mapped", ns, r, c)
				}
				if got := topo.Stamp()[row][k]; got != topo.Row(c) {
					t.Fatalf("%s: edge (%s,%s) lands on column %d, want %d", ns, r, c, got, topo.Row(c))
				}
				slotHit[row][k] = true
			}
		}

		for r := range rowHit {
			if !rowHit[r] {
				t.Fatalf("%s: physical row %d has no preimage", ns, r)
			}
			for k, hit := range slotHit[r] {
				if !hit {
					t.Fatalf("%s: slot (%d,%d) has no preimage", ns, r, k)
				}
			}
		}

		names := topo.InternalNames()
		if len(names) != topo.NumInternal() {
			t.Fatalf("%s: %d internal names for %d unknowns", ns, len(names), topo.NumInternal())
		}
		seen := map[string]bool{}
		for _, name := range names {
			if seen[name] {
				t.Fatalf("%s: duplicate internal name %q", ns, name)
			}
			seen[name] = true
		}
	}
}

func TestTopologyMerges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		ns     NodeSet
		child  node
		parent node
	}{
		{"drain prime on drain", NodeSet{}, nodeDP, nodeD},
		{"gate mid on gate prime", NodeSet{Gate: GateLinear}, nodeGM, nodeGP},
		{"gate prime on gate", NodeSet{}, nodeGP, nodeG},
		{"junction body on body prime", NodeSet{Body: BodyPrimeOnly}, nodeDB, nodeBP},
		{"body prime on body", NodeSet{Body: BodyJunctionOnly}, nodeBP, nodeB},
		{"source body on body", NodeSet{}, nodeSB, nodeB},
	}
	for _, tt := range tests {
		topo := BuildTopology(tt.ns)
		if topo.Row(tt.child) != topo.Row(tt.parent) {
			t.Errorf("%s: %s on row %d, %s on row %d", tt.name, tt.child, topo.Row(tt.child), tt.parent, topo.Row(tt.parent))
		}
	}

	full := BuildTopology(NodeSet{Body: BodyFull, Gate: GateTwoResistor, DrainRes: true, SourceRes: true, NQS: true, IC: ICVDS | ICVGS | ICVBS})
	want := []string{"dp", "gp", "gm", "sp", "bp", "db", "sb", "q", "ids", "igs", "ibs"}
	got := full.InternalNames()
	if len(got) != len(want) {
		t.Fatalf("internal names = %v, want %v", got, want)
	}
	for k := range want {
		if got[k] != want[k] {
			t.Fatalf("internal names = %v, want %v", got, want)
		}
	}
}

func TestTopologySlots(t *testing.T) {
	t.Parallel()
	topo := BuildTopology(NodeSet{Gate: GateLinear, DrainRes: true})
	m := matrix.NewDense(6)

	if _, err := topo.Slots(m, []int{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a short unknown list")
	}

	global := []int{1, 2, 0, 3, 4, 5}
	slots, err := topo.Slots(m, global)
	if err != nil {
		t.Fatal(err)
	}
	for r, row := range slots {
		for k, s := range row {
			s.Add(1)
			i, j := global[r], global[topo.Stamp()[r][k]]
			if i == 0 || j == 0 {
				continue
			}
			if got := m.At(i, j); got != 1 {
				t.Fatalf("slot (%d,%d) wrote %g to (%d,%d)", r, k, got, i, j)
			}
		}
	}
}
