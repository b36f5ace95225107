package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

type stampRecord struct {
	Topology string      `json:"topology"`
	Unknowns []string    `json:"unknowns"`
	Jacobian [][]float64 `json:"jacobian"`
	RHS      []float64   `json:"rhs"`
	F        []float64   `json:"f"`
	Q        []float64   `json:"q"`
	DQdx     [][]float64 `json:"dqdx"`
}

func stampCmd() *cli.Command {
	var f biasFlags

	return &cli.Command{
		Name:  "stamp",
		Usage: "Print the topology and Newton stamp at the first bias",
		Flags: f.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			b, inst, _, err := f.load(ctx, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			// Terminals take unknowns 1..4, internal nodes follow.
			topo := inst.Topology()
			inst.SetNodes([]int{1, 2, 3, 4})
			internal := make([]int, topo.NumInternal())
			for k := range internal {
				internal[k] = 5 + k
			}
			if err := inst.SetInternalNodes(internal); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			dm := matrix.NewDense(topo.Size())
			if err := inst.Setup(dm); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			vd, vg, vs, vb := b.Bias[0].Voltages()
			contrib, err := inst.Evaluate(vd, vg, vs, vb, b.Status())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := inst.Load(dm); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			unknowns := append([]string{"d", "g", "s", "b"}, topo.InternalNames()...)
			if jsonOutput {
				rec := stampRecord{
					Topology: topo.NodeSet.String(),
					Unknowns: unknowns,
					RHS:      dm.RHS()[1:],
					F:        contrib.F,
					Q:        contrib.Q,
					DQdx:     contrib.DQdx,
				}
				for r := 1; r <= topo.Size(); r++ {
					row := make([]float64, topo.Size())
					for col := range row {
						row[col] = dm.At(r, col+1)
					}
					rec.Jacobian = append(rec.Jacobian, row)
				}
				return writeJSON(os.Stdout, rec)
			}

			fmt.Println(topo.String())
			fmt.Printf("Unknowns: %v\n\n", unknowns)
			fmt.Printf("Jacobian:\n%s\n\n", dm.String())
			fmt.Println("RHS:")
			for r, name := range unknowns {
				fmt.Printf("  %-4s %13.6e\n", name, dm.RHS()[r+1])
			}
			if contrib.Dropped > 0 {
				fmt.Printf("warning: %d entries had no slot\n", contrib.Dropped)
			}
			return nil
		},
	}
}
