package main

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/config"
	"github.com/edp1096/toy-bsim4/pkg/device/bsim4"
	"github.com/edp1096/toy-bsim4/pkg/diag"
	"github.com/edp1096/toy-bsim4/pkg/util"
)

// biasFlags are shared by the bench commands. A flag given on the command
// line replaces the first bias of the file.
type biasFlags struct {
	configPath     string
	vd, vg, vs, vb float64
}

func (f *biasFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the bench YAML file",
			Destination: &f.configPath,
			Required:    true,
		},
		&cli.FloatFlag{Name: "vd", Usage: "drain voltage", Destination: &f.vd},
		&cli.FloatFlag{Name: "vg", Usage: "gate voltage", Destination: &f.vg},
		&cli.FloatFlag{Name: "vs", Usage: "source voltage", Destination: &f.vs},
		&cli.FloatFlag{Name: "vb", Usage: "bulk voltage", Destination: &f.vb},
	}
}

// load reads the bench, applies the bias overrides and builds the
// instance. Diagnostics go to the context logger.
func (f *biasFlags) load(ctx context.Context, c *cli.Command) (*config.Bench, *bsim4.Instance, *diag.LogReporter, error) {
	log := logger.FromContext(ctx)
	b, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if len(b.Bias) == 0 {
		b.Bias = []config.Bias{{}}
	}
	overrides := []struct {
		name string
		dst  *config.Value
		v    float64
	}{
		{"vd", &b.Bias[0].Vd, f.vd},
		{"vg", &b.Bias[0].Vg, f.vg},
		{"vs", &b.Bias[0].Vs, f.vs},
		{"vb", &b.Bias[0].Vb, f.vb},
	}
	for _, o := range overrides {
		if c.IsSet(o.name) {
			*o.dst = config.Value(o.v)
		}
	}

	rep := diag.NewReporter(log)
	inst, err := b.NewInstance(rep.For(b.Instance.Name))
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug("bench loaded", "model", b.Model.Name, "type", b.Model.Type,
		"topology", inst.Topology().NodeSet.String(), "tempK", b.TempK())
	return b, inst, rep, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type evalRecord struct {
	Bias  config.Bias          `json:"bias"`
	Point bsim4.OperatingPoint `json:"op"`
}

func evalCmd() *cli.Command {
	var f biasFlags

	return &cli.Command{
		Name:  "eval",
		Usage: "Evaluate the transistor at every bias of the bench",
		Flags: f.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			b, inst, rep, err := f.load(ctx, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			records := make([]evalRecord, 0, len(b.Bias))
			for _, p := range b.Bias {
				vd, vg, vs, vb := p.Voltages()
				if _, err := inst.Evaluate(vd, vg, vs, vb, b.Status()); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				op, _ := inst.OperatingPoint()
				records = append(records, evalRecord{Bias: p, Point: op})
			}

			if jsonOutput {
				return writeJSON(os.Stdout, records)
			}
			for _, r := range records {
				printOperatingPoint(os.Stdout, r.Bias, r.Point)
			}
			if n := rep.Warnings(); n > 0 {
				fmt.Printf("\n%d warning(s)\n", n)
			}
			return nil
		},
	}
}

func printOperatingPoint(w io.Writer, p config.Bias, op bsim4.OperatingPoint) {
	v := func(x float64) string { return util.FormatValueFactor(x, "V") }
	a := func(x float64) string { return util.FormatValueFactor(x, "A") }
	s := func(x float64) string { return util.FormatValueFactor(x, "S") }
	c := func(x float64) string { return util.FormatValueFactor(x, "C") }

	fmt.Fprintf(w, "\nBias: Vd=%s Vg=%s Vs=%s Vb=%s (mode %+d)\n",
		v(float64(p.Vd)), v(float64(p.Vg)), v(float64(p.Vs)), v(float64(p.Vb)), op.Mode)
	fmt.Fprintln(w, "------------------------------------------------")
	fmt.Fprintf(w, "Ids   = %-12s Gm    = %-12s Gds   = %-12s Gmbs = %s\n", a(op.Ids), s(op.Gm), s(op.Gds), s(op.Gmbs))
	fmt.Fprintf(w, "Vth   = %-12s Vdsat = %-12s Vgsteff = %-10s Vdseff = %s\n", v(op.Vth), v(op.Vdsat), v(op.Vgsteff), v(op.Vdseff))
	fmt.Fprintf(w, "Isub  = %-12s Igidl = %-12s Igisl = %s\n", a(op.Isub), a(op.Igidl), a(op.Igisl))
	fmt.Fprintf(w, "Igs   = %-12s Igd   = %-12s Igcs  = %-12s Igcd = %-12s Igb = %s\n", a(op.Igs), a(op.Igd), a(op.Igcs), a(op.Igcd), a(op.Igb))
	fmt.Fprintf(w, "Ibs   = %-12s Ibd   = %s\n", a(op.Ibs), a(op.Ibd))
	fmt.Fprintf(w, "Qg    = %-12s Qd    = %-12s Qs    = %-12s Qb   = %s\n", c(op.Qg), c(op.Qd), c(op.Qs), c(op.Qb))

	fmt.Fprintln(w, "Intrinsic capacitances dQ/dV (F):")
	fmt.Fprintf(w, "%6s", "")
	for _, t := range []string{"d", "g", "s", "b"} {
		fmt.Fprintf(w, "%12s", t)
	}
	fmt.Fprintln(w)
	for r, name := range []string{"Qd", "Qg", "Qs", "Qb"} {
		fmt.Fprintf(w, "%6s", name)
		for col := range 4 {
			fmt.Fprintf(w, "%12s", util.FormatSI(op.C[r][col]))
		}
		fmt.Fprintln(w)
	}
}
