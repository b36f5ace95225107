package main

import (
	"context"
	"fmt"
	"image/color"
	"os"

	"github.com/urfave/cli/v3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/config"
	"github.com/edp1096/toy-bsim4/pkg/util"
)

type sweepRecord struct {
	Terminal string    `json:"terminal"`
	Values   []float64 `json:"values"`
	Ids      []float64 `json:"ids"`
	Gm       []float64 `json:"gm"`
	Gds      []float64 `json:"gds"`
	Vth      []float64 `json:"vth"`
}

func sweepCmd() *cli.Command {
	var (
		f        biasFlags
		terminal string
		start    float64
		stop     float64
		step     float64
		plotPath string
	)

	flags := append(f.flags(),
		&cli.StringFlag{Name: "terminal", Aliases: []string{"t"}, Usage: "terminal to sweep (d, g, s, b)", Destination: &terminal},
		&cli.FloatFlag{Name: "start", Usage: "first sweep value", Destination: &start},
		&cli.FloatFlag{Name: "stop", Usage: "last sweep value", Destination: &stop},
		&cli.FloatFlag{Name: "step", Usage: "sweep increment", Destination: &step},
		&cli.StringFlag{Name: "plot", Usage: "write the Ids curve to this image file (png, svg, pdf)", Destination: &plotPath},
	)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Step one terminal and record Ids, Gm, Gds and Vth",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			b, inst, _, err := f.load(ctx, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if b.Sweep == nil {
				b.Sweep = &config.Sweep{Terminal: "g", Stop: 1, Step: 0.05}
			}
			if c.IsSet("terminal") {
				b.Sweep.Terminal = terminal
			}
			if c.IsSet("start") {
				b.Sweep.Start = config.Value(start)
			}
			if c.IsSet("stop") {
				b.Sweep.Stop = config.Value(stop)
			}
			if c.IsSet("step") {
				b.Sweep.Step = config.Value(step)
			}
			if _, err := config.Terminal(b.Sweep.Terminal); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if s := b.Sweep; s.Step == 0 || (s.Stop-s.Start)*s.Step < 0 {
				return cli.Exit(fmt.Sprintf("error: step %g does not reach %g from %g", s.Step, s.Stop, s.Start), 1)
			}

			points, values := b.Points()
			rec := sweepRecord{Terminal: b.Sweep.Terminal, Values: values}
			for _, p := range points {
				vd, vg, vs, vb := p.Voltages()
				if _, err := inst.Evaluate(vd, vg, vs, vb, b.Status()); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				op, _ := inst.OperatingPoint()
				rec.Ids = append(rec.Ids, op.Ids)
				rec.Gm = append(rec.Gm, op.Gm)
				rec.Gds = append(rec.Gds, op.Gds)
				rec.Vth = append(rec.Vth, op.Vth)
			}
			log.Debug("sweep done", "terminal", rec.Terminal, "points", len(values))

			if plotPath != "" {
				if err := plotSweep(plotPath, b.Instance.Name, rec); err != nil {
					return cli.Exit(fmt.Sprintf("error: plot: %v", err), 1)
				}
				log.Info("plot written", "path", plotPath)
			}

			if jsonOutput {
				return writeJSON(os.Stdout, rec)
			}
			fmt.Printf("\nSweep of V%s (%d points):\n", rec.Terminal, len(values))
			fmt.Println("Sweep Value   Ids           Gm            Gds           Vth")
			fmt.Println("----------------------------------------------------------------")
			for k, x := range values {
				fmt.Printf("%-13s %-13s %-13s %-13s %s\n",
					util.FormatValueFactor(x, "V"),
					util.FormatValueFactor(rec.Ids[k], "A"),
					util.FormatValueFactor(rec.Gm[k], "S"),
					util.FormatValueFactor(rec.Gds[k], "S"),
					util.FormatValueFactor(rec.Vth[k], "V"))
			}
			return nil
		},
	}
}

func plotSweep(path, name string, rec sweepRecord) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: Ids vs V%s", name, rec.Terminal)
	p.X.Label.Text = fmt.Sprintf("V%s (V)", rec.Terminal)
	p.Y.Label.Text = "Ids (A)"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(rec.Values))
	for k := range xys {
		xys[k].X = rec.Values[k]
		xys[k].Y = rec.Ids[k]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	p.Add(line)
	p.Legend.Add("Ids", line)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
