package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/analysis"
	"github.com/edp1096/toy-bsim4/pkg/circuit"
	"github.com/edp1096/toy-bsim4/pkg/netlist"
	"github.com/edp1096/toy-bsim4/pkg/util"
)

func opCmd() *cli.Command {
	return &cli.Command{
		Name:      "op",
		Usage:     "Run the .op or .dc analysis of a netlist",
		ArgsUsage: "<netlist_file>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return cli.Exit("usage: bsim4 op <netlist_file>", 1)
			}
			results, err := runNetlist(ctx, c.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				return writeJSON(os.Stdout, results)
			}
			printResults(results)
			return nil
		},
	}
}

func runNetlist(ctx context.Context, path string) (map[string][]float64, error) {
	log := logger.FromContext(ctx)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading netlist file: %w", err)
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing netlist: %w", err)
	}
	log.Debug("netlist parsed", "title", data.Title, "analysis", data.Analysis.String(),
		"elements", len(data.Elements), "models", len(data.Models))

	ckt, err := circuit.FromNetlist(data, log)
	if err != nil {
		return nil, err
	}
	defer ckt.Destroy()

	opts := analysis.OptionsFrom(data.Options)
	var analyzer analysis.Analysis
	switch data.Analysis {
	case netlist.AnalysisOP:
		analyzer = analysis.NewOP(opts, log)
	case netlist.AnalysisDC:
		param := data.DCParam
		sources := []string{param.Source1}
		starts := []float64{param.Start1}
		stops := []float64{param.Stop1}
		incs := []float64{param.Increment1}
		if param.Source2 != "" {
			sources = append(sources, param.Source2)
			starts = append(starts, param.Start2)
			stops = append(stops, param.Stop2)
			incs = append(incs, param.Increment2)
		}
		analyzer, err = analysis.NewDCSweep(sources, starts, stops, incs, opts, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported analysis type %s", data.Analysis)
	}

	if err := analyzer.Setup(ckt); err != nil {
		return nil, fmt.Errorf("analysis setup failed: %w", err)
	}
	if err := analyzer.Execute(); err != nil {
		return nil, fmt.Errorf("analysis execution failed: %w", err)
	}
	if n := ckt.Reporter().Warnings(); n > 0 {
		log.Warn("device diagnostics", "warnings", n)
	}
	return analyzer.GetResults(), nil
}

func splitNames(results map[string][]float64) (voltages, currents []string) {
	for name := range results {
		switch {
		case strings.HasPrefix(name, "V("):
			voltages = append(voltages, name)
		case strings.HasPrefix(name, "I("), strings.HasPrefix(name, "Id("):
			currents = append(currents, name)
		}
	}
	sort.Strings(voltages)
	sort.Strings(currents)
	return voltages, currents
}

func printResults(results map[string][]float64) {
	fmt.Println("\nAnalysis Results:")
	fmt.Println("================")

	voltageNames, currentNames := splitNames(results)

	// DC Sweep
	if sweep1, isDC := results["SWEEP1"]; isDC {
		fmt.Printf("\nDC Sweep Analysis Results (%d points):\n", len(sweep1))
		fmt.Println("Sweep Values    Node Voltages        Branch Currents")
		fmt.Println("------------------------------------------------")

		sweep2, hasNested := results["SWEEP2"]
		for i := range sweep1 {
			if hasNested {
				fmt.Printf("V1=%-9s V2=%-9s  ",
					util.FormatValueFactor(sweep1[i], "V"),
					util.FormatValueFactor(sweep2[i], "V"))
			} else {
				fmt.Printf("V=%-9s  ", util.FormatValueFactor(sweep1[i], "V"))
			}
			for _, name := range voltageNames {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "V"))
			}
			for _, name := range currentNames {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "A"))
			}
			fmt.Println()
		}
		return
	}

	// Operating point
	fmt.Println("\nNode Voltages:")
	for _, name := range voltageNames {
		fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "V"))
	}
	fmt.Println("\nBranch Currents:")
	for _, name := range currentNames {
		fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "A"))
	}
}
