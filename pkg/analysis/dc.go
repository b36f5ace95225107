package analysis

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/circuit"
	"github.com/edp1096/toy-bsim4/pkg/device"
)

type DCSweep struct {
	BaseAnalysis
	sourceNames []string    // Names of voltage sources to sweep
	sweepVals   [][]float64 // Generated sweep values for each source
	sources     []*device.VoltageSource
	origVals    []float64 // Original values of the sources
}

func NewDCSweep(sources []string, starts, stops, increments []float64, opts Options, log logger.Logger) (*DCSweep, error) {
	n := len(sources)
	if n == 0 || n > 2 {
		return nil, fmt.Errorf("unsupported number of sweep sources: %d", n)
	}
	if len(starts) != n || len(stops) != n || len(increments) != n {
		return nil, fmt.Errorf("inconsistent sweep parameter lengths")
	}

	dc := &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(opts, log),
		sourceNames:  sources,
		sweepVals:    make([][]float64, n),
	}
	for i := range sources {
		vals, err := sweepPoints(starts[i], stops[i], increments[i])
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sources[i], err)
		}
		dc.sweepVals[i] = vals
	}
	return dc, nil
}

// sweepPoints lists start, start+incr, ... up to stop inclusive. Points are
// computed from the index so rounding does not drop the last one.
func sweepPoints(start, stop, incr float64) ([]float64, error) {
	if incr == 0 || (stop-start)/incr < 0 {
		return nil, fmt.Errorf("increment %g does not reach %g from %g", incr, stop, start)
	}
	n := int(math.Floor((stop-start)/incr+1e-9)) + 1
	vals := make([]float64, n)
	for k := range vals {
		vals[k] = start + float64(k)*incr
	}
	return vals, nil
}

func (dc *DCSweep) Setup(ckt *circuit.Circuit) error {
	dc.Circuit = ckt
	dc.sources = make([]*device.VoltageSource, len(dc.sourceNames))
	dc.origVals = make([]float64, len(dc.sourceNames))

	for i, name := range dc.sourceNames {
		for _, dev := range ckt.GetDevices() {
			if v, ok := dev.(*device.VoltageSource); ok && v.GetName() == name {
				dc.sources[i] = v
				dc.origVals[i] = v.GetValue()
				break
			}
		}
		if dc.sources[i] == nil {
			return fmt.Errorf("source %s not found", name)
		}
	}
	return nil
}

func (dc *DCSweep) Execute() error {
	if dc.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}
	defer func() {
		for i, src := range dc.sources {
			src.SetValue(dc.origVals[i])
		}
	}()

	outer := []float64{math.NaN()}
	if len(dc.sources) == 2 {
		outer = dc.sweepVals[1]
	}

	first := true
	for _, val2 := range outer {
		if len(dc.sources) == 2 {
			dc.sources[1].SetValue(val2)
		}
		for _, val1 := range dc.sweepVals[0] {
			dc.sources[0].SetValue(val1)

			if err := dc.solve(first); err != nil {
				if len(dc.sources) == 2 {
					return fmt.Errorf("convergence error at %s=%g, %s=%g: %w",
						dc.sourceNames[0], val1, dc.sourceNames[1], val2, err)
				}
				return fmt.Errorf("convergence error at %s=%g: %w", dc.sourceNames[0], val1, err)
			}
			first = false

			dc.store("SWEEP1", val1)
			if len(dc.sources) == 2 {
				dc.store("SWEEP2", val2)
			}
			for name, value := range dc.Circuit.GetSolution() {
				dc.store(name, value)
			}
		}
	}
	return nil
}
