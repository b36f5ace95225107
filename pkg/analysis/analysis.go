package analysis

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/circuit"
	"github.com/edp1096/toy-bsim4/pkg/device"
)

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute() error
	GetResults() map[string][]float64
}

// Options are the Newton controls a deck can override with .options.
type Options struct {
	MaxIter         int     // itl1
	Abstol          float64 // abstol
	Reltol          float64 // reltol
	Vntol           float64 // vntol
	Gmin            float64 // gmin
	GminSteps       int     // gminsteps
	VoltageLimiting bool    // cleared by nolimit
}

func DefaultOptions() Options {
	return Options{
		MaxIter:         100,
		Abstol:          1e-12,
		Reltol:          1e-6,
		Vntol:           1e-6,
		Gmin:            1e-12,
		GminSteps:       10,
		VoltageLimiting: true,
	}
}

// OptionsFrom applies .options values over the defaults.
func OptionsFrom(values map[string]float64) Options {
	o := DefaultOptions()
	for name, v := range values {
		switch name {
		case "itl1":
			o.MaxIter = int(v)
		case "abstol":
			o.Abstol = v
		case "reltol":
			o.Reltol = v
		case "vntol":
			o.Vntol = v
		case "gmin":
			o.Gmin = v
		case "gminsteps":
			o.GminSteps = int(v)
		case "nolimit":
			o.VoltageLimiting = v == 0
		}
	}
	return o
}

type BaseAnalysis struct {
	Circuit *circuit.Circuit
	results map[string][]float64
	opts    Options
	log     logger.Logger
}

func NewBaseAnalysis(opts Options, log logger.Logger) *BaseAnalysis {
	if log == nil {
		log = logger.Default()
	}
	return &BaseAnalysis{
		results: make(map[string][]float64),
		opts:    opts,
		log:     log,
	}
}

func (a *BaseAnalysis) CheckConvergence(oldSol, newSol []float64) bool {
	if len(oldSol) != len(newSol) {
		return false
	}

	// Branch currents sit between the node voltages and the device
	// internal nodes.
	firstBranch, lastBranch := len(newSol), 0
	if a.Circuit != nil {
		firstBranch = a.Circuit.GetNumNodes() + 1
		lastBranch = a.Circuit.GetNumNodes() + len(a.Circuit.GetBranchMap())
	}

	for i := 1; i < len(newSol); i++ {
		diff := math.Abs(newSol[i] - oldSol[i])
		abs := a.opts.Vntol
		if i >= firstBranch && i <= lastBranch {
			abs = a.opts.Abstol
		}
		tol := a.opts.Reltol*math.Max(math.Abs(newSol[i]), math.Abs(oldSol[i])) + abs
		if diff > tol {
			return false
		}
	}
	return true
}

// newton iterates from the circuit's current solution until two iterates
// agree and no device limited its step. initJunction asks devices for
// their junction initial guess on the first iteration.
func (a *BaseAnalysis) newton(gmin float64, initJunction bool) (int, error) {
	ckt := a.Circuit
	mat := ckt.GetMatrix()
	status := &device.CircuitStatus{
		Mode:            device.OperatingPointAnalysis,
		Temp:            ckt.Temp,
		Gmin:            gmin,
		InitJunction:    initJunction,
		VoltageLimiting: a.opts.VoltageLimiting,
	}

	oldSolution := append([]float64(nil), mat.Solution()...)
	for iter := range a.opts.MaxIter {
		status.NewtonIter = iter
		limited, err := ckt.Evaluate(oldSolution, status)
		if err != nil {
			return iter, err
		}

		mat.Clear()
		if err := ckt.Stamp(status); err != nil {
			return iter, fmt.Errorf("stamping error: %w", err)
		}
		mat.LoadGmin(gmin)
		if err := mat.Solve(); err != nil {
			return iter, fmt.Errorf("matrix solve error: %w", err)
		}

		solution := mat.Solution()
		if iter > 0 && !limited && a.CheckConvergence(oldSolution, solution) {
			return iter + 1, nil
		}
		oldSolution = append(oldSolution[:0], solution...)
	}

	return a.opts.MaxIter, fmt.Errorf("failed to converge in %d iterations", a.opts.MaxIter)
}

// solve runs Newton at the configured gmin, falling back to gmin stepping.
func (a *BaseAnalysis) solve(initJunction bool) error {
	iters, err := a.newton(a.opts.Gmin, initJunction)
	if err == nil {
		a.log.Debug("newton converged", "iterations", iters)
		return nil
	}
	a.log.Info("direct newton failed, stepping gmin", "error", err)

	a.Circuit.GetMatrix().ResetSolution()

	for i, gmin := range gminSchedule(a.opts.Gmin, a.opts.GminSteps) {
		if _, err := a.newton(gmin, initJunction && i == 0); err != nil {
			return fmt.Errorf("gmin stepping failed at %g: %w", gmin, err)
		}
	}

	if _, err := a.newton(a.opts.Gmin, false); err != nil {
		return fmt.Errorf("final solution failed after gmin stepping: %w", err)
	}
	return nil
}

// gminStart is the first node shunt of gmin stepping.
const gminStart = 1e-3

// gminSchedule lists the node shunts of gmin stepping: steps values
// falling geometrically from gminStart towards final, final excluded.
func gminSchedule(final float64, steps int) []float64 {
	if steps < 1 || final >= gminStart {
		return []float64{gminStart}
	}
	ratio := math.Pow(gminStart/final, 1/float64(steps))
	schedule := make([]float64, steps)
	g := gminStart
	for i := range schedule {
		schedule[i] = g
		g /= ratio
	}
	return schedule
}

func (a *BaseAnalysis) store(name string, value float64) {
	a.results[name] = append(a.results[name], value)
}

func (a *BaseAnalysis) GetResults() map[string][]float64 {
	return a.results
}
