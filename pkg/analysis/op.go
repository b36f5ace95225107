package analysis

import (
	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/circuit"
)

type OperatingPoint struct{ BaseAnalysis }

func NewOP(opts Options, log logger.Logger) *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: *NewBaseAnalysis(opts, log),
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return nil
}

func (op *OperatingPoint) Execute() error {
	if err := op.solve(true); err != nil {
		return err
	}
	for name, value := range op.Circuit.GetSolution() {
		op.results[name] = []float64{value}
	}
	return nil
}
