package analysis

import (
	"math"
	"testing"

	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/circuit"
	"github.com/edp1096/toy-bsim4/pkg/netlist"
)

const commonSource = `* common source stage
.model n1 nmos level=54
Vdd vdd 0 1.8
Vg g 0 1.0
Rl vdd d 5k
M1 d g 0 0 n1 L=180n W=1u
.op
`

func build(t *testing.T, deck string) (*circuit.Circuit, *netlist.NetlistData) {
	t.Helper()
	data, err := netlist.Parse(deck)
	if err != nil {
		t.Fatal(err)
	}
	ckt, err := circuit.FromNetlist(data, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ckt.Destroy)
	return ckt, data
}

func TestOperatingPointCommonSource(t *testing.T) {
	ckt, data := build(t, commonSource)
	op := NewOP(OptionsFrom(data.Options), logger.Discard())
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := op.Execute(); err != nil {
		t.Fatal(err)
	}

	res := op.GetResults()
	vd := res["V(d)"][0]
	if vd <= 0 || vd >= 1.8 {
		t.Fatalf("V(d) = %g, want inside the rails", vd)
	}
	ir := res["I(Rl)"][0]
	id := res["Id(M1)"][0]
	if ir <= 0 {
		t.Fatalf("load current %g, want positive", ir)
	}
	if math.Abs(ir-id) > 1e-4*ir+1e-10 {
		t.Fatalf("KCL at drain: I(Rl)=%g Id(M1)=%g", ir, id)
	}
	if got := res["I(Vdd)"][0]; math.Abs(got-ir) > 1e-4*ir+1e-10 {
		t.Fatalf("supply current %g, load current %g", got, ir)
	}
}

func TestOperatingPointWithoutLimiting(t *testing.T) {
	ckt, _ := build(t, commonSource)
	opts := DefaultOptions()
	opts.VoltageLimiting = false
	op := NewOP(opts, logger.Discard())
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := op.Execute(); err != nil {
		t.Fatal(err)
	}
	if vd := op.GetResults()["V(d)"][0]; vd <= 0 || vd >= 1.8 {
		t.Fatalf("V(d) = %g", vd)
	}
}

func TestOperatingPointInternalNodes(t *testing.T) {
	deck := `* resistive nmos
.model n1 nmos rdsmod=1 rgatemod=1 rbodymod=1 trnqsmod=1 rshg=10
Vdd d 0 1.2
Vg g 0 1.0
M1 d g 0 0 n1 L=180n W=1u
.op
`
	ckt, _ := build(t, deck)
	if len(ckt.GetInternalMap()) == 0 {
		t.Fatal("no internal unknowns allocated")
	}
	op := NewOP(DefaultOptions(), logger.Discard())
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := op.Execute(); err != nil {
		t.Fatal(err)
	}
	res := op.GetResults()
	id := res["Id(M1)"][0]
	if id <= 0 {
		t.Fatalf("Id = %g, want positive", id)
	}
	if supply := res["I(Vdd)"][0]; math.Abs(supply-id) > 1e-3*id {
		t.Fatalf("supply %g, device %g", supply, id)
	}
}

func TestDCSweepOutputCurves(t *testing.T) {
	ckt, _ := build(t, commonSource)
	dc, err := NewDCSweep([]string{"Vg", "Vdd"}, []float64{0, 0.6}, []float64{1.2, 1.8}, []float64{0.1, 0.6}, DefaultOptions(), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := dc.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := dc.Execute(); err != nil {
		t.Fatal(err)
	}

	res := dc.GetResults()
	sweep, outer, id := res["SWEEP1"], res["SWEEP2"], res["Id(M1)"]
	if len(sweep) != 13*3 || len(outer) != len(sweep) || len(id) != len(sweep) {
		t.Fatalf("%d points, want 39", len(sweep))
	}
	for k := 1; k < len(sweep); k++ {
		if outer[k] != outer[k-1] {
			continue
		}
		if id[k] < id[k-1] {
			t.Fatalf("Id fell from %g to %g as Vg rose to %g", id[k-1], id[k], sweep[k])
		}
	}
	if math.Abs(sweep[12]-1.2) > 1e-12 {
		t.Fatalf("last point %g, want 1.2", sweep[12])
	}

	for _, dev := range ckt.GetDevices() {
		if dev.GetName() == "Vg" && dev.(interface{ GetValue() float64 }).GetValue() != 1.0 {
			t.Fatal("sweep source not restored")
		}
	}
}

func TestDCSweepErrors(t *testing.T) {
	if _, err := NewDCSweep(nil, nil, nil, nil, DefaultOptions(), nil); err == nil {
		t.Fatal("expected an error without sources")
	}
	if _, err := NewDCSweep([]string{"V1"}, []float64{0}, []float64{1}, []float64{-0.1}, DefaultOptions(), nil); err == nil {
		t.Fatal("expected an error for a backwards increment")
	}

	ckt, _ := build(t, commonSource)
	dc, err := NewDCSweep([]string{"Vx"}, []float64{0}, []float64{1}, []float64{0.5}, DefaultOptions(), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := dc.Setup(ckt); err == nil {
		t.Fatal("expected an error for a missing source")
	}
}

func TestOptionsFrom(t *testing.T) {
	o := OptionsFrom(map[string]float64{"itl1": 50, "reltol": 1e-4, "nolimit": 1, "gmin": 1e-10})
	if o.MaxIter != 50 || o.Reltol != 1e-4 || o.VoltageLimiting || o.Gmin != 1e-10 {
		t.Fatalf("options = %+v", o)
	}
	if d := DefaultOptions(); !d.VoltageLimiting || d.MaxIter != 100 {
		t.Fatalf("defaults = %+v", d)
	}
}

func TestOperatingPointSourceCurrentExact(t *testing.T) {
	deck := `* divider
V1 a 0 2
R1 a b 1k
R2 b 0 1k
.op
`
	for _, gmin := range []float64{1e-12, 1e-3} {
		ckt, _ := build(t, deck)
		opts := DefaultOptions()
		opts.Gmin = gmin
		op := NewOP(opts, logger.Discard())
		if err := op.Setup(ckt); err != nil {
			t.Fatal(err)
		}
		if err := op.Execute(); err != nil {
			t.Fatal(err)
		}
		res := op.GetResults()
		if v := res["V(a)"][0]; math.Abs(v-2) > 1e-12 {
			t.Errorf("gmin %g: V(a) = %.15g, the source row must hold 2", gmin, v)
		}
		// Only the node shunts load the source.
		vb := res["V(b)"][0]
		want := vb*(1/1000.0+gmin) + 2*gmin
		if got := res["I(V1)"][0]; math.Abs(got-want) > 1e-12 {
			t.Errorf("gmin %g: I(V1) = %.15g, want %.15g", gmin, got, want)
		}
	}
}

func TestGminSchedule(t *testing.T) {
	tests := []struct {
		final float64
		steps int
		want  int
	}{
		{1e-12, 10, 10},
		{1e-12, 3, 3},
		{1e-12, 0, 1},
		{1e-2, 10, 1},
	}
	for _, tt := range tests {
		s := gminSchedule(tt.final, tt.steps)
		if len(s) != tt.want || s[0] != gminStart {
			t.Fatalf("gminSchedule(%g, %d) = %v", tt.final, tt.steps, s)
		}
		for k := 1; k < len(s); k++ {
			if s[k] >= s[k-1] || s[k] <= tt.final {
				t.Fatalf("gminSchedule(%g, %d) not falling towards the final value: %v", tt.final, tt.steps, s)
			}
		}
	}
}
