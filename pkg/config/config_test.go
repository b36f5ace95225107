package config

import (
	"errors"
	"math"
	"testing"

	"github.com/edp1096/toy-bsim4/pkg/device/bsim4"
	"github.com/edp1096/toy-bsim4/pkg/diag"
)

const bench = `
model:
  name: n1
  type: NMOS
  params:
    level: 54
    vth0: 0.45
    toxe: 2.5n
    u0: 0.04
instance:
  l: 180n
  w: 1u
  nf: 2
  as: 0.5p
  ic:
    vds: 1.2
temp: 85
limiter:
  enabled: false
bias:
  - {vd: 1.2, vg: 0.9}
sweep:
  terminal: g
  start: 0
  stop: 1.2
  step: 100m
`

func TestParseBench(t *testing.T) {
	t.Parallel()
	b, err := Parse([]byte(bench))
	if err != nil {
		t.Fatal(err)
	}
	if float64(b.Model.Params["toxe"]) != 2.5e-9 {
		t.Fatalf("toxe = %g", b.Model.Params["toxe"])
	}
	if math.Abs(b.TempK()-358.15) > 1e-9 {
		t.Fatalf("temp = %g K", b.TempK())
	}

	p := b.InstanceParams()
	if p.L != 180e-9 || p.W != 1e-6 || p.NF != 2 || p.M != 1 {
		t.Fatalf("instance = %+v", p)
	}
	if p.ICGiven != bsim4.ICVDS || p.ICVDS != 1.2 {
		t.Fatalf("ic = %v %g", p.ICGiven, p.ICVDS)
	}

	st := b.Status()
	if st.VoltageLimiting || st.Temp != b.TempK() {
		t.Fatalf("status = %+v", st)
	}

	points, values := b.Points()
	if len(points) != 13 || len(values) != 13 {
		t.Fatalf("%d sweep points, want 13", len(points))
	}
	if vd, vg, _, _ := points[12].Voltages(); vd != 1.2 || math.Abs(vg-1.2) > 1e-12 {
		t.Fatalf("last point vd=%g vg=%g", vd, vg)
	}
}

func TestBenchBuildsInstance(t *testing.T) {
	t.Parallel()
	b, err := Parse([]byte(bench))
	if err != nil {
		t.Fatal(err)
	}
	var c diag.Collector
	inst, err := b.NewInstance(&c)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Model().Type != bsim4.NMOS {
		t.Fatalf("type = %d, want nmos", inst.Model().Type)
	}
	vd, vg, vs, vb := b.Bias[0].Voltages()
	if _, err := inst.Evaluate(vd, vg, vs, vb, b.Status()); err != nil {
		t.Fatal(err)
	}
	op, ok := inst.OperatingPoint()
	if !ok || op.Ids <= 0 {
		t.Fatalf("Ids = %g (ok %t)", op.Ids, ok)
	}
}

func TestParseBenchErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		sentinel bool
	}{
		{"bad type", "model: {type: npn}\n", true},
		{"bad suffix", "model: {type: nmos, params: {vth0: abc}}\n", false},
		{"list value", "model: {type: nmos, params: {vth0: [1, 2]}}\n", false},
		{"bad terminal", "model: {type: nmos}\nsweep: {terminal: x, start: 0, stop: 1, step: 0.1}\n", true},
		{"backwards sweep", "model: {type: nmos}\nsweep: {terminal: d, start: 0, stop: 1, step: -0.1}\n", true},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.input))
		if err == nil {
			t.Errorf("%s: expected an error", tt.name)
			continue
		}
		if tt.sentinel && !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: %v does not wrap ErrInvalid", tt.name, err)
		}
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	b, err := Parse([]byte("model: {type: pmos}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if b.Model.Name != "pmos" || b.Instance.Name != "M1" {
		t.Fatalf("names = %q %q", b.Model.Name, b.Instance.Name)
	}
	if b.TempK() != 300.15 || !b.Status().VoltageLimiting {
		t.Fatalf("defaults: temp %g status %+v", b.TempK(), b.Status())
	}
	if got := b.InstanceParams(); got != bsim4.DefaultInstanceParams() {
		t.Fatalf("instance = %+v", got)
	}
}
