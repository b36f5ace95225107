package netlist

import (
	"math"
	"strings"
	"testing"

	"github.com/edp1096/toy-bsim4/pkg/device/bsim4"
	"github.com/edp1096/toy-bsim4/pkg/diag"
)

const deck = `* nmos output curves
.model n1 nmos (level=54 version=4.8
+ vth0=0.45 toxe=2.5n u0=0.04)
Vd d 0 DC 1.2
Vg g 0 0.9 ; gate drive
R1 d out 1k
M1 out g 0 0 n1 L=180n W=1u NF=2 AS=0.5p IC=1,0.9
.temp 85
.options gmin=1e-12 nolimit
.dc Vd 0 1.8 0.1 Vg 0.3 1.2 0.3
.end
ignored after end
`

func TestParseDeck(t *testing.T) {
	t.Parallel()
	data, err := Parse(deck)
	if err != nil {
		t.Fatal(err)
	}
	if data.Title != "nmos output curves" {
		t.Fatalf("title = %q", data.Title)
	}
	if len(data.Elements) != 4 {
		t.Fatalf("%d elements, want 4", len(data.Elements))
	}
	if data.Analysis != AnalysisDC {
		t.Fatalf("analysis = %s, want dc", data.Analysis)
	}
	dc := data.DCParam
	if dc.Source1 != "Vd" || dc.Stop1 != 1.8 || dc.Source2 != "Vg" || dc.Increment2 != 0.3 {
		t.Fatalf("dc = %+v", dc)
	}
	if !data.TempGiven || data.Temp != 85 {
		t.Fatalf("temp = %g (given %t)", data.Temp, data.TempGiven)
	}
	if data.Options["gmin"] != 1e-12 || data.Options["nolimit"] != 1 {
		t.Fatalf("options = %v", data.Options)
	}

	card, ok := data.Models["n1"]
	if !ok {
		t.Fatal("model card n1 missing")
	}
	if card.Type != "NMOS" {
		t.Fatalf("model type = %s", card.Type)
	}
	if _, ok := card.Params["level"]; ok {
		t.Fatal("level kept as a card parameter")
	}
	if math.Abs(card.Params["toxe"]-2.5e-9) > 1e-21 {
		t.Fatalf("toxe = %g", card.Params["toxe"])
	}

	vg := data.Elements[1]
	if vg.Type != "V" || vg.Value != 0.9 {
		t.Fatalf("Vg = %+v", vg)
	}

	m1 := data.Elements[3]
	if m1.Type != "M" || strings.Join(m1.Nodes, " ") != "out g 0 0" || m1.Params["model"] != "n1" {
		t.Fatalf("M1 = %+v", m1)
	}
	p, err := InstanceParams(m1.Params)
	if err != nil {
		t.Fatal(err)
	}
	if p.L != 180e-9 || p.W != 1e-6 || p.NF != 2 || math.Abs(p.AS-0.5e-12) > 1e-24 {
		t.Fatalf("instance params = %+v", p)
	}
	if p.ICGiven != bsim4.ICVDS|bsim4.ICVGS || p.ICVDS != 1 || p.ICVGS != 0.9 {
		t.Fatalf("ic = %v (%g, %g)", p.ICGiven, p.ICVDS, p.ICVGS)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"unknown element", "t\nL1 a b 1u\n"},
		{"bjt model", "t\n.model q1 npn bf=100\n"},
		{"wrong level", "t\n.model n1 nmos level=8\n"},
		{"short dc", "t\n.dc V1 0 1\n"},
		{"backwards dc", "t\n.dc V1 0 1 -0.1\n"},
		{"mosfet without model", "t\nM1 d g s b\n"},
		{"transient", "t\n.tran 1n 1u\n"},
		{"bad value", "t\nR1 a b abc\n"},
	}
	for _, tt := range tests {
		if _, err := Parse(tt.input); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestCreateDevices(t *testing.T) {
	t.Parallel()
	data, err := Parse(deck)
	if err != nil {
		t.Fatal(err)
	}
	models, err := BuildModels(data.Models, diag.Discard)
	if err != nil {
		t.Fatal(err)
	}

	types := ""
	for _, elem := range data.Elements {
		dev, err := CreateDevice(elem, models, diag.Discard)
		if err != nil {
			t.Fatalf("%s: %v", elem.Name, err)
		}
		types += dev.GetType()
	}
	if types != "VVRM" {
		t.Fatalf("device types = %s", types)
	}

	bad := Element{Type: "M", Name: "M2", Nodes: []string{"d", "g", "s", "b"}, Params: map[string]string{"model": "missing"}}
	if _, err := CreateDevice(bad, models, diag.Discard); err == nil {
		t.Fatal("expected an error for an undefined model")
	}
	bad.Params = map[string]string{"model": "n1", "foo": "1"}
	if _, err := CreateDevice(bad, models, diag.Discard); err == nil {
		t.Fatal("expected an error for an unknown instance parameter")
	}
}

func TestBuildModelsRejectsUnknownParameter(t *testing.T) {
	t.Parallel()
	data, err := Parse("t\n.model n1 nmos vth0=0.4 notaparam=1\n")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildModels(data.Models, diag.Discard); err == nil {
		t.Fatal("expected an error for an unknown model parameter")
	}
}
