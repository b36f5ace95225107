package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/edp1096/toy-bsim4/internal/consts"
	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/device/bsim4"
	"github.com/edp1096/toy-bsim4/pkg/diag"
	"github.com/edp1096/toy-bsim4/pkg/util"
	"gopkg.in/yaml.v3"
)

// Value is a number that may carry a SPICE scale suffix in the file,
// e.g. "180n" or "1.2k".
type Value float64

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number, got a %s", node.Line, kindName(node.Kind))
	}
	f, err := util.ParseValue(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = Value(f)
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	}
	return "node"
}

// Bench describes one transistor under test: its model card, instance,
// temperature and the biases to evaluate.
type Bench struct {
	Model    Model    `yaml:"model"`
	Instance Instance `yaml:"instance"`

	// Temp is in Celsius. Unset means the nominal 27C.
	Temp *Value `yaml:"temp"`

	Limiter Limiter `yaml:"limiter"`
	Bias    []Bias  `yaml:"bias"`
	Sweep   *Sweep  `yaml:"sweep"`
}

type Model struct {
	Name   string           `yaml:"name"`
	Type   string           `yaml:"type"`
	Params map[string]Value `yaml:"params"`
}

// Instance mirrors the values of an M line. Pointers tell "not set" from
// zero so unset fields keep the instance defaults.
type Instance struct {
	Name  string `yaml:"name"`
	L     *Value `yaml:"l"`
	W     *Value `yaml:"w"`
	NF    *Value `yaml:"nf"`
	M     *Value `yaml:"m"`
	NGCON *Value `yaml:"ngcon"`

	AS  *Value `yaml:"as"`
	AD  *Value `yaml:"ad"`
	PS  *Value `yaml:"ps"`
	PD  *Value `yaml:"pd"`
	NRS *Value `yaml:"nrs"`
	NRD *Value `yaml:"nrd"`
	SA  *Value `yaml:"sa"`
	SB  *Value `yaml:"sb"`
	SD  *Value `yaml:"sd"`
	SCA *Value `yaml:"sca"`
	SCB *Value `yaml:"scb"`
	SCC *Value `yaml:"scc"`
	SC  *Value `yaml:"sc"`

	IC *IC `yaml:"ic"`
}

type IC struct {
	VDS *Value `yaml:"vds"`
	VGS *Value `yaml:"vgs"`
	VBS *Value `yaml:"vbs"`
}

// Limiter selects the Newton limiter behavior of a bench evaluation.
type Limiter struct {
	Enabled      *bool `yaml:"enabled"`
	InitJunction bool  `yaml:"init_junction"`
	UseIC        bool  `yaml:"use_ic"`
}

// Bias is one set of terminal voltages.
type Bias struct {
	Vd Value `yaml:"vd" json:"vd"`
	Vg Value `yaml:"vg" json:"vg"`
	Vs Value `yaml:"vs" json:"vs"`
	Vb Value `yaml:"vb" json:"vb"`
}

// Sweep steps one terminal of Bias[0] from Start to Stop.
type Sweep struct {
	Terminal string `yaml:"terminal"`
	Start    Value  `yaml:"start"`
	Stop     Value  `yaml:"stop"`
	Step     Value  `yaml:"step"`
}

var ErrInvalid = errors.New("invalid bench")

func Load(path string) (*Bench, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func Parse(data []byte) (*Bench, error) {
	var b Bench
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bench) validate() error {
	switch strings.ToLower(b.Model.Type) {
	case "nmos", "pmos":
	default:
		return fmt.Errorf("%w: model type %q is not nmos or pmos", ErrInvalid, b.Model.Type)
	}
	if b.Model.Name == "" {
		b.Model.Name = strings.ToLower(b.Model.Type)
	}
	if b.Instance.Name == "" {
		b.Instance.Name = "M1"
	}
	if s := b.Sweep; s != nil {
		if _, err := Terminal(s.Terminal); err != nil {
			return err
		}
		if s.Step == 0 || (s.Stop-s.Start)*s.Step < 0 {
			return fmt.Errorf("%w: sweep step %g does not reach %g from %g", ErrInvalid, s.Step, s.Stop, s.Start)
		}
	}
	return nil
}

// Terminal maps a terminal name to its index in d, g, s, b order.
func Terminal(name string) (int, error) {
	switch strings.ToLower(name) {
	case "d", "vd":
		return 0, nil
	case "g", "vg":
		return 1, nil
	case "s", "vs":
		return 2, nil
	case "b", "vb":
		return 3, nil
	}
	return 0, fmt.Errorf("%w: unknown terminal %q", ErrInvalid, name)
}

// BuildModel creates the model card and runs its setup.
func (b *Bench) BuildModel(rep diag.Reporter) (*bsim4.Model, error) {
	m, err := bsim4.NewModel(b.Model.Name, strings.ToLower(b.Model.Type))
	if err != nil {
		return nil, err
	}
	params := make(map[string]float64, len(b.Model.Params))
	for k, v := range b.Model.Params {
		k = strings.ToLower(k)
		if k == "level" || k == "version" {
			continue
		}
		params[k] = float64(v)
	}
	if err := m.SetModelParameters(params); err != nil {
		return nil, fmt.Errorf("model %s: %w", b.Model.Name, err)
	}
	if err := m.Setup(rep); err != nil {
		return nil, fmt.Errorf("model %s: %w", b.Model.Name, err)
	}
	return m, nil
}

func (b *Bench) InstanceParams() bsim4.InstanceParams {
	p := bsim4.DefaultInstanceParams()
	in := &b.Instance
	set := func(dst *float64, v *Value) {
		if v != nil {
			*dst = float64(*v)
		}
	}
	set(&p.L, in.L)
	set(&p.W, in.W)
	set(&p.NF, in.NF)
	set(&p.M, in.M)
	set(&p.NGCON, in.NGCON)
	set(&p.AS, in.AS)
	set(&p.AD, in.AD)
	set(&p.PS, in.PS)
	set(&p.PD, in.PD)
	set(&p.NRS, in.NRS)
	set(&p.NRD, in.NRD)
	set(&p.SA, in.SA)
	set(&p.SB, in.SB)
	set(&p.SD, in.SD)
	set(&p.SCA, in.SCA)
	set(&p.SCB, in.SCB)
	set(&p.SCC, in.SCC)
	set(&p.SC, in.SC)

	if ic := in.IC; ic != nil {
		if ic.VDS != nil {
			p.ICVDS, p.ICGiven = float64(*ic.VDS), p.ICGiven|bsim4.ICVDS
		}
		if ic.VGS != nil {
			p.ICVGS, p.ICGiven = float64(*ic.VGS), p.ICGiven|bsim4.ICVGS
		}
		if ic.VBS != nil {
			p.ICVBS, p.ICGiven = float64(*ic.VBS), p.ICGiven|bsim4.ICVBS
		}
	}
	return p
}

// NewInstance builds the model and the instance in one step.
func (b *Bench) NewInstance(rep diag.Reporter) (*bsim4.Instance, error) {
	m, err := b.BuildModel(rep)
	if err != nil {
		return nil, err
	}
	return bsim4.NewInstance(b.Instance.Name, []string{"d", "g", "s", "b"}, m, b.InstanceParams(), rep)
}

func (b *Bench) TempK() float64 {
	if b.Temp == nil {
		return consts.TNOM
	}
	return float64(*b.Temp) + consts.KELVIN
}

// Status is the circuit status of a single bench evaluation.
func (b *Bench) Status() *device.CircuitStatus {
	limiting := true
	if b.Limiter.Enabled != nil {
		limiting = *b.Limiter.Enabled
	}
	return &device.CircuitStatus{
		Mode:            device.OperatingPointAnalysis,
		Temp:            b.TempK(),
		InitJunction:    b.Limiter.InitJunction,
		VoltageLimiting: limiting,
		UseIC:           b.Limiter.UseIC,
	}
}

// Points expands the sweep into the bias list it visits. Without a
// sweep it returns Bias unchanged.
func (b *Bench) Points() ([]Bias, []float64) {
	base := Bias{}
	if len(b.Bias) > 0 {
		base = b.Bias[0]
	}
	s := b.Sweep
	if s == nil {
		return b.Bias, nil
	}
	idx, _ := Terminal(s.Terminal)
	n := int((float64(s.Stop-s.Start))/float64(s.Step)+1e-9) + 1

	points := make([]Bias, n)
	values := make([]float64, n)
	for k := range points {
		v := float64(s.Start) + float64(k)*float64(s.Step)
		p := base
		*p.terminal(idx) = Value(v)
		points[k], values[k] = p, v
	}
	return points, values
}

func (p *Bias) terminal(idx int) *Value {
	return [...]*Value{&p.Vd, &p.Vg, &p.Vs, &p.Vb}[idx]
}

// Voltages returns the terminal voltages in d, g, s, b order.
func (p Bias) Voltages() (vd, vg, vs, vb float64) {
	return float64(p.Vd), float64(p.Vg), float64(p.Vs), float64(p.Vb)
}
