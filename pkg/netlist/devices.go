package netlist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/device/bsim4"
	"github.com/edp1096/toy-bsim4/pkg/diag"
	"github.com/edp1096/toy-bsim4/pkg/util"
)

// BuildModels turns every model card into a BSIM4 model. Instances that
// name the same card share one model and its geometry cache.
func BuildModels(cards map[string]device.ModelParam, rep diag.Reporter) (map[string]*bsim4.Model, error) {
	names := make([]string, 0, len(cards))
	for name := range cards {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make(map[string]*bsim4.Model, len(cards))
	for _, name := range names {
		card := cards[name]
		m, err := bsim4.NewModel(card.Name, strings.ToLower(card.Type))
		if err != nil {
			return nil, err
		}
		if err := m.SetModelParameters(card.Params); err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		if err := m.Setup(rep); err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		models[name] = m
	}
	return models, nil
}

func CreateDevice(elem Element, models map[string]*bsim4.Model, rep diag.Reporter) (device.Device, error) {
	switch elem.Type {
	case "R":
		return device.NewResistor(elem.Name, elem.Nodes, elem.Value), nil

	case "V":
		return device.NewDCVoltageSource(elem.Name, elem.Nodes, elem.Value), nil

	case "M":
		model, ok := models[elem.Params["model"]]
		if !ok {
			return nil, fmt.Errorf("undefined model for mosfet %s: %s", elem.Name, elem.Params["model"])
		}
		p, err := InstanceParams(elem.Params)
		if err != nil {
			return nil, fmt.Errorf("mosfet %s: %w", elem.Name, err)
		}
		inst, err := bsim4.NewInstance(elem.Name, elem.Nodes, model, p, rep)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
	return nil, fmt.Errorf("unsupported device type: %s", elem.Type)
}

// InstanceParams reads the name=value pairs of an M line. Anything not
// given keeps its default.
func InstanceParams(params map[string]string) (bsim4.InstanceParams, error) {
	p := bsim4.DefaultInstanceParams()
	fields := map[string]*float64{
		"l": &p.L, "w": &p.W, "nf": &p.NF, "m": &p.M, "ngcon": &p.NGCON,
		"as": &p.AS, "ad": &p.AD, "ps": &p.PS, "pd": &p.PD,
		"nrs": &p.NRS, "nrd": &p.NRD,
		"sa": &p.SA, "sb": &p.SB, "sd": &p.SD,
		"sca": &p.SCA, "scb": &p.SCB, "scc": &p.SCC, "sc": &p.SC,
	}

	for name, raw := range params {
		switch name {
		case "model":
			continue
		case "ic":
			if err := parseIC(&p, raw); err != nil {
				return p, err
			}
			continue
		}
		dst, ok := fields[name]
		if !ok {
			return p, fmt.Errorf("unknown instance parameter %q", name)
		}
		v, err := util.ParseValue(raw)
		if err != nil {
			return p, fmt.Errorf("%s: %w", name, err)
		}
		*dst = v
	}
	return p, nil
}

// parseIC reads IC=vds[,vgs[,vbs]].
func parseIC(p *bsim4.InstanceParams, raw string) error {
	parts := strings.Split(raw, ",")
	if len(parts) > 3 {
		return fmt.Errorf("ic takes at most three values, got %d", len(parts))
	}
	targets := []*float64{&p.ICVDS, &p.ICVGS, &p.ICVBS}
	bits := []bsim4.ICBranch{bsim4.ICVDS, bsim4.ICVGS, bsim4.ICVBS}
	for k, s := range parts {
		if strings.TrimSpace(s) == "" {
			continue
		}
		v, err := util.ParseValue(s)
		if err != nil {
			return fmt.Errorf("ic: %w", err)
		}
		*targets[k] = v
		p.ICGiven |= bits[k]
	}
	return nil
}
