package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/util"
)

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisDC
)

func (a AnalysisType) String() string {
	if a == AnalysisDC {
		return "dc"
	}
	return "op"
}

type NetlistData struct {
	Elements []Element                    // Circuit elements
	Nodes    map[string]int               // Node name and index
	Models   map[string]device.ModelParam // Model cards by lower-case name
	Analysis AnalysisType                 // Analysis type
	DCParam  struct {
		Source1    string
		Start1     float64
		Stop1      float64
		Increment1 float64
		Source2    string
		Start2     float64
		Stop2      float64
		Increment2 float64
	}
	Temp      float64            // Circuit temperature (C)
	TempGiven bool               // .temp present
	Options   map[string]float64 // .options values, flags stored as 1
	Title     string             // Circuit title
}

type Element struct {
	Type   string            // Part type (R, V, M)
	Name   string            // Part name
	Nodes  []string          // Node names
	Value  float64           // Part value
	Params map[string]string // Parameter values, lower-case keys
}

var (
	spaces     = regexp.MustCompile(`\s+`)
	assignment = regexp.MustCompile(`\s*=\s*`)
)

func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	netlistData := &NetlistData{
		Nodes:   make(map[string]int),
		Models:  make(map[string]device.ModelParam),
		Temp:    27,
		Options: make(map[string]float64),
	}

	// Title line
	if scanner.Scan() {
		netlistData.Title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var currentLine string
	lineNo, start := 1, 0
	flush := func() error {
		if currentLine == "" {
			return nil
		}
		line := currentLine
		currentLine = ""
		if err := parseLine(netlistData, line); err != nil {
			return fmt.Errorf("line %d: %w", start, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Inline comments
		if idx := strings.IndexAny(line, ";$"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}

		if strings.HasPrefix(line, "+") {
			currentLine += " " + strings.TrimSpace(line[1:])
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		if strings.EqualFold(line, ".end") {
			break
		}
		currentLine, start = line, lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading netlist: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return netlistData, nil
}

func parseLine(netlistData *NetlistData, line string) error {
	line = spaces.ReplaceAllString(line, " ")
	line = assignment.ReplaceAllString(line, "=")

	if strings.HasPrefix(line, ".") {
		return parseDotOperator(netlistData, line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}

	netlistData.Elements = append(netlistData.Elements, *element)
	for _, node := range element.Nodes {
		if _, exists := netlistData.Nodes[node]; !exists {
			netlistData.Nodes[node] = len(netlistData.Nodes)
		}
	}
	return nil
}

// Parse .op, .dc, .temp, .options, .model
func parseDotOperator(netlistData *NetlistData, line string) error {
	var err error

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".model":
		return parseModel(netlistData, fields[1:])

	case ".op":
		netlistData.Analysis = AnalysisOP

	case ".dc":
		netlistData.Analysis = AnalysisDC
		if len(fields) != 5 && len(fields) != 9 {
			return fmt.Errorf("insufficient DC sweep parameters")
		}
		p := &netlistData.DCParam
		p.Source1 = fields[1]
		if p.Start1, p.Stop1, p.Increment1, err = parseSweep(fields[2:5]); err != nil {
			return err
		}
		if len(fields) == 9 {
			p.Source2 = fields[5]
			if p.Start2, p.Stop2, p.Increment2, err = parseSweep(fields[6:9]); err != nil {
				return err
			}
		}

	case ".temp":
		if len(fields) < 2 {
			return fmt.Errorf("missing temperature")
		}
		netlistData.Temp, err = util.ParseValue(fields[1])
		if err != nil {
			return fmt.Errorf("invalid temperature: %w", err)
		}
		netlistData.TempGiven = true

	case ".options", ".option":
		for _, word := range fields[1:] {
			name, value, found := strings.Cut(word, "=")
			name = strings.ToLower(name)
			if !found {
				netlistData.Options[name] = 1
				continue
			}
			v, err := util.ParseValue(value)
			if err != nil {
				return fmt.Errorf("invalid option %s: %w", word, err)
			}
			netlistData.Options[name] = v
		}

	default:
		return fmt.Errorf("unsupported control line: %s", fields[0])
	}

	return nil
}

func parseSweep(words []string) (start, stop, incr float64, err error) {
	if start, err = util.ParseValue(words[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start value: %w", err)
	}
	if stop, err = util.ParseValue(words[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid stop value: %w", err)
	}
	if incr, err = util.ParseValue(words[2]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid increment value: %w", err)
	}
	if incr == 0 || (stop-start)/incr < 0 {
		return 0, 0, 0, fmt.Errorf("increment %g does not reach %g from %g", incr, stop, start)
	}
	return start, stop, incr, nil
}

// parseModel reads ".model name nmos (level=54 k=v ...)". Parentheses are
// optional.
func parseModel(netlistData *NetlistData, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("insufficient model parameters")
	}

	modelName := strings.ToLower(fields[0])
	rest := strings.Join(fields[1:], " ")
	rest = strings.NewReplacer("(", " ", ")", " ").Replace(rest)
	words := strings.Fields(rest)

	modelType := strings.ToUpper(words[0])
	if modelType != "NMOS" && modelType != "PMOS" {
		return fmt.Errorf("unsupported model type: %s", words[0])
	}

	params := make(map[string]float64)
	for _, pair := range words[1:] {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("model %s: expected name=value, got %q", modelName, pair)
		}
		v, err := util.ParseValue(value)
		if err != nil {
			return fmt.Errorf("invalid parameter value %s: %w", pair, err)
		}
		params[strings.ToLower(name)] = v
	}

	// level and version select the model; they are not card parameters.
	if level, ok := params["level"]; ok && level != 14 && level != 54 {
		return fmt.Errorf("model %s: level %g is not a BSIM4 level", modelName, level)
	}
	delete(params, "level")
	delete(params, "version")

	netlistData.Models[modelName] = device.ModelParam{
		Type:   modelType,
		Name:   modelName,
		Params: params,
	}
	return nil
}

// Parse circuit element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("invalid element format: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(string(fields[0][0])),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "V":
		return parseVoltageSource(fields)

	case "M":
		return parseMosfet(fields)

	case "R":
		if len(fields) != 4 {
			return nil, fmt.Errorf("resistor %s: expected two nodes and a value", elem.Name)
		}
		elem.Nodes = fields[1:3]
		value, err := util.ParseValue(fields[3])
		if err != nil {
			return nil, err
		}
		elem.Value = value
		return elem, nil

	default:
		return nil, fmt.Errorf("unsupported element type: %s", elem.Name)
	}
}

func parseVoltageSource(fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("insufficient voltage source parameters")
	}

	elem := &Element{
		Name:   fields[0],
		Type:   "V",
		Nodes:  []string{fields[1], fields[2]},
		Params: map[string]string{"type": "dc"},
	}

	words := fields[3:]
	if strings.EqualFold(words[0], "dc") {
		words = words[1:]
	}
	if len(words) != 1 {
		return nil, fmt.Errorf("voltage source %s: expected a single DC value", elem.Name)
	}
	value, err := util.ParseValue(words[0])
	if err != nil {
		return nil, err
	}
	elem.Value = value
	return elem, nil
}

// parseMosfet reads "Mname d g s b model [name=value ...]".
func parseMosfet(fields []string) (*Element, error) {
	if len(fields) < 6 {
		return nil, fmt.Errorf("mosfet %s: expected four nodes and a model", fields[0])
	}

	elem := &Element{
		Name:   fields[0],
		Type:   "M",
		Nodes:  fields[1:5],
		Params: map[string]string{"model": strings.ToLower(fields[5])},
	}
	for _, pair := range fields[6:] {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("mosfet %s: expected name=value, got %q", elem.Name, pair)
		}
		elem.Params[strings.ToLower(name)] = value
	}
	return elem, nil
}
