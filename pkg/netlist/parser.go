// Package netlist parses SPICE-style decks: element cards, .model cards,
// .options, and analysis statements.
package netlist

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisTRAN
	AnalysisAC
	AnalysisDC
	AnalysisNoise
)

type Model struct {
	Type   string // D, NPN, PNP, NMOS, PMOS, SW, CSW
	Name   string
	Params map[string]float64
}

type Element struct {
	Type    string // part kind letter (R, L, C, V, ...)
	Name    string
	Nodes   []string
	Value   float64
	Params  map[string]float64
	Model   string
	Control string   // controlling source for W/F/H elements
	Source  []string // raw waveform/source tokens for V/I elements
}

type Deck struct {
	Title    string
	Elements []Element
	Models   map[string]Model
	Options  map[string]float64
	ICs      map[string]float64 // node name -> initial voltage
	Analysis AnalysisType
	HasAnalysis bool

	Tran struct {
		TStep  float64
		TStop  float64
		TStart float64
		TMax   float64
		UIC    bool
	}
	AC struct {
		Sweep  string // DEC, OCT, LIN
		Points int
		FStart float64
		FStop  float64
	}
	DC struct {
		Source1    string
		Start1     float64
		Stop1      float64
		Increment1 float64
		Source2    string
		Start2     float64
		Stop2      float64
		Increment2 float64
	}
	Noise struct {
		Output string // output node name
		Input  string // input source name
		Sweep  string
		Points int
		FStart float64
		FStop  float64
	}
}

var unitMap = map[string]float64{
	"t":   1e12,
	"g":   1e9,
	"meg": 1e6,
	"k":   1e3,
	"m":   1e-3,
	"u":   1e-6,
	"n":   1e-9,
	"p":   1e-12,
	"f":   1e-15,
}

var valueRe = regexp.MustCompile(`^([+-]?[0-9]*\.?[0-9]+(?:[eE][+-]?[0-9]+)?)(meg|[tgkmunpf])?.*$`)

// ParseValue converts a SPICE number with an optional unit suffix.
func ParseValue(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	matches := valueRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, errors.Errorf("invalid value %q", s)
	}
	v, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing value %q", s)
	}
	if matches[2] != "" {
		v *= unitMap[matches[2]]
	}
	return v, nil
}

// joinContinuations folds "+" continuation lines into their card.
func joinContinuations(lines []string) []string {
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "*") {
			continue
		}
		if idx := strings.Index(trimmed, ";"); idx >= 0 {
			trimmed = strings.TrimSpace(trimmed[:idx])
			if trimmed == "" {
				continue
			}
		}
		if strings.HasPrefix(trimmed, "+") && len(out) > 0 {
			out[len(out)-1] += " " + strings.TrimSpace(trimmed[1:])
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// Parse reads a netlist deck. The first line is the title.
func Parse(input string) (*Deck, error) {
	deck := &Deck{
		Models:  make(map[string]Model),
		Options: make(map[string]float64),
		ICs:     make(map[string]float64),
	}

	var raw []string
	scanner := bufio.NewScanner(strings.NewReader(input))
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			deck.Title = strings.TrimSpace(line)
			first = false
			continue
		}
		raw = append(raw, line)
	}

	for _, line := range joinContinuations(raw) {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, ".end"):
			return deck, nil
		case strings.HasPrefix(lower, "."):
			if err := deck.parseDirective(line); err != nil {
				return nil, err
			}
		default:
			if err := deck.parseElement(line); err != nil {
				return nil, err
			}
		}
	}

	return deck, nil
}

func (d *Deck) parseDirective(line string) error {
	fields := strings.Fields(line)
	card := strings.ToLower(fields[0])

	switch card {
	case ".model":
		return d.parseModel(fields)
	case ".options", ".option":
		return d.parseOptions(fields[1:])
	case ".op":
		d.Analysis = AnalysisOP
		d.HasAnalysis = true
	case ".tran":
		return d.parseTran(fields[1:])
	case ".ac":
		return d.parseAC(fields[1:])
	case ".dc":
		return d.parseDC(fields[1:])
	case ".noise":
		return d.parseNoise(fields[1:])
	case ".ic":
		return d.parseIC(fields[1:])
	default:
		return errors.Errorf("unknown directive %s", fields[0])
	}
	return nil
}

var paramRe = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9]*)\s*=\s*([^\s()]+)`)

func (d *Deck) parseModel(fields []string) error {
	if len(fields) < 3 {
		return errors.New(".model: missing name or type")
	}
	name := strings.ToLower(fields[1])
	rest := strings.Join(fields[2:], " ")

	mtype := fields[2]
	if idx := strings.IndexAny(mtype, "( "); idx >= 0 {
		mtype = mtype[:idx]
	}

	model := Model{
		Type:   strings.ToUpper(mtype),
		Name:   name,
		Params: make(map[string]float64),
	}
	for _, m := range paramRe.FindAllStringSubmatch(rest, -1) {
		v, err := ParseValue(m[2])
		if err != nil {
			return errors.Wrapf(err, ".model %s: parameter %s", name, m[1])
		}
		model.Params[strings.ToLower(m[1])] = v
	}
	d.Models[name] = model
	return nil
}

func (d *Deck) parseOptions(fields []string) error {
	for _, f := range fields {
		parts := strings.SplitN(f, "=", 2)
		name := strings.ToLower(parts[0])
		val := 1.0
		if len(parts) == 2 {
			v, err := ParseValue(parts[1])
			if err != nil {
				return errors.Wrapf(err, ".options %s", name)
			}
			val = v
		}
		d.Options[name] = val
	}
	return nil
}

func (d *Deck) parseTran(fields []string) error {
	if len(fields) < 2 {
		return errors.New(".tran: needs tstep and tstop")
	}
	vals := make([]float64, 0, 4)
	for _, f := range fields {
		if strings.EqualFold(f, "uic") {
			d.Tran.UIC = true
			continue
		}
		v, err := ParseValue(f)
		if err != nil {
			return errors.Wrap(err, ".tran")
		}
		vals = append(vals, v)
	}
	d.Tran.TStep = vals[0]
	d.Tran.TStop = vals[1]
	if len(vals) > 2 {
		d.Tran.TStart = vals[2]
	}
	if len(vals) > 3 {
		d.Tran.TMax = vals[3]
	}
	d.Analysis = AnalysisTRAN
	d.HasAnalysis = true
	return nil
}

func (d *Deck) parseAC(fields []string) error {
	if len(fields) < 4 {
		return errors.New(".ac: needs sweep type, points, fstart, fstop")
	}
	d.AC.Sweep = strings.ToUpper(fields[0])
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return errors.Wrap(err, ".ac points")
	}
	d.AC.Points = n
	if d.AC.FStart, err = ParseValue(fields[2]); err != nil {
		return errors.Wrap(err, ".ac fstart")
	}
	if d.AC.FStop, err = ParseValue(fields[3]); err != nil {
		return errors.Wrap(err, ".ac fstop")
	}
	d.Analysis = AnalysisAC
	d.HasAnalysis = true
	return nil
}

func (d *Deck) parseDC(fields []string) error {
	if len(fields) < 4 {
		return errors.New(".dc: needs source, start, stop, increment")
	}
	var err error
	d.DC.Source1 = fields[0]
	if d.DC.Start1, err = ParseValue(fields[1]); err != nil {
		return errors.Wrap(err, ".dc start")
	}
	if d.DC.Stop1, err = ParseValue(fields[2]); err != nil {
		return errors.Wrap(err, ".dc stop")
	}
	if d.DC.Increment1, err = ParseValue(fields[3]); err != nil {
		return errors.Wrap(err, ".dc increment")
	}
	if len(fields) >= 8 {
		d.DC.Source2 = fields[4]
		if d.DC.Start2, err = ParseValue(fields[5]); err != nil {
			return errors.Wrap(err, ".dc start2")
		}
		if d.DC.Stop2, err = ParseValue(fields[6]); err != nil {
			return errors.Wrap(err, ".dc stop2")
		}
		if d.DC.Increment2, err = ParseValue(fields[7]); err != nil {
			return errors.Wrap(err, ".dc increment2")
		}
	}
	d.Analysis = AnalysisDC
	d.HasAnalysis = true
	return nil
}

func (d *Deck) parseNoise(fields []string) error {
	// .noise v(out) vin dec nd fstart fstop
	if len(fields) < 6 {
		return errors.New(".noise: needs output, input, sweep, points, fstart, fstop")
	}
	out := fields[0]
	out = strings.TrimPrefix(strings.ToLower(out), "v(")
	out = strings.TrimSuffix(out, ")")
	d.Noise.Output = out
	d.Noise.Input = fields[1]
	d.Noise.Sweep = strings.ToUpper(fields[2])
	n, err := strconv.Atoi(fields[3])
	if err != nil {
		return errors.Wrap(err, ".noise points")
	}
	d.Noise.Points = n
	if d.Noise.FStart, err = ParseValue(fields[4]); err != nil {
		return errors.Wrap(err, ".noise fstart")
	}
	if d.Noise.FStop, err = ParseValue(fields[5]); err != nil {
		return errors.Wrap(err, ".noise fstop")
	}
	d.Analysis = AnalysisNoise
	d.HasAnalysis = true
	return nil
}

func (d *Deck) parseIC(fields []string) error {
	for _, f := range fields {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 {
			return errors.Errorf(".ic: malformed entry %q", f)
		}
		name := strings.ToLower(parts[0])
		name = strings.TrimPrefix(name, "v(")
		name = strings.TrimSuffix(name, ")")
		v, err := ParseValue(parts[1])
		if err != nil {
			return errors.Wrapf(err, ".ic %s", name)
		}
		d.ICs[name] = v
	}
	return nil
}

// pinCounts gives the node count per element kind letter.
var pinCounts = map[string]int{
	"R": 2, "C": 2, "L": 2, "V": 2, "I": 2, "D": 2,
	"Q": 3, "M": 4, "S": 4, "W": 2,
	"E": 4, "G": 4, "F": 2, "H": 2,
}

func (d *Deck) parseElement(line string) error {
	fields := strings.Fields(line)
	name := fields[0]
	kind := strings.ToUpper(name[:1])

	if kind == "K" {
		return d.parseCoupling(fields)
	}

	nPins, ok := pinCounts[kind]
	if !ok {
		return errors.Errorf("unknown element kind %q in %q", kind, line)
	}
	if len(fields) < 1+nPins {
		return errors.Errorf("%s: not enough nodes", name)
	}

	elem := Element{
		Type:   kind,
		Name:   name,
		Nodes:  fields[1 : 1+nPins],
		Params: make(map[string]float64),
	}
	rest := fields[1+nPins:]

	switch kind {
	case "V", "I":
		elem.Source = rest
		if v, ok := dcValueOf(rest); ok {
			elem.Value = v
		}
	case "W", "F", "H":
		// Controlling source name then value (for F/H).
		if len(rest) > 0 {
			elem.Control = rest[0]
			rest = rest[1:]
		}
		for _, f := range rest {
			if strings.Contains(f, "=") {
				continue
			}
			if v, err := ParseValue(f); err == nil {
				elem.Value = v
				break
			}
			elem.Model = strings.ToLower(f)
		}
	case "D", "Q", "M", "S":
		// Model name, then optional value-ish parameters.
		if len(rest) > 0 {
			elem.Model = strings.ToLower(rest[0])
			rest = rest[1:]
		}
		for _, m := range paramRe.FindAllStringSubmatch(strings.Join(rest, " "), -1) {
			v, err := ParseValue(m[2])
			if err != nil {
				return errors.Wrapf(err, "%s: parameter %s", name, m[1])
			}
			elem.Params[strings.ToLower(m[1])] = v
		}
	default:
		// Principal positional value, then name=value parameters.
		for _, f := range rest {
			if strings.Contains(f, "=") {
				parts := strings.SplitN(f, "=", 2)
				v, err := ParseValue(parts[1])
				if err != nil {
					return errors.Wrapf(err, "%s: parameter %s", name, parts[0])
				}
				elem.Params[strings.ToLower(parts[0])] = v
				continue
			}
			v, err := ParseValue(f)
			if err != nil {
				return errors.Wrapf(err, "%s: value", name)
			}
			elem.Value = v
		}
	}

	d.Elements = append(d.Elements, elem)
	return nil
}

// parseCoupling handles K elements: Kxx L1 L2 k.
func (d *Deck) parseCoupling(fields []string) error {
	if len(fields) < 4 {
		return errors.Errorf("%s: coupling needs two inductors and k", fields[0])
	}
	k, err := ParseValue(fields[3])
	if err != nil {
		return errors.Wrapf(err, "%s: coupling coefficient", fields[0])
	}
	d.Elements = append(d.Elements, Element{
		Type:   "K",
		Name:   fields[0],
		Nodes:  []string{fields[1], fields[2]}, // inductor names, not circuit nodes
		Value:  k,
		Params: make(map[string]float64),
	})
	return nil
}

// dcValueOf extracts the DC level from source tokens.
func dcValueOf(tokens []string) (float64, bool) {
	if len(tokens) == 0 {
		return 0, false
	}
	for i, t := range tokens {
		if strings.EqualFold(t, "dc") && i+1 < len(tokens) {
			if v, err := ParseValue(tokens[i+1]); err == nil {
				return v, true
			}
		}
	}
	if v, err := ParseValue(tokens[0]); err == nil {
		return v, true
	}
	return 0, false
}
