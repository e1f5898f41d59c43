package netlist

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/device"
)

var funcRe = regexp.MustCompile(`(?i)^(sin|pulse|pwl)\s*\((.*)\)$`)

// SourceSpec is a decoded independent-source description.
type SourceSpec struct {
	Kind    device.SourceType
	DC      float64
	Args    []float64 // waveform arguments
	ACMag   float64
	ACPhase float64
	HasAC   bool
}

// ParseSource decodes the token tail of a V/I card:
//
//	DC 5 | 5 | SIN(off ampl freq [delay phase]) | PULSE(v1 v2 td tr tf pw per)
//	PWL(t1 v1 t2 v2 ...) | ... AC mag [phase]
func ParseSource(tokens []string) (*SourceSpec, error) {
	spec := &SourceSpec{Kind: device.DC}
	joined := strings.Join(tokens, " ")

	// Pull out a trailing AC specification first.
	if idx := indexFold(tokens, "ac"); idx >= 0 {
		spec.HasAC = true
		spec.ACMag = 1.0
		if idx+1 < len(tokens) {
			if v, err := ParseValue(tokens[idx+1]); err == nil {
				spec.ACMag = v
			}
		}
		if idx+2 < len(tokens) {
			if v, err := ParseValue(tokens[idx+2]); err == nil {
				spec.ACPhase = v
			}
		}
		joined = strings.Join(tokens[:idx], " ")
		tokens = tokens[:idx]
	}

	if m := funcRe.FindStringSubmatch(strings.TrimSpace(joined)); m != nil {
		args, err := parseArgs(m[2])
		if err != nil {
			return nil, err
		}
		spec.Args = args
		switch strings.ToLower(m[1]) {
		case "sin":
			spec.Kind = device.SIN
			if len(args) < 3 {
				return nil, errors.New("SIN needs offset, amplitude, frequency")
			}
			spec.DC = args[0]
		case "pulse":
			spec.Kind = device.PULSE
			if len(args) < 7 {
				return nil, errors.New("PULSE needs v1 v2 td tr tf pw per")
			}
			spec.DC = args[0]
		case "pwl":
			spec.Kind = device.PWL
			if len(args) < 2 || len(args)%2 != 0 {
				return nil, errors.New("PWL needs time/value pairs")
			}
			spec.DC = args[1]
		}
		return spec, nil
	}

	if v, ok := dcValueOf(tokens); ok {
		spec.DC = v
	}
	return spec, nil
}

func parseArgs(s string) ([]float64, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	args := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := ParseValue(f)
		if err != nil {
			return nil, errors.Wrapf(err, "waveform argument %q", f)
		}
		args = append(args, v)
	}
	return args, nil
}

func indexFold(tokens []string, want string) int {
	for i, t := range tokens {
		if strings.EqualFold(t, want) {
			return i
		}
	}
	return -1
}

// BuildVoltageSource constructs the device for a V card.
func BuildVoltageSource(name string, nodes []string, tokens []string) (*device.VoltageSource, error) {
	spec, err := ParseSource(tokens)
	if err != nil {
		return nil, errors.Wrapf(err, "source %s", name)
	}

	var v *device.VoltageSource
	switch spec.Kind {
	case device.SIN:
		phase := 0.0
		if len(spec.Args) > 4 {
			phase = spec.Args[4]
		}
		v = device.NewSinVoltageSource(name, nodes, spec.Args[0], spec.Args[1], spec.Args[2], phase)
	case device.PULSE:
		a := spec.Args
		v = device.NewPulseVoltageSource(name, nodes, a[0], a[1], a[2], a[3], a[4], a[5], a[6])
	case device.PWL:
		times := make([]float64, 0, len(spec.Args)/2)
		values := make([]float64, 0, len(spec.Args)/2)
		for i := 0; i+1 < len(spec.Args); i += 2 {
			times = append(times, spec.Args[i])
			values = append(values, spec.Args[i+1])
		}
		v = device.NewPWLVoltageSource(name, nodes, times, values)
	default:
		v = device.NewDCVoltageSource(name, nodes, spec.DC)
	}

	if spec.HasAC {
		v.SetAC(spec.ACMag, spec.ACPhase)
	}
	return v, nil
}

// BuildCurrentSource constructs the device for an I card.
func BuildCurrentSource(name string, nodes []string, tokens []string) (*device.CurrentSource, error) {
	spec, err := ParseSource(tokens)
	if err != nil {
		return nil, errors.Wrapf(err, "source %s", name)
	}

	var c *device.CurrentSource
	switch spec.Kind {
	case device.SIN:
		phase := 0.0
		if len(spec.Args) > 4 {
			phase = spec.Args[4]
		}
		c = device.NewSinCurrentSource(name, nodes, spec.Args[0], spec.Args[1], spec.Args[2], phase)
	case device.PULSE:
		a := spec.Args
		c = device.NewPulseCurrentSource(name, nodes, a[0], a[1], a[2], a[3], a[4], a[5], a[6])
	case device.PWL:
		times := make([]float64, 0, len(spec.Args)/2)
		values := make([]float64, 0, len(spec.Args)/2)
		for i := 0; i+1 < len(spec.Args); i += 2 {
			times = append(times, spec.Args[i])
			values = append(values, spec.Args[i+1])
		}
		c = device.NewPWLCurrentSource(name, nodes, times, values)
	default:
		c = device.NewDCCurrentSource(name, nodes, spec.DC)
	}

	if spec.HasAC {
		c.SetAC(spec.ACMag, spec.ACPhase)
	}
	return c, nil
}
