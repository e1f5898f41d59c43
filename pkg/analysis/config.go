package analysis

import (
	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/util"
)

// SteppingStrategy selects the recovery path for a singular or
// non-convergent operating point.
type SteppingStrategy int

const (
	SteppingAuto SteppingStrategy = iota // gmin first, then source
	SteppingGmin
	SteppingSource
)

// Config carries the per-analysis tuning knobs with their SPICE defaults.
type Config struct {
	Reltol      float64 // relative Newton termination tolerance
	Abstol      float64 // additive current tolerance floor
	Vntol       float64 // voltage absolute tolerance
	Trtol       float64 // LTE acceptance factor
	Itl1        int     // DC iteration cap
	Itl4        int     // transient iterations per step
	Gmin        float64 // minimum junction conductance
	Temperature float64 // simulation temperature (K)
	Method      util.IntegrationMethod
	Order       int
	MaxStep     float64
	TStep       float64
	TStop       float64
	UIC         bool
	GminSteps   int
	SrcSteps    int
	Stepping    SteppingStrategy
}

func DefaultConfig() *Config {
	return &Config{
		Reltol:      1e-3,
		Abstol:      1e-12,
		Vntol:       1e-6,
		Trtol:       7.0,
		Itl1:        100,
		Itl4:        10,
		Gmin:        1e-12,
		Temperature: consts.REFTEMP,
		Method:      util.TrapezoidalMethod,
		Order:       2,
		GminSteps:   10,
		SrcSteps:    10,
	}
}

// Set applies a named option. Unrecognized names are reported, never
// silently accepted.
func (c *Config) Set(name string, value float64) error {
	switch name {
	case "reltol":
		c.Reltol = value
	case "abstol":
		c.Abstol = value
	case "vntol":
		c.Vntol = value
	case "trtol":
		c.Trtol = value
	case "itl1":
		c.Itl1 = int(value)
	case "itl4":
		c.Itl4 = int(value)
	case "gmin":
		c.Gmin = value
	case "temp", "temperature":
		c.Temperature = value
	case "maxord":
		c.Order = util.Clamp(int(value), 1, util.MaxOrder)
	case "maxstep":
		c.MaxStep = value
	case "gminsteps":
		c.GminSteps = int(value)
	case "srcsteps", "itl6":
		c.SrcSteps = int(value)
	case "method":
		// numeric encoding: 0 gear, 1 trapezoidal
		if value == 0 {
			c.Method = util.GearMethod
		} else {
			c.Method = util.TrapezoidalMethod
		}
	default:
		return errors.Wrap(simerr.ErrUnknownOption, name)
	}
	return nil
}

// SetMethod applies a named integration method.
func (c *Config) SetMethod(name string) error {
	switch name {
	case "trapezoidal", "trap":
		c.Method = util.TrapezoidalMethod
		if c.Order > 2 {
			c.Order = 2
		}
	case "gear":
		c.Method = util.GearMethod
	default:
		return errors.Wrapf(simerr.ErrUnknownOption, "method %s", name)
	}
	return nil
}

// ApplyOptions applies a parsed .options map.
func (c *Config) ApplyOptions(options map[string]float64) error {
	for name, v := range options {
		if err := c.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
