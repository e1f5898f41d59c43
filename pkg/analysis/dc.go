package analysis

import (
	"context"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/device"
)

// sweepSource is the writable handle a DC sweep drives.
type sweepSource interface {
	SetValue(value float64)
	GetValue() float64
}

// DCSweep steps one or two sources through their ranges, solving an
// operating point at each value. Source values are restored afterwards.
type DCSweep struct {
	BaseAnalysis
	op          *OperatingPoint
	sourceNames []string
	starts      []float64
	stops       []float64
	increments  []float64
	sources     []sweepSource
	origVals    []float64
}

func NewDCSweep(cfg *Config, sources []string, starts, stops, increments []float64) (*DCSweep, error) {
	if len(sources) == 0 || len(sources) > 2 {
		return nil, errors.Errorf("unsupported number of sweep sources: %d", len(sources))
	}
	if len(sources) != len(starts) || len(sources) != len(stops) || len(sources) != len(increments) {
		return nil, errors.New("inconsistent sweep parameter lengths")
	}
	return &DCSweep{
		BaseAnalysis: *NewBaseAnalysis(cfg),
		op:           NewOP(cfg),
		sourceNames:  sources,
		starts:       starts,
		stops:        stops,
		increments:   increments,
	}, nil
}

func (dc *DCSweep) Setup(ckt *circuit.Circuit) error {
	dc.Circuit = ckt
	if err := dc.op.Setup(ckt); err != nil {
		return err
	}

	dc.sources = dc.sources[:0]
	dc.origVals = dc.origVals[:0]
	for _, name := range dc.sourceNames {
		dev := ckt.Device(name)
		if dev == nil {
			return errors.Errorf("sweep source %s not found", name)
		}
		var src sweepSource
		switch d := dev.(type) {
		case *device.VoltageSource:
			src = d
		case *device.CurrentSource:
			src = d
		default:
			return errors.Errorf("sweep source %s is not an independent source", name)
		}
		dc.sources = append(dc.sources, src)
		dc.origVals = append(dc.origVals, src.GetValue())
	}
	return nil
}

func (dc *DCSweep) values(i int) []float64 {
	var vals []float64
	for v := dc.starts[i]; v <= dc.stops[i]+dc.increments[i]/2; v += dc.increments[i] {
		vals = append(vals, v)
	}
	return vals
}

func (dc *DCSweep) Execute(ctx context.Context) error {
	if dc.Circuit == nil {
		return errors.New("circuit not set")
	}
	defer func() {
		for i, src := range dc.sources {
			src.SetValue(dc.origVals[i])
		}
	}()

	if len(dc.sources) == 1 {
		return dc.singleSweep(ctx)
	}
	return dc.nestedSweep(ctx)
}

func (dc *DCSweep) solvePoint(ctx context.Context) error {
	return dc.op.Solve(ctx)
}

func (dc *DCSweep) singleSweep(ctx context.Context) error {
	for _, val := range dc.values(0) {
		if err := dc.checkCancelled(ctx); err != nil {
			return err
		}
		dc.sources[0].SetValue(val)
		if err := dc.solvePoint(ctx); err != nil {
			return errors.Wrapf(err, "at %s=%g", dc.sourceNames[0], val)
		}
		dc.StoreSweepResult(val, dc.Circuit.Solution())
	}
	return nil
}

func (dc *DCSweep) nestedSweep(ctx context.Context) error {
	for _, v1 := range dc.values(0) {
		dc.sources[0].SetValue(v1)
		for _, v2 := range dc.values(1) {
			if err := dc.checkCancelled(ctx); err != nil {
				return err
			}
			dc.sources[1].SetValue(v2)
			if err := dc.solvePoint(ctx); err != nil {
				return errors.Wrapf(err, "at %s=%g, %s=%g",
					dc.sourceNames[0], v1, dc.sourceNames[1], v2)
			}
			dc.storeValue("SWEEP2", v2)
			dc.StoreSweepResult(v1, dc.Circuit.Solution())
		}
	}
	return nil
}
