package behavior

import (
	"strings"

	"github.com/saugkim/spicecore/pkg/device"
	"github.com/saugkim/spicecore/pkg/simerr"
)

func init() {
	registerBuiltins()
}

func pinCheck(spec EntitySpec, want int) error {
	if len(spec.Nodes) != want {
		return &simerr.PinCountMismatchError{Device: spec.Name, Expected: want, Got: len(spec.Nodes)}
	}
	return nil
}

func applyParams(dev device.Device, spec EntitySpec) {
	for name, v := range spec.Params {
		dev.Params().Set(strings.ToLower(name), v)
	}
}

func registerBuiltins() {
	Register("R", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		r := device.NewResistor(spec.Name, spec.Nodes, spec.Value)
		applyParams(r, spec)
		return r, nil
	})

	Register("C", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		c := device.NewCapacitor(spec.Name, spec.Nodes, spec.Value)
		applyParams(c, spec)
		return c, nil
	})

	Register("L", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		l := device.NewInductor(spec.Name, spec.Nodes, spec.Value)
		applyParams(l, spec)
		return l, nil
	})

	Register("D", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		d := device.NewDiode(spec.Name, spec.Nodes)
		applyParams(d, spec)
		return d, nil
	})

	Register("Q", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 3); err != nil {
			return nil, err
		}
		pnp := strings.EqualFold(spec.ModelType, "PNP")
		q := device.NewBJT(spec.Name, spec.Nodes, pnp)
		applyParams(q, spec)
		return q, nil
	})

	Register("M", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 4); err != nil {
			return nil, err
		}
		pmos := strings.EqualFold(spec.ModelType, "PMOS")
		level := 1
		if lv, ok := spec.Params["level"]; ok {
			level = int(lv)
		}
		m := device.NewMosfet(spec.Name, spec.Nodes, pmos, level)
		applyParams(m, spec)
		return m, nil
	})

	Register("V", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		v := device.NewDCVoltageSource(spec.Name, spec.Nodes, spec.Value)
		return v, nil
	})

	Register("I", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		i := device.NewDCCurrentSource(spec.Name, spec.Nodes, spec.Value)
		return i, nil
	})

	Register("S", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 4); err != nil {
			return nil, err
		}
		s := device.NewVSwitch(spec.Name, spec.Nodes)
		applyParams(s, spec)
		return s, nil
	})

	Register("W", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		w := device.NewCSwitch(spec.Name, spec.Nodes)
		applyParams(w, spec)
		return w, nil
	})

	Register("E", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 4); err != nil {
			return nil, err
		}
		return device.NewVCVS(spec.Name, spec.Nodes, spec.Value), nil
	})

	Register("G", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 4); err != nil {
			return nil, err
		}
		return device.NewVCCS(spec.Name, spec.Nodes, spec.Value), nil
	})

	Register("F", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		return device.NewCCCS(spec.Name, spec.Nodes, spec.Value), nil
	})

	Register("H", func(spec EntitySpec) (device.Device, error) {
		if err := pinCheck(spec, 2); err != nil {
			return nil, err
		}
		return device.NewCCVS(spec.Name, spec.Nodes, spec.Value), nil
	})
}
