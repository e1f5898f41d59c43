// Package behavior maps entity kinds to device factories and resolves the
// behavior set an entity exposes. The registry is process-wide, populated at
// startup, and read-mostly afterwards; a reader/writer lock guards it so
// independent simulations can share it.
package behavior

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/device"
)

// Kind is the closed set of behavior kinds.
type Kind int

const (
	TemperatureKind Kind = iota
	LoadKind
	ACLoadKind
	TransientKind
	NoiseKind
	AcceptKind
)

var kindNames = map[Kind]string{
	TemperatureKind: "temperature",
	LoadKind:        "load",
	ACLoadKind:      "acload",
	TransientKind:   "transient",
	NoiseKind:       "noise",
	AcceptKind:      "accept",
}

func (k Kind) String() string { return kindNames[k] }

// AllKinds is the default request list, in execution order.
var AllKinds = []Kind{TemperatureKind, LoadKind, ACLoadKind, TransientKind, NoiseKind, AcceptKind}

// EntitySpec carries what a factory needs to build a device.
type EntitySpec struct {
	Name      string
	Nodes     []string
	Value     float64
	Params    map[string]float64
	Model     string
	ModelType string
}

// Factory builds a device for an entity kind.
type Factory func(spec EntitySpec) (device.Device, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register binds an entity kind tag to a factory. Later registrations win,
// so applications can override built-ins before the first simulation.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Resolve returns the factory for an entity kind.
func Resolve(kind string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[kind]
	if !ok {
		return nil, errors.Errorf("no factory registered for entity kind %q", kind)
	}
	return f, nil
}

// Reset restores the registry to the built-in device set, for tests that
// re-initialize between cases.
func Reset() {
	mu.Lock()
	factories = map[string]Factory{}
	mu.Unlock()
	registerBuiltins()
}

// implements reports whether the instance satisfies a behavior kind.
func implements(inst any, k Kind) bool {
	switch k {
	case TemperatureKind:
		_, ok := inst.(device.Temperature)
		return ok
	case LoadKind:
		_, ok := inst.(device.Loader)
		return ok
	case ACLoadKind:
		_, ok := inst.(device.ACLoader)
		return ok
	case TransientKind:
		_, ok := inst.(device.Transient)
		return ok
	case NoiseKind:
		_, ok := inst.(device.Noiser)
		return ok
	case AcceptKind:
		_, ok := inst.(device.Accepter)
		return ok
	default:
		return false
	}
}

// Set is an entity's resolved behavior set: for each requested kind, the
// instance serving it. Distinct kinds may share one instance.
type Set map[Kind]any

// Instances returns the distinct behavior objects in the set.
func (s Set) Instances() []any {
	seen := make(map[any]bool, len(s))
	out := make([]any, 0, len(s))
	for _, inst := range s {
		if !seen[inst] {
			seen[inst] = true
			out = append(out, inst)
		}
	}
	return out
}

// ResolveSet walks the requested kinds in reverse order, calling build only
// when no previously created instance already implements the kind. A single
// object implementing several kinds is therefore instantiated once.
func ResolveSet(requested []Kind, build func(Kind) any) Set {
	set := make(Set, len(requested))
	var created []any

	for i := len(requested) - 1; i >= 0; i-- {
		k := requested[i]

		var found any
		for _, inst := range created {
			if implements(inst, k) {
				found = inst
				break
			}
		}
		if found == nil {
			found = build(k)
			if found == nil {
				continue
			}
			created = append(created, found)
		}
		if implements(found, k) {
			set[k] = found
		}
	}
	return set
}

// BehaviorsOf resolves the full behavior set of a single device instance by
// interface probing.
func BehaviorsOf(dev device.Device) Set {
	return ResolveSet(AllKinds, func(Kind) any { return dev })
}
