package device

import (
	"math"

	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/state"
)

// Mutual couples two inductors with coefficient k, M = k*sqrt(L1*L2).
// The coupled terms are stamped by the inductors themselves; Mutual only
// validates and carries the coupling.
type Mutual struct {
	BaseDevice
	l1, l2 *Inductor
}

var _ Loader = (*Mutual)(nil)

func NewMutual(name string, k float64) (*Mutual, error) {
	if k < -1 || k > 1 {
		return nil, &simerr.ModelParameterOutOfRangeError{Name: "k", Value: k}
	}
	m := &Mutual{BaseDevice: NewBase(name, nil, k)}
	m.Bundle.DeclarePrincipal("k")
	m.Bundle.Set("k", k)
	return m, nil
}

func (k *Mutual) GetType() string { return "K" }

// Bind attaches the coupled pair. Called during circuit wiring.
func (k *Mutual) Bind(l1, l2 *Inductor) {
	k.l1, k.l2 = l1, l2
	l1.addCoupling(k)
	l2.addCoupling(k)
}

// M returns the mutual inductance.
func (k *Mutual) M() float64 {
	if k.l1 == nil || k.l2 == nil {
		return 0
	}
	return k.Bundle.Float("k") * math.Sqrt(k.l1.Bundle.Float("l")*k.l2.Bundle.Float("l"))
}

// Other returns the partner of the given inductor.
func (k *Mutual) Other(l *Inductor) *Inductor {
	switch l {
	case k.l1:
		return k.l2
	case k.l2:
		return k.l1
	default:
		return nil
	}
}

// Stamp is a no-op: the inductors stamp the coupled terms so each branch
// equation is assembled exactly once.
func (k *Mutual) Stamp(m matrix.Stamper, st *state.Status) error {
	return nil
}
