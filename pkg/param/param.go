// Package param holds per-entity parameter bundles. A parameter remembers
// whether the user set it explicitly; model code uses that to decide whether
// a value was defaulted or chosen.
package param

import (
	"sort"

	"github.com/saugkim/spicecore/pkg/simerr"
)

// Value is a parameter with its given flag. Defaults must not appear given.
type Value struct {
	Value float64
	Given bool
}

// Bundle is a named parameter set with an optional principal parameter, the
// one a bare positional netlist value assigns (a resistor's resistance).
type Bundle struct {
	values    map[string]Value
	principal string
}

func NewBundle() *Bundle {
	return &Bundle{values: make(map[string]Value)}
}

// Default stores a value without marking it given. An explicitly set
// parameter keeps its value.
func (b *Bundle) Default(name string, v float64) {
	if cur, ok := b.values[name]; ok && cur.Given {
		return
	}
	b.values[name] = Value{Value: v}
}

// Set stores a value and marks it given.
func (b *Bundle) Set(name string, v float64) {
	b.values[name] = Value{Value: v, Given: true}
}

func (b *Bundle) Get(name string) (Value, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Float returns the current value, given or defaulted, zero if absent.
func (b *Bundle) Float(name string) float64 {
	return b.values[name].Value
}

// Given reports whether the user explicitly set the parameter.
func (b *Bundle) Given(name string) bool {
	return b.values[name].Given
}

// Require returns the value of a parameter that must have been given.
func (b *Bundle) Require(name string) (float64, error) {
	v, ok := b.values[name]
	if !ok || !v.Given {
		return 0, &simerr.MissingParameterError{Name: name}
	}
	return v.Value, nil
}

// Setter returns a closure writing a specific named parameter and marking
// it given. Used to bind netlist card fields to bundle entries.
func (b *Bundle) Setter(name string) func(float64) {
	return func(v float64) { b.Set(name, v) }
}

// DeclarePrincipal names the parameter positional values bind to.
func (b *Bundle) DeclarePrincipal(name string) {
	b.principal = name
}

// SetPrincipal assigns the positional value, if a principal is declared.
func (b *Bundle) SetPrincipal(v float64) bool {
	if b.principal == "" {
		return false
	}
	b.Set(b.principal, v)
	return true
}

func (b *Bundle) Principal() (string, Value, bool) {
	if b.principal == "" {
		return "", Value{}, false
	}
	v, ok := b.values[b.principal]
	return b.principal, v, ok
}

// Names returns the stored parameter names in sorted order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
