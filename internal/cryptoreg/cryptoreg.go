// Package cryptoreg wires internal/primitives and internal/mixer into a
// single serialize.Registry, the explicit replacement for the reference
// implementation's metaclass-driven auto-registration (every concrete
// algorithm there registers itself as a side effect of class definition;
// here, startup calls one function instead).
package cryptoreg

import (
	"github.com/elseecay/overpass/internal/mixer"
	"github.com/elseecay/overpass/internal/primitives"
	"github.com/elseecay/overpass/internal/serialize"
)

// New returns a registry with every hash, cipher, and composition
// algorithm registered, ready to serialize/deserialize manifest and
// description trees.
func New() *serialize.Registry {
	reg := serialize.NewRegistry()
	primitives.RegisterAll(reg)
	mixer.RegisterAll(reg)
	return reg
}
