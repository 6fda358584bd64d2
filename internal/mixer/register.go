package mixer

import "github.com/elseecay/overpass/internal/serialize"

// RegisterAll adds the Mixer/Hasher/KeyHasher factories to reg. Callers
// typically do this through internal/cryptoreg, which composes this with
// internal/primitives.RegisterAll into one registry.
func RegisterAll(reg *serialize.Registry) {
	reg.MustRegister(IDMixer, mixerFactory)
	reg.MustRegister(IDHasher, hasherFactory)
	reg.MustRegister(IDKeyHasher, keyHasherFactory)
}
