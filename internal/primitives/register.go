package primitives

import "github.com/elseecay/overpass/internal/serialize"

// RegisterAll adds every hash and cipher factory to reg. Composition
// types (Mixer/Hasher/KeyHasher) register themselves separately from
// internal/mixer, which depends on this package.
func RegisterAll(reg *serialize.Registry) {
	RegisterHashes(reg)
	RegisterCiphers(reg)
}
