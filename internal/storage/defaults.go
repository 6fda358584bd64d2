package storage

import (
	"crypto/rand"
	"fmt"

	"github.com/elseecay/overpass/internal/mixer"
	"github.com/elseecay/overpass/internal/primitives"
)

const (
	defaultScryptN1       = 1 << 20
	defaultScryptR1       = 2
	defaultScryptN2       = 1 << 16
	defaultScryptR2       = 32
	defaultScryptSaltSize = 16
)

// DefaultMixer builds the standard two-element cipher chain (AES-256-CTR
// then ChaCha20), unkeyed. Mirrors spec.md §6's default recipe.
func DefaultMixer() (*mixer.Mixer, error) {
	elements := []primitives.Cipher{
		primitives.NewAES256CTREncryptor(),
		primitives.NewChaCha20Encryptor(),
	}
	return mixer.NewMixer(elements, nil)
}

// DefaultKeyHasher builds the two-stage scrypt KeyHasher: n=2^20,r=2 then
// n=2^16,r=32, each with a fresh random 16-byte salt and a 32-byte digest
// (matching DefaultMixer's two 32-byte cipher keys). Mirrors spec.md §6's
// "default recipe uses two scrypt stages with random 16-byte salts".
func DefaultKeyHasher() (*mixer.KeyHasher, error) {
	salt1, err := randSalt()
	if err != nil {
		return nil, err
	}
	salt2, err := randSalt()
	if err != nil {
		return nil, err
	}
	stage1, err := primitives.NewVarScrypt(32, salt1, defaultScryptN1, defaultScryptR1)
	if err != nil {
		return nil, fmt.Errorf("storage: building default key hasher stage 1: %w", err)
	}
	stage2, err := primitives.NewVarScrypt(32, salt2, defaultScryptN2, defaultScryptR2)
	if err != nil {
		return nil, fmt.Errorf("storage: building default key hasher stage 2: %w", err)
	}
	return mixer.NewKeyHasher([]mixer.HasherElement{stage1, stage2})
}

// DefaultHsHasher builds the hash-search digest hasher: an inner Hasher
// chaining fixed SHA3-512 and BLAKE2b-512 over 3 iterations, then an
// outer single-iteration Hasher feeding that into a 16-byte SHAKE-128
// digest. Mirrors spec.md §4.5's "two-stage hasher that runs several
// iterations of a SHA3/BLAKE composition followed by SHAKE-128 down to
// 16 bytes".
func DefaultHsHasher() (*mixer.Hasher, error) {
	inner, err := mixer.NewHasher([]mixer.HasherElement{
		primitives.NewFixSHA3_512(),
		primitives.NewFixBLAKE2b512(),
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("storage: building default hs_hasher inner stage: %w", err)
	}
	shake, err := primitives.NewVarShake128(16)
	if err != nil {
		return nil, fmt.Errorf("storage: building default hs_hasher shake stage: %w", err)
	}
	outer, err := mixer.NewHasher([]mixer.HasherElement{inner, shake}, 1)
	if err != nil {
		return nil, fmt.Errorf("storage: building default hs_hasher outer stage: %w", err)
	}
	return outer, nil
}

func randSalt() ([]byte, error) {
	salt := make([]byte, defaultScryptSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("storage: generating salt: %w", err)
	}
	return salt, nil
}
