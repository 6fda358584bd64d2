// Package primitives implements the concrete hash and cipher algorithms
// the Mixer/Hasher/KeyHasher compositions are built from. Algorithm IDs
// and parameter constraints are preserved exactly from the reference
// implementation so a database produced by one port can be read by the
// other.
package primitives

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/crypto/sha3"

	"github.com/elseecay/overpass/internal/serialize"
)

// Algorithm ID ranges: 100-299 variable-digest hashes, 300-999
// fixed-digest hashes, 1000-1999 ciphers, 2000-2999 compositions
// (Mixer/Hasher/KeyHasher, see internal/mixer).
const (
	IDVarShake128 = 100
	IDVarShake256 = 101
	IDVarScrypt   = 110

	IDFixSHA3_224 = 310
	IDFixSHA3_256 = 311
	IDFixSHA3_384 = 312
	IDFixSHA3_512 = 313

	IDFixBLAKE2b512 = 320

	IDFixScrypt128 = 400
	IDFixScrypt256 = 401
	IDFixScrypt512 = 402

	IDEncAES256CTR      = 1000
	IDEncChaCha20       = 1010
	IDEncCamellia256CTR = 1020
)

// Hash is implemented by every hash algorithm: variable-digest
// (Shake128/256, Scrypt) and fixed-digest (SHA3 family, BLAKE2b-512,
// the three fixed Scrypt variants).
type Hash interface {
	serialize.Algorithm
	DigestSize() int
	Process(data []byte) ([]byte, error)
}

// --- variable-digest shakes ---

type shakeVariant struct {
	id         int
	digestSize int
	is256      bool
}

// NewVarShake128 mirrors VarHashShake128: SHAKE128 with a caller-chosen
// digest size.
func NewVarShake128(digestSize int) (*shakeVariant, error) {
	if digestSize <= 0 {
		return nil, fmt.Errorf("primitives: digest size must be positive, got %d", digestSize)
	}
	return &shakeVariant{id: IDVarShake128, digestSize: digestSize, is256: false}, nil
}

// NewVarShake256 mirrors VarHashShake256.
func NewVarShake256(digestSize int) (*shakeVariant, error) {
	if digestSize <= 0 {
		return nil, fmt.Errorf("primitives: digest size must be positive, got %d", digestSize)
	}
	return &shakeVariant{id: IDVarShake256, digestSize: digestSize, is256: true}, nil
}

func (s *shakeVariant) AlgorithmID() int { return s.id }
func (s *shakeVariant) DigestSize() int  { return s.digestSize }

func (s *shakeVariant) Process(data []byte) ([]byte, error) {
	out := make([]byte, s.digestSize)
	if s.is256 {
		sha3.ShakeSum256(out, data)
	} else {
		sha3.ShakeSum128(out, data)
	}
	return out, nil
}

func (s *shakeVariant) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, s.id)
	d.AddKey("digest_size", int64(s.digestSize))
	return d.Data(), nil
}

func shakeFactory(is256 bool) serialize.Factory {
	return func(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
		d := serialize.AttachDriver(reg, data)
		raw, err := d.GetKey("digest_size")
		if err != nil {
			return nil, err
		}
		digestSize, err := serialize.AsInt(raw)
		if err != nil {
			return nil, err
		}
		if is256 {
			return NewVarShake256(int(digestSize))
		}
		return NewVarShake128(int(digestSize))
	}
}

// --- variable-digest scrypt ---

type varScrypt struct {
	digestSize int
	salt       []byte
	n          int
	r          int
}

// NewVarScrypt mirrors VarHashScrypt: salt must be >= 16 bytes and n must
// be >= 2^14, matching the reference implementation's Parameter asserts.
func NewVarScrypt(digestSize int, salt []byte, n, r int) (*varScrypt, error) {
	if digestSize <= 0 {
		return nil, fmt.Errorf("primitives: digest size must be positive, got %d", digestSize)
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("primitives: scrypt salt must be at least 16 bytes, got %d", len(salt))
	}
	if n < 1<<14 {
		return nil, fmt.Errorf("primitives: scrypt n must be at least 2^14, got %d", n)
	}
	return &varScrypt{digestSize: digestSize, salt: salt, n: n, r: r}, nil
}

func (s *varScrypt) AlgorithmID() int { return IDVarScrypt }
func (s *varScrypt) DigestSize() int  { return s.digestSize }

func (s *varScrypt) Process(data []byte) ([]byte, error) {
	return scrypt.Key(data, s.salt, s.n, s.r, 1, s.digestSize)
}

func (s *varScrypt) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, IDVarScrypt)
	d.AddKey("digest_size", int64(s.digestSize))
	d.AddKey("salt", s.salt)
	d.AddKey("n", int64(s.n))
	d.AddKey("r", int64(s.r))
	return d.Data(), nil
}

func varScryptFactory(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
	d := serialize.AttachDriver(reg, data)
	digestSize, err := driverInt(d, "digest_size")
	if err != nil {
		return nil, err
	}
	salt, err := driverBytes(d, "salt")
	if err != nil {
		return nil, err
	}
	n, err := driverInt(d, "n")
	if err != nil {
		return nil, err
	}
	r, err := driverInt(d, "r")
	if err != nil {
		return nil, err
	}
	return NewVarScrypt(int(digestSize), salt, int(n), int(r))
}

// --- fixed-digest SHA3 / BLAKE2b ---

type fixedHashKind int

const (
	kindSHA3_224 fixedHashKind = iota
	kindSHA3_256
	kindSHA3_384
	kindSHA3_512
	kindBLAKE2b512
)

type fixedHash struct {
	id   int
	kind fixedHashKind
	size int
}

func newFixedHash(id int, kind fixedHashKind, size int) *fixedHash {
	return &fixedHash{id: id, kind: kind, size: size}
}

// NewFixSHA3_224 mirrors Hash224SHA3 (28-byte digest).
func NewFixSHA3_224() *fixedHash { return newFixedHash(IDFixSHA3_224, kindSHA3_224, 28) }

// NewFixSHA3_256 mirrors Hash256SHA3 (32-byte digest).
func NewFixSHA3_256() *fixedHash { return newFixedHash(IDFixSHA3_256, kindSHA3_256, 32) }

// NewFixSHA3_384 mirrors Hash384SHA3 (48-byte digest).
func NewFixSHA3_384() *fixedHash { return newFixedHash(IDFixSHA3_384, kindSHA3_384, 48) }

// NewFixSHA3_512 mirrors Hash512SHA3 (64-byte digest).
func NewFixSHA3_512() *fixedHash { return newFixedHash(IDFixSHA3_512, kindSHA3_512, 64) }

// NewFixBLAKE2b512 mirrors Hash512BLAKE2 (64-byte digest).
func NewFixBLAKE2b512() *fixedHash { return newFixedHash(IDFixBLAKE2b512, kindBLAKE2b512, 64) }

func (h *fixedHash) AlgorithmID() int { return h.id }
func (h *fixedHash) DigestSize() int  { return h.size }

func (h *fixedHash) Process(data []byte) ([]byte, error) {
	switch h.kind {
	case kindSHA3_224:
		sum := sha3.Sum224(data)
		return sum[:], nil
	case kindSHA3_256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case kindSHA3_384:
		sum := sha3.Sum384(data)
		return sum[:], nil
	case kindSHA3_512:
		sum := sha3.Sum512(data)
		return sum[:], nil
	case kindBLAKE2b512:
		sum := blake2b.Sum512(data)
		return sum[:], nil
	default:
		panic("primitives: unreachable fixed hash kind")
	}
}

func (h *fixedHash) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, h.id)
	return d.Data(), nil
}

func fixedHashFactory(kind fixedHashKind, ctor func() *fixedHash) serialize.Factory {
	return func(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
		return ctor(), nil
	}
}

// --- fixed-digest scrypt (128/256/512 bit) ---

type fixedScrypt struct {
	id   int
	size int
	salt []byte
	n    int
	r    int
}

func newFixedScrypt(id, size int, salt []byte, n, r int) (*fixedScrypt, error) {
	if len(salt) < 16 {
		return nil, fmt.Errorf("primitives: scrypt salt must be at least 16 bytes, got %d", len(salt))
	}
	if n < 1<<14 {
		return nil, fmt.Errorf("primitives: scrypt n must be at least 2^14, got %d", n)
	}
	return &fixedScrypt{id: id, size: size, salt: salt, n: n, r: r}, nil
}

// NewFixScrypt128 mirrors Hash128Scrypt (16-byte digest).
func NewFixScrypt128(salt []byte, n, r int) (*fixedScrypt, error) {
	return newFixedScrypt(IDFixScrypt128, 16, salt, n, r)
}

// NewFixScrypt256 mirrors Hash256Scrypt (32-byte digest).
func NewFixScrypt256(salt []byte, n, r int) (*fixedScrypt, error) {
	return newFixedScrypt(IDFixScrypt256, 32, salt, n, r)
}

// NewFixScrypt512 mirrors Hash512Scrypt (64-byte digest).
func NewFixScrypt512(salt []byte, n, r int) (*fixedScrypt, error) {
	return newFixedScrypt(IDFixScrypt512, 64, salt, n, r)
}

func (s *fixedScrypt) AlgorithmID() int { return s.id }
func (s *fixedScrypt) DigestSize() int  { return s.size }

func (s *fixedScrypt) Process(data []byte) ([]byte, error) {
	return scrypt.Key(data, s.salt, s.n, s.r, 1, s.size)
}

func (s *fixedScrypt) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	d := serialize.NewDriver(reg, s.id)
	d.AddKey("salt", s.salt)
	d.AddKey("n", int64(s.n))
	d.AddKey("r", int64(s.r))
	return d.Data(), nil
}

func fixedScryptFactory(id, size int) serialize.Factory {
	return func(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
		d := serialize.AttachDriver(reg, data)
		salt, err := driverBytes(d, "salt")
		if err != nil {
			return nil, err
		}
		n, err := driverInt(d, "n")
		if err != nil {
			return nil, err
		}
		r, err := driverInt(d, "r")
		if err != nil {
			return nil, err
		}
		return newFixedScrypt(id, size, salt, int(n), int(r))
	}
}

func driverInt(d *serialize.Driver, key string) (int64, error) {
	raw, err := d.GetKey(key)
	if err != nil {
		return 0, err
	}
	return serialize.AsInt(raw)
}

func driverBytes(d *serialize.Driver, key string) ([]byte, error) {
	raw, err := d.GetKey(key)
	if err != nil {
		return nil, err
	}
	return serialize.AsBytes(raw)
}

// RegisterHashes adds every hash algorithm's factory to reg.
func RegisterHashes(reg *serialize.Registry) {
	reg.MustRegister(IDVarShake128, shakeFactory(false))
	reg.MustRegister(IDVarShake256, shakeFactory(true))
	reg.MustRegister(IDVarScrypt, varScryptFactory)

	reg.MustRegister(IDFixSHA3_224, fixedHashFactory(kindSHA3_224, NewFixSHA3_224))
	reg.MustRegister(IDFixSHA3_256, fixedHashFactory(kindSHA3_256, NewFixSHA3_256))
	reg.MustRegister(IDFixSHA3_384, fixedHashFactory(kindSHA3_384, NewFixSHA3_384))
	reg.MustRegister(IDFixSHA3_512, fixedHashFactory(kindSHA3_512, NewFixSHA3_512))
	reg.MustRegister(IDFixBLAKE2b512, fixedHashFactory(kindBLAKE2b512, NewFixBLAKE2b512))

	reg.MustRegister(IDFixScrypt128, fixedScryptFactory(IDFixScrypt128, 16))
	reg.MustRegister(IDFixScrypt256, fixedScryptFactory(IDFixScrypt256, 32))
	reg.MustRegister(IDFixScrypt512, fixedScryptFactory(IDFixScrypt512, 64))
}
