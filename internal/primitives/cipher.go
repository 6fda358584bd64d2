package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/enceve/crypto/camellia"
	"golang.org/x/crypto/chacha20"

	"github.com/elseecay/overpass/internal/serialize"
)

// Cipher is implemented by every encryption primitive a Mixer chains
// together. Each algorithm exists in encryptor/decryptor pairs sharing one
// ALGORITHM_ID; only the encryptor side is registered as a serializable
// Algorithm, matching the reference implementation (a decryptor is never
// persisted on its own — it is always produced via Opposite from a
// deserialized encryptor).
type Cipher interface {
	serialize.Algorithm
	KeySize() int
	IVSize() int
	IsEncryptor() bool
	SetKey(key []byte) error
	SetIV(iv []byte) error
	// Key returns the currently assigned key, or nil if none has been
	// set yet. Used by Mixer.Opposite to carry keys over to the reversed
	// instance without re-deriving them.
	Key() []byte
	Process(data []byte) ([]byte, error)
	// Opposite returns the encryptor/decryptor counterpart with the same
	// configuration and no key/IV set, mirroring opposite_instance.
	Opposite() Cipher
}

type cipherKind int

const (
	kindAES256CTR cipherKind = iota
	kindChaCha20
	kindCamellia256CTR
)

const (
	aesKeySize       = 32
	aesBlockSize     = 16
	chachaKeySize    = 32
	chachaIVSize     = 16
	camelliaKeySize  = 32
	camelliaBlockSize = 16
)

type blockCipher struct {
	kind      cipherKind
	id        int
	encryptor bool
	keySize   int
	ivSize    int
	key       []byte
	iv        []byte
}

func newCipher(kind cipherKind, id int, encryptor bool, keySize, ivSize int) *blockCipher {
	return &blockCipher{kind: kind, id: id, encryptor: encryptor, keySize: keySize, ivSize: ivSize}
}

// NewAES256CTREncryptor mirrors Enc256AESCTR.
func NewAES256CTREncryptor() *blockCipher {
	return newCipher(kindAES256CTR, IDEncAES256CTR, true, aesKeySize, aesBlockSize)
}

// NewAES256CTRDecryptor mirrors Dec256AESCTR.
func NewAES256CTRDecryptor() *blockCipher {
	return newCipher(kindAES256CTR, IDEncAES256CTR, false, aesKeySize, aesBlockSize)
}

// NewChaCha20Encryptor mirrors Enc256CHACHA. The 16-byte IV is split into
// a 4-byte little-endian counter and a 12-byte nonce on use, matching the
// reference cryptography library's ChaCha20 mode (it treats its 16-byte
// "nonce" as counter||nonce) against golang.org/x/crypto/chacha20's
// separate SetCounter/12-byte-nonce API.
func NewChaCha20Encryptor() *blockCipher {
	return newCipher(kindChaCha20, IDEncChaCha20, true, chachaKeySize, chachaIVSize)
}

// NewChaCha20Decryptor mirrors Dec256CHACHA.
func NewChaCha20Decryptor() *blockCipher {
	return newCipher(kindChaCha20, IDEncChaCha20, false, chachaKeySize, chachaIVSize)
}

// NewCamellia256CTREncryptor mirrors Enc256CAMELLIACTR.
func NewCamellia256CTREncryptor() *blockCipher {
	return newCipher(kindCamellia256CTR, IDEncCamellia256CTR, true, camelliaKeySize, camelliaBlockSize)
}

// NewCamellia256CTRDecryptor mirrors Dec256CAMELLIACTR.
func NewCamellia256CTRDecryptor() *blockCipher {
	return newCipher(kindCamellia256CTR, IDEncCamellia256CTR, false, camelliaKeySize, camelliaBlockSize)
}

func (c *blockCipher) AlgorithmID() int   { return c.id }
func (c *blockCipher) KeySize() int       { return c.keySize }
func (c *blockCipher) IVSize() int        { return c.ivSize }
func (c *blockCipher) IsEncryptor() bool  { return c.encryptor }

func (c *blockCipher) SetKey(key []byte) error {
	if len(key) != c.keySize {
		return fmt.Errorf("primitives: key must be %d bytes, got %d", c.keySize, len(key))
	}
	c.key = key
	return nil
}

func (c *blockCipher) Key() []byte {
	return c.key
}

func (c *blockCipher) SetIV(iv []byte) error {
	if len(iv) != c.ivSize {
		return fmt.Errorf("primitives: iv must be %d bytes, got %d", c.ivSize, len(iv))
	}
	c.iv = iv
	return nil
}

func (c *blockCipher) Opposite() Cipher {
	return newCipher(c.kind, c.id, !c.encryptor, c.keySize, c.ivSize)
}

func (c *blockCipher) Process(data []byte) ([]byte, error) {
	if c.key == nil || c.iv == nil {
		panic("primitives: Process called before key and iv were set")
	}
	switch c.kind {
	case kindAES256CTR:
		return c.processCTR(data, func(key []byte) (cipher.Block, error) { return aes.NewCipher(key) })
	case kindCamellia256CTR:
		return c.processCTR(data, func(key []byte) (cipher.Block, error) { return camellia.NewCipher(key) })
	case kindChaCha20:
		return c.processChaCha20(data)
	default:
		panic("primitives: unreachable cipher kind")
	}
}

func (c *blockCipher) processCTR(data []byte, newBlock func([]byte) (cipher.Block, error)) ([]byte, error) {
	block, err := newBlock(c.key)
	if err != nil {
		return nil, fmt.Errorf("primitives: %w", err)
	}
	stream := cipher.NewCTR(block, c.iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// processChaCha20 splits the 16-byte IV into the leading 4-byte
// little-endian block counter and the trailing 12-byte nonce, the same
// split the reference cryptography library performs internally for its
// ChaCha20 mode.
func (c *blockCipher) processChaCha20(data []byte) ([]byte, error) {
	counter := uint32(c.iv[0]) | uint32(c.iv[1])<<8 | uint32(c.iv[2])<<16 | uint32(c.iv[3])<<24
	nonce := c.iv[4:16]
	stream, err := chacha20.NewUnauthenticatedCipher(c.key, nonce)
	if err != nil {
		return nil, fmt.Errorf("primitives: %w", err)
	}
	stream.SetCounter(counter)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

func (c *blockCipher) SerializeTree(reg *serialize.Registry) (serialize.Tree, error) {
	if !c.encryptor {
		panic("primitives: a decryptor instance is never serialized directly")
	}
	d := serialize.NewDriver(reg, c.id)
	return d.Data(), nil
}

func cipherFactory(newEncryptor func() *blockCipher) serialize.Factory {
	return func(reg *serialize.Registry, data map[string]interface{}) (serialize.Algorithm, error) {
		return newEncryptor(), nil
	}
}

// RegisterCiphers adds every cipher's encryptor factory to reg. Only
// encryptors are registered: a decryptor is obtained via Opposite on an
// already-constructed encryptor, never deserialized on its own.
func RegisterCiphers(reg *serialize.Registry) {
	reg.MustRegister(IDEncAES256CTR, cipherFactory(NewAES256CTREncryptor))
	reg.MustRegister(IDEncChaCha20, cipherFactory(NewChaCha20Encryptor))
	reg.MustRegister(IDEncCamellia256CTR, cipherFactory(NewCamellia256CTREncryptor))
}
