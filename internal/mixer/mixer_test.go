package mixer

import (
	"bytes"
	"testing"

	"github.com/elseecay/overpass/internal/primitives"
)

func twoElementKeys(t *testing.T) [][]byte {
	t.Helper()
	key1 := bytes.Repeat([]byte{0x11}, 32)
	key2 := bytes.Repeat([]byte{0x22}, 32)
	return [][]byte{key1, key2}
}

func TestMixerRoundTrip(t *testing.T) {
	elements := []primitives.Cipher{
		primitives.NewAES256CTREncryptor(),
		primitives.NewChaCha20Encryptor(),
	}
	m, err := NewMixer(elements, twoElementKeys(t))
	if err != nil {
		t.Fatalf("NewMixer: %v", err)
	}
	randFn := func(n int) ([]byte, error) {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(n + i)
		}
		return b, nil
	}
	ivBlob, err := m.SetIVRandom(randFn)
	if err != nil {
		t.Fatalf("SetIVRandom: %v", err)
	}
	if len(ivBlob) != m.IVSizeTotal() {
		t.Fatalf("expected iv blob of length %d, got %d", m.IVSizeTotal(), len(ivBlob))
	}

	plaintext := []byte("some secret record content, padded to a few blocks worth")
	ciphertext, err := m.Process(plaintext)
	if err != nil {
		t.Fatalf("Process (encrypt): %v", err)
	}

	opp, err := m.Opposite()
	if err != nil {
		t.Fatalf("Opposite: %v", err)
	}
	if err := opp.SetIV(ivBlob, true); err != nil {
		t.Fatalf("SetIV on opposite: %v", err)
	}
	recovered, err := opp.Process(ciphertext)
	if err != nil {
		t.Fatalf("Process (decrypt): %v", err)
	}
	if !bytes.Equal(plaintext, recovered) {
		t.Fatalf("round trip mismatch:\n got  %q\n want %q", recovered, plaintext)
	}
}

func TestMixerProcessBeforeKeysPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when Process is called before SetKeys")
		}
	}()
	m, err := NewMixer([]primitives.Cipher{primitives.NewAES256CTREncryptor()}, nil)
	if err != nil {
		t.Fatalf("NewMixer: %v", err)
	}
	_, _ = m.Process([]byte("data"))
}

func TestMixerSetKeysWrongCountErrors(t *testing.T) {
	m, err := NewMixer([]primitives.Cipher{primitives.NewAES256CTREncryptor(), primitives.NewChaCha20Encryptor()}, nil)
	if err != nil {
		t.Fatalf("NewMixer: %v", err)
	}
	if err := m.SetKeys([][]byte{bytes.Repeat([]byte{1}, 32)}); err == nil {
		t.Fatal("expected error for mismatched key count")
	}
}

func TestHasherChainAndIterations(t *testing.T) {
	inner := primitives.NewFixSHA3_512()
	outer := primitives.NewFixBLAKE2b512()
	h, err := NewHasher([]HasherElement{inner, outer}, 3)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if h.DigestSize() != 64 {
		t.Fatalf("expected digest size 64 (last element BLAKE2b-512), got %d", h.DigestSize())
	}
	out1, err := h.Process([]byte("password"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	out2, err := h.Process([]byte("password"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Fatal("Hasher is not deterministic for identical input")
	}
	if len(out1) != 64 {
		t.Fatalf("expected 64-byte output, got %d", len(out1))
	}
}

func TestKeyHasherProducesOneKeyPerElement(t *testing.T) {
	elements := []HasherElement{
		primitives.NewFixSHA3_256(),
		primitives.NewFixSHA3_512(),
	}
	kh, err := NewKeyHasher(elements)
	if err != nil {
		t.Fatalf("NewKeyHasher: %v", err)
	}
	keys, err := kh.Process([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 derived keys, got %d", len(keys))
	}
	if len(keys[0]) != 32 {
		t.Fatalf("expected first key to be 32 bytes (SHA3-256), got %d", len(keys[0]))
	}
	if len(keys[1]) != 64 {
		t.Fatalf("expected second key to be 64 bytes (SHA3-512), got %d", len(keys[1]))
	}
	if bytes.Equal(keys[0], keys[1][:32]) {
		t.Fatal("expected cumulative derivation to differ from a duplicate of the first key")
	}
}
