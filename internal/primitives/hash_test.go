package primitives

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestFixSHA3_512Vector(t *testing.T) {
	h := NewFixSHA3_512()
	out, err := h.Process([]byte("abc"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want, _ := hex.DecodeString(
		"b751850b1a57168a5693cd924b6b096e08f621827444f70d884f5d0240d2712" +
			"e10e116e9192af3c91a7ec57647e3934057340b4cf408d5a56592f8274eec53f0")
	if !bytes.Equal(out, want) {
		t.Fatalf("SHA3-512(\"abc\") mismatch:\n got  %x\n want %x", out, want)
	}
}

func TestFixSHA3_256Deterministic(t *testing.T) {
	h := NewFixSHA3_256()
	out1, err := h.Process([]byte("abc"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	out2, err := h.Process([]byte("abc"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Fatal("SHA3-256 produced different digests for identical input")
	}
	other, err := h.Process([]byte("abd"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if bytes.Equal(out1, other) {
		t.Fatal("SHA3-256 produced identical digests for different input")
	}
}

func TestFixHashDigestSizes(t *testing.T) {
	cases := []struct {
		name string
		h    Hash
		size int
	}{
		{"sha3-224", NewFixSHA3_224(), 28},
		{"sha3-256", NewFixSHA3_256(), 32},
		{"sha3-384", NewFixSHA3_384(), 48},
		{"sha3-512", NewFixSHA3_512(), 64},
		{"blake2b-512", NewFixBLAKE2b512(), 64},
	}
	for _, c := range cases {
		if c.h.DigestSize() != c.size {
			t.Errorf("%s: expected digest size %d, got %d", c.name, c.size, c.h.DigestSize())
		}
		out, err := c.h.Process([]byte("test"))
		if err != nil {
			t.Errorf("%s: Process: %v", c.name, err)
			continue
		}
		if len(out) != c.size {
			t.Errorf("%s: expected %d output bytes, got %d", c.name, c.size, len(out))
		}
	}
}

func TestVarShakeDigestSize(t *testing.T) {
	h, err := NewVarShake128(24)
	if err != nil {
		t.Fatalf("NewVarShake128: %v", err)
	}
	out, err := h.Process([]byte("test"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 24 {
		t.Fatalf("expected 24-byte digest, got %d", len(out))
	}
}

func TestVarScryptRejectsShortSalt(t *testing.T) {
	_, err := NewVarScrypt(32, make([]byte, 8), 1<<14, 8)
	if err == nil {
		t.Fatal("expected error for short salt")
	}
}

func TestVarScryptRejectsLowN(t *testing.T) {
	_, err := NewVarScrypt(32, make([]byte, 16), 1<<10, 8)
	if err == nil {
		t.Fatal("expected error for n below 2^14")
	}
}
